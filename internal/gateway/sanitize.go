package gateway

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	stripDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	nonAlnumSpace   = regexp.MustCompile(`[^a-zA-Z0-9 ]`)
	multiSpace      = regexp.MustCompile(`\s+`)
)

// SanitizeDescription reduces free text to the subset the gateway accepts in
// charge descriptions: diacritics stripped, anything outside alphanumerics and
// spaces removed, whitespace collapsed, uppercased and trimmed.
func SanitizeDescription(s string) string {
	out, _, err := transform.String(stripDiacritics, s)
	if err != nil {
		out = s
	}
	out = nonAlnumSpace.ReplaceAllString(out, "")
	out = multiSpace.ReplaceAllString(out, " ")
	return strings.ToUpper(strings.TrimSpace(out))
}

// ChargeDescription builds the description sent with a charge from the POS
// transaction type and the host transaction id, e.g. "YAPPY VENTA 1234".
func ChargeDescription(transactionType, orderID string) string {
	return fmt.Sprintf("YAPPY %s %s", SanitizeDescription(transactionType), orderID)
}
