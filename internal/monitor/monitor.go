// Package monitor validates incoming host requests against a JSON schema
// before any field-level handling happens.
package monitor

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// transactionSchema is the contract for the host's transaction message.
// Amount arrives as a decimal string of minor units, per the host API.
// CurrencyISO and TransactionId are only required for gateway-backed sales
// and are checked downstream, not here.
const transactionSchema = `{
  "type": "object",
  "required": ["TransactionType", "Amount"],
  "properties": {
    "TransactionType": {"type": "string", "minLength": 1},
    "Amount": {"type": "string", "pattern": "^-?[0-9]+$"},
    "CurrencyISO": {"type": "string"},
    "TransactionId": {"type": "integer"},
    "LanguageISO": {"type": "string"},
    "ShopData": {"type": "string"},
    "SellerData": {"type": "string"},
    "DocumentData": {"type": "string"},
    "TaxDetail": {"type": "string"},
    "RefundConfirmed": {"type": "boolean"},
    "RefundDetail": {"type": "string"}
  }
}`

// ContractMonitor validates transaction request payloads.
type ContractMonitor struct {
	schema *gojsonschema.Schema
}

// NewContractMonitor compiles the embedded transaction schema.
func NewContractMonitor() (*ContractMonitor, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(transactionSchema))
	if err != nil {
		return nil, fmt.Errorf("error compiling transaction schema: %w", err)
	}
	return &ContractMonitor{schema: schema}, nil
}

// Validate checks the given request body against the schema. It returns true
// if valid, or false and a list of validation errors if invalid.
func (cm *ContractMonitor) Validate(requestBody []byte) (bool, []string, error) {
	result, err := cm.schema.Validate(gojsonschema.NewBytesLoader(requestBody))
	if err != nil {
		return false, nil, fmt.Errorf("error during validation: %w", err)
	}
	if result.Valid() {
		return true, nil, nil
	}
	var errs []string
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	return false, errs, nil
}

// FormatErrors formats a slice of validation error strings into a single string.
func FormatErrors(validationErrors []string) string {
	if len(validationErrors) == 0 {
		return ""
	}
	return "Validation errors: " + strings.Join(validationErrors, "; ")
}
