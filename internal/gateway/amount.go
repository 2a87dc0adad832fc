package gateway

import "fmt"

// MinorAmount is a monetary amount in integer minor units (cents) that
// serializes as an exact two-decimal major-unit JSON number, e.g. 10050 cents
// marshal as 100.50. The conversion is pure integer arithmetic; no binary
// float ever carries the value.
type MinorAmount int64

// String renders the amount in major units with exactly two decimals.
func (a MinorAmount) String() string {
	v := int64(a)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON emits the major-unit value as a raw JSON number.
func (a MinorAmount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}
