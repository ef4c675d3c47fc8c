package pythusd

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// ParseAmount converts a human decimal string such as "1.5" into base units
// at the given scale. The conversion is exact: fractional digits beyond the
// scale are an error, never rounded away.
func ParseAmount(s string, decimals uint8) (*uint256.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("parse amount %q: negative", s)
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("parse amount %q: more than %d decimal places", s, decimals)
	}
	v, overflow := uint256.FromBig(shifted.BigInt())
	if overflow {
		return nil, fmt.Errorf("parse amount %q: %w", s, ErrAmountOverflow)
	}
	return v, nil
}

// ParseBaseAmount converts an integer base-unit string into an amount.
func ParseBaseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("parse base amount %q: %w", s, err)
	}
	return v, nil
}

// FormatAmount renders base units as a decimal string at the given scale.
// A nil amount formats as "0".
func FormatAmount(v *uint256.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v.ToBig(), -int32(decimals)).String()
}
