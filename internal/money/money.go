// Package money converts between exact decimal amounts on the wire and the
// integer minor units stored in the ledger. Amounts never pass through floats.
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrTooManyDecimals = errors.New("amount_has_too_many_decimal_places")
	ErrNotPositive     = errors.New("amount_must_be_positive")
)

const scale = 2

// ParseMinor parses a decimal string ("12.50") into minor units (1250).
func ParseMinor(input string) (int64, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return 0, ErrInvalidAmount
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if value.Exponent() < -scale {
		return 0, ErrTooManyDecimals
	}
	minor := value.Shift(scale)
	if !minor.IsInteger() {
		return 0, ErrTooManyDecimals
	}
	return minor.IntPart(), nil
}

// ParsePositiveMinor parses a decimal string and rejects zero or negative amounts.
func ParsePositiveMinor(input string) (int64, error) {
	minor, err := ParseMinor(input)
	if err != nil {
		return 0, err
	}
	if minor <= 0 {
		return 0, ErrNotPositive
	}
	return minor, nil
}

// FormatMinor renders minor units as a decimal string with two places.
func FormatMinor(value int64) string {
	return decimal.New(value, -scale).StringFixed(scale)
}
