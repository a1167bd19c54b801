// Package money holds the USDC amount helpers shared by the auction core.
// Amounts travel as decimal dollars inside the server and as atomic units
// (6 decimals) on the payment rail.
package money

import (
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const USDCDecimals = 6

var ErrInvalidAmount = errors.New("invalid_amount")

// Plain digits only: no sign, no exponent, at most a trillion dollars and
// no precision below one micro-dollar.
var (
	dollarPattern = regexp.MustCompile(`^[0-9]{1,12}(\.[0-9]{1,6})?$`)
	atomicPattern = regexp.MustCompile(`^[0-9]{1,18}$`)
)

// Parse accepts "1", "1.50" or "$1.50".
func Parse(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "$")
	if !dollarPattern.MatchString(s) {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// Bounded reports whether d has a small exponent and coefficient, so that
// formatting and atomic conversion stay cheap.
func Bounded(d decimal.Decimal) bool {
	exp := d.Exponent()
	if exp < -USDCDecimals || exp > 12 {
		return false
	}
	return d.Coefficient().BitLen() <= 63
}

// FromAtomic converts an atomic-unit string (as found in x402 authorizations)
// into dollars.
func FromAtomic(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if !atomicPattern.MatchString(s) {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d.Shift(-USDCDecimals), nil
}

// ToAtomic truncates below one micro-dollar.
func ToAtomic(d decimal.Decimal) string {
	return d.Shift(USDCDecimals).Truncate(0).String()
}

func ToMicros(d decimal.Decimal) int64 {
	return d.Shift(USDCDecimals).Truncate(0).IntPart()
}

func FromMicros(v int64) decimal.Decimal {
	return decimal.New(v, -USDCDecimals)
}

// Format renders a dollar amount the way agents see it in messages.
func Format(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
