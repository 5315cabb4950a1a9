// Package money implements exact fixed-point monetary amounts.
//
// Amounts are stored as int64 minor units (cents) with an ISO currency code;
// all arithmetic stays in integers. Decimal strings appear only at the
// boundary, converted through shopspring/decimal.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of minor units per major unit. All supported
// currencies (KES, USD, UGX, TZS) use two decimal places.
const Scale = 100

// KES is the platform base currency. Balances are stored in KES only.
const KES = "KES"

// Money is an exact amount in minor units of a currency.
// The zero value is zero units of the empty currency.
type Money struct {
	units    int64
	currency string
}

// New returns an amount of the given minor units.
func New(units int64, currency string) Money {
	return Money{units: units, currency: currency}
}

// Zero returns the zero amount of a currency.
func Zero(currency string) Money {
	return Money{currency: currency}
}

// Parse converts a decimal string such as "500.00" into an amount.
// More precision than the minor unit is rejected.
func Parse(s, currency string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	scaled := d.Mul(decimal.NewFromInt(Scale))
	if !scaled.IsInteger() {
		return Money{}, fmt.Errorf("amount %q exceeds minor-unit precision", s)
	}
	return Money{units: scaled.IntPart(), currency: currency}, nil
}

// MustParse is Parse for trusted literals; it panics on malformed input.
func MustParse(s, currency string) Money {
	m, err := Parse(s, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Units returns the amount in minor units.
func (m Money) Units() int64 { return m.units }

// Currency returns the ISO currency code.
func (m Money) Currency() string { return m.currency }

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.units == 0 }

// IsPositive reports whether the amount is greater than zero.
func (m Money) IsPositive() bool { return m.units > 0 }

// IsNegative reports whether the amount is less than zero.
func (m Money) IsNegative() bool { return m.units < 0 }

// Add returns m + other. Mixing currencies is a programming error.
func (m Money) Add(other Money) Money {
	m.assertSame(other)
	return Money{units: m.units + other.units, currency: m.currency}
}

// Sub returns m - other. Mixing currencies is a programming error.
func (m Money) Sub(other Money) Money {
	m.assertSame(other)
	return Money{units: m.units - other.units, currency: m.currency}
}

// Neg returns the amount with its sign flipped.
func (m Money) Neg() Money {
	return Money{units: -m.units, currency: m.currency}
}

// Abs returns the non-negative magnitude of the amount.
func (m Money) Abs() Money {
	if m.units < 0 {
		return m.Neg()
	}
	return m
}

// Cmp compares two amounts of the same currency:
// -1 if m < other, 0 if equal, +1 if m > other.
func (m Money) Cmp(other Money) int {
	m.assertSame(other)
	switch {
	case m.units < other.units:
		return -1
	case m.units > other.units:
		return 1
	}
	return 0
}

// Equal reports whether both amount and currency match.
func (m Money) Equal(other Money) bool {
	return m.units == other.units && m.currency == other.currency
}

// WithinTolerance reports whether other is the same currency and differs
// from m by at most tol minor units. This absorbs rounding noise from
// currency conversion, not fraud.
func (m Money) WithinTolerance(other Money, tol int64) bool {
	if m.currency != other.currency {
		return false
	}
	diff := m.units - other.units
	if diff < 0 {
		diff = -diff
	}
	return diff <= tol
}

// Decimal returns the amount as a decimal in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.units, 0).Div(decimal.NewFromInt(Scale))
}

// Format returns the amount as a fixed two-decimal string, e.g. "500.00".
func (m Money) Format() string {
	return m.Decimal().StringFixed(2)
}

// String returns the amount with its currency code, e.g. "500.00 KES".
func (m Money) String() string {
	return m.Format() + " " + m.currency
}

func (m Money) assertSame(other Money) {
	if m.currency != other.currency {
		panic(fmt.Sprintf("money: currency mismatch %q vs %q", m.currency, other.currency))
	}
}
