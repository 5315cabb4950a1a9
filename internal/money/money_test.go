package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParse(t *testing.T) {
	m, err := Parse("500.00", KES)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), m.Units())
	assert.Equal(t, KES, m.Currency())

	m, err = Parse("0.01", KES)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Units())

	m, err = Parse("-30.50", KES)
	require.NoError(t, err)
	assert.Equal(t, int64(-3050), m.Units())

	_, err = Parse("1.005", KES)
	assert.Error(t, err, "sub-minor-unit precision must be rejected")

	_, err = Parse("not a number", KES)
	assert.Error(t, err)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "500.00", New(50000, KES).Format())
	assert.Equal(t, "0.05", New(5, KES).Format())
	assert.Equal(t, "-12.30", New(-1230, KES).Format())
	assert.Equal(t, "50.00 KES", MustParse("50", KES).String())
}

func TestArithmetic(t *testing.T) {
	a := MustParse("300.00", KES)
	b := MustParse("250.00", KES)

	assert.Equal(t, int64(55000), a.Add(b).Units())
	assert.Equal(t, int64(5000), a.Sub(b).Units())
	assert.Equal(t, int64(-30000), a.Neg().Units())
	assert.Equal(t, 1, a.Cmp(b))
	assert.Equal(t, -1, b.Cmp(a))
	assert.Equal(t, 0, a.Cmp(a))
	assert.True(t, a.Neg().IsNegative())
	assert.True(t, a.Neg().Abs().Equal(a))
}

func TestCurrencyMismatchPanics(t *testing.T) {
	assert.Panics(t, func() {
		MustParse("1.00", KES).Add(MustParse("1.00", "USD"))
	})
}

func TestWithinTolerance(t *testing.T) {
	intent := MustParse("500.00", KES)

	assert.True(t, intent.WithinTolerance(MustParse("500.00", KES), 1))
	assert.True(t, intent.WithinTolerance(MustParse("500.01", KES), 1))
	assert.True(t, intent.WithinTolerance(MustParse("499.99", KES), 1))
	assert.False(t, intent.WithinTolerance(MustParse("500.02", KES), 1))
	assert.False(t, intent.WithinTolerance(MustParse("500.00", "USD"), 1))
}

// Formatting then re-parsing any amount must be lossless: the ledger depends
// on minor-unit arithmetic never drifting through the display boundary.
func TestFormatParseRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		units := rapid.Int64Range(-1_000_000_000, 1_000_000_000).Draw(t, "units")
		m := New(units, KES)

		back, err := Parse(m.Format(), KES)
		if err != nil {
			t.Fatalf("round trip parse failed for %q: %v", m.Format(), err)
		}
		if back.Units() != units {
			t.Fatalf("round trip drift: %d -> %q -> %d", units, m.Format(), back.Units())
		}
	})
}

// Addition over minor units is associative and sign-exact; a sequence of
// credits and debits sums identically in any grouping.
func TestAdditionExactnessProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		deltas := rapid.SliceOfN(rapid.Int64Range(-100_000, 100_000), 0, 50).Draw(t, "deltas")

		sum := Zero(KES)
		var raw int64
		for _, d := range deltas {
			sum = sum.Add(New(d, KES))
			raw += d
		}
		if sum.Units() != raw {
			t.Fatalf("sum mismatch: money=%d raw=%d", sum.Units(), raw)
		}
	})
}
