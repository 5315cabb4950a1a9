package service

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"earn-platform/internal/money"
)

// Converter converts monetary amounts into the base currency. The ledger
// holds base-currency amounts only; conversion happens once, at intake.
type Converter interface {
	ToBase(amount money.Money) (money.Money, error)
}

// StaticConverter converts with a fixed rate table: base units per one unit
// of the foreign currency. Rates are display-grade, not market-grade.
type StaticConverter struct {
	base  string
	rates map[string]decimal.Decimal
}

// NewStaticConverter parses the configured rate table.
func NewStaticConverter(base string, rates map[string]string) (*StaticConverter, error) {
	c := &StaticConverter{
		base:  base,
		rates: make(map[string]decimal.Decimal, len(rates)),
	}
	for currency, rate := range rates {
		d, err := decimal.NewFromString(rate)
		if err != nil {
			return nil, fmt.Errorf("invalid fx rate for %s: %w", currency, err)
		}
		if d.Sign() <= 0 {
			return nil, fmt.Errorf("fx rate for %s must be positive", currency)
		}
		c.rates[currency] = d
	}
	return c, nil
}

func (c *StaticConverter) ToBase(amount money.Money) (money.Money, error) {
	if amount.Currency() == c.base {
		return amount, nil
	}
	rate, ok := c.rates[amount.Currency()]
	if !ok {
		// Last resort: carry the numeric value over unchanged.
		log.Warn().
			Str("currency", amount.Currency()).
			Msg("No fx rate configured, converting 1:1")
		return money.New(amount.Units(), c.base), nil
	}
	converted := amount.Decimal().Mul(rate).Round(2)
	return money.Parse(converted.String(), c.base)
}
