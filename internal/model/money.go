package model

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is a non-negative-by-convention amount held as hundredths (two-decimal fixed point).
// Costs and budgets are compared as integers so a solve never drifts on float rounding.
type Money int64

// ParseMoney parses a decimal amount such as "8.5" or "100.00".
// More than two decimals is rejected rather than rounded.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse money %q: %w", s, err)
	}
	return MoneyFromDecimal(d)
}

func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if !d.Equal(d.Round(2)) {
		return 0, fmt.Errorf("money %s has more than two decimals", d.String())
	}
	return Money(d.Shift(2).IntPart()), nil
}

// MoneyFromTenths converts FPL's now_cost (tenths of a million) to Money.
func MoneyFromTenths(tenths int) Money {
	return Money(int64(tenths) * 10)
}

func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

func (m Money) Float64() float64 {
	return m.Decimal().InexactFloat64()
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts both JSON numbers and quoted decimal strings.
func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(bytes.TrimSpace(b), `"`)
	if len(b) == 0 || string(b) == "null" {
		*m = 0
		return nil
	}
	v, err := ParseMoney(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (m Money) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Money) UnmarshalText(b []byte) error {
	v, err := ParseMoney(string(bytes.TrimSpace(b)))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
