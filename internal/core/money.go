// Package core provides money parsing and handling utilities.
//
// Money keeps amounts as exact decimals with two fraction digits. Values are
// never converted to binary floating point, not even for JSON output.
package core

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmount is the largest amount a NUMERIC(10,2) column can hold.
var MaxAmount = decimal.RequireFromString("99999999.99")

type Money struct {
	amount decimal.Decimal
}

// ParseMoney converts a decimal string to Money.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Unlike a
// display parser it never rounds: values with more than two significant
// fraction digits are rejected, as are zero, negative and oversized amounts.
//
// Examples:
//   ParseMoney("12.34")  -> 12.34, nil
//   ParseMoney("12,34")  -> 12.34, nil
//   ParseMoney("12.340") -> 12.34, nil
//   ParseMoney("12.345") -> error
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, InvalidInput("monto", "amount is required")
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, InvalidInput("monto", "amount must be a decimal number")
	}
	m := Money{amount: d}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

// MoneyFromCents builds Money from an integer number of cents.
func MoneyFromCents(cents int64) Money {
	return Money{amount: decimal.New(cents, -2)}
}

// Validate checks the amount is positive, fits the column and has at most two fraction digits.
func (m Money) Validate() error {
	if !m.amount.IsPositive() {
		return InvalidInput("monto", "amount must be greater than 0")
	}
	if !m.amount.Equal(m.amount.Truncate(2)) {
		return InvalidInput("monto", "amount must have at most 2 decimal places")
	}
	if m.amount.GreaterThan(MaxAmount) {
		return InvalidInput("monto", "amount exceeds 99999999.99")
	}
	return nil
}

// Cents returns the amount in cents. Callers must have validated the scale.
func (m Money) Cents() int64 {
	return m.amount.Shift(2).IntPart()
}

func (m Money) Add(other Money) Money {
	return Money{amount: m.amount.Add(other.amount)}
}

func (m Money) Equal(other Money) bool {
	return m.amount.Equal(other.amount)
}

func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// String formats the amount with exactly two fraction digits.
func (m Money) String() string {
	return m.amount.StringFixed(2)
}

// MarshalJSON emits the amount as a string with two fraction digits, e.g. "1500.50".
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts a JSON number or a JSON string.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return InvalidInput("monto", "amount is required")
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return InvalidInput("monto", "amount must be a decimal number")
		}
		s = str
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
