// Package types provides the value types shared by the dues packages.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultCurrency is used when a record does not name one.
const DefaultCurrency = "EUR"

// Money is a whole-unit amount in a single currency. There is no minor
// unit and no floating point; amounts are plain integers.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"` // ISO 4217 upper case: "EUR"
}

// New returns amount in currency; an empty currency means DefaultCurrency.
func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: NormalizeCurrency(currency)}
}

// EUR creates a Money value in euros.
func EUR(amount int64) Money { return Money{Amount: amount, Currency: "EUR"} }

// Zero returns zero in the given currency.
func Zero(currency string) Money { return New(0, currency) }

// NormalizeCurrency upper-cases a currency code and applies the default.
func NormalizeCurrency(currency string) string {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if c == "" {
		return DefaultCurrency
	}
	return c
}

// Add adds two values. Panics if currencies differ.
func (m Money) Add(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}
}

// Subtract subtracts other. Panics if currencies differ.
func (m Money) Subtract(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}
}

// Multiply multiplies by a quantity, e.g. sessions times price.
func (m Money) Multiply(qty int64) Money {
	return Money{Amount: m.Amount * qty, Currency: m.Currency}
}

// ClampZero returns m, or zero if m is negative. Over-payment is never
// reported as negative owed.
func (m Money) ClampZero() Money {
	if m.Amount < 0 {
		return Money{Currency: m.Currency}
	}
	return m
}

func (m Money) IsZero() bool     { return m.Amount == 0 }
func (m Money) IsPositive() bool { return m.Amount > 0 }
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Equal reports whether amount and currency both match.
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

// String renders "45 EUR".
func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.Amount, NormalizeCurrency(m.Currency))
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.Amount,
		Currency: m.Currency,
		Display:  m.String(),
	})
}

func (m Money) assertSameCurrency(other Money) {
	if NormalizeCurrency(m.Currency) != NormalizeCurrency(other.Currency) {
		panic(fmt.Sprintf("money: currency mismatch: %s != %s", m.Currency, other.Currency))
	}
}

// Sum adds values in currency. All values must share it.
func Sum(currency string, values ...Money) Money {
	result := Zero(currency)
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}
