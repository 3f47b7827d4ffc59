package types

import (
	"encoding/json"
	"testing"
)

func TestMoneyArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Add", func() Money { return EUR(20).Add(EUR(15)) }, EUR(35)},
		{"Subtract", func() Money { return EUR(45).Subtract(EUR(10)) }, EUR(35)},
		{"Multiply", func() Money { return EUR(10).Multiply(3) }, EUR(30)},
		{"ClampZero negative", func() Money { return EUR(10).Subtract(EUR(30)).ClampZero() }, EUR(0)},
		{"ClampZero positive", func() Money { return EUR(5).ClampZero() }, EUR(5)},
		{"Sum", func() Money { return Sum("EUR", EUR(20), EUR(15), EUR(10)) }, EUR(45)},
		{"Sum empty", func() Money { return Sum("") }, EUR(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.op()
			if !got.Equal(tt.expected) {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestNormalizeCurrency(t *testing.T) {
	tests := map[string]string{
		"":      "EUR",
		"eur":   "EUR",
		" usd ": "USD",
		"EUR":   "EUR",
	}
	for in, want := range tests {
		if got := NormalizeCurrency(in); got != want {
			t.Errorf("NormalizeCurrency(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMoneyCurrencyMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on currency mismatch")
		}
	}()
	_ = EUR(1).Add(New(1, "USD"))
}

func TestMoneyString(t *testing.T) {
	if got := EUR(45).String(); got != "45 EUR" {
		t.Errorf("got %q", got)
	}
	if got := (Money{Amount: 3}).String(); got != "3 EUR" {
		t.Errorf("got %q", got)
	}
}

func TestMoneyMarshalJSON(t *testing.T) {
	data, err := json.Marshal(EUR(45))
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out["display"] != "45 EUR" {
		t.Errorf("display = %v", out["display"])
	}
	if out["amount"] != float64(45) {
		t.Errorf("amount = %v", out["amount"])
	}
}
