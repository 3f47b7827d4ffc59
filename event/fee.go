package event

import "github.com/xraph/dues/id"

// Fee is the computed price of a registration.
//
// Counted is false when neither an override nor any priced category
// contributes: such a fee aggregates as zero but stays distinguishable
// from an explicitly free registration (Counted true, Amount 0).
type Fee struct {
	Amount   int64 `json:"amount"`
	Counted  bool  `json:"counted"`
	Override bool  `json:"override"`
}

// ComputedFee returns the fee owed for reg. An override always wins, even
// when it is zero. Otherwise the fees of every entered category that has
// one are summed.
func ComputedFee(reg *Registration, categories []*Category) Fee {
	if reg.FeeOverride != nil {
		return Fee{Amount: *reg.FeeOverride, Counted: true, Override: true}
	}

	byID := make(map[id.CategoryID]*Category, len(categories))
	for _, c := range categories {
		byID[c.ID] = c
	}

	var fee Fee
	for _, e := range reg.Entries {
		c, ok := byID[e.CategoryID]
		if !ok || c.Fee == nil {
			continue
		}
		fee.Amount += *c.Fee
		fee.Counted = true
	}
	return fee
}
