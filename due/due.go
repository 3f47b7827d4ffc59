// Package due models the monthly charge owed by players billed monthly.
package due

import (
	"time"

	"github.com/xraph/dues/id"
	"github.com/xraph/dues/types"
)

// Due is one monthly charge. At most one exists per player and month.
// Paid and PaidOn are a cache of the settling receipt and may be repaired
// from receipts.
type Due struct {
	types.Entity
	ID       id.DueID    `json:"id"`
	PlayerID id.PlayerID `json:"player_id"`
	Year     int         `json:"year"`
	Month    int         `json:"month"`
	Amount   int64       `json:"amount"`
	Currency string      `json:"currency"`
	Paid     bool        `json:"paid"`
	PaidOn   *time.Time  `json:"paid_on,omitempty"`
}

// Period returns the billing month of the due.
func (d *Due) Period() types.Month {
	return types.Month{Year: d.Year, Month: time.Month(d.Month)}
}

// Money returns the amount in the due's currency.
func (d *Due) Money() types.Money {
	return types.New(d.Amount, d.Currency)
}
