// Package player holds the billing profile of a club member: the part of
// the roster the dues engine reads.
package player

import (
	"strings"
	"time"

	"github.com/xraph/dues/id"
	"github.com/xraph/dues/types"
)

// Player is the billing subset of a member profile. Players that have
// financial history are never hard-deleted; see Anonymize.
type Player struct {
	types.Entity
	ID           id.PlayerID       `json:"id"`
	Key          string            `json:"key"` // stable external key, e.g. a personal number
	FirstName    string            `json:"first_name"`
	LastName     string            `json:"last_name"`
	Belt         string            `json:"belt,omitempty"`
	Email        string            `json:"email,omitempty"`
	Phone        string            `json:"phone,omitempty"`
	MonthlyFee   *int64            `json:"monthly_fee,omitempty"`
	IsMonthly    bool              `json:"is_monthly"`
	Active       bool              `json:"active"`
	AnonymizedAt *time.Time        `json:"anonymized_at,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// FullName joins first and last name.
func (p *Player) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// BilledMonthly reports whether the player owes a Due every month.
func (p *Player) BilledMonthly() bool {
	return p.IsMonthly && p.MonthlyFee != nil
}

// BilledPerSession reports whether attendance is charged per unit.
func (p *Player) BilledPerSession() bool {
	return !p.IsMonthly
}

// PerSessionPrice returns the configured per-session price. The fee
// field doubles as the session price for players not billed monthly; ok is
// false when no price is set.
func (p *Player) PerSessionPrice() (price int64, ok bool) {
	if p.IsMonthly || p.MonthlyFee == nil {
		return 0, false
	}
	return *p.MonthlyFee, true
}

// Deactivate stops future dues. History stays attached to the player.
func (p *Player) Deactivate() {
	p.Active = false
	p.Touch()
}

// Anonymize deactivates the player and clears contact data, keeping the
// identity key so receipts and dues still resolve.
func (p *Player) Anonymize(now time.Time) {
	p.Active = false
	p.FirstName = ""
	p.LastName = ""
	p.Email = ""
	p.Phone = ""
	p.Metadata = nil
	at := now.UTC()
	p.AnonymizedAt = &at
	p.Touch()
}

// Fee is a convenience for building an optional fee value.
func Fee(amount int64) *int64 { return &amount }
