// Package report holds the aggregated figures the dues engine produces
// for a period.
package report

import (
	"time"

	"github.com/xraph/dues/id"
)

// Totals are income and outstanding amounts for one player or the club.
//
// Event fees are passed on to organizers, so NetIncome removes both the
// event income and the event amounts still due:
//
//	NetIncome = TotalIncome - EventIncome - EventDue
type Totals struct {
	MonthlyIncome int64 `json:"monthly_income"`
	SessionIncome int64 `json:"session_income"`
	EventIncome   int64 `json:"event_income"`
	OtherIncome   int64 `json:"other_income"`
	MonthlyDue    int64 `json:"monthly_due"`
	SessionDue    int64 `json:"session_due"`
	EventDue      int64 `json:"event_due"`
	TotalIncome   int64 `json:"total_income"`
	TotalDue      int64 `json:"total_due"`
	NetIncome     int64 `json:"net_income"`
}

// Finalize derives the totals and net income from the components.
func (t *Totals) Finalize() {
	t.TotalIncome = t.MonthlyIncome + t.SessionIncome + t.EventIncome + t.OtherIncome
	t.TotalDue = t.MonthlyDue + t.SessionDue + t.EventDue
	t.NetIncome = t.TotalIncome - t.EventIncome - t.EventDue
}

// Add accumulates the components of o. Call Finalize afterwards.
func (t *Totals) Add(o Totals) {
	t.MonthlyIncome += o.MonthlyIncome
	t.SessionIncome += o.SessionIncome
	t.EventIncome += o.EventIncome
	t.OtherIncome += o.OtherIncome
	t.MonthlyDue += o.MonthlyDue
	t.SessionDue += o.SessionDue
	t.EventDue += o.EventDue
}

// PlayerRow is one player's line in a Report.
type PlayerRow struct {
	PlayerID id.PlayerID `json:"player_id"`
	Key      string      `json:"key"`
	FullName string      `json:"full_name"`
	Totals
	UncountedRegistrations int `json:"uncounted_registrations"`
}

// Report aggregates a period.
type Report struct {
	From     time.Time   `json:"from"`
	To       time.Time   `json:"to"`
	Currency string      `json:"currency"`
	Players  []PlayerRow `json:"players"`
	Club     Totals      `json:"club"`

	// UncountedRegistrations counts unpaid registrations whose fee could
	// not be computed; they contribute zero to EventDue.
	UncountedRegistrations int       `json:"uncounted_registrations"`
	GeneratedAt            time.Time `json:"generated_at"`
}

// FeeRow is one player's line in a monthly fee listing.
type FeeRow struct {
	PlayerID id.PlayerID `json:"player_id"`
	Key      string      `json:"key"`
	FullName string      `json:"full_name"`
	Belt     string      `json:"belt"`
	Monthly  bool        `json:"monthly"`
	Sessions int         `json:"sessions,omitempty"` // attended in the month, per-session payers
	Amount   int64       `json:"amount"`
	Paid     bool        `json:"paid"`
	PaidOn   *time.Time  `json:"paid_on,omitempty"`
	DueDate  time.Time   `json:"due_date"`
}

// MonthlyFees lists what every active player owes for one month.
type MonthlyFees struct {
	Month    string   `json:"month"`
	Currency string   `json:"currency"`
	Rows     []FeeRow `json:"rows"`
	Total    int64    `json:"total"`
	Paid     int64    `json:"paid"`
}

// MedalCount tallies medals.
type MedalCount struct {
	Gold   int `json:"gold"`
	Silver int `json:"silver"`
	Bronze int `json:"bronze"`
}

// Total is the number of medals.
func (m MedalCount) Total() int { return m.Gold + m.Silver + m.Bronze }

// PlayerMedals is one player's medals at an event.
type PlayerMedals struct {
	PlayerID id.PlayerID `json:"player_id"`
	Key      string      `json:"key"`
	FullName string      `json:"full_name"`
	MedalCount
}

// Medals tallies an event's results per player and for the club.
type Medals struct {
	EventID   id.EventID     `json:"event_id"`
	EventName string         `json:"event_name"`
	Players   []PlayerMedals `json:"players"`
	Club      MedalCount     `json:"club"`
}
