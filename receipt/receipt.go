// Package receipt models immutable settlement records.
//
// A receipt records income, or for the debt kind an unpaid shortfall.
// Once stored, its money fields never change; later receipts settle
// earlier obligations by linking to them.
package receipt

import (
	"fmt"
	"time"

	"github.com/xraph/dues/id"
	"github.com/xraph/dues/types"
)

// Kind is the closed set of receipt kinds.
type Kind string

const (
	KindMonthly    Kind = "monthly"
	KindPerSession Kind = "per_session"
	KindEvent      Kind = "event"
	KindBulk       Kind = "bulk"
	KindDebt       Kind = "debt"
)

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindMonthly, KindPerSession, KindEvent, KindBulk, KindDebt:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }

// Source records how a receipt came to exist.
type Source string

const (
	SourceManual      Source = "manual"
	SourceAutoDebt    Source = "auto_debt"
	SourceSessionLog  Source = "session_log"
	SourceDebtPayment Source = "debt_payment"
	SourceBulk        Source = "bulk_settlement"
	SourceResidual    Source = "residual"
	SourceImport      Source = "import"
)

// IsValid reports whether s is a known source.
func (s Source) IsValid() bool {
	switch s {
	case SourceManual, SourceAutoDebt, SourceSessionLog, SourceDebtPayment,
		SourceBulk, SourceResidual, SourceImport:
		return true
	}
	return false
}

// Receipt is a settlement record.
type Receipt struct {
	ID     id.ReceiptID `json:"id"`
	Seq    int64        `json:"seq"`    // persisted identity, assigned by the store
	Number string       `json:"number"` // RCPT-YYYYMMDD-000123, set once after Seq exists

	Kind     Kind        `json:"kind"`
	Source   Source      `json:"source"`
	PlayerID id.PlayerID `json:"player_id"`
	Amount   int64       `json:"amount"`
	Currency string      `json:"currency"`
	Method   string      `json:"method,omitempty"`
	Note     string      `json:"note,omitempty"`

	// Billing month for monthly receipts.
	Year  int `json:"year,omitempty"`
	Month int `json:"month,omitempty"`

	// Session slots bought and consumed by per-session receipts.
	SessionsPaid  int `json:"sessions_paid"`
	SessionsTaken int `json:"sessions_taken"`

	Links []Link `json:"links,omitempty"`

	PaidAt    time.Time `json:"paid_at"`
	CreatedAt time.Time `json:"created_at"`
}

// IsDebt reports whether the receipt is an unpaid shortfall marker rather
// than income.
func (r *Receipt) IsDebt() bool { return r.Kind == KindDebt }

// IsSessionCredit reports whether the receipt buys session slots: a
// non-debt per-session receipt.
func (r *Receipt) IsSessionCredit() bool { return r.Kind == KindPerSession }

// Slack is the number of paid session slots not yet consumed.
func (r *Receipt) Slack() int {
	if s := r.SessionsPaid - r.SessionsTaken; s > 0 {
		return s
	}
	return 0
}

// Money returns the amount in the receipt's currency.
func (r *Receipt) Money() types.Money {
	return types.New(r.Amount, r.Currency)
}

// IssuedAt is when the receipt was recorded. Receipts stored without a
// creation time, such as raw imports, fall back to the payment time.
func (r *Receipt) IssuedAt() time.Time {
	if r.CreatedAt.IsZero() {
		return r.PaidAt
	}
	return r.CreatedAt
}

// FormatNumber builds the receipt number from the issue date and the
// persisted sequence.
func FormatNumber(issuedAt time.Time, seq int64) string {
	return fmt.Sprintf("RCPT-%s-%06d", issuedAt.UTC().Format("20060102"), seq)
}
