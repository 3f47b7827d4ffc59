// Package attendance records training sessions taken by players.
package attendance

import (
	"time"

	"github.com/xraph/dues/id"
)

// Source says who recorded an attendance unit.
type Source string

const (
	SourceStaff       Source = "staff"
	SourceSelfCheckIn Source = "self_checkin"
	SourceImport      Source = "import"
)

// IsValid reports whether s is a known source.
func (s Source) IsValid() bool {
	switch s {
	case SourceStaff, SourceSelfCheckIn, SourceImport:
		return true
	}
	return false
}

// Attendance is one training unit. At most one exists per player and
// calendar day. Only Paid and ReceiptID change after creation.
type Attendance struct {
	ID        id.AttendanceID `json:"id"`
	PlayerID  id.PlayerID     `json:"player_id"`
	Date      time.Time       `json:"date"`
	Paid      bool            `json:"paid"`
	ReceiptID *id.ReceiptID   `json:"receipt_id,omitempty"` // covering receipt, or the debt it produced
	Source    Source          `json:"source"`
	CreatedAt time.Time       `json:"created_at"`
}

// Outcome says how a recorded unit was paid for.
type Outcome string

const (
	OutcomeMonthly    Outcome = "monthly"    // covered by the monthly due
	OutcomePrepaid    Outcome = "prepaid"    // took a slot on a per-session receipt
	OutcomeBackfilled Outcome = "backfilled" // took a slot on a back-filled legacy receipt
	OutcomeDebt       Outcome = "debt"       // produced a debt receipt
	OutcomeDuplicate  Outcome = "duplicate"  // already recorded for that day
)
