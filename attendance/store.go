package attendance

import (
	"context"
	"time"

	"github.com/xraph/dues/id"
)

// Store persists attendance. CreateAttendance returns the store's
// ErrAlreadyExists for a second unit on the same player and day.
type Store interface {
	CreateAttendance(ctx context.Context, a *Attendance) error
	GetAttendance(ctx context.Context, attID id.AttendanceID) (*Attendance, error)
	ListAttendance(ctx context.Context, opts ListOpts) ([]*Attendance, error)
	CountAttendance(ctx context.Context, playerID id.PlayerID, from, to time.Time) (int, error)
	// SetAttendanceReceipt records the receipt an attendance unit was
	// allocated to and its paid state.
	SetAttendanceReceipt(ctx context.Context, attID id.AttendanceID, receiptID id.ReceiptID, paid bool) error
	// MarkAttendancePaid flips an unpaid unit to paid. It reports false
	// when the unit was already paid.
	MarkAttendancePaid(ctx context.Context, attID id.AttendanceID, receiptID id.ReceiptID) (bool, error)
}

// ListOpts filters ListAttendance. From and To are inclusive calendar
// days; zero values are open. Results are ordered by date ascending.
type ListOpts struct {
	PlayerID   id.PlayerID
	From       time.Time
	To         time.Time
	UnpaidOnly bool
	Limit      int
}
