package due

import (
	"context"
	"time"

	"github.com/xraph/dues/id"
)

// Store persists dues. CreateDue returns the store's ErrAlreadyExists when
// a due for the same player and month exists; the unique key is the only
// concurrency guard.
type Store interface {
	CreateDue(ctx context.Context, d *Due) error
	GetDue(ctx context.Context, dueID id.DueID) (*Due, error)
	GetDueFor(ctx context.Context, playerID id.PlayerID, year, month int) (*Due, error)
	ListDues(ctx context.Context, opts ListOpts) ([]*Due, error)
	// MarkDuePaid flips an unpaid due to paid. It reports false when the
	// due was already paid.
	MarkDuePaid(ctx context.Context, dueID id.DueID, paidOn time.Time) (bool, error)
}

// ListOpts filters ListDues. From and To bound the billing month by its
// first day. Results are ordered by year, month, then player.
type ListOpts struct {
	PlayerID   id.PlayerID
	Year       int
	Month      int
	UnpaidOnly bool
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}
