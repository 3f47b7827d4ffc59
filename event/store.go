package event

import (
	"context"
	"time"

	"github.com/xraph/dues/id"
)

// Store persists events, categories and registrations.
// CreateRegistration returns the store's ErrAlreadyExists when the player
// is already registered for the event.
type Store interface {
	CreateEvent(ctx context.Context, e *Event) error
	GetEvent(ctx context.Context, eventID id.EventID) (*Event, error)
	ListEvents(ctx context.Context, opts ListOpts) ([]*Event, error)

	CreateCategory(ctx context.Context, c *Category) error
	ListCategories(ctx context.Context, eventID id.EventID) ([]*Category, error)

	CreateRegistration(ctx context.Context, r *Registration) error
	GetRegistration(ctx context.Context, regID id.RegistrationID) (*Registration, error)
	ListRegistrations(ctx context.Context, opts RegistrationListOpts) ([]*Registration, error)
	// MarkRegistrationPaid flips an unpaid registration to paid. It reports
	// false when it was already paid.
	MarkRegistrationPaid(ctx context.Context, regID id.RegistrationID, paidOn time.Time) (bool, error)
}

// ListOpts filters ListEvents by start date. Results are ordered by
// StartsOn descending.
type ListOpts struct {
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// RegistrationListOpts filters ListRegistrations. Results are ordered by
// creation time.
type RegistrationListOpts struct {
	EventID    id.EventID
	PlayerID   id.PlayerID
	UnpaidOnly bool
}
