// Package event models competitions, their categories and player
// registrations, and computes registration fees.
package event

import (
	"time"

	"github.com/xraph/dues/id"
	"github.com/xraph/dues/types"
)

// Medal is the result a player achieved in a category.
type Medal string

const (
	MedalNone   Medal = "none"
	MedalGold   Medal = "gold"
	MedalSilver Medal = "silver"
	MedalBronze Medal = "bronze"
)

// ParseMedal maps free input to a Medal; anything unknown is MedalNone.
func ParseMedal(s string) Medal {
	switch Medal(s) {
	case MedalGold, MedalSilver, MedalBronze:
		return Medal(s)
	}
	return MedalNone
}

// Event is a competition or seminar players register for.
type Event struct {
	types.Entity
	ID       id.EventID `json:"id"`
	Name     string     `json:"name"`
	Location string     `json:"location,omitempty"`
	StartsOn time.Time  `json:"starts_on"`
	EndsOn   *time.Time `json:"ends_on,omitempty"`
	Currency string     `json:"currency"`
}

// Category is an entry class within an event. A nil Fee means the
// category carries no price.
type Category struct {
	ID      id.CategoryID `json:"id"`
	EventID id.EventID    `json:"event_id"`
	Name    string        `json:"name"`
	Fee     *int64        `json:"fee,omitempty"`
}

// Entry is a registration's participation in one category.
type Entry struct {
	CategoryID id.CategoryID `json:"category_id"`
	Medal      Medal         `json:"medal"`
}

// Registration enrolls one player in an event.
type Registration struct {
	types.Entity
	ID          id.RegistrationID `json:"id"`
	EventID     id.EventID        `json:"event_id"`
	PlayerID    id.PlayerID       `json:"player_id"`
	Entries     []Entry           `json:"entries"`
	FeeOverride *int64            `json:"fee_override,omitempty"`
	Paid        bool              `json:"paid"`
	PaidOn      *time.Time        `json:"paid_on,omitempty"`
}

// HasCategory reports whether the registration enters categoryID.
func (r *Registration) HasCategory(categoryID id.CategoryID) bool {
	for _, e := range r.Entries {
		if e.CategoryID == categoryID {
			return true
		}
	}
	return false
}
