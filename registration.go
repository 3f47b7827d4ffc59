package dues

import (
	"context"
	"time"

	"github.com/xraph/dues/event"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/types"
)

// EventInput describes a competition or seminar.
type EventInput struct {
	Name     string     `json:"name" validate:"required,max=200"`
	Location string     `json:"location" validate:"max=200"`
	StartsOn time.Time  `json:"starts_on" validate:"required"`
	EndsOn   *time.Time `json:"ends_on"`
	Currency string     `json:"currency" validate:"omitempty,len=3"`
}

// CreateEvent adds an event.
func (e *Engine) CreateEvent(ctx context.Context, caller Caller, in EventInput) (*event.Event, error) {
	if err := e.authorize(ctx, caller, ActionManageEvents, id.Nil); err != nil {
		return nil, err
	}
	if err := e.check(in); err != nil {
		return nil, err
	}
	if in.EndsOn != nil && in.EndsOn.Before(in.StartsOn) {
		return nil, ValidationError{Field: "ends_on", Message: "before start"}
	}

	ev := &event.Event{
		Entity:   types.NewEntity(),
		ID:       id.NewEventID(),
		Name:     in.Name,
		Location: in.Location,
		StartsOn: types.DateOf(in.StartsOn),
		Currency: e.currencyOr(in.Currency),
	}
	if in.EndsOn != nil {
		end := types.DateOf(*in.EndsOn)
		ev.EndsOn = &end
	}

	if err := e.store.CreateEvent(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// CategoryInput describes an entry class. A nil Fee means unpriced.
type CategoryInput struct {
	Name string `json:"name" validate:"required,max=100"`
	Fee  *int64 `json:"fee" validate:"omitempty,gte=0"`
}

// AddCategory adds an entry class to an event.
func (e *Engine) AddCategory(ctx context.Context, caller Caller, eventID id.EventID, in CategoryInput) (*event.Category, error) {
	if err := e.authorize(ctx, caller, ActionManageEvents, id.Nil); err != nil {
		return nil, err
	}
	if err := e.check(in); err != nil {
		return nil, err
	}

	c := &event.Category{
		ID:      id.NewCategoryID(),
		EventID: eventID,
		Name:    in.Name,
		Fee:     in.Fee,
	}
	if err := e.store.CreateCategory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// RegistrationInput enrolls a player in an event.
type RegistrationInput struct {
	PlayerID    id.PlayerID   `json:"player_id"`
	Entries     []event.Entry `json:"entries"`
	FeeOverride *int64        `json:"fee_override" validate:"omitempty,gte=0"`
}

// Register enrolls a player. Every entry must name a category of the
// event; a player registers at most once per event.
func (e *Engine) Register(ctx context.Context, caller Caller, eventID id.EventID, in RegistrationInput) (*event.Registration, error) {
	if err := e.authorize(ctx, caller, ActionManageEvents, in.PlayerID); err != nil {
		return nil, err
	}
	if err := e.check(in); err != nil {
		return nil, err
	}
	if in.PlayerID.IsNil() {
		return nil, ValidationError{Field: "player_id", Message: "required"}
	}
	if _, err := e.store.GetPlayer(ctx, in.PlayerID); err != nil {
		return nil, err
	}
	if _, err := e.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}

	categories, err := e.store.ListCategories(ctx, eventID)
	if err != nil {
		return nil, err
	}
	known := make(map[id.CategoryID]bool, len(categories))
	for _, c := range categories {
		known[c.ID] = true
	}

	entries := make([]event.Entry, 0, len(in.Entries))
	for _, en := range in.Entries {
		if !known[en.CategoryID] {
			return nil, ErrCategoryNotFound
		}
		en.Medal = event.ParseMedal(string(en.Medal))
		entries = append(entries, en)
	}

	reg := &event.Registration{
		Entity:      types.NewEntity(),
		ID:          id.NewRegistrationID(),
		EventID:     eventID,
		PlayerID:    in.PlayerID,
		Entries:     entries,
		FeeOverride: in.FeeOverride,
	}
	if err := e.store.CreateRegistration(ctx, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// RegistrationFee computes the fee owed for a registration.
func (e *Engine) RegistrationFee(ctx context.Context, regID id.RegistrationID) (event.Fee, error) {
	reg, err := e.store.GetRegistration(ctx, regID)
	if err != nil {
		return event.Fee{}, err
	}
	categories, err := e.store.ListCategories(ctx, reg.EventID)
	if err != nil {
		return event.Fee{}, err
	}
	return event.ComputedFee(reg, categories), nil
}

func (e *Engine) currencyOr(currency string) string {
	if currency == "" {
		return e.currency
	}
	return types.NormalizeCurrency(currency)
}
