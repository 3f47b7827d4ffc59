package dues

import (
	"context"
	"errors"
	"strings"

	"github.com/xraph/dues/id"
	"github.com/xraph/dues/player"
	"github.com/xraph/dues/types"
)

// PlayerInput describes a billing profile to create or update.
type PlayerInput struct {
	Key        string            `json:"key" validate:"required,max=64"`
	FirstName  string            `json:"first_name" validate:"max=100"`
	LastName   string            `json:"last_name" validate:"max=100"`
	Belt       string            `json:"belt" validate:"max=32"`
	Email      string            `json:"email" validate:"omitempty,email"`
	Phone      string            `json:"phone" validate:"max=32"`
	MonthlyFee *int64            `json:"monthly_fee" validate:"omitempty,gte=0"`
	IsMonthly  bool              `json:"is_monthly"`
	Metadata   map[string]string `json:"metadata"`
}

func (in *PlayerInput) apply(p *player.Player) {
	p.Key = strings.TrimSpace(in.Key)
	p.FirstName = strings.TrimSpace(in.FirstName)
	p.LastName = strings.TrimSpace(in.LastName)
	p.Belt = in.Belt
	p.Email = in.Email
	p.Phone = in.Phone
	p.MonthlyFee = in.MonthlyFee
	p.IsMonthly = in.IsMonthly
	p.Metadata = in.Metadata
}

// CreatePlayer adds an active billing profile.
func (e *Engine) CreatePlayer(ctx context.Context, caller Caller, in PlayerInput) (*player.Player, error) {
	if err := e.authorize(ctx, caller, ActionManagePlayers, id.Nil); err != nil {
		return nil, err
	}
	if err := e.check(in); err != nil {
		return nil, err
	}

	p := &player.Player{
		Entity: types.NewEntity(),
		ID:     id.NewPlayerID(),
		Active: true,
	}
	in.apply(p)

	if err := e.store.CreatePlayer(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePlayer replaces the editable profile fields. Fee changes apply to
// dues generated and sessions recorded afterwards; stored receipts keep
// the amounts they were issued with.
func (e *Engine) UpdatePlayer(ctx context.Context, caller Caller, playerID id.PlayerID, in PlayerInput) (*player.Player, error) {
	if err := e.authorize(ctx, caller, ActionManagePlayers, playerID); err != nil {
		return nil, err
	}
	if err := e.check(in); err != nil {
		return nil, err
	}

	p, err := e.store.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	in.apply(p)
	p.Touch()

	if err := e.store.UpdatePlayer(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetPlayer returns a billing profile.
func (e *Engine) GetPlayer(ctx context.Context, playerID id.PlayerID) (*player.Player, error) {
	return e.store.GetPlayer(ctx, playerID)
}

// ListPlayers lists billing profiles.
func (e *Engine) ListPlayers(ctx context.Context, opts player.ListOpts) ([]*player.Player, error) {
	return e.store.ListPlayers(ctx, opts)
}

// DeactivatePlayer stops future dues for a player. Nothing is deleted.
func (e *Engine) DeactivatePlayer(ctx context.Context, caller Caller, playerID id.PlayerID) error {
	if err := e.authorize(ctx, caller, ActionManagePlayers, playerID); err != nil {
		return err
	}
	p, err := e.store.GetPlayer(ctx, playerID)
	if err != nil {
		return err
	}
	p.Deactivate()
	return e.store.UpdatePlayer(ctx, p)
}

// AnonymizePlayer deactivates a player and clears their personal data.
// Receipts, dues and attendance stay attached to the player ID.
func (e *Engine) AnonymizePlayer(ctx context.Context, caller Caller, playerID id.PlayerID) error {
	if err := e.authorize(ctx, caller, ActionManagePlayers, playerID); err != nil {
		return err
	}
	p, err := e.store.GetPlayer(ctx, playerID)
	if err != nil {
		return err
	}
	p.Anonymize(e.Now())
	return e.store.UpdatePlayer(ctx, p)
}

// ImportResult counts what ImportPlayers did.
type ImportResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// ImportPlayers upserts profiles by key. Re-importing an export is a
// no-op apart from UpdatedAt.
func (e *Engine) ImportPlayers(ctx context.Context, caller Caller, inputs []PlayerInput) (ImportResult, error) {
	var res ImportResult
	if err := e.authorize(ctx, caller, ActionManagePlayers, id.Nil); err != nil {
		return res, err
	}
	for i := range inputs {
		if err := e.check(inputs[i]); err != nil {
			return res, err
		}
	}

	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		for i := range inputs {
			in := inputs[i]
			existing, err := e.store.GetPlayerByKey(ctx, strings.TrimSpace(in.Key))
			switch {
			case err == nil:
				in.apply(existing)
				existing.Touch()
				if err := e.store.UpdatePlayer(ctx, existing); err != nil {
					return err
				}
				res.Updated++
			case errors.Is(err, ErrPlayerNotFound):
				p := &player.Player{Entity: types.NewEntity(), ID: id.NewPlayerID(), Active: true}
				in.apply(p)
				if err := e.store.CreatePlayer(ctx, p); err != nil {
					return err
				}
				res.Created++
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}
	return res, nil
}
