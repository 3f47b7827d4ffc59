package dues

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/dues/due"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/player"
	"github.com/xraph/dues/types"
)

// EnsureDuesForMonth creates the monthly due of every active player billed
// monthly, unless it already exists. It returns how many dues it created;
// running it again for the same month creates none. Concurrent runs are
// safe: the store's unique key on (player, year, month) turns a lost race
// into "already there".
func (e *Engine) EnsureDuesForMonth(ctx context.Context, caller Caller, year, month int) (int, error) {
	if err := e.authorize(ctx, caller, ActionGenerateDues, id.Nil); err != nil {
		return 0, err
	}
	m, err := types.NewMonth(year, month)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidMonth, err)
	}
	return e.ensureDues(ctx, m)
}

// EnsureDuesForMonthKey is EnsureDuesForMonth for a "YYYY-MM" key. An
// empty or unparsable key means the current month.
func (e *Engine) EnsureDuesForMonthKey(ctx context.Context, caller Caller, key string) (int, error) {
	m := types.ParseMonth(key, e.Now())
	return e.EnsureDuesForMonth(ctx, caller, m.Year, int(m.Month))
}

func (e *Engine) ensureDues(ctx context.Context, m types.Month) (int, error) {
	players, err := e.store.ListPlayers(ctx, player.ListOpts{ActiveOnly: true, MonthlyOnly: true})
	if err != nil {
		return 0, err
	}

	created := 0
	for _, p := range players {
		if !p.BilledMonthly() {
			continue
		}

		_, err := e.store.GetDueFor(ctx, p.ID, m.Year, int(m.Month))
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrDueNotFound) {
			return created, err
		}

		d := &due.Due{
			Entity:   types.NewEntity(),
			ID:       id.NewDueID(),
			PlayerID: p.ID,
			Year:     m.Year,
			Month:    int(m.Month),
			Amount:   *p.MonthlyFee,
			Currency: e.currency,
		}
		if err := e.store.CreateDue(ctx, d); err != nil {
			if errors.Is(err, ErrAlreadyExists) {
				continue
			}
			return created, err
		}
		created++
	}

	e.logger.Info("monthly dues ensured",
		"month", m.String(),
		"created", created,
		"players", len(players),
	)
	e.plugins.EmitDuesGenerated(ctx, m, created)

	return created, nil
}
