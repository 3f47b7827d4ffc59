package dues

import (
	"context"

	"github.com/xraph/dues/id"
)

// Action names an operation for authorization.
type Action string

const (
	ActionManagePlayers Action = "players.manage"
	ActionManageEvents  Action = "events.manage"
	ActionGenerateDues  Action = "dues.generate"
	ActionRecordSession Action = "sessions.record"
	ActionCheckIn       Action = "sessions.checkin"
	ActionReadBalance   Action = "balance.read"
	ActionIssueReceipt  Action = "receipts.issue"
	ActionSettle        Action = "receipts.settle"
	ActionReport        Action = "reports.read"
	ActionExport        Action = "exports.read"
	ActionSweep         Action = "sweeps.run"
)

// Caller is the identity an operation runs as. The host application
// resolves it from its own session; the engine never reads ambient state.
type Caller struct {
	ID       string      `json:"id"`
	Admin    bool        `json:"admin"`
	PlayerID id.PlayerID `json:"player_id"` // set when the caller is a player
}

// System is the caller used by background jobs.
func System() Caller {
	return Caller{ID: "system", Admin: true}
}

// Authorizer decides whether caller may perform action. subject is the
// player the action concerns, or id.Nil.
type Authorizer interface {
	Authorize(ctx context.Context, caller Caller, action Action, subject id.PlayerID) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, caller Caller, action Action, subject id.PlayerID) error

// Authorize implements Authorizer.
func (f AuthorizerFunc) Authorize(ctx context.Context, caller Caller, action Action, subject id.PlayerID) error {
	return f(ctx, caller, action, subject)
}

// AdminOnly lets administrators do everything. A player may check
// themself in and read their own balance.
type AdminOnly struct{}

// Authorize implements Authorizer.
func (AdminOnly) Authorize(_ context.Context, caller Caller, action Action, subject id.PlayerID) error {
	if caller.Admin {
		return nil
	}
	switch action {
	case ActionCheckIn, ActionReadBalance:
		if !caller.PlayerID.IsNil() && caller.PlayerID == subject {
			return nil
		}
	}
	return ErrUnauthorized
}

func (e *Engine) authorize(ctx context.Context, caller Caller, action Action, subject id.PlayerID) error {
	if err := e.auth.Authorize(ctx, caller, action, subject); err != nil {
		e.logger.Debug("dues: action denied",
			"action", string(action),
			"caller", caller.ID,
		)
		return err
	}
	return nil
}

// Authorize runs the engine's authorizer. Companion packages (exports,
// HTTP handlers) gate their own reads with it.
func (e *Engine) Authorize(ctx context.Context, caller Caller, action Action, subject id.PlayerID) error {
	return e.authorize(ctx, caller, action, subject)
}
