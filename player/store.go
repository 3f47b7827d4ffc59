package player

import (
	"context"

	"github.com/xraph/dues/id"
)

// Store persists player billing profiles.
type Store interface {
	CreatePlayer(ctx context.Context, p *Player) error
	GetPlayer(ctx context.Context, playerID id.PlayerID) (*Player, error)
	GetPlayerByKey(ctx context.Context, key string) (*Player, error)
	UpdatePlayer(ctx context.Context, p *Player) error
	ListPlayers(ctx context.Context, opts ListOpts) ([]*Player, error)
}

// ListOpts filters ListPlayers. Results are ordered by last name, first
// name, then key.
type ListOpts struct {
	ActiveOnly  bool
	MonthlyOnly bool
	Limit       int
	Offset      int
}
