// Package store defines the unified persistence interface of the dues
// engine. Backends live in the sub-packages.
package store

import (
	"context"

	"github.com/xraph/dues/attendance"
	"github.com/xraph/dues/due"
	"github.com/xraph/dues/event"
	"github.com/xraph/dues/player"
	"github.com/xraph/dues/receipt"
)

// Store composes every record store with lifecycle and transactions.
type Store interface {
	player.Store
	due.Store
	attendance.Store
	event.Store
	receipt.Store

	// WithTx runs fn in one transaction. Store calls made with the context
	// passed to fn join the transaction; fn returning an error rolls every
	// write back. A nested WithTx joins the outer transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
