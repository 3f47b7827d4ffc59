// Package plugin provides an extensible plugin system for the dues engine.
// Plugins hook into lifecycle events to add audit trails, metrics or
// notifications without touching settlement logic.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/dues/attendance"
	"github.com/xraph/dues/receipt"
	"github.com/xraph/dues/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Billing hooks
// ──────────────────────────────────────────────────

// OnDuesGenerated is called after a monthly due run. created counts the
// dues that run inserted; zero means every due already existed.
type OnDuesGenerated interface {
	Plugin
	OnDuesGenerated(ctx context.Context, month types.Month, created int) error
}

// OnSessionRecorded is called after an attendance unit has been allocated.
type OnSessionRecorded interface {
	Plugin
	OnSessionRecorded(ctx context.Context, a *attendance.Attendance, outcome attendance.Outcome) error
}

// OnDebtCreated is called when attendance produced a debt receipt.
type OnDebtCreated interface {
	Plugin
	OnDebtCreated(ctx context.Context, debt *receipt.Receipt) error
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnReceiptIssued is called for every committed income receipt.
type OnReceiptIssued interface {
	Plugin
	OnReceiptIssued(ctx context.Context, r *receipt.Receipt) error
}

// OnBulkSettled is called after a bulk settlement issued its receipt.
type OnBulkSettled interface {
	Plugin
	OnBulkSettled(ctx context.Context, r *receipt.Receipt, items int) error
}

// OnSettlementFlagFailed is called when a paid flag could not be flipped
// after its receipt committed. The receipt stands; the repair sweep fixes
// the flag later.
type OnSettlementFlagFailed interface {
	Plugin
	OnSettlementFlagFailed(ctx context.Context, r *receipt.Receipt, link receipt.Link, err error) error
}

// ──────────────────────────────────────────────────
// Reporting hooks
// ──────────────────────────────────────────────────

// OnReportGenerated is called after a period report was aggregated.
type OnReportGenerated interface {
	Plugin
	OnReportGenerated(ctx context.Context, from, to time.Time, players int, elapsed time.Duration) error
}
