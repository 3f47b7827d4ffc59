// Package audithook bridges dues lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import an
// audit backend directly. Callers inject a RecorderFunc adapter at wiring
// time.
//
// Events carry record identifiers and amounts but never names or contact
// data of players.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/dues/attendance"
	"github.com/xraph/dues/plugin"
	"github.com/xraph/dues/receipt"
	"github.com/xraph/dues/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Extension)(nil)
	_ plugin.OnInit                 = (*Extension)(nil)
	_ plugin.OnShutdown             = (*Extension)(nil)
	_ plugin.OnDuesGenerated        = (*Extension)(nil)
	_ plugin.OnSessionRecorded      = (*Extension)(nil)
	_ plugin.OnDebtCreated          = (*Extension)(nil)
	_ plugin.OnReceiptIssued        = (*Extension)(nil)
	_ plugin.OnBulkSettled          = (*Extension)(nil)
	_ plugin.OnSettlementFlagFailed = (*Extension)(nil)
	_ plugin.OnReportGenerated      = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges dues lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit implements plugin.OnInit.
func (e *Extension) OnInit(ctx context.Context, _ any) error {
	return e.record(ctx, ActionEngineStarted, SeverityInfo, OutcomeSuccess,
		ResourceEngine, "", CategorySystem, nil,
	)
}

// OnShutdown implements plugin.OnShutdown.
func (e *Extension) OnShutdown(ctx context.Context) error {
	return e.record(ctx, ActionEngineStopped, SeverityInfo, OutcomeSuccess,
		ResourceEngine, "", CategorySystem, nil,
	)
}

// ──────────────────────────────────────────────────
// Billing hooks
// ──────────────────────────────────────────────────

// OnDuesGenerated implements plugin.OnDuesGenerated.
func (e *Extension) OnDuesGenerated(ctx context.Context, month types.Month, created int) error {
	return e.record(ctx, ActionDuesGenerated, SeverityInfo, OutcomeSuccess,
		ResourceDue, month.String(), CategoryBilling, nil,
		"month", month.String(),
		"created", created,
	)
}

// OnSessionRecorded implements plugin.OnSessionRecorded.
func (e *Extension) OnSessionRecorded(ctx context.Context, a *attendance.Attendance, outcome attendance.Outcome) error {
	return e.record(ctx, ActionSessionRecorded, SeverityInfo, OutcomeSuccess,
		ResourceAttendance, a.ID.String(), CategoryAttendance, nil,
		"player_id", a.PlayerID.String(),
		"date", a.Date.Format(types.DateLayout),
		"source", string(a.Source),
		"outcome", string(outcome),
	)
}

// OnDebtCreated implements plugin.OnDebtCreated.
func (e *Extension) OnDebtCreated(ctx context.Context, debt *receipt.Receipt) error {
	return e.record(ctx, ActionDebtCreated, SeverityWarning, OutcomeSuccess,
		ResourceReceipt, debt.ID.String(), CategoryBilling, nil,
		"player_id", debt.PlayerID.String(),
		"number", debt.Number,
		"amount", debt.Amount,
		"currency", debt.Currency,
	)
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnReceiptIssued implements plugin.OnReceiptIssued.
func (e *Extension) OnReceiptIssued(ctx context.Context, r *receipt.Receipt) error {
	return e.record(ctx, ActionReceiptIssued, SeverityInfo, OutcomeSuccess,
		ResourceReceipt, r.ID.String(), CategoryPayment, nil,
		"player_id", r.PlayerID.String(),
		"number", r.Number,
		"kind", string(r.Kind),
		"source", string(r.Source),
		"amount", r.Amount,
		"currency", r.Currency,
		"links", len(r.Links),
	)
}

// OnBulkSettled implements plugin.OnBulkSettled.
func (e *Extension) OnBulkSettled(ctx context.Context, r *receipt.Receipt, items int) error {
	return e.record(ctx, ActionBulkSettled, SeverityInfo, OutcomeSuccess,
		ResourceReceipt, r.ID.String(), CategoryPayment, nil,
		"player_id", r.PlayerID.String(),
		"number", r.Number,
		"amount", r.Amount,
		"items", items,
	)
}

// OnSettlementFlagFailed implements plugin.OnSettlementFlagFailed.
func (e *Extension) OnSettlementFlagFailed(ctx context.Context, r *receipt.Receipt, link receipt.Link, err error) error {
	return e.record(ctx, ActionSettlementFlagFailed, SeverityError, OutcomePartial,
		ResourceReceipt, r.ID.String(), CategoryPayment, err,
		"number", r.Number,
		"target_type", string(link.TargetType),
		"target_id", link.TargetID,
	)
}

// ──────────────────────────────────────────────────
// Reporting hooks
// ──────────────────────────────────────────────────

// OnReportGenerated implements plugin.OnReportGenerated.
func (e *Extension) OnReportGenerated(ctx context.Context, from, to time.Time, players int, elapsed time.Duration) error {
	return e.record(ctx, ActionReportGenerated, SeverityInfo, OutcomeSuccess,
		ResourceReport, "", CategoryReporting, nil,
		"from", from.Format(types.DateLayout),
		"to", to.Format(types.DateLayout),
		"players", players,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
