// Package observability provides a metrics extension for the dues engine
// that records lifecycle event counts through a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/dues/attendance"
	"github.com/xraph/dues/plugin"
	"github.com/xraph/dues/receipt"
	"github.com/xraph/dues/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnInit                 = (*MetricsExtension)(nil)
	_ plugin.OnDuesGenerated        = (*MetricsExtension)(nil)
	_ plugin.OnSessionRecorded      = (*MetricsExtension)(nil)
	_ plugin.OnDebtCreated          = (*MetricsExtension)(nil)
	_ plugin.OnReceiptIssued        = (*MetricsExtension)(nil)
	_ plugin.OnBulkSettled          = (*MetricsExtension)(nil)
	_ plugin.OnSettlementFlagFailed = (*MetricsExtension)(nil)
	_ plugin.OnReportGenerated      = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records engine-wide lifecycle metrics.
// Register it as a plugin to track billing activity.
type MetricsExtension struct {
	factory MetricFactory

	// Billing metrics
	DuesGenerated Counter
	DuesRuns      Counter

	// Attendance metrics
	SessionsMonthly    Counter
	SessionsPrepaid    Counter
	SessionsBackfilled Counter
	SessionsDebt       Counter
	DebtCreated        Counter
	DebtAmount         Histogram

	// Settlement metrics
	ReceiptsIssued      Counter
	ReceiptAmount       Histogram
	BulkSettlements     Counter
	BulkItems           Histogram
	SettlementFlagFails Counter

	// Reporting metrics
	ReportsGenerated Counter
	ReportLatency    Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		DuesGenerated: factory.Counter("dues.due.generated"),
		DuesRuns:      factory.Counter("dues.due.runs"),

		SessionsMonthly:    factory.Counter("dues.session.monthly"),
		SessionsPrepaid:    factory.Counter("dues.session.prepaid"),
		SessionsBackfilled: factory.Counter("dues.session.backfilled"),
		SessionsDebt:       factory.Counter("dues.session.debt"),
		DebtCreated:        factory.Counter("dues.debt.created"),
		DebtAmount:         factory.Histogram("dues.debt.amount"),

		ReceiptsIssued:      factory.Counter("dues.receipt.issued"),
		ReceiptAmount:       factory.Histogram("dues.receipt.amount"),
		BulkSettlements:     factory.Counter("dues.bulk.settled"),
		BulkItems:           factory.Histogram("dues.bulk.items"),
		SettlementFlagFails: factory.Counter("dues.settlement.flag_failed"),

		ReportsGenerated: factory.Counter("dues.report.generated"),
		ReportLatency:    factory.Histogram("dues.report.latency_ms"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// OnDuesGenerated implements plugin.OnDuesGenerated.
func (m *MetricsExtension) OnDuesGenerated(_ context.Context, _ types.Month, created int) error {
	m.DuesRuns.Inc()
	m.DuesGenerated.Add(float64(created))
	return nil
}

// OnSessionRecorded implements plugin.OnSessionRecorded.
func (m *MetricsExtension) OnSessionRecorded(_ context.Context, _ *attendance.Attendance, outcome attendance.Outcome) error {
	switch outcome {
	case attendance.OutcomeMonthly:
		m.SessionsMonthly.Inc()
	case attendance.OutcomePrepaid:
		m.SessionsPrepaid.Inc()
	case attendance.OutcomeBackfilled:
		m.SessionsBackfilled.Inc()
	case attendance.OutcomeDebt:
		m.SessionsDebt.Inc()
	}
	return nil
}

// OnDebtCreated implements plugin.OnDebtCreated.
func (m *MetricsExtension) OnDebtCreated(_ context.Context, debt *receipt.Receipt) error {
	m.DebtCreated.Inc()
	m.DebtAmount.Observe(float64(debt.Amount))
	return nil
}

// OnReceiptIssued implements plugin.OnReceiptIssued.
func (m *MetricsExtension) OnReceiptIssued(_ context.Context, r *receipt.Receipt) error {
	m.ReceiptsIssued.Inc()
	m.ReceiptAmount.Observe(float64(r.Amount))
	return nil
}

// OnBulkSettled implements plugin.OnBulkSettled.
func (m *MetricsExtension) OnBulkSettled(_ context.Context, _ *receipt.Receipt, items int) error {
	m.BulkSettlements.Inc()
	m.BulkItems.Observe(float64(items))
	return nil
}

// OnSettlementFlagFailed implements plugin.OnSettlementFlagFailed.
func (m *MetricsExtension) OnSettlementFlagFailed(_ context.Context, _ *receipt.Receipt, _ receipt.Link, _ error) error {
	m.SettlementFlagFails.Inc()
	return nil
}

// OnReportGenerated implements plugin.OnReportGenerated.
func (m *MetricsExtension) OnReportGenerated(_ context.Context, _, _ time.Time, _ int, elapsed time.Duration) error {
	m.ReportsGenerated.Inc()
	m.ReportLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}
