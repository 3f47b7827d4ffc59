package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/dues/attendance"
	"github.com/xraph/dues/receipt"
	"github.com/xraph/dues/types"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and dispatches events to the
// ones implementing each hook. Hook lists are cached at registration.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit                 []OnInit
	onShutdown             []OnShutdown
	onDuesGenerated        []OnDuesGenerated
	onSessionRecorded      []OnSessionRecorded
	onDebtCreated          []OnDebtCreated
	onReceiptIssued        []OnReceiptIssued
	onBulkSettled          []OnBulkSettled
	onSettlementFlagFailed []OnSettlementFlagFailed
	onReportGenerated      []OnReportGenerated
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnDuesGenerated); ok {
		r.onDuesGenerated = append(r.onDuesGenerated, v)
	}
	if v, ok := p.(OnSessionRecorded); ok {
		r.onSessionRecorded = append(r.onSessionRecorded, v)
	}
	if v, ok := p.(OnDebtCreated); ok {
		r.onDebtCreated = append(r.onDebtCreated, v)
	}
	if v, ok := p.(OnReceiptIssued); ok {
		r.onReceiptIssued = append(r.onReceiptIssued, v)
	}
	if v, ok := p.(OnBulkSettled); ok {
		r.onBulkSettled = append(r.onBulkSettled, v)
	}
	if v, ok := p.(OnSettlementFlagFailed); ok {
		r.onSettlementFlagFailed = append(r.onSettlementFlagFailed, v)
	}
	if v, ok := p.(OnReportGenerated); ok {
		r.onReportGenerated = append(r.onReportGenerated, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

func implementedInterfaces(p Plugin) []string {
	var names []string
	v := reflect.TypeOf(p)

	check := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			names = append(names, name)
		}
	}

	check(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	check(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	check(reflect.TypeOf((*OnDuesGenerated)(nil)).Elem(), "OnDuesGenerated")
	check(reflect.TypeOf((*OnSessionRecorded)(nil)).Elem(), "OnSessionRecorded")
	check(reflect.TypeOf((*OnDebtCreated)(nil)).Elem(), "OnDebtCreated")
	check(reflect.TypeOf((*OnReceiptIssued)(nil)).Elem(), "OnReceiptIssued")
	check(reflect.TypeOf((*OnBulkSettled)(nil)).Elem(), "OnBulkSettled")
	check(reflect.TypeOf((*OnSettlementFlagFailed)(nil)).Elem(), "OnSettlementFlagFailed")
	check(reflect.TypeOf((*OnReportGenerated)(nil)).Elem(), "OnReportGenerated")

	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission
// ──────────────────────────────────────────────────

// emit runs call for every plugin in hooks. Failures are logged; a plugin
// never fails the operation that triggered it.
func emit[T Plugin](r *Registry, ctx context.Context, hook string, hooks []T, call func(T) error) {
	for _, p := range hooks {
		if err := r.callWithTimeout(ctx, p.Name(), func() error { return call(p) }); err != nil {
			r.logger.Warn("plugin hook failed",
				"hook", hook,
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	hooks := r.onInit
	r.mu.RUnlock()

	emit(r, ctx, "OnInit", hooks, func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	hooks := r.onShutdown
	r.mu.RUnlock()

	emit(r, ctx, "OnShutdown", hooks, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitDuesGenerated notifies plugins of a finished monthly due run.
func (r *Registry) EmitDuesGenerated(ctx context.Context, month types.Month, created int) {
	r.mu.RLock()
	hooks := r.onDuesGenerated
	r.mu.RUnlock()

	emit(r, ctx, "OnDuesGenerated", hooks, func(p OnDuesGenerated) error {
		return p.OnDuesGenerated(ctx, month, created)
	})
}

// EmitSessionRecorded notifies plugins of an allocated attendance unit.
func (r *Registry) EmitSessionRecorded(ctx context.Context, a *attendance.Attendance, outcome attendance.Outcome) {
	r.mu.RLock()
	hooks := r.onSessionRecorded
	r.mu.RUnlock()

	emit(r, ctx, "OnSessionRecorded", hooks, func(p OnSessionRecorded) error {
		return p.OnSessionRecorded(ctx, a, outcome)
	})
}

// EmitDebtCreated notifies plugins of a new debt receipt.
func (r *Registry) EmitDebtCreated(ctx context.Context, debt *receipt.Receipt) {
	r.mu.RLock()
	hooks := r.onDebtCreated
	r.mu.RUnlock()

	emit(r, ctx, "OnDebtCreated", hooks, func(p OnDebtCreated) error {
		return p.OnDebtCreated(ctx, debt)
	})
}

// EmitReceiptIssued notifies plugins of a committed receipt.
func (r *Registry) EmitReceiptIssued(ctx context.Context, rc *receipt.Receipt) {
	r.mu.RLock()
	hooks := r.onReceiptIssued
	r.mu.RUnlock()

	emit(r, ctx, "OnReceiptIssued", hooks, func(p OnReceiptIssued) error {
		return p.OnReceiptIssued(ctx, rc)
	})
}

// EmitBulkSettled notifies plugins of a bulk settlement.
func (r *Registry) EmitBulkSettled(ctx context.Context, rc *receipt.Receipt, items int) {
	r.mu.RLock()
	hooks := r.onBulkSettled
	r.mu.RUnlock()

	emit(r, ctx, "OnBulkSettled", hooks, func(p OnBulkSettled) error {
		return p.OnBulkSettled(ctx, rc, items)
	})
}

// EmitSettlementFlagFailed notifies plugins of a paid flag left stale.
func (r *Registry) EmitSettlementFlagFailed(ctx context.Context, rc *receipt.Receipt, link receipt.Link, cause error) {
	r.mu.RLock()
	hooks := r.onSettlementFlagFailed
	r.mu.RUnlock()

	emit(r, ctx, "OnSettlementFlagFailed", hooks, func(p OnSettlementFlagFailed) error {
		return p.OnSettlementFlagFailed(ctx, rc, link, cause)
	})
}

// EmitReportGenerated notifies plugins of an aggregated report.
func (r *Registry) EmitReportGenerated(ctx context.Context, from, to time.Time, players int, elapsed time.Duration) {
	r.mu.RLock()
	hooks := r.onReportGenerated
	r.mu.RUnlock()

	emit(r, ctx, "OnReportGenerated", hooks, func(p OnReportGenerated) error {
		return p.OnReportGenerated(ctx, from, to, players, elapsed)
	})
}

// callWithTimeout calls a plugin function with a timeout. Plugins should
// never block settlement.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
