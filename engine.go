package dues

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/xraph/dues/plugin"
	"github.com/xraph/dues/receipt"
	"github.com/xraph/dues/store"
	"github.com/xraph/dues/types"
)

// Engine is the dues reconciliation engine. It holds no hidden state:
// every operation receives its context and the calling identity, and all
// records live in the store.
type Engine struct {
	store    store.Store
	plugins  *plugin.Registry
	logger   *slog.Logger
	auth     Authorizer
	now      func() time.Time
	currency string
	validate *validator.Validate
}

// New creates an Engine on top of s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		plugins:  plugin.NewRegistry(),
		logger:   slog.Default(),
		auth:     AdminOnly{},
		now:      time.Now,
		currency: types.DefaultCurrency,
		validate: newValidator(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithAuthorizer replaces the default AdminOnly policy.
func WithAuthorizer(a Authorizer) Option {
	return func(e *Engine) {
		if a != nil {
			e.auth = a
		}
	}
}

// WithClock sets the time source. Tests pin it to a fixed day.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithCurrency sets the currency used when a record names none.
func WithCurrency(currency string) Option {
	return func(e *Engine) {
		e.currency = types.NormalizeCurrency(currency)
	}
}

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("dues engine started",
		"currency", e.currency,
		"plugins", e.plugins.Count(),
	)
	return nil
}

// Stop notifies plugins and closes the store.
func (e *Engine) Stop() error {
	e.plugins.EmitShutdown(context.Background())
	return e.store.Close()
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Currency returns the default currency.
func (e *Engine) Currency() string { return e.currency }

// Now returns the engine clock's current time in UTC.
func (e *Engine) Now() time.Time { return e.now().UTC() }

func (e *Engine) today() time.Time { return types.DateOf(e.now()) }

// ──────────────────────────────────────────────────
// Receipt numbering
// ──────────────────────────────────────────────────

// createReceipt persists r and numbers it from the sequence the store
// assigned. Must run inside a transaction so that a numbering failure
// takes the receipt with it.
func (e *Engine) createReceipt(ctx context.Context, r *receipt.Receipt) error {
	if err := e.store.CreateReceipt(ctx, r); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return ErrAlreadySettled
		}
		return err
	}
	if r.Number != "" {
		return nil
	}
	number := receipt.FormatNumber(r.IssuedAt(), r.Seq)
	if err := e.store.AssignNumber(ctx, r.ID, number); err != nil {
		return fmt.Errorf("dues: number receipt: %w", err)
	}
	r.Number = number
	return nil
}

// ──────────────────────────────────────────────────
// Input validation
// ──────────────────────────────────────────────────

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// check validates an input struct. Field failures become ValidationError
// values collected in a MultiError.
func (e *Engine) check(input any) error {
	err := e.validate.Struct(input)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	var multi MultiError
	for _, fe := range verrs {
		multi.Add(ValidationError{Field: fe.Field(), Message: validationMessage(fe)})
	}
	if len(multi.Errors) == 1 {
		return multi.Errors[0]
	}
	return multi
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "gt", "gte", "min":
		return "too small"
	case "lt", "lte", "max":
		return "too large"
	case "len":
		return "wrong length"
	case "oneof":
		return "not allowed"
	case "email":
		return "invalid email"
	default:
		return "invalid"
	}
}
