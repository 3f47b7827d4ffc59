package extension

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xraph/grove"

	dues "github.com/xraph/dues"
	"github.com/xraph/dues/api"
	"github.com/xraph/dues/plugin"
	"github.com/xraph/dues/store"
)

// Option configures the dues Forge extension.
type Option func(*Extension)

// WithStore sets the store for the dues engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDB builds the store on db. The backend (postgres, sqlite or
// mongo) is chosen from the grove driver's name.
func WithGroveDB(db *grove.DB) Option {
	return func(e *Extension) {
		e.groveDB = db
	}
}

// WithEngineOption passes a dues.Option through to the underlying engine.
func WithEngineOption(opt dues.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a dues plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, dues.WithPlugin(p))
	}
}

// WithAuthorizer replaces the engine's AdminOnly policy.
func WithAuthorizer(a dues.Authorizer) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, dues.WithAuthorizer(a))
	}
}

// WithRouter mounts the HTTP API on r under the configured base path.
func WithRouter(r gin.IRouter) Option {
	return func(e *Extension) { e.router = r }
}

// WithCaller sets how HTTP requests resolve their caller. Without it every
// request runs as an anonymous non-admin.
func WithCaller(fn api.CallerFunc) Option {
	return func(e *Extension) { e.caller = fn }
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes prevents HTTP route registration.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix for dues routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithCurrency sets the default currency.
func WithCurrency(currency string) Option {
	return func(e *Extension) { e.config.Currency = currency }
}

// WithSweepInterval starts a background sweeper that runs every d.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.SweepInterval = d }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
