// Package extension provides the Forge extension adapter for the dues
// engine.
//
// It implements the forge.Extension interface to integrate dues into a
// Forge application with DI registration, HTTP routes, a background
// sweeper and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.dues" or "dues" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	dues "github.com/xraph/dues"
	"github.com/xraph/dues/api"
	"github.com/xraph/dues/store"
	"github.com/xraph/dues/store/memory"
	"github.com/xraph/dues/store/mongo"
	"github.com/xraph/dues/store/postgres"
	"github.com/xraph/dues/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "dues"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Fee and attendance reconciliation for club back offices"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the dues engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *dues.Engine
	handler    *api.Handler
	store      store.Store
	groveDB    *grove.DB
	engineOpts []dues.Option

	router gin.IRouter
	caller api.CallerFunc

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new dues Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine. It is nil until Register is
// called.
func (e *Extension) Engine() *dues.Engine { return e.engine }

// Handler returns the HTTP handler. It is nil until Register is called.
func (e *Extension) Handler() *api.Handler { return e.handler }

// Register implements [forge.Extension]. It loads configuration, builds
// the store and engine, registers both in the DI container and mounts the
// HTTP routes when a router was supplied.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		s, err := storeFor(e.groveDB)
		if err != nil {
			return err
		}
		e.store = s
	}

	opts := append([]dues.Option{dues.WithCurrency(e.config.Currency)}, e.engineOpts...)
	e.engine = dues.New(e.store, opts...)

	caller := e.caller
	if caller == nil {
		caller = func(*gin.Context) dues.Caller { return dues.Caller{ID: "anonymous"} }
	}
	e.handler = api.NewHandler(e.engine, caller)

	if e.router != nil && !e.config.DisableRoutes {
		e.handler.Register(e.router.Group(e.config.BasePath))
		e.Logger().Debug("dues: routes registered",
			forge.F("base_path", e.config.BasePath),
		)
	}

	if err := vessel.Provide(fapp.Container(), func() (*dues.Engine, error) {
		return e.engine, nil
	}); err != nil {
		return err
	}
	return vessel.Provide(fapp.Container(), func() (*api.Handler, error) {
		return e.handler, nil
	})
}

// storeFor picks the store backend for db by driver name. A nil db means
// the in-memory store.
func storeFor(db *grove.DB) (store.Store, error) {
	if db == nil {
		return memory.New(), nil
	}
	switch name := db.Driver().Name(); name {
	case "pg":
		return postgres.New(db), nil
	case "sqlite":
		return sqlite.New(db), nil
	case "mongo":
		return mongo.New(db), nil
	default:
		return nil, fmt.Errorf("dues: unsupported grove driver %q", name)
	}
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("dues: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	if e.config.SweepInterval > 0 {
		sweepCtx, cancel := context.WithCancel(context.Background())
		e.cancel = cancel
		e.wg.Add(1)
		go e.sweepLoop(sweepCtx, e.config.SweepInterval)
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.cancel != nil {
		e.cancel()
		e.wg.Wait()
		e.cancel = nil
	}
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("dues: store not initialized")
	}
	return e.store.Ping(ctx)
}

// sweepLoop repairs paid flags and assigns missing receipt numbers every
// interval until ctx is cancelled.
func (e *Extension) sweepLoop(ctx context.Context, interval time.Duration) {
	defer e.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sweep(ctx)
		}
	}
}

func (e *Extension) sweep(ctx context.Context) {
	caller := dues.System()

	res, err := e.engine.RepairPaidFlags(ctx, caller)
	if err != nil {
		e.Logger().Warn("dues: paid flag sweep failed", forge.F("error", err.Error()))
	} else if res.Flipped > 0 || res.Failed > 0 {
		e.Logger().Debug("dues: paid flags repaired",
			forge.F("flipped", res.Flipped),
			forge.F("failed", res.Failed),
		)
	}

	n, err := e.engine.AssignMissingNumbers(ctx, caller)
	if err != nil {
		e.Logger().Warn("dues: receipt number sweep failed", forge.F("error", err.Error()))
	} else if n > 0 {
		e.Logger().Debug("dues: receipt numbers assigned", forge.F("count", n))
	}
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("dues: configuration is required but not found in config files; " +
				"ensure 'extensions.dues' or 'dues' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("dues: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
		forge.F("currency", e.config.Currency),
		forge.F("sweep_interval", e.config.SweepInterval),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.dues", "dues"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("dues: loaded config from file", forge.F("key", key))
			return cfg, true
		}
		e.Logger().Warn("dues: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic bool flags fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	if yamlConfig.BasePath == "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	if yamlConfig.Currency == "" {
		yamlConfig.Currency = programmaticConfig.Currency
	}
	if yamlConfig.SweepInterval <= 0 {
		yamlConfig.SweepInterval = programmaticConfig.SweepInterval
	}

	return mergeWithDefaults(yamlConfig)
}
