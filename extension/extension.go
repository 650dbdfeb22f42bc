// Package extension provides the Forge extension adapter for Reservoir.
//
// It implements the forge.Extension interface to integrate Reservoir
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.reservoir" or
// "reservoir" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	reservoir "github.com/xraph/reservoir"
	"github.com/xraph/reservoir/store"
	"github.com/xraph/reservoir/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "reservoir"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Entitlement pool accounting engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Reservoir as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *reservoir.Engine
	store      store.Store
	engineOpts []reservoir.Option
}

// New creates a new Reservoir Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Reservoir instance.
// This is nil until Register is called.
func (e *Extension) Engine() *reservoir.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the reservoir engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	eng := reservoir.New(e.store, e.engineOpts...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*reservoir.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("reservoir: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
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
		return errors.New("reservoir: store not initialized")
	}
	return e.store.Ping(ctx)
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("reservoir: configuration is required but not found in config files; " +
				"ensure 'extensions.reservoir' or 'reservoir' key exists in your config")
		}
		e.config = programmaticConfig
	} else {
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("reservoir: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.reservoir" first (namespaced pattern).
	if cm.IsSet("extensions.reservoir") {
		if err := cm.Bind("extensions.reservoir", &cfg); err == nil {
			e.Logger().Debug("reservoir: loaded config from file",
				forge.F("key", "extensions.reservoir"),
			)
			return cfg, true
		}
		e.Logger().Warn("reservoir: failed to bind extensions.reservoir config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "reservoir" key.
	if cm.IsSet("reservoir") {
		if err := cm.Bind("reservoir", &cfg); err == nil {
			e.Logger().Debug("reservoir: loaded config from file",
				forge.F("key", "reservoir"),
			)
			return cfg, true
		}
		e.Logger().Warn("reservoir: failed to bind reservoir config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	yamlConfig.RequireConfig = programmaticConfig.RequireConfig
	return yamlConfig
}
