package extension

import (
	reservoir "github.com/xraph/reservoir"
	"github.com/xraph/reservoir/plugin"
	"github.com/xraph/reservoir/rules"
	"github.com/xraph/reservoir/store"
)

// Option configures the Reservoir Forge extension.
type Option func(*Extension)

// WithStore sets the store for the reservoir engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a reservoir.Option through to the underlying engine.
func WithEngineOption(opt reservoir.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a reservoir plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, reservoir.WithPlugin(p))
	}
}

// WithEvaluator wires in the eligibility rules subsystem.
func WithEvaluator(ev rules.Evaluator) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, reservoir.WithEvaluator(ev))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
