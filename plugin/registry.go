package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/reservoir/entitlement"
	"github.com/xraph/reservoir/pool"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit               []OnInit
	onShutdown           []OnShutdown
	onPoolCreated        []OnPoolCreated
	onPoolUpdated        []OnPoolUpdated
	onPoolDeleted        []OnPoolDeleted
	onEntitlementGranted []OnEntitlementGranted
	onEntitlementRevoked []OnEntitlementRevoked
	onAdmissionDenied    []OnAdmissionDenied
	onOverflowDetected   []OnOverflowDetected
	onVersionConflict    []OnVersionConflict
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnPoolCreated); ok {
		r.onPoolCreated = append(r.onPoolCreated, v)
	}
	if v, ok := p.(OnPoolUpdated); ok {
		r.onPoolUpdated = append(r.onPoolUpdated, v)
	}
	if v, ok := p.(OnPoolDeleted); ok {
		r.onPoolDeleted = append(r.onPoolDeleted, v)
	}
	if v, ok := p.(OnEntitlementGranted); ok {
		r.onEntitlementGranted = append(r.onEntitlementGranted, v)
	}
	if v, ok := p.(OnEntitlementRevoked); ok {
		r.onEntitlementRevoked = append(r.onEntitlementRevoked, v)
	}
	if v, ok := p.(OnAdmissionDenied); ok {
		r.onAdmissionDenied = append(r.onAdmissionDenied, v)
	}
	if v, ok := p.(OnOverflowDetected); ok {
		r.onOverflowDetected = append(r.onOverflowDetected, v)
	}
	if v, ok := p.(OnVersionConflict); ok {
		r.onVersionConflict = append(r.onVersionConflict, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	// Check each interface
	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	// List all interfaces to check
	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnPoolCreated)(nil)).Elem(), "OnPoolCreated")
	checkInterface(reflect.TypeOf((*OnPoolUpdated)(nil)).Elem(), "OnPoolUpdated")
	checkInterface(reflect.TypeOf((*OnPoolDeleted)(nil)).Elem(), "OnPoolDeleted")
	checkInterface(reflect.TypeOf((*OnEntitlementGranted)(nil)).Elem(), "OnEntitlementGranted")
	checkInterface(reflect.TypeOf((*OnEntitlementRevoked)(nil)).Elem(), "OnEntitlementRevoked")
	checkInterface(reflect.TypeOf((*OnAdmissionDenied)(nil)).Elem(), "OnAdmissionDenied")
	checkInterface(reflect.TypeOf((*OnOverflowDetected)(nil)).Elem(), "OnOverflowDetected")
	checkInterface(reflect.TypeOf((*OnVersionConflict)(nil)).Elem(), "OnVersionConflict")

	return interfaces
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
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPoolCreated emits a pool created event.
func (r *Registry) EmitPoolCreated(ctx context.Context, p *pool.Pool) {
	r.mu.RLock()
	plugins := r.onPoolCreated
	r.mu.RUnlock()

	for _, pl := range plugins {
		if err := r.callWithTimeout(ctx, pl.Name(), func() error {
			return pl.OnPoolCreated(ctx, p)
		}); err != nil {
			r.logger.Warn("plugin OnPoolCreated failed",
				"plugin", pl.Name(),
				"error", err,
			)
		}
	}
}

// EmitPoolUpdated emits a pool updated event.
func (r *Registry) EmitPoolUpdated(ctx context.Context, p *pool.Pool) {
	r.mu.RLock()
	plugins := r.onPoolUpdated
	r.mu.RUnlock()

	for _, pl := range plugins {
		if err := r.callWithTimeout(ctx, pl.Name(), func() error {
			return pl.OnPoolUpdated(ctx, p)
		}); err != nil {
			r.logger.Warn("plugin OnPoolUpdated failed",
				"plugin", pl.Name(),
				"error", err,
			)
		}
	}
}

// EmitPoolDeleted emits a pool deleted event.
func (r *Registry) EmitPoolDeleted(ctx context.Context, poolID string) {
	r.mu.RLock()
	plugins := r.onPoolDeleted
	r.mu.RUnlock()

	for _, pl := range plugins {
		if err := r.callWithTimeout(ctx, pl.Name(), func() error {
			return pl.OnPoolDeleted(ctx, poolID)
		}); err != nil {
			r.logger.Warn("plugin OnPoolDeleted failed",
				"plugin", pl.Name(),
				"error", err,
			)
		}
	}
}

// EmitEntitlementGranted emits an entitlement granted event.
func (r *Registry) EmitEntitlementGranted(ctx context.Context, ent *entitlement.Entitlement) {
	r.mu.RLock()
	plugins := r.onEntitlementGranted
	r.mu.RUnlock()

	for _, pl := range plugins {
		if err := r.callWithTimeout(ctx, pl.Name(), func() error {
			return pl.OnEntitlementGranted(ctx, ent)
		}); err != nil {
			r.logger.Warn("plugin OnEntitlementGranted failed",
				"plugin", pl.Name(),
				"error", err,
			)
		}
	}
}

// EmitEntitlementRevoked emits an entitlement revoked event.
func (r *Registry) EmitEntitlementRevoked(ctx context.Context, ent *entitlement.Entitlement) {
	r.mu.RLock()
	plugins := r.onEntitlementRevoked
	r.mu.RUnlock()

	for _, pl := range plugins {
		if err := r.callWithTimeout(ctx, pl.Name(), func() error {
			return pl.OnEntitlementRevoked(ctx, ent)
		}); err != nil {
			r.logger.Warn("plugin OnEntitlementRevoked failed",
				"plugin", pl.Name(),
				"error", err,
			)
		}
	}
}

// EmitAdmissionDenied emits an admission denied event.
func (r *Registry) EmitAdmissionDenied(ctx context.Context, p *pool.Pool, consumed, requested int64, reason string) {
	r.mu.RLock()
	plugins := r.onAdmissionDenied
	r.mu.RUnlock()

	for _, pl := range plugins {
		if err := r.callWithTimeout(ctx, pl.Name(), func() error {
			return pl.OnAdmissionDenied(ctx, p, consumed, requested, reason)
		}); err != nil {
			r.logger.Warn("plugin OnAdmissionDenied failed",
				"plugin", pl.Name(),
				"error", err,
			)
		}
	}
}

// EmitOverflowDetected emits an overflow detected event.
func (r *Registry) EmitOverflowDetected(ctx context.Context, p *pool.Pool, consumed int64) {
	r.mu.RLock()
	plugins := r.onOverflowDetected
	r.mu.RUnlock()

	for _, pl := range plugins {
		if err := r.callWithTimeout(ctx, pl.Name(), func() error {
			return pl.OnOverflowDetected(ctx, p, consumed)
		}); err != nil {
			r.logger.Warn("plugin OnOverflowDetected failed",
				"plugin", pl.Name(),
				"error", err,
			)
		}
	}
}

// EmitVersionConflict emits a version conflict event.
func (r *Registry) EmitVersionConflict(ctx context.Context, poolID string) {
	r.mu.RLock()
	plugins := r.onVersionConflict
	r.mu.RUnlock()

	for _, pl := range plugins {
		if err := r.callWithTimeout(ctx, pl.Name(), func() error {
			return pl.OnVersionConflict(ctx, poolID)
		}); err != nil {
			r.logger.Warn("plugin OnVersionConflict failed",
				"plugin", pl.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the accounting pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
