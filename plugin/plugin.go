// Package plugin provides an extensible plugin system for Reservoir.
// Plugins can hook into various lifecycle events to extend functionality.
package plugin

import (
	"context"

	"github.com/xraph/reservoir/entitlement"
	"github.com/xraph/reservoir/pool"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Pool lifecycle hooks
// ──────────────────────────────────────────────────

// OnPoolCreated is called when a new pool is created.
type OnPoolCreated interface {
	Plugin
	OnPoolCreated(ctx context.Context, p *pool.Pool) error
}

// OnPoolUpdated is called after a pool update is persisted.
type OnPoolUpdated interface {
	Plugin
	OnPoolUpdated(ctx context.Context, p *pool.Pool) error
}

// OnPoolDeleted is called after a pool is physically deleted.
type OnPoolDeleted interface {
	Plugin
	OnPoolDeleted(ctx context.Context, poolID string) error
}

// ──────────────────────────────────────────────────
// Accounting hooks
// ──────────────────────────────────────────────────

// OnEntitlementGranted is called after an entitlement is drawn from a
// pool.
type OnEntitlementGranted interface {
	Plugin
	OnEntitlementGranted(ctx context.Context, ent *entitlement.Entitlement) error
}

// OnEntitlementRevoked is called after an entitlement is removed.
type OnEntitlementRevoked interface {
	Plugin
	OnEntitlementRevoked(ctx context.Context, ent *entitlement.Entitlement) error
}

// OnAdmissionDenied is called when an admission check rejects a
// requested consumption.
type OnAdmissionDenied interface {
	Plugin
	OnAdmissionDenied(ctx context.Context, p *pool.Pool, consumed, requested int64, reason string) error
}

// OnOverflowDetected is called when a bounded pool is observed with
// consumption exceeding its capacity. Overflow is reportable state,
// never a rejection of existing entitlements.
type OnOverflowDetected interface {
	Plugin
	OnOverflowDetected(ctx context.Context, p *pool.Pool, consumed int64) error
}

// OnVersionConflict is called when an optimistic-locking conflict is
// surfaced to a caller.
type OnVersionConflict interface {
	Plugin
	OnVersionConflict(ctx context.Context, poolID string) error
}
