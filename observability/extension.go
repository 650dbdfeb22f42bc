// Package observability provides a metrics extension for Reservoir that
// records lifecycle event counts via a pluggable MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/reservoir/entitlement"
	"github.com/xraph/reservoir/plugin"
	"github.com/xraph/reservoir/pool"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin               = (*MetricsExtension)(nil)
	_ plugin.OnInit               = (*MetricsExtension)(nil)
	_ plugin.OnPoolCreated        = (*MetricsExtension)(nil)
	_ plugin.OnPoolUpdated        = (*MetricsExtension)(nil)
	_ plugin.OnPoolDeleted        = (*MetricsExtension)(nil)
	_ plugin.OnEntitlementGranted = (*MetricsExtension)(nil)
	_ plugin.OnEntitlementRevoked = (*MetricsExtension)(nil)
	_ plugin.OnAdmissionDenied    = (*MetricsExtension)(nil)
	_ plugin.OnOverflowDetected   = (*MetricsExtension)(nil)
	_ plugin.OnVersionConflict    = (*MetricsExtension)(nil)
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

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Reservoir plugin to automatically track pool and
// entitlement metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Pool metrics
	PoolCreated Counter
	PoolUpdated Counter
	PoolDeleted Counter

	// Entitlement metrics
	EntitlementGranted Counter
	EntitlementRevoked Counter
	GrantedQuantity    Histogram
	RevokedQuantity    Histogram

	// Admission metrics
	AdmissionDenied  Counter
	OverflowDetected Counter
	VersionConflicts Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Pool metrics
		PoolCreated: factory.Counter("reservoir.pool.created"),
		PoolUpdated: factory.Counter("reservoir.pool.updated"),
		PoolDeleted: factory.Counter("reservoir.pool.deleted"),

		// Entitlement metrics
		EntitlementGranted: factory.Counter("reservoir.entitlement.granted"),
		EntitlementRevoked: factory.Counter("reservoir.entitlement.revoked"),
		GrantedQuantity:    factory.Histogram("reservoir.entitlement.granted.quantity"),
		RevokedQuantity:    factory.Histogram("reservoir.entitlement.revoked.quantity"),

		// Admission metrics
		AdmissionDenied:  factory.Counter("reservoir.admission.denied"),
		OverflowDetected: factory.Counter("reservoir.pool.overflow.detected"),
		VersionConflicts: factory.Counter("reservoir.pool.version.conflicts"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Pool lifecycle hooks
// ──────────────────────────────────────────────────

// OnPoolCreated implements plugin.OnPoolCreated.
func (m *MetricsExtension) OnPoolCreated(_ context.Context, _ *pool.Pool) error {
	m.PoolCreated.Inc()
	return nil
}

// OnPoolUpdated implements plugin.OnPoolUpdated.
func (m *MetricsExtension) OnPoolUpdated(_ context.Context, _ *pool.Pool) error {
	m.PoolUpdated.Inc()
	return nil
}

// OnPoolDeleted implements plugin.OnPoolDeleted.
func (m *MetricsExtension) OnPoolDeleted(_ context.Context, _ string) error {
	m.PoolDeleted.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Accounting hooks
// ──────────────────────────────────────────────────

// OnEntitlementGranted implements plugin.OnEntitlementGranted.
func (m *MetricsExtension) OnEntitlementGranted(_ context.Context, ent *entitlement.Entitlement) error {
	m.EntitlementGranted.Inc()
	m.GrantedQuantity.Observe(float64(ent.Quantity))
	return nil
}

// OnEntitlementRevoked implements plugin.OnEntitlementRevoked.
func (m *MetricsExtension) OnEntitlementRevoked(_ context.Context, ent *entitlement.Entitlement) error {
	m.EntitlementRevoked.Inc()
	m.RevokedQuantity.Observe(float64(ent.Quantity))
	return nil
}

// OnAdmissionDenied implements plugin.OnAdmissionDenied.
func (m *MetricsExtension) OnAdmissionDenied(_ context.Context, _ *pool.Pool, _, _ int64, _ string) error {
	m.AdmissionDenied.Inc()
	return nil
}

// OnOverflowDetected implements plugin.OnOverflowDetected.
func (m *MetricsExtension) OnOverflowDetected(_ context.Context, _ *pool.Pool, _ int64) error {
	m.OverflowDetected.Inc()
	return nil
}

// OnVersionConflict implements plugin.OnVersionConflict.
func (m *MetricsExtension) OnVersionConflict(_ context.Context, _ string) error {
	m.VersionConflicts.Inc()
	return nil
}
