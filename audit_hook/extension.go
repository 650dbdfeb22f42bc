// Package audithook bridges Reservoir lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not import any
// particular audit system directly. Callers inject a RecorderFunc adapter
// that bridges to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/reservoir/entitlement"
	"github.com/xraph/reservoir/plugin"
	"github.com/xraph/reservoir/pool"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin               = (*Extension)(nil)
	_ plugin.OnPoolCreated        = (*Extension)(nil)
	_ plugin.OnPoolUpdated        = (*Extension)(nil)
	_ plugin.OnPoolDeleted        = (*Extension)(nil)
	_ plugin.OnEntitlementGranted = (*Extension)(nil)
	_ plugin.OnEntitlementRevoked = (*Extension)(nil)
	_ plugin.OnAdmissionDenied    = (*Extension)(nil)
	_ plugin.OnOverflowDetected   = (*Extension)(nil)
	_ plugin.OnVersionConflict    = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// It is defined locally so that the audit_hook package does not depend on a
// concrete audit system — callers inject one at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Reservoir lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Pool lifecycle hooks
// ──────────────────────────────────────────────────

// OnPoolCreated implements plugin.OnPoolCreated.
func (e *Extension) OnPoolCreated(ctx context.Context, p *pool.Pool) error {
	return e.record(ctx, ActionPoolCreated, SeverityInfo, OutcomeSuccess,
		ResourcePool, p.ID.String(), CategoryPool, nil,
		"owner_id", p.OwnerID.String(),
		"product_id", p.ProductID,
		"quantity", p.Quantity,
	)
}

// OnPoolUpdated implements plugin.OnPoolUpdated.
func (e *Extension) OnPoolUpdated(ctx context.Context, p *pool.Pool) error {
	return e.record(ctx, ActionPoolUpdated, SeverityInfo, OutcomeSuccess,
		ResourcePool, p.ID.String(), CategoryPool, nil,
		"owner_id", p.OwnerID.String(),
		"version", p.Version,
	)
}

// OnPoolDeleted implements plugin.OnPoolDeleted.
func (e *Extension) OnPoolDeleted(ctx context.Context, poolID string) error {
	return e.record(ctx, ActionPoolDeleted, SeverityInfo, OutcomeSuccess,
		ResourcePool, poolID, CategoryPool, nil,
		"pool_id", poolID,
	)
}

// ──────────────────────────────────────────────────
// Entitlement lifecycle hooks
// ──────────────────────────────────────────────────

// OnEntitlementGranted implements plugin.OnEntitlementGranted.
func (e *Extension) OnEntitlementGranted(ctx context.Context, ent *entitlement.Entitlement) error {
	return e.record(ctx, ActionEntitlementGranted, SeverityInfo, OutcomeSuccess,
		ResourceEntitlement, ent.ID.String(), CategoryAccess, nil,
		"pool_id", ent.PoolID.String(),
		"consumer_id", ent.ConsumerID.String(),
		"quantity", ent.Quantity,
	)
}

// OnEntitlementRevoked implements plugin.OnEntitlementRevoked.
func (e *Extension) OnEntitlementRevoked(ctx context.Context, ent *entitlement.Entitlement) error {
	return e.record(ctx, ActionEntitlementRevoked, SeverityInfo, OutcomeSuccess,
		ResourceEntitlement, ent.ID.String(), CategoryAccess, nil,
		"pool_id", ent.PoolID.String(),
		"consumer_id", ent.ConsumerID.String(),
		"quantity", ent.Quantity,
	)
}

// ──────────────────────────────────────────────────
// Admission hooks
// ──────────────────────────────────────────────────

// OnAdmissionDenied implements plugin.OnAdmissionDenied.
func (e *Extension) OnAdmissionDenied(ctx context.Context, p *pool.Pool, consumed, requested int64, reason string) error {
	return e.record(ctx, ActionAdmissionDenied, SeverityWarning, OutcomeFailure,
		ResourcePool, p.ID.String(), CategoryAdmission, nil,
		"consumed", consumed,
		"requested", requested,
		"quantity", p.Quantity,
		"deny_reason", reason,
	)
}

// OnOverflowDetected implements plugin.OnOverflowDetected.
func (e *Extension) OnOverflowDetected(ctx context.Context, p *pool.Pool, consumed int64) error {
	return e.record(ctx, ActionOverflowDetected, SeverityWarning, OutcomeFailure,
		ResourcePool, p.ID.String(), CategoryAdmission, nil,
		"consumed", consumed,
		"quantity", p.Quantity,
	)
}

// OnVersionConflict implements plugin.OnVersionConflict.
func (e *Extension) OnVersionConflict(ctx context.Context, poolID string) error {
	return e.record(ctx, ActionVersionConflict, SeverityInfo, OutcomeFailure,
		ResourcePool, poolID, CategoryAdmission, nil,
		"pool_id", poolID,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
