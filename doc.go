// Package reservoir provides an embeddable entitlement-pool accounting
// engine for Go applications.
//
// Reservoir is designed as a library, not a service. Import it directly
// into your subscription-management application. It provides:
//
//   - Bounded and unlimited entitlement pools with inclusive validity windows
//   - Consumed/exported aggregates recomputed from entitlement records
//   - Layered attribute resolution (pool overrides product, derived stays isolated)
//   - Pool classification from attributes and source linkage
//   - Optimistic concurrency on the admission sequence via a pool version counter
//   - Pluggable eligibility rules and lifecycle hooks
//   - Memory, SQLite, PostgreSQL and MongoDB stores
//
// # Quick Start
//
// Create an engine instance with your preferred store:
//
//	import (
//	    "github.com/xraph/reservoir"
//	    "github.com/xraph/reservoir/store/postgres"
//	)
//
//	// Initialize store
//	store, err := postgres.New(databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create engine
//	eng := reservoir.New(store)
//
//	// Start the engine (runs migrations, initializes plugins)
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
// # Core Concepts
//
// Pools are allocations of rights to a product. A quantity of -1 means
// unlimited:
//
//	p := pool.New(ownerID, "SKU-1234", 100, start, end)
//	p, err := eng.CreatePool(ctx, p)
//
// Consumers draw entitlements from pools. Admission checks capacity
// against the recomputed consumed aggregate and runs the eligibility
// evaluator before the record lands:
//
//	ent, err := eng.Grant(ctx, p.ID, consumerID, 2)
//	if errors.Is(err, reservoir.ErrVersionConflict) {
//	    // a concurrent grant landed first; re-run the admission sequence
//	}
//
// Revocation returns the removed record so callers can sweep orphaned
// derived pools:
//
//	ent, err := eng.Revoke(ctx, entID)
//	candidates, err := eng.CleanupCandidates(ctx, ent)
//
// # Accounting
//
// Consumed and exported quantities are never stored on the pool; every
// read recomputes them from entitlement records, so revocation and
// administrative resizing need no counter bookkeeping. A pool whose
// consumption exceeds its capacity is overflowing, which is a
// reportable state rather than an error: existing entitlements are
// never invalidated by a shrink.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	pool_01h2xcejqtf2nbrexx3vqjhp41  // Pool ID
//	ent_01h2xcejqtf2nbrexx3vqjhp41   // Entitlement ID
//	cons_01h455vb4pex5vsknk084sn02q  // Consumer ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package reservoir
