package reservoir_test

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/reservoir"
	"github.com/xraph/reservoir/consumer"
	"github.com/xraph/reservoir/id"
	"github.com/xraph/reservoir/pool"
	"github.com/xraph/reservoir/product"
	"github.com/xraph/reservoir/store/memory"
	"github.com/xraph/reservoir/subscription"
)

// TestDocumentationExamples verifies that all examples in the documentation compile
func TestDocumentationExamples(t *testing.T) {
	// Test Quick Start example from README
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()

		// Initialize engine
		eng := reservoir.New(store,
			reservoir.WithLogger(slog.Default()),
		)

		// Start the engine
		ctx := context.Background()
		if err := eng.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer eng.Stop()

		ownerID := id.NewOwnerID()

		// Define a product
		prod := product.New(ownerID, "SKU-1234", "Enterprise Server")
		prod.SetAttribute("support_level", "premium")
		if err := eng.UpsertProduct(ctx, prod); err != nil {
			t.Fatal(err)
		}

		// Record the backing subscription and spawn its primary pool
		sub := subscription.New(ownerID, "SKU-1234", 100,
			time.Now().Add(-time.Hour), time.Now().AddDate(1, 0, 0))
		if err := eng.CreateSubscription(ctx, sub); err != nil {
			t.Fatal(err)
		}

		p, err := eng.CreatePoolForSubscription(ctx, sub, "")
		if err != nil {
			t.Fatal(err)
		}

		// Register a consumer and draw an entitlement
		c := consumer.New(ownerID, "web-01", consumer.TypeSystem)
		if err := eng.CreateConsumer(ctx, c); err != nil {
			t.Fatal(err)
		}

		ent, err := eng.Grant(ctx, p.ID, c.ID, 2)
		if err != nil {
			t.Fatal(err)
		}

		usage, err := eng.Usage(ctx, p.ID)
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("consumed %d of %d\n", usage.Consumed, p.Quantity)

		// Revoke and sweep orphaned derived pools
		revoked, err := eng.Revoke(ctx, ent.ID)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := eng.CleanupCandidates(ctx, revoked); err != nil {
			t.Fatal(err)
		}
	})

	// Test pool predicate examples
	t.Run("PoolExamples", func(t *testing.T) {
		ownerID := id.NewOwnerID()
		p := pool.New(ownerID, "SKU-1234", -1,
			time.Now(), time.Now().AddDate(1, 0, 0))

		// Unlimited pools always have room and never overflow
		if !p.Unlimited() {
			t.Fatal("negative quantity should be unlimited")
		}
		if !p.Available(1_000_000, 500) {
			t.Fatal("unlimited pool should always admit")
		}
		if p.Overflowing(1_000_000) {
			t.Fatal("unlimited pool should never overflow")
		}

		// Merged attribute resolution: pool overrides product
		p.SetProductAttribute("sockets", "2")
		p.SetAttribute("sockets", "4")
		if v, _ := p.MergedAttribute("sockets"); v != "4" {
			t.Fatalf("expected pool override, got %q", v)
		}
	})

	// Test sentinel error matching
	t.Run("ErrorExamples", func(t *testing.T) {
		err := reservoir.ErrVersionConflict
		if !errors.Is(err, reservoir.ErrVersionConflict) {
			t.Fatal("sentinel should match itself")
		}
		if !reservoir.IsConflict(err) {
			t.Fatal("version conflict is a conflict")
		}
	})
}
