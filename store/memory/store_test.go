package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/reservoir"
	"github.com/xraph/reservoir/consumer"
	"github.com/xraph/reservoir/entitlement"
	"github.com/xraph/reservoir/id"
	"github.com/xraph/reservoir/pool"
	"github.com/xraph/reservoir/product"
	"github.com/xraph/reservoir/store/memory"
)

func testPool(ownerID id.OwnerID) *pool.Pool {
	start := time.Now().UTC().Add(-time.Hour)
	return pool.New(ownerID, "SKU-100", 10, start, start.Add(24*time.Hour))
}

func TestPoolVersioning(t *testing.T) {
	ctx := context.Background()
	ownerID := id.NewOwnerID()

	t.Run("update requires matching version", func(t *testing.T) {
		s := memory.New()
		p := testPool(ownerID)
		if err := s.CreatePool(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}

		p.Quantity = 20
		if err := s.UpdatePool(ctx, p, 0); err != nil {
			t.Fatalf("update: %v", err)
		}

		got, err := s.GetPool(ctx, p.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Version != 1 {
			t.Errorf("version = %d, want 1", got.Version)
		}

		if err := s.UpdatePool(ctx, p, 0); !reservoir.IsConflict(err) {
			t.Errorf("stale update err = %v, want conflict", err)
		}
	})

	t.Run("grant is conditional on pool version", func(t *testing.T) {
		s := memory.New()
		p := testPool(ownerID)
		if err := s.CreatePool(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}

		consumerID := id.NewConsumerID()
		ent := entitlement.New(p.ID, consumerID, ownerID, 2)
		if err := s.GrantEntitlement(ctx, ent, 0); err != nil {
			t.Fatalf("grant: %v", err)
		}

		// The grant advanced the version; the same observed version
		// no longer admits.
		stale := entitlement.New(p.ID, consumerID, ownerID, 2)
		if err := s.GrantEntitlement(ctx, stale, 0); !reservoir.IsConflict(err) {
			t.Errorf("stale grant err = %v, want conflict", err)
		}
		if err := s.GrantEntitlement(ctx, stale, 1); err != nil {
			t.Errorf("fresh grant: %v", err)
		}
	})

	t.Run("grant on missing pool", func(t *testing.T) {
		s := memory.New()
		ent := entitlement.New(id.NewPoolID(), id.NewConsumerID(), ownerID, 1)
		if err := s.GrantEntitlement(ctx, ent, 0); !reservoir.IsNotFound(err) {
			t.Errorf("err = %v, want not-found", err)
		}
	})

	t.Run("revoke bumps pool version", func(t *testing.T) {
		s := memory.New()
		p := testPool(ownerID)
		if err := s.CreatePool(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}
		ent := entitlement.New(p.ID, id.NewConsumerID(), ownerID, 1)
		if err := s.GrantEntitlement(ctx, ent, 0); err != nil {
			t.Fatalf("grant: %v", err)
		}

		if _, err := s.RevokeEntitlement(ctx, ent.ID); err != nil {
			t.Fatalf("revoke: %v", err)
		}
		got, err := s.GetPool(ctx, p.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Version != 2 {
			t.Errorf("version = %d, want 2 (grant + revoke)", got.Version)
		}
	})

	t.Run("mark bumps pool version", func(t *testing.T) {
		s := memory.New()
		p := testPool(ownerID)
		if err := s.CreatePool(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := s.MarkPoolForDelete(ctx, p.ID); err != nil {
			t.Fatalf("mark: %v", err)
		}
		got, err := s.GetPool(ctx, p.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !got.MarkedForDelete || got.Version != 1 {
			t.Errorf("marked/version = %v/%d, want true/1", got.MarkedForDelete, got.Version)
		}
	})

	t.Run("reads are detached", func(t *testing.T) {
		s := memory.New()
		p := testPool(ownerID)
		if err := s.CreatePool(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}

		got, err := s.GetPool(ctx, p.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		got.Quantity = 999
		got.SetAttribute("leak", "oops")
		got.AddProvidedProduct("SKU-LEAK", "")

		again, err := s.GetPool(ctx, p.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if again.Quantity != 10 {
			t.Errorf("quantity = %d, mutation of a read leaked into the store", again.Quantity)
		}
		if again.HasAttribute("leak") {
			t.Error("attribute mutation of a read leaked into the store")
		}
		if again.Provides("SKU-LEAK") {
			t.Error("provided-product mutation of a read leaked into the store")
		}
	})

	t.Run("losing write leaves no trace", func(t *testing.T) {
		s := memory.New()
		p := testPool(ownerID)
		if err := s.CreatePool(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}

		stale, err := s.GetPool(ctx, p.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}

		// Another writer advances the version.
		if err := s.MarkPoolForDelete(ctx, p.ID); err != nil {
			t.Fatalf("mark: %v", err)
		}

		stale.SetAttribute("leak", "oops")
		if err := s.UpdatePool(ctx, stale, stale.Version); !reservoir.IsConflict(err) {
			t.Fatalf("stale update err = %v, want conflict", err)
		}

		got, err := s.GetPool(ctx, p.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.HasAttribute("leak") {
			t.Error("attribute from a conflicted write is visible in the store")
		}
	})

	t.Run("entitlement records are detached", func(t *testing.T) {
		s := memory.New()
		p := testPool(ownerID)
		if err := s.CreatePool(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}
		ent := entitlement.New(p.ID, id.NewConsumerID(), ownerID, 2)
		if err := s.GrantEntitlement(ctx, ent, 0); err != nil {
			t.Fatalf("grant: %v", err)
		}

		// Neither the caller's record nor a read one is the stored one.
		ent.Quantity = 500
		got, err := s.GetEntitlement(ctx, ent.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Quantity != 2 {
			t.Errorf("quantity = %d, granter's mutation leaked into the store", got.Quantity)
		}
		got.Quantity = 900

		consumed, err := s.SumConsumed(ctx, p.ID)
		if err != nil {
			t.Fatalf("sum consumed: %v", err)
		}
		if consumed != 2 {
			t.Errorf("consumed = %d, want 2", consumed)
		}
	})
}

func TestAggregates(t *testing.T) {
	ctx := context.Background()
	ownerID := id.NewOwnerID()
	s := memory.New()

	p := testPool(ownerID)
	if err := s.CreatePool(ctx, p); err != nil {
		t.Fatalf("create pool: %v", err)
	}

	sys := consumer.New(ownerID, "web-01", consumer.TypeSystem)
	dist := consumer.New(ownerID, "satellite", consumer.TypeDistributor)
	for _, c := range []*consumer.Consumer{sys, dist} {
		if err := s.CreateConsumer(ctx, c); err != nil {
			t.Fatalf("create consumer: %v", err)
		}
	}

	version := int64(0)
	grant := func(c *consumer.Consumer, qty int64, stackID string) {
		t.Helper()
		ent := entitlement.New(p.ID, c.ID, ownerID, qty)
		ent.StackID = stackID
		if err := s.GrantEntitlement(ctx, ent, version); err != nil {
			t.Fatalf("grant: %v", err)
		}
		version++
	}

	grant(sys, 3, "stack-1")
	grant(sys, 4, "stack-1")
	grant(dist, 5, "")

	consumed, err := s.SumConsumed(ctx, p.ID)
	if err != nil {
		t.Fatalf("sum consumed: %v", err)
	}
	if consumed != 12 {
		t.Errorf("consumed = %d, want 12", consumed)
	}

	exported, err := s.SumExported(ctx, p.ID)
	if err != nil {
		t.Fatalf("sum exported: %v", err)
	}
	if exported != 5 {
		t.Errorf("exported = %d, want 5", exported)
	}

	count, err := s.CountStack(ctx, sys.ID, "stack-1")
	if err != nil {
		t.Fatalf("count stack: %v", err)
	}
	if count != 2 {
		t.Errorf("stack count = %d, want 2", count)
	}

	// Empty stack ids never count as a stack.
	count, err = s.CountStack(ctx, dist.ID, "")
	if err != nil {
		t.Fatalf("count stack: %v", err)
	}
	if count != 0 {
		t.Errorf("empty stack count = %d, want 0", count)
	}

	// Aggregates for an unknown pool read as zero, not an error.
	consumed, err = s.SumConsumed(ctx, id.NewPoolID())
	if err != nil {
		t.Fatalf("sum consumed: %v", err)
	}
	if consumed != 0 {
		t.Errorf("consumed = %d, want 0", consumed)
	}
}

func TestSourceLookups(t *testing.T) {
	ctx := context.Background()
	ownerID := id.NewOwnerID()
	s := memory.New()

	entID := id.NewEntitlementID()
	consumerID := id.NewConsumerID()

	byEnt := testPool(ownerID)
	byEnt.SetSourceEntitlement(entID)
	byStack := testPool(ownerID)
	byStack.SetSourceStack(&pool.SourceStack{SourceConsumerID: consumerID, StackID: "stack-1"})
	bySub := testPool(ownerID)
	bySub.SetSourceSubscription(&pool.SourceSubscription{SubscriptionID: "sub-1", SubKey: pool.PrimarySubKey})

	for _, p := range []*pool.Pool{byEnt, byStack, bySub} {
		if err := s.CreatePool(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := s.GetPoolBySourceEntitlement(ctx, entID)
	if err != nil {
		t.Fatalf("by entitlement: %v", err)
	}
	if got.ID != byEnt.ID {
		t.Errorf("by entitlement = %v, want %v", got.ID, byEnt.ID)
	}

	got, err = s.GetPoolBySourceStack(ctx, consumerID, "stack-1")
	if err != nil {
		t.Fatalf("by stack: %v", err)
	}
	if got.ID != byStack.ID {
		t.Errorf("by stack = %v, want %v", got.ID, byStack.ID)
	}

	got, err = s.GetPoolBySubscription(ctx, "sub-1", pool.PrimarySubKey)
	if err != nil {
		t.Fatalf("by subscription: %v", err)
	}
	if got.ID != bySub.ID {
		t.Errorf("by subscription = %v, want %v", got.ID, bySub.ID)
	}

	if _, err := s.GetPoolBySourceStack(ctx, consumerID, "stack-2"); !reservoir.IsNotFound(err) {
		t.Errorf("unknown stack err = %v, want not-found", err)
	}
	if _, err := s.GetPoolBySubscription(ctx, "sub-1", "derived"); !reservoir.IsNotFound(err) {
		t.Errorf("unknown sub-key err = %v, want not-found", err)
	}
}

func TestProductScoping(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	ownerA := id.NewOwnerID()
	ownerB := id.NewOwnerID()

	// The same external product id under two owners is two records.
	if err := s.UpsertProduct(ctx, product.New(ownerA, "SKU-1", "A's product")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.UpsertProduct(ctx, product.New(ownerB, "SKU-1", "B's product")); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.GetProduct(ctx, ownerA, "SKU-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "A's product" {
		t.Errorf("name = %q, want A's product", got.Name)
	}

	if err := s.DeleteProduct(ctx, ownerA, "SKU-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetProduct(ctx, ownerA, "SKU-1"); !reservoir.IsNotFound(err) {
		t.Errorf("deleted product err = %v, want not-found", err)
	}
	if _, err := s.GetProduct(ctx, ownerB, "SKU-1"); err != nil {
		t.Errorf("B's product should survive A's delete: %v", err)
	}
}

func TestListPoolsPaging(t *testing.T) {
	ctx := context.Background()
	ownerID := id.NewOwnerID()
	s := memory.New()

	for i := 0; i < 5; i++ {
		if err := s.CreatePool(ctx, testPool(ownerID)); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	page, err := s.ListPools(ctx, ownerID, pool.ListOpts{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 {
		t.Errorf("page len = %d, want 2", len(page))
	}

	rest, err := s.ListPools(ctx, ownerID, pool.ListOpts{Offset: 4, Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rest) != 1 {
		t.Errorf("rest len = %d, want 1", len(rest))
	}

	empty, err := s.ListPools(ctx, ownerID, pool.ListOpts{Offset: 99})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("past-end len = %d, want 0", len(empty))
	}
}
