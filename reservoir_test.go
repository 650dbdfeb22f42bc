package reservoir_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/reservoir"
	"github.com/xraph/reservoir/consumer"
	"github.com/xraph/reservoir/entitlement"
	"github.com/xraph/reservoir/id"
	"github.com/xraph/reservoir/pool"
	"github.com/xraph/reservoir/product"
	"github.com/xraph/reservoir/rules"
	"github.com/xraph/reservoir/store/memory"
	"github.com/xraph/reservoir/subscription"
)

func newTestEngine(t *testing.T, opts ...reservoir.Option) *reservoir.Engine {
	t.Helper()
	eng := reservoir.New(memory.New(), opts...)
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	return eng
}

func mustCreatePool(t *testing.T, eng *reservoir.Engine, p *pool.Pool) *pool.Pool {
	t.Helper()
	created, err := eng.CreatePool(context.Background(), p)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	return created
}

func mustCreateConsumer(t *testing.T, eng *reservoir.Engine, ownerID id.OwnerID, name string, typ consumer.Type) *consumer.Consumer {
	t.Helper()
	c := consumer.New(ownerID, name, typ)
	if err := eng.CreateConsumer(context.Background(), c); err != nil {
		t.Fatalf("create consumer: %v", err)
	}
	return c
}

func window() (time.Time, time.Time) {
	start := time.Now().UTC().Add(-time.Hour)
	return start, start.Add(365 * 24 * time.Hour)
}

func TestCreatePool(t *testing.T) {
	ctx := context.Background()
	ownerID := id.NewOwnerID()
	start, end := window()

	t.Run("basic", func(t *testing.T) {
		eng := newTestEngine(t)

		p := mustCreatePool(t, eng, pool.New(ownerID, "SKU-100", 10, start, end))

		if p.Version != 0 {
			t.Errorf("version = %d, want 0", p.Version)
		}
		if p.Type != pool.TypeNormal {
			t.Errorf("type = %q, want %q", p.Type, pool.TypeNormal)
		}

		got, err := eng.GetPool(ctx, p.ID)
		if err != nil {
			t.Fatalf("get pool: %v", err)
		}
		if got.ProductID != "SKU-100" {
			t.Errorf("product id = %q, want SKU-100", got.ProductID)
		}
	})

	t.Run("snapshots product attributes", func(t *testing.T) {
		eng := newTestEngine(t)

		prod := product.New(ownerID, "SKU-200", "Premium")
		prod.SetAttribute("sockets", "4")
		prod.SetAttribute(pool.AttrStackingID, "prem-stack")
		if err := eng.UpsertProduct(ctx, prod); err != nil {
			t.Fatalf("upsert product: %v", err)
		}

		p := mustCreatePool(t, eng, pool.New(ownerID, "SKU-200", 10, start, end))

		if v, _ := p.ProductAttribute("sockets"); v != "4" {
			t.Errorf("sockets = %q, want 4", v)
		}
		if p.ProductName != "Premium" {
			t.Errorf("product name = %q, want Premium", p.ProductName)
		}
		if !p.Stacked() {
			t.Error("pool should stack")
		}

		// Snapshot is frozen: later product edits do not propagate.
		prod.SetAttribute("sockets", "8")
		if err := eng.UpsertProduct(ctx, prod); err != nil {
			t.Fatalf("upsert product: %v", err)
		}
		got, err := eng.GetPool(ctx, p.ID)
		if err != nil {
			t.Fatalf("get pool: %v", err)
		}
		if v, _ := got.ProductAttribute("sockets"); v != "4" {
			t.Errorf("sockets after product edit = %q, want 4", v)
		}
	})

	t.Run("validation", func(t *testing.T) {
		eng := newTestEngine(t)

		cases := []struct {
			name   string
			mutate func(*pool.Pool)
		}{
			{"missing owner", func(p *pool.Pool) { p.OwnerID = id.OwnerID{} }},
			{"missing product", func(p *pool.Pool) { p.ProductID = "" }},
			{"end before start", func(p *pool.Pool) { p.EndDate = p.StartDate.Add(-time.Hour) }},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				p := pool.New(ownerID, "SKU-100", 10, start, end)
				tc.mutate(p)
				if _, err := eng.CreatePool(ctx, p); !reservoir.IsValidation(err) {
					t.Errorf("err = %v, want validation error", err)
				}
			})
		}
	})

	t.Run("duplicate stack pool rejected", func(t *testing.T) {
		eng := newTestEngine(t)
		c := mustCreateConsumer(t, eng, ownerID, "host-01", consumer.TypeSystem)

		derived := pool.New(ownerID, "SKU-100", 5, start, end)
		derived.SetAttribute(pool.AttrDerivedPool, "true")
		derived.SetSourceStack(&pool.SourceStack{SourceConsumerID: c.ID, StackID: "stack-1"})
		mustCreatePool(t, eng, derived)

		dup := pool.New(ownerID, "SKU-100", 5, start, end)
		dup.SetAttribute(pool.AttrDerivedPool, "true")
		dup.SetSourceStack(&pool.SourceStack{SourceConsumerID: c.ID, StackID: "stack-1"})
		if _, err := eng.CreatePool(ctx, dup); !errors.Is(err, reservoir.ErrDuplicateStackPool) {
			t.Errorf("err = %v, want ErrDuplicateStackPool", err)
		}
	})

	t.Run("duplicate subscription pool rejected", func(t *testing.T) {
		eng := newTestEngine(t)

		// Direct creation with subscription linkage is held to the same
		// one-pool-per-(subscription, sub-key) rule as
		// CreatePoolForSubscription.
		first := pool.New(ownerID, "SKU-100", 5, start, end)
		first.SetSourceSubscription(&pool.SourceSubscription{SubscriptionID: "sub-1", SubKey: pool.PrimarySubKey})
		mustCreatePool(t, eng, first)

		dup := pool.New(ownerID, "SKU-100", 5, start, end)
		dup.SetSourceSubscription(&pool.SourceSubscription{SubscriptionID: "sub-1", SubKey: pool.PrimarySubKey})
		if _, err := eng.CreatePool(ctx, dup); !errors.Is(err, reservoir.ErrDuplicateSubPool) {
			t.Errorf("err = %v, want ErrDuplicateSubPool", err)
		}

		// A different sub-key under the same subscription is allowed.
		other := pool.New(ownerID, "SKU-100", 5, start, end)
		other.SetSourceSubscription(&pool.SourceSubscription{SubscriptionID: "sub-1", SubKey: "derived"})
		mustCreatePool(t, eng, other)
	})
}

func TestCreatePoolForSubscription(t *testing.T) {
	ctx := context.Background()
	ownerID := id.NewOwnerID()
	start, end := window()
	eng := newTestEngine(t)

	sub := subscription.New(ownerID, "SKU-100", 25, start, end)
	sub.ProductName = "Premium"
	sub.ContractNumber = "C-77"
	sub.ProvidedProductIDs = []string{"SKU-101", "SKU-102"}
	if err := eng.CreateSubscription(ctx, sub); err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	p, err := eng.CreatePoolForSubscription(ctx, sub, "")
	if err != nil {
		t.Fatalf("create pool for subscription: %v", err)
	}
	if p.SubscriptionID() != sub.ID.String() {
		t.Errorf("subscription id = %q, want %q", p.SubscriptionID(), sub.ID)
	}
	if p.SubscriptionSubKey() != pool.PrimarySubKey {
		t.Errorf("sub key = %q, want %q", p.SubscriptionSubKey(), pool.PrimarySubKey)
	}
	if p.ContractNumber != "C-77" {
		t.Errorf("contract = %q, want C-77", p.ContractNumber)
	}
	if !p.Provides("SKU-101") || !p.Provides("SKU-102") {
		t.Error("provided products not carried over")
	}

	if _, err := eng.CreatePoolForSubscription(ctx, sub, ""); !errors.Is(err, reservoir.ErrDuplicateSubPool) {
		t.Errorf("duplicate err = %v, want ErrDuplicateSubPool", err)
	}

	// A different sub-key is a distinct pool.
	bonus, err := eng.CreatePoolForSubscription(ctx, sub, "derived")
	if err != nil {
		t.Fatalf("create derived-key pool: %v", err)
	}
	if bonus.SubscriptionSubKey() != "derived" {
		t.Errorf("sub key = %q, want derived", bonus.SubscriptionSubKey())
	}
}

func TestGrant(t *testing.T) {
	ctx := context.Background()
	ownerID := id.NewOwnerID()
	start, end := window()

	t.Run("happy path", func(t *testing.T) {
		eng := newTestEngine(t)
		p := mustCreatePool(t, eng, pool.New(ownerID, "SKU-100", 10, start, end))
		c := mustCreateConsumer(t, eng, ownerID, "web-01", consumer.TypeSystem)

		ent, err := eng.Grant(ctx, p.ID, c.ID, 3)
		if err != nil {
			t.Fatalf("grant: %v", err)
		}
		if ent.Quantity != 3 {
			t.Errorf("quantity = %d, want 3", ent.Quantity)
		}
		if ent.PoolID != p.ID || ent.ConsumerID != c.ID {
			t.Error("entitlement linkage wrong")
		}

		consumed, err := eng.Consumed(ctx, p.ID)
		if err != nil {
			t.Fatalf("consumed: %v", err)
		}
		if consumed != 3 {
			t.Errorf("consumed = %d, want 3", consumed)
		}
	})

	t.Run("denormalizes stack id", func(t *testing.T) {
		eng := newTestEngine(t)

		prod := product.New(ownerID, "SKU-200", "Stacked")
		prod.SetAttribute(pool.AttrStackingID, "stack-9")
		if err := eng.UpsertProduct(ctx, prod); err != nil {
			t.Fatalf("upsert product: %v", err)
		}
		p := mustCreatePool(t, eng, pool.New(ownerID, "SKU-200", 10, start, end))
		c := mustCreateConsumer(t, eng, ownerID, "web-01", consumer.TypeSystem)

		ent, err := eng.Grant(ctx, p.ID, c.ID, 1)
		if err != nil {
			t.Fatalf("grant: %v", err)
		}
		if ent.StackID != "stack-9" {
			t.Errorf("stack id = %q, want stack-9", ent.StackID)
		}
	})

	t.Run("insufficient units", func(t *testing.T) {
		eng := newTestEngine(t)
		p := mustCreatePool(t, eng, pool.New(ownerID, "SKU-100", 5, start, end))
		c := mustCreateConsumer(t, eng, ownerID, "web-01", consumer.TypeSystem)

		if _, err := eng.Grant(ctx, p.ID, c.ID, 4); err != nil {
			t.Fatalf("grant: %v", err)
		}
		if _, err := eng.Grant(ctx, p.ID, c.ID, 2); !errors.Is(err, reservoir.ErrInsufficientUnits) {
			t.Errorf("err = %v, want ErrInsufficientUnits", err)
		}
		// Exact fit is still allowed.
		if _, err := eng.Grant(ctx, p.ID, c.ID, 1); err != nil {
			t.Errorf("exact-fit grant: %v", err)
		}
	})

	t.Run("unlimited pool", func(t *testing.T) {
		eng := newTestEngine(t)
		p := mustCreatePool(t, eng, pool.New(ownerID, "SKU-100", -1, start, end))
		c := mustCreateConsumer(t, eng, ownerID, "web-01", consumer.TypeSystem)

		if _, err := eng.Grant(ctx, p.ID, c.ID, 1_000_000); err != nil {
			t.Errorf("grant on unlimited pool: %v", err)
		}
	})

	t.Run("marked pool rejected", func(t *testing.T) {
		eng := newTestEngine(t)
		p := mustCreatePool(t, eng, pool.New(ownerID, "SKU-100", 10, start, end))
		c := mustCreateConsumer(t, eng, ownerID, "web-01", consumer.TypeSystem)

		if err := eng.MarkPoolForDelete(ctx, p.ID); err != nil {
			t.Fatalf("mark pool: %v", err)
		}
		if _, err := eng.Grant(ctx, p.ID, c.ID, 1); !errors.Is(err, reservoir.ErrPoolMarkedDeleted) {
			t.Errorf("err = %v, want ErrPoolMarkedDeleted", err)
		}
	})

	t.Run("expired pool rejected", func(t *testing.T) {
		future := end.Add(24 * time.Hour)
		eng := newTestEngine(t, reservoir.WithClock(func() time.Time { return future }))
		p := mustCreatePool(t, eng, pool.New(ownerID, "SKU-100", 10, start, end))
		c := mustCreateConsumer(t, eng, ownerID, "web-01", consumer.TypeSystem)

		if _, err := eng.Grant(ctx, p.ID, c.ID, 1); !errors.Is(err, reservoir.ErrPoolExpired) {
			t.Errorf("err = %v, want ErrPoolExpired", err)
		}
	})

	t.Run("rules denial", func(t *testing.T) {
		deny := rules.EvaluatorFunc(func(_ context.Context, _ *pool.Pool, _ *consumer.Consumer, _ int64) (*rules.Decision, error) {
			return &rules.Decision{Allowed: false, Reason: "arch mismatch"}, nil
		})
		eng := newTestEngine(t, reservoir.WithEvaluator(deny))
		p := mustCreatePool(t, eng, pool.New(ownerID, "SKU-100", 10, start, end))
		c := mustCreateConsumer(t, eng, ownerID, "web-01", consumer.TypeSystem)

		_, err := eng.Grant(ctx, p.ID, c.ID, 1)
		if !errors.Is(err, reservoir.ErrRulesDenied) {
			t.Fatalf("err = %v, want ErrRulesDenied", err)
		}

		// A denied grant consumes nothing.
		consumed, err := eng.Consumed(ctx, p.ID)
		if err != nil {
			t.Fatalf("consumed: %v", err)
		}
		if consumed != 0 {
			t.Errorf("consumed = %d, want 0", consumed)
		}
	})

	t.Run("invalid quantity", func(t *testing.T) {
		eng := newTestEngine(t)
		p := mustCreatePool(t, eng, pool.New(ownerID, "SKU-100", 10, start, end))
		c := mustCreateConsumer(t, eng, ownerID, "web-01", consumer.TypeSystem)

		for _, q := range []int64{0, -1} {
			if _, err := eng.Grant(ctx, p.ID, c.ID, q); !errors.Is(err, reservoir.ErrInvalidInput) {
				t.Errorf("quantity %d: err = %v, want ErrInvalidInput", q, err)
			}
		}
	})

	t.Run("unknown consumer", func(t *testing.T) {
		eng := newTestEngine(t)
		p := mustCreatePool(t, eng, pool.New(ownerID, "SKU-100", 10, start, end))

		if _, err := eng.Grant(ctx, p.ID, id.NewConsumerID(), 1); !reservoir.IsNotFound(err) {
			t.Errorf("err = %v, want not-found", err)
		}
	})
}

func TestUsage(t *testing.T) {
	ctx := context.Background()
	ownerID := id.NewOwnerID()
	start, end := window()
	eng := newTestEngine(t)

	p := mustCreatePool(t, eng, pool.New(ownerID, "SKU-100", 100, start, end))
	sys := mustCreateConsumer(t, eng, ownerID, "web-01", consumer.TypeSystem)
	dist := mustCreateConsumer(t, eng, ownerID, "satellite", consumer.TypeDistributor)

	if _, err := eng.Grant(ctx, p.ID, sys.ID, 7); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := eng.Grant(ctx, p.ID, dist.ID, 5); err != nil {
		t.Fatalf("grant: %v", err)
	}

	u, err := eng.Usage(ctx, p.ID)
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if u.Consumed != 12 {
		t.Errorf("consumed = %d, want 12", u.Consumed)
	}
	if u.Exported != 5 {
		t.Errorf("exported = %d, want 5", u.Exported)
	}
}

func TestEntitlementsAvailable(t *testing.T) {
	ctx := context.Background()
	ownerID := id.NewOwnerID()
	start, end := window()
	eng := newTestEngine(t)

	p := mustCreatePool(t, eng, pool.New(ownerID, "SKU-100", 10, start, end))
	c := mustCreateConsumer(t, eng, ownerID, "web-01", consumer.TypeSystem)
	if _, err := eng.Grant(ctx, p.ID, c.ID, 8); err != nil {
		t.Fatalf("grant: %v", err)
	}

	cases := []struct {
		requested int64
		want      bool
	}{
		{1, true},
		{2, true},
		{3, false},
		{0, true}, // zero requested fits anything not already overflowing
	}
	for _, tc := range cases {
		got, err := eng.EntitlementsAvailable(ctx, p.ID, tc.requested)
		if err != nil {
			t.Fatalf("available(%d): %v", tc.requested, err)
		}
		if got != tc.want {
			t.Errorf("available(%d) = %v, want %v", tc.requested, got, tc.want)
		}
	}
}

func TestIsOverflowing(t *testing.T) {
	ctx := context.Background()
	ownerID := id.NewOwnerID()
	start, end := window()
	eng := newTestEngine(t)

	p := mustCreatePool(t, eng, pool.New(ownerID, "SKU-100", 10, start, end))
	c := mustCreateConsumer(t, eng, ownerID, "web-01", consumer.TypeSystem)
	if _, err := eng.Grant(ctx, p.ID, c.ID, 10); err != nil {
		t.Fatalf("grant: %v", err)
	}

	over, err := eng.IsOverflowing(ctx, p.ID)
	if err != nil {
		t.Fatalf("overflowing: %v", err)
	}
	if over {
		t.Error("fully consumed pool should not be overflowing")
	}

	// Shrink capacity below consumption: existing entitlements survive
	// and the pool becomes overflowing. Re-read first; the grant
	// advanced the version.
	p, err = eng.GetPool(ctx, p.ID)
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	p.Quantity = 5
	if _, err := eng.UpdatePool(ctx, p); err != nil {
		t.Fatalf("update pool: %v", err)
	}
	over, err = eng.IsOverflowing(ctx, p.ID)
	if err != nil {
		t.Fatalf("overflowing: %v", err)
	}
	if !over {
		t.Error("pool with consumed > quantity should be overflowing")
	}
}

func TestUpdatePool(t *testing.T) {
	ctx := context.Background()
	ownerID := id.NewOwnerID()
	start, end := window()

	t.Run("version advances", func(t *testing.T) {
		eng := newTestEngine(t)
		p := mustCreatePool(t, eng, pool.New(ownerID, "SKU-100", 10, start, end))

		p.Quantity = 20
		updated, err := eng.UpdatePool(ctx, p)
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if updated.Version != 1 {
			t.Errorf("version = %d, want 1", updated.Version)
		}

		got, err := eng.GetPool(ctx, p.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Quantity != 20 || got.Version != 1 {
			t.Errorf("persisted quantity/version = %d/%d, want 20/1", got.Quantity, got.Version)
		}
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		eng := newTestEngine(t)
		p := mustCreatePool(t, eng, pool.New(ownerID, "SKU-100", 10, start, end))

		stale := *p
		p.Quantity = 20
		if _, err := eng.UpdatePool(ctx, p); err != nil {
			t.Fatalf("update: %v", err)
		}

		stale.Quantity = 30
		if _, err := eng.UpdatePool(ctx, &stale); !reservoir.IsConflict(err) {
			t.Errorf("err = %v, want version conflict", err)
		}

		// The losing write left no trace.
		got, err := eng.GetPool(ctx, p.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Quantity != 20 {
			t.Errorf("quantity = %d, want 20", got.Quantity)
		}
	})

	t.Run("grant invalidates observed version", func(t *testing.T) {
		eng := newTestEngine(t)
		p := mustCreatePool(t, eng, pool.New(ownerID, "SKU-100", 10, start, end))
		c := mustCreateConsumer(t, eng, ownerID, "web-01", consumer.TypeSystem)

		if _, err := eng.Grant(ctx, p.ID, c.ID, 1); err != nil {
			t.Fatalf("grant: %v", err)
		}

		// p still carries the pre-grant version.
		p.Quantity = 20
		if _, err := eng.UpdatePool(ctx, p); !reservoir.IsConflict(err) {
			t.Errorf("err = %v, want version conflict", err)
		}
	})
}

func TestRevokeAndCleanup(t *testing.T) {
	ctx := context.Background()
	ownerID := id.NewOwnerID()
	start, end := window()

	t.Run("revoke returns record and frees units", func(t *testing.T) {
		eng := newTestEngine(t)
		p := mustCreatePool(t, eng, pool.New(ownerID, "SKU-100", 5, start, end))
		c := mustCreateConsumer(t, eng, ownerID, "web-01", consumer.TypeSystem)

		ent, err := eng.Grant(ctx, p.ID, c.ID, 5)
		if err != nil {
			t.Fatalf("grant: %v", err)
		}

		revoked, err := eng.Revoke(ctx, ent.ID)
		if err != nil {
			t.Fatalf("revoke: %v", err)
		}
		if revoked.ID != ent.ID {
			t.Errorf("revoked id = %v, want %v", revoked.ID, ent.ID)
		}

		consumed, err := eng.Consumed(ctx, p.ID)
		if err != nil {
			t.Fatalf("consumed: %v", err)
		}
		if consumed != 0 {
			t.Errorf("consumed = %d, want 0", consumed)
		}

		if _, err := eng.GetEntitlement(ctx, ent.ID); !reservoir.IsNotFound(err) {
			t.Errorf("get revoked: err = %v, want not-found", err)
		}
	})

	t.Run("entitlement-derived pool is a candidate", func(t *testing.T) {
		eng := newTestEngine(t)
		p := mustCreatePool(t, eng, pool.New(ownerID, "SKU-100", 5, start, end))
		c := mustCreateConsumer(t, eng, ownerID, "host-01", consumer.TypeSystem)

		ent, err := eng.Grant(ctx, p.ID, c.ID, 1)
		if err != nil {
			t.Fatalf("grant: %v", err)
		}

		derived := pool.New(ownerID, "SKU-100-GUEST", 10, start, end)
		derived.SetAttribute(pool.AttrDerivedPool, "true")
		derived.SetSourceEntitlement(ent.ID)
		derived = mustCreatePool(t, eng, derived)
		if derived.Type != pool.TypeEntitlementDerived {
			t.Fatalf("derived type = %q, want %q", derived.Type, pool.TypeEntitlementDerived)
		}

		revoked, err := eng.Revoke(ctx, ent.ID)
		if err != nil {
			t.Fatalf("revoke: %v", err)
		}
		candidates, err := eng.CleanupCandidates(ctx, revoked)
		if err != nil {
			t.Fatalf("cleanup candidates: %v", err)
		}
		if len(candidates) != 1 || candidates[0].ID != derived.ID {
			t.Errorf("candidates = %v, want the derived pool", candidates)
		}
	})

	t.Run("stack-derived pool surfaces when stack empties", func(t *testing.T) {
		eng := newTestEngine(t)

		prod := product.New(ownerID, "SKU-200", "Stacked")
		prod.SetAttribute(pool.AttrStackingID, "stack-1")
		if err := eng.UpsertProduct(ctx, prod); err != nil {
			t.Fatalf("upsert product: %v", err)
		}

		p := mustCreatePool(t, eng, pool.New(ownerID, "SKU-200", 10, start, end))
		c := mustCreateConsumer(t, eng, ownerID, "host-01", consumer.TypeSystem)

		first, err := eng.Grant(ctx, p.ID, c.ID, 1)
		if err != nil {
			t.Fatalf("grant: %v", err)
		}
		second, err := eng.Grant(ctx, p.ID, c.ID, 1)
		if err != nil {
			t.Fatalf("grant: %v", err)
		}

		stackPool := pool.New(ownerID, "SKU-200-GUEST", 10, start, end)
		stackPool.SetAttribute(pool.AttrDerivedPool, "true")
		stackPool.SetSourceStack(&pool.SourceStack{SourceConsumerID: c.ID, StackID: "stack-1"})
		stackPool = mustCreatePool(t, eng, stackPool)

		// One stack member remains: not a candidate yet.
		revoked, err := eng.Revoke(ctx, first.ID)
		if err != nil {
			t.Fatalf("revoke: %v", err)
		}
		candidates, err := eng.CleanupCandidates(ctx, revoked)
		if err != nil {
			t.Fatalf("cleanup candidates: %v", err)
		}
		if len(candidates) != 0 {
			t.Errorf("candidates = %d, want 0 while stack non-empty", len(candidates))
		}

		// Last member revoked: the stack pool surfaces.
		revoked, err = eng.Revoke(ctx, second.ID)
		if err != nil {
			t.Fatalf("revoke: %v", err)
		}
		candidates, err = eng.CleanupCandidates(ctx, revoked)
		if err != nil {
			t.Fatalf("cleanup candidates: %v", err)
		}
		if len(candidates) != 1 || candidates[0].ID != stackPool.ID {
			t.Errorf("candidates = %v, want the stack pool", candidates)
		}
	})
}

func TestModifies(t *testing.T) {
	ctx := context.Background()
	ownerID := id.NewOwnerID()
	start, end := window()
	eng := newTestEngine(t)

	prod := product.New(ownerID, "SKU-100", "Addon")
	prod.AddContent(product.Content{
		ID:                 "c1",
		Label:              "addon-repo",
		ModifiedProductIDs: []string{"SKU-BASE"},
	})
	if err := eng.UpsertProduct(ctx, prod); err != nil {
		t.Fatalf("upsert product: %v", err)
	}

	p := mustCreatePool(t, eng, pool.New(ownerID, "SKU-100", 10, start, end))

	got, err := eng.Modifies(ctx, p.ID, "SKU-BASE")
	if err != nil {
		t.Fatalf("modifies: %v", err)
	}
	if !got {
		t.Error("expected pool to modify SKU-BASE")
	}

	got, err = eng.Modifies(ctx, p.ID, "SKU-OTHER")
	if err != nil {
		t.Fatalf("modifies: %v", err)
	}
	if got {
		t.Error("expected pool not to modify SKU-OTHER")
	}

	// Pool whose product is not in the catalog modifies nothing.
	orphan := mustCreatePool(t, eng, pool.New(ownerID, "SKU-UNCATALOGED", 10, start, end))
	got, err = eng.Modifies(ctx, orphan.ID, "SKU-BASE")
	if err != nil {
		t.Fatalf("modifies: %v", err)
	}
	if got {
		t.Error("uncataloged product should modify nothing")
	}
}

func TestCalculateAttributes(t *testing.T) {
	ctx := context.Background()
	ownerID := id.NewOwnerID()
	start, end := window()

	calc := rules.EvaluatorFunc(func(_ context.Context, _ *pool.Pool, _ *consumer.Consumer, _ int64) (*rules.Decision, error) {
		return &rules.Decision{
			Allowed:              true,
			CalculatedAttributes: map[string]string{"suggested_quantity": "2"},
		}, nil
	})
	eng := newTestEngine(t, reservoir.WithEvaluator(calc))

	p := mustCreatePool(t, eng, pool.New(ownerID, "SKU-100", 10, start, end))
	c := mustCreateConsumer(t, eng, ownerID, "web-01", consumer.TypeSystem)

	got, err := eng.CalculateAttributes(ctx, p.ID, c.ID)
	if err != nil {
		t.Fatalf("calculate attributes: %v", err)
	}
	if got.CalculatedAttributes["suggested_quantity"] != "2" {
		t.Errorf("calculated = %v, want suggested_quantity=2", got.CalculatedAttributes)
	}

	// Nothing persisted.
	stored, err := eng.GetPool(ctx, p.ID)
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if stored.CalculatedAttributes != nil {
		t.Errorf("stored calculated attributes = %v, want nil", stored.CalculatedAttributes)
	}
}

func TestPoolMutators(t *testing.T) {
	ctx := context.Background()
	ownerID := id.NewOwnerID()
	start, end := window()
	eng := newTestEngine(t)

	p := mustCreatePool(t, eng, pool.New(ownerID, "SKU-100", 10, start, end))

	updated, err := eng.SetPoolAttribute(ctx, p.ID, pool.AttrDerivedPool, "true")
	if err != nil {
		t.Fatalf("set attribute: %v", err)
	}
	if updated.Type != pool.TypeBonus {
		t.Errorf("type = %q, want %q after derived marker", updated.Type, pool.TypeBonus)
	}

	c := mustCreateConsumer(t, eng, ownerID, "host-01", consumer.TypeSystem)
	updated, err = eng.SetPoolSourceStack(ctx, p.ID, &pool.SourceStack{SourceConsumerID: c.ID, StackID: "stack-7"})
	if err != nil {
		t.Fatalf("set source stack: %v", err)
	}
	if updated.Type != pool.TypeStackDerived {
		t.Errorf("type = %q, want %q", updated.Type, pool.TypeStackDerived)
	}

	byStack, err := eng.SetPoolSourceStack(ctx, p.ID, nil)
	if err != nil {
		t.Fatalf("clear source stack: %v", err)
	}
	if byStack.Type != pool.TypeBonus {
		t.Errorf("type = %q, want %q after clearing stack", byStack.Type, pool.TypeBonus)
	}

	updated, err = eng.RemovePoolAttribute(ctx, p.ID, pool.AttrDerivedPool)
	if err != nil {
		t.Fatalf("remove attribute: %v", err)
	}
	if updated.Type != pool.TypeNormal {
		t.Errorf("type = %q, want %q after removing marker", updated.Type, pool.TypeNormal)
	}
}

func TestListPools(t *testing.T) {
	ctx := context.Background()
	ownerID := id.NewOwnerID()
	start, end := window()
	eng := newTestEngine(t)

	mustCreatePool(t, eng, pool.New(ownerID, "SKU-A", 10, start, end))
	mustCreatePool(t, eng, pool.New(ownerID, "SKU-B", 10, start, end))
	marked := mustCreatePool(t, eng, pool.New(ownerID, "SKU-C", 10, start, end))
	if err := eng.MarkPoolForDelete(ctx, marked.ID); err != nil {
		t.Fatalf("mark: %v", err)
	}
	mustCreatePool(t, eng, pool.New(id.NewOwnerID(), "SKU-A", 10, start, end))

	pools, err := eng.ListPools(ctx, ownerID, pool.ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pools) != 2 {
		t.Errorf("len = %d, want 2 (marked excluded, other owner excluded)", len(pools))
	}

	pools, err = eng.ListPools(ctx, ownerID, pool.ListOpts{IncludeMarked: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pools) != 3 {
		t.Errorf("len with marked = %d, want 3", len(pools))
	}

	pools, err = eng.ListPools(ctx, ownerID, pool.ListOpts{ProductID: "SKU-A"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pools) != 1 || pools[0].ProductID != "SKU-A" {
		t.Errorf("product filter returned %d pools", len(pools))
	}
}

func TestConcurrentGrants(t *testing.T) {
	ctx := context.Background()
	ownerID := id.NewOwnerID()
	start, end := window()
	eng := newTestEngine(t)

	p := mustCreatePool(t, eng, pool.New(ownerID, "SKU-100", 50, start, end))
	c := mustCreateConsumer(t, eng, ownerID, "web-01", consumer.TypeSystem)

	const workers = 10
	var wg sync.WaitGroup
	granted := make([]int64, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			// Retry on version conflicts; each worker lands exactly one
			// unit unless capacity runs out.
			for {
				_, err := eng.Grant(ctx, p.ID, c.ID, 1)
				if err == nil {
					granted[n] = 1
					return
				}
				if reservoir.IsConflict(err) {
					continue
				}
				return
			}
		}(i)
	}
	wg.Wait()

	var total int64
	for _, g := range granted {
		total += g
	}
	consumed, err := eng.Consumed(ctx, p.ID)
	if err != nil {
		t.Fatalf("consumed: %v", err)
	}
	if consumed != total {
		t.Errorf("consumed = %d, want %d", consumed, total)
	}
	if total != workers {
		t.Errorf("granted = %d, want %d", total, workers)
	}
}

// pluginRecorder captures hook invocations for assertion.
type pluginRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *pluginRecorder) Name() string { return "test-recorder" }

func (r *pluginRecorder) add(ev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *pluginRecorder) has(ev string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == ev {
			return true
		}
	}
	return false
}

func (r *pluginRecorder) OnPoolCreated(_ context.Context, _ *pool.Pool) error {
	r.add("pool.created")
	return nil
}

func (r *pluginRecorder) OnEntitlementGranted(_ context.Context, _ *entitlement.Entitlement) error {
	r.add("entitlement.granted")
	return nil
}

func (r *pluginRecorder) OnEntitlementRevoked(_ context.Context, _ *entitlement.Entitlement) error {
	r.add("entitlement.revoked")
	return nil
}

func (r *pluginRecorder) OnAdmissionDenied(_ context.Context, _ *pool.Pool, _, _ int64, _ string) error {
	r.add("admission.denied")
	return nil
}

func TestPluginEvents(t *testing.T) {
	ctx := context.Background()
	ownerID := id.NewOwnerID()
	start, end := window()

	rec := &pluginRecorder{}
	eng := newTestEngine(t, reservoir.WithPlugin(rec))

	p := mustCreatePool(t, eng, pool.New(ownerID, "SKU-100", 1, start, end))
	c := mustCreateConsumer(t, eng, ownerID, "web-01", consumer.TypeSystem)

	ent, err := eng.Grant(ctx, p.ID, c.ID, 1)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := eng.Grant(ctx, p.ID, c.ID, 1); !errors.Is(err, reservoir.ErrInsufficientUnits) {
		t.Fatalf("second grant err = %v, want ErrInsufficientUnits", err)
	}
	if _, err := eng.Revoke(ctx, ent.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	for _, ev := range []string{"pool.created", "entitlement.granted", "admission.denied", "entitlement.revoked"} {
		if !rec.has(ev) {
			t.Errorf("missing plugin event %q", ev)
		}
	}
}
