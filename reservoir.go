package reservoir

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/reservoir/consumer"
	"github.com/xraph/reservoir/entitlement"
	"github.com/xraph/reservoir/id"
	"github.com/xraph/reservoir/plugin"
	"github.com/xraph/reservoir/pool"
	"github.com/xraph/reservoir/product"
	"github.com/xraph/reservoir/rules"
	"github.com/xraph/reservoir/store"
	"github.com/xraph/reservoir/subscription"
	"github.com/xraph/reservoir/types"
)

// Engine is the main entitlement-pool accounting engine.
type Engine struct {
	store     store.Store
	plugins   *plugin.Registry
	logger    *slog.Logger
	evaluator rules.Evaluator

	// clock is overridable for deterministic expiry checks in tests.
	clock func() time.Time
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		plugins:   plugin.NewRegistry(),
		logger:    slog.Default(),
		evaluator: rules.PassThrough,
		clock:     time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithEvaluator wires in the eligibility rules subsystem. Without it
// every admission that passes capacity checks is allowed.
func WithEvaluator(ev rules.Evaluator) Option {
	return func(e *Engine) {
		e.evaluator = ev
	}
}

// WithClock overrides the time source used for expiry and
// active-window checks.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// Start runs store migrations and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("reservoir started", "plugins", e.plugins.Count())
	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// ──────────────────────────────────────────────────
// Pool Lifecycle
// ──────────────────────────────────────────────────

// CreatePool persists a new pool. The product-attribute sets are
// snapshotted from the owner's product catalog when present, the
// classification is computed, and the version counter starts at zero.
func (e *Engine) CreatePool(ctx context.Context, p *pool.Pool) (*pool.Pool, error) {
	if err := e.validatePool(p); err != nil {
		return nil, err
	}
	if p.ID == (id.PoolID{}) {
		p.ID = id.NewPoolID()
	}
	p.Entity = types.NewEntity()
	p.Version = 0
	p.MarkedForDelete = false

	if err := e.snapshotProductAttributes(ctx, p); err != nil {
		return nil, err
	}
	p.RefreshType()

	if p.Type == pool.TypeStackDerived {
		existing, err := e.store.GetPoolBySourceStack(ctx, p.SourceConsumerID(), p.SourceStackID())
		if err != nil && !IsNotFound(err) {
			return nil, err
		}
		if existing != nil {
			return nil, ErrDuplicateStackPool
		}
	}
	if p.SourceSubscription != nil {
		existing, err := e.store.GetPoolBySubscription(ctx, p.SourceSubscription.SubscriptionID, p.SourceSubscription.SubKey)
		if err != nil && !IsNotFound(err) {
			return nil, err
		}
		if existing != nil {
			return nil, ErrDuplicateSubPool
		}
	}

	if err := e.store.CreatePool(ctx, p); err != nil {
		return nil, err
	}

	e.plugins.EmitPoolCreated(ctx, p)
	return p, nil
}

// CreatePoolForSubscription creates the primary pool backing a
// subscription. At most one pool may exist per (subscription, sub-key)
// pair; the primary key is "master".
func (e *Engine) CreatePoolForSubscription(ctx context.Context, sub *subscription.Subscription, subKey string) (*pool.Pool, error) {
	if subKey == "" {
		subKey = pool.PrimarySubKey
	}

	p := pool.New(sub.OwnerID, sub.ProductID, sub.Quantity, sub.StartDate, sub.EndDate)
	p.ProductName = sub.ProductName
	p.ContractNumber = sub.ContractNumber
	p.AccountNumber = sub.AccountNumber
	p.OrderNumber = sub.OrderNumber
	p.DerivedProductID = sub.DerivedProductID
	p.SetSourceSubscription(&pool.SourceSubscription{
		SubscriptionID: sub.ID.String(),
		SubKey:         subKey,
	})
	for _, pid := range sub.ProvidedProductIDs {
		p.AddProvidedProduct(pid, "")
	}
	for _, pid := range sub.DerivedProvidedProductIDs {
		p.AddDerivedProvidedProduct(pid, "")
	}

	return e.CreatePool(ctx, p)
}

// GetPool retrieves a pool by ID.
func (e *Engine) GetPool(ctx context.Context, poolID id.PoolID) (*pool.Pool, error) {
	return e.store.GetPool(ctx, poolID)
}

// ListPools lists an owner's pools, filtered by opts.
func (e *Engine) ListPools(ctx context.Context, ownerID id.OwnerID, opts pool.ListOpts) ([]*pool.Pool, error) {
	return e.store.ListPools(ctx, ownerID, opts)
}

// UpdatePool persists pool changes under optimistic locking. The
// classification is recomputed before the write; on success the
// in-memory version counter is synced with the store. A version
// mismatch returns ErrVersionConflict and the caller re-reads and
// re-applies.
func (e *Engine) UpdatePool(ctx context.Context, p *pool.Pool) (*pool.Pool, error) {
	if err := e.validatePool(p); err != nil {
		return nil, err
	}
	p.RefreshType()
	p.Touch()

	if err := e.store.UpdatePool(ctx, p, p.Version); err != nil {
		if IsConflict(err) {
			e.plugins.EmitVersionConflict(ctx, p.ID.String())
		}
		return nil, err
	}
	p.Version++

	e.plugins.EmitPoolUpdated(ctx, p)
	return p, nil
}

// MarkPoolForDelete flags a pool as pending deletion. Marked pools are
// excluded from listings and refuse new consumption, but existing
// entitlements survive until physical deletion.
func (e *Engine) MarkPoolForDelete(ctx context.Context, poolID id.PoolID) error {
	return e.store.MarkPoolForDelete(ctx, poolID)
}

// DeletePool removes a pool permanently.
func (e *Engine) DeletePool(ctx context.Context, poolID id.PoolID) error {
	if err := e.store.DeletePool(ctx, poolID); err != nil {
		return err
	}

	e.plugins.EmitPoolDeleted(ctx, poolID.String())
	return nil
}

// ──────────────────────────────────────────────────
// Consumption Accounting
// ──────────────────────────────────────────────────

// Consumed returns the pool's consumed aggregate, recomputed from
// entitlement records.
func (e *Engine) Consumed(ctx context.Context, poolID id.PoolID) (int64, error) {
	return e.store.SumConsumed(ctx, poolID)
}

// Exported returns the pool's exported aggregate: the consumed subset
// held by manifest-type consumers.
func (e *Engine) Exported(ctx context.Context, poolID id.PoolID) (int64, error) {
	return e.store.SumExported(ctx, poolID)
}

// Usage returns both aggregates for a pool in one call.
func (e *Engine) Usage(ctx context.Context, poolID id.PoolID) (*pool.Usage, error) {
	consumed, err := e.store.SumConsumed(ctx, poolID)
	if err != nil {
		return nil, err
	}
	exported, err := e.store.SumExported(ctx, poolID)
	if err != nil {
		return nil, err
	}
	return &pool.Usage{Consumed: consumed, Exported: exported}, nil
}

// EntitlementsAvailable reports whether requested additional units fit
// within the pool's capacity right now.
func (e *Engine) EntitlementsAvailable(ctx context.Context, poolID id.PoolID, requested int64) (bool, error) {
	p, err := e.store.GetPool(ctx, poolID)
	if err != nil {
		return false, err
	}
	consumed, err := e.store.SumConsumed(ctx, poolID)
	if err != nil {
		return false, err
	}
	return p.Available(consumed, requested), nil
}

// IsOverflowing reports whether the pool's consumption exceeds its
// capacity, emitting an overflow event when it does.
func (e *Engine) IsOverflowing(ctx context.Context, poolID id.PoolID) (bool, error) {
	p, err := e.store.GetPool(ctx, poolID)
	if err != nil {
		return false, err
	}
	consumed, err := e.store.SumConsumed(ctx, poolID)
	if err != nil {
		return false, err
	}
	if !p.Overflowing(consumed) {
		return false, nil
	}

	e.plugins.EmitOverflowDetected(ctx, p, consumed)
	return true, nil
}

// IsExpired reports whether the pool's end date has passed.
func (e *Engine) IsExpired(ctx context.Context, poolID id.PoolID) (bool, error) {
	p, err := e.store.GetPool(ctx, poolID)
	if err != nil {
		return false, err
	}
	return p.ExpiredAt(e.clock()), nil
}

// ──────────────────────────────────────────────────
// Entitlement Issuance
// ──────────────────────────────────────────────────

// Grant draws quantity units from a pool for a consumer. The admission
// sequence is: reject marked/expired pools, check remaining capacity
// against the recomputed consumed aggregate, run the rules evaluator,
// then insert the entitlement conditional on the pool version observed
// at the start. ErrVersionConflict means a concurrent grant or update
// landed first; the caller retries the whole sequence.
func (e *Engine) Grant(ctx context.Context, poolID id.PoolID, consumerID id.ConsumerID, quantity int64) (*entitlement.Entitlement, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}

	p, err := e.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if p.MarkedForDelete {
		return nil, ErrPoolMarkedDeleted
	}
	if p.ExpiredAt(e.clock()) {
		return nil, ErrPoolExpired
	}

	c, err := e.store.GetConsumer(ctx, consumerID)
	if err != nil {
		return nil, err
	}

	consumed, err := e.store.SumConsumed(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if !p.Available(consumed, quantity) {
		e.plugins.EmitAdmissionDenied(ctx, p, consumed, quantity, "insufficient units")
		return nil, ErrInsufficientUnits
	}

	decision, err := e.evaluator.EvaluatePool(ctx, p, c, quantity)
	if err != nil {
		return nil, fmt.Errorf("rules evaluation: %w", err)
	}
	if !decision.Allowed {
		e.plugins.EmitAdmissionDenied(ctx, p, consumed, quantity, decision.Reason)
		return nil, fmt.Errorf("%w: %s", ErrRulesDenied, decision.Reason)
	}

	ent := entitlement.New(p.ID, c.ID, p.OwnerID, quantity)
	ent.StackID = p.StackingID()

	if err := e.store.GrantEntitlement(ctx, ent, p.Version); err != nil {
		if IsConflict(err) {
			e.plugins.EmitVersionConflict(ctx, p.ID.String())
		}
		return nil, err
	}

	e.plugins.EmitEntitlementGranted(ctx, ent)
	return ent, nil
}

// Revoke removes an entitlement and returns the removed record, which
// callers feed to CleanupCandidates to find derived pools the
// revocation orphaned.
func (e *Engine) Revoke(ctx context.Context, entitlementID id.EntitlementID) (*entitlement.Entitlement, error) {
	ent, err := e.store.RevokeEntitlement(ctx, entitlementID)
	if err != nil {
		return nil, err
	}

	e.plugins.EmitEntitlementRevoked(ctx, ent)
	return ent, nil
}

// GetEntitlement retrieves an entitlement by ID.
func (e *Engine) GetEntitlement(ctx context.Context, entitlementID id.EntitlementID) (*entitlement.Entitlement, error) {
	return e.store.GetEntitlement(ctx, entitlementID)
}

// ListEntitlementsByPool lists entitlements drawn from a pool.
func (e *Engine) ListEntitlementsByPool(ctx context.Context, poolID id.PoolID) ([]*entitlement.Entitlement, error) {
	return e.store.ListEntitlementsByPool(ctx, poolID)
}

// ListEntitlementsByConsumer lists a consumer's entitlements.
func (e *Engine) ListEntitlementsByConsumer(ctx context.Context, consumerID id.ConsumerID) ([]*entitlement.Entitlement, error) {
	return e.store.ListEntitlementsByConsumer(ctx, consumerID)
}

// CleanupCandidates returns the derived pools orphaned by the given
// revoked entitlement: the pool whose source entitlement it was, and
// the consumer's stack-derived pool when the revocation emptied the
// stack. Callers decide what to do with the candidates; nothing is
// deleted here.
func (e *Engine) CleanupCandidates(ctx context.Context, revoked *entitlement.Entitlement) ([]*pool.Pool, error) {
	var candidates []*pool.Pool

	byEnt, err := e.store.GetPoolBySourceEntitlement(ctx, revoked.ID)
	if err != nil && !IsNotFound(err) {
		return nil, err
	}
	if byEnt != nil {
		candidates = append(candidates, byEnt)
	}

	if revoked.StackID != "" {
		remaining, err := e.store.CountStack(ctx, revoked.ConsumerID, revoked.StackID)
		if err != nil {
			return nil, err
		}
		if remaining == 0 {
			byStack, err := e.store.GetPoolBySourceStack(ctx, revoked.ConsumerID, revoked.StackID)
			if err != nil && !IsNotFound(err) {
				return nil, err
			}
			if byStack != nil {
				candidates = append(candidates, byStack)
			}
		}
	}

	return candidates, nil
}

// ──────────────────────────────────────────────────
// Product Coverage
// ──────────────────────────────────────────────────

// Modifies reports whether the pool's primary product declares content
// that modifies the given product id. Pools whose product is absent
// from the catalog modify nothing.
func (e *Engine) Modifies(ctx context.Context, poolID id.PoolID, productID string) (bool, error) {
	p, err := e.store.GetPool(ctx, poolID)
	if err != nil {
		return false, err
	}

	prod, err := e.store.GetProduct(ctx, p.OwnerID, p.ProductID)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return prod.Modifies(productID), nil
}

// CalculateAttributes runs the rules evaluator for a (pool, consumer)
// pair and stashes the result on the returned pool's transient
// CalculatedAttributes map. Nothing is persisted.
func (e *Engine) CalculateAttributes(ctx context.Context, poolID id.PoolID, consumerID id.ConsumerID) (*pool.Pool, error) {
	p, err := e.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	c, err := e.store.GetConsumer(ctx, consumerID)
	if err != nil {
		return nil, err
	}

	decision, err := e.evaluator.EvaluatePool(ctx, p, c, 0)
	if err != nil {
		return nil, fmt.Errorf("rules evaluation: %w", err)
	}
	p.CalculatedAttributes = decision.CalculatedAttributes
	return p, nil
}

// ──────────────────────────────────────────────────
// Pool Mutation
// ──────────────────────────────────────────────────

// SetPoolAttribute sets a pool-level attribute under optimistic
// locking.
func (e *Engine) SetPoolAttribute(ctx context.Context, poolID id.PoolID, name, value string) (*pool.Pool, error) {
	return e.mutatePool(ctx, poolID, func(p *pool.Pool) {
		p.SetAttribute(name, value)
	})
}

// RemovePoolAttribute removes a pool-level attribute under optimistic
// locking.
func (e *Engine) RemovePoolAttribute(ctx context.Context, poolID id.PoolID, name string) (*pool.Pool, error) {
	return e.mutatePool(ctx, poolID, func(p *pool.Pool) {
		p.RemoveAttribute(name)
	})
}

// SetPoolSourceStack sets or clears the pool's source stack under
// optimistic locking. A non-nil stack clears any subscription linkage.
func (e *Engine) SetPoolSourceStack(ctx context.Context, poolID id.PoolID, stack *pool.SourceStack) (*pool.Pool, error) {
	return e.mutatePool(ctx, poolID, func(p *pool.Pool) {
		p.SetSourceStack(stack)
	})
}

// SetPoolSourceEntitlement sets the pool's source entitlement under
// optimistic locking.
func (e *Engine) SetPoolSourceEntitlement(ctx context.Context, poolID id.PoolID, entitlementID id.EntitlementID) (*pool.Pool, error) {
	return e.mutatePool(ctx, poolID, func(p *pool.Pool) {
		p.SetSourceEntitlement(entitlementID)
	})
}

// mutatePool applies fn to a freshly read pool and writes it back
// through UpdatePool, so the classification refresh and version
// handling apply uniformly.
func (e *Engine) mutatePool(ctx context.Context, poolID id.PoolID, fn func(*pool.Pool)) (*pool.Pool, error) {
	p, err := e.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	fn(p)
	return e.UpdatePool(ctx, p)
}

// ──────────────────────────────────────────────────
// Consumer Management
// ──────────────────────────────────────────────────

// CreateConsumer registers a consumer.
func (e *Engine) CreateConsumer(ctx context.Context, c *consumer.Consumer) error {
	if c.ID == (id.ConsumerID{}) {
		c.ID = id.NewConsumerID()
	}
	c.Entity = types.NewEntity()
	return e.store.CreateConsumer(ctx, c)
}

// GetConsumer retrieves a consumer by ID.
func (e *Engine) GetConsumer(ctx context.Context, consumerID id.ConsumerID) (*consumer.Consumer, error) {
	return e.store.GetConsumer(ctx, consumerID)
}

// ListConsumers lists an owner's consumers.
func (e *Engine) ListConsumers(ctx context.Context, ownerID id.OwnerID) ([]*consumer.Consumer, error) {
	return e.store.ListConsumers(ctx, ownerID)
}

// UpdateConsumer persists consumer changes.
func (e *Engine) UpdateConsumer(ctx context.Context, c *consumer.Consumer) error {
	c.Touch()
	return e.store.UpdateConsumer(ctx, c)
}

// DeleteConsumer removes a consumer.
func (e *Engine) DeleteConsumer(ctx context.Context, consumerID id.ConsumerID) error {
	return e.store.DeleteConsumer(ctx, consumerID)
}

// ──────────────────────────────────────────────────
// Product Catalog
// ──────────────────────────────────────────────────

// UpsertProduct creates or replaces a product definition. Existing
// pools keep their snapshotted attribute sets; only pools created
// afterwards see the new definition.
func (e *Engine) UpsertProduct(ctx context.Context, p *product.Product) error {
	if p.Entity.CreatedAt.IsZero() {
		p.Entity = types.NewEntity()
	}
	p.Touch()
	return e.store.UpsertProduct(ctx, p)
}

// GetProduct retrieves a product by owner and external id.
func (e *Engine) GetProduct(ctx context.Context, ownerID id.OwnerID, productID string) (*product.Product, error) {
	return e.store.GetProduct(ctx, ownerID, productID)
}

// ListProducts lists an owner's products.
func (e *Engine) ListProducts(ctx context.Context, ownerID id.OwnerID) ([]*product.Product, error) {
	return e.store.ListProducts(ctx, ownerID)
}

// DeleteProduct removes a product definition.
func (e *Engine) DeleteProduct(ctx context.Context, ownerID id.OwnerID, productID string) error {
	return e.store.DeleteProduct(ctx, ownerID, productID)
}

// ──────────────────────────────────────────────────
// Subscription Management
// ──────────────────────────────────────────────────

// CreateSubscription records a subscription.
func (e *Engine) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	if sub.ID == (id.SubscriptionID{}) {
		sub.ID = id.NewSubscriptionID()
	}
	sub.Entity = types.NewEntity()
	return e.store.CreateSubscription(ctx, sub)
}

// GetSubscription retrieves a subscription by ID.
func (e *Engine) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	return e.store.GetSubscription(ctx, subID)
}

// ListSubscriptions lists an owner's subscriptions.
func (e *Engine) ListSubscriptions(ctx context.Context, ownerID id.OwnerID) ([]*subscription.Subscription, error) {
	return e.store.ListSubscriptions(ctx, ownerID)
}

// UpdateSubscription persists subscription changes.
func (e *Engine) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	sub.Touch()
	return e.store.UpdateSubscription(ctx, sub)
}

// DeleteSubscription removes a subscription record.
func (e *Engine) DeleteSubscription(ctx context.Context, subID id.SubscriptionID) error {
	return e.store.DeleteSubscription(ctx, subID)
}

// ──────────────────────────────────────────────────
// Internal
// ──────────────────────────────────────────────────

// snapshotProductAttributes copies attribute sets from the owner's
// product catalog onto the pool. Missing products are not an error:
// pools may reference externally managed SKUs.
func (e *Engine) snapshotProductAttributes(ctx context.Context, p *pool.Pool) error {
	prod, err := e.store.GetProduct(ctx, p.OwnerID, p.ProductID)
	if err == nil {
		p.ProductAttributes = prod.Attributes.Clone()
		if p.ProductName == "" {
			p.ProductName = prod.Name
		}
	} else if !IsNotFound(err) {
		return err
	}

	if p.DerivedProductID == "" {
		return nil
	}
	derived, err := e.store.GetProduct(ctx, p.OwnerID, p.DerivedProductID)
	if err == nil {
		p.DerivedProductAttributes = derived.Attributes.Clone()
		if p.DerivedProductName == "" {
			p.DerivedProductName = derived.Name
		}
	} else if !IsNotFound(err) {
		return err
	}
	return nil
}

func (e *Engine) validatePool(p *pool.Pool) error {
	var errs MultiError
	if p.OwnerID == (id.OwnerID{}) {
		errs.Add(ValidationError{Field: "owner_id", Message: "required"})
	}
	if p.ProductID == "" {
		errs.Add(ValidationError{Field: "product_id", Message: "required"})
	}
	if !p.StartDate.IsZero() && !p.EndDate.IsZero() && p.EndDate.Before(p.StartDate) {
		errs.Add(ValidationError{Field: "end_date", Message: "must not precede start_date"})
	}
	if errs.HasErrors() {
		return errs.First()
	}
	return nil
}
