package store

import (
	"context"

	"github.com/xraph/reservoir/consumer"
	"github.com/xraph/reservoir/entitlement"
	"github.com/xraph/reservoir/id"
	"github.com/xraph/reservoir/pool"
	"github.com/xraph/reservoir/product"
	"github.com/xraph/reservoir/subscription"
)

// Store is the unified storage interface for all Reservoir entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
//
// Concurrency contract: UpdatePool and GrantEntitlement take the
// caller's expected pool version and must fail with a conflict when the
// stored version differs, incrementing the version on success in the
// same transaction. Aggregates (SumConsumed, SumExported) are always
// computed from entitlement rows, never maintained as stored counters.
type Store interface {
	// Pool methods
	CreatePool(ctx context.Context, p *pool.Pool) error
	GetPool(ctx context.Context, poolID id.PoolID) (*pool.Pool, error)
	ListPools(ctx context.Context, ownerID id.OwnerID, opts pool.ListOpts) ([]*pool.Pool, error)
	UpdatePool(ctx context.Context, p *pool.Pool, expectedVersion int64) error
	DeletePool(ctx context.Context, poolID id.PoolID) error
	MarkPoolForDelete(ctx context.Context, poolID id.PoolID) error
	GetPoolBySourceEntitlement(ctx context.Context, entitlementID id.EntitlementID) (*pool.Pool, error)
	GetPoolBySourceStack(ctx context.Context, consumerID id.ConsumerID, stackID string) (*pool.Pool, error)
	GetPoolBySubscription(ctx context.Context, subscriptionID, subKey string) (*pool.Pool, error)

	// Entitlement methods
	GrantEntitlement(ctx context.Context, ent *entitlement.Entitlement, expectedPoolVersion int64) error
	RevokeEntitlement(ctx context.Context, entitlementID id.EntitlementID) (*entitlement.Entitlement, error)
	GetEntitlement(ctx context.Context, entitlementID id.EntitlementID) (*entitlement.Entitlement, error)
	ListEntitlementsByPool(ctx context.Context, poolID id.PoolID) ([]*entitlement.Entitlement, error)
	ListEntitlementsByConsumer(ctx context.Context, consumerID id.ConsumerID) ([]*entitlement.Entitlement, error)
	SumConsumed(ctx context.Context, poolID id.PoolID) (int64, error)
	SumExported(ctx context.Context, poolID id.PoolID) (int64, error)
	CountStack(ctx context.Context, consumerID id.ConsumerID, stackID string) (int64, error)

	// Consumer methods
	CreateConsumer(ctx context.Context, c *consumer.Consumer) error
	GetConsumer(ctx context.Context, consumerID id.ConsumerID) (*consumer.Consumer, error)
	ListConsumers(ctx context.Context, ownerID id.OwnerID) ([]*consumer.Consumer, error)
	UpdateConsumer(ctx context.Context, c *consumer.Consumer) error
	DeleteConsumer(ctx context.Context, consumerID id.ConsumerID) error

	// Product methods
	UpsertProduct(ctx context.Context, p *product.Product) error
	GetProduct(ctx context.Context, ownerID id.OwnerID, productID string) (*product.Product, error)
	ListProducts(ctx context.Context, ownerID id.OwnerID) ([]*product.Product, error)
	DeleteProduct(ctx context.Context, ownerID id.OwnerID, productID string) error

	// Subscription methods
	CreateSubscription(ctx context.Context, s *subscription.Subscription) error
	GetSubscription(ctx context.Context, subscriptionID id.SubscriptionID) (*subscription.Subscription, error)
	ListSubscriptions(ctx context.Context, ownerID id.OwnerID) ([]*subscription.Subscription, error)
	UpdateSubscription(ctx context.Context, s *subscription.Subscription) error
	DeleteSubscription(ctx context.Context, subscriptionID id.SubscriptionID) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
