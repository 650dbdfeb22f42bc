package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	reservoir "github.com/xraph/reservoir"
	"github.com/xraph/reservoir/consumer"
	"github.com/xraph/reservoir/entitlement"
	"github.com/xraph/reservoir/id"
	"github.com/xraph/reservoir/pool"
	"github.com/xraph/reservoir/product"
	reservoirstore "github.com/xraph/reservoir/store"
	"github.com/xraph/reservoir/subscription"
)

// Collection name constants.
const (
	colPools         = "reservoir_pools"
	colEntitlements  = "reservoir_entitlements"
	colConsumers     = "reservoir_consumers"
	colProducts      = "reservoir_products"
	colSubscriptions = "reservoir_subscriptions"
)

// compile-time interface check
var _ reservoirstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all reservoir collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("reservoir/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Pool Store ====================

func (s *Store) CreatePool(ctx context.Context, p *pool.Pool) error {
	m := toPoolModel(p)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("reservoir/mongo: create pool: %w", err)
	}
	return nil
}

func (s *Store) GetPool(ctx context.Context, poolID id.PoolID) (*pool.Pool, error) {
	var m poolModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": poolID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, reservoir.ErrPoolNotFound
		}
		return nil, fmt.Errorf("reservoir/mongo: get pool: %w", err)
	}
	return fromPoolModel(&m)
}

func (s *Store) ListPools(ctx context.Context, ownerID id.OwnerID, opts pool.ListOpts) ([]*pool.Pool, error) {
	var models []poolModel

	filter := bson.M{"owner_id": ownerID.String()}
	if !opts.IncludeMarked {
		filter["marked_for_delete"] = false
	}
	if opts.Type != "" {
		filter["type"] = string(opts.Type)
	}
	if opts.ProductID != "" {
		filter["product_id"] = opts.ProductID
	}
	if !opts.ActiveOn.IsZero() {
		filter["start_date"] = bson.M{"$lte": opts.ActiveOn}
		filter["end_date"] = bson.M{"$gte": opts.ActiveOn}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("reservoir/mongo: list pools: %w", err)
	}

	result := make([]*pool.Pool, len(models))
	for i := range models {
		p, err := fromPoolModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

// UpdatePool rewrites the pool document only when the stored version
// equals expectedVersion.
func (s *Store) UpdatePool(ctx context.Context, p *pool.Pool, expectedVersion int64) error {
	m := toPoolModel(p)
	m.Version = expectedVersion + 1
	m.UpdatedAt = now()

	res, err := s.mdb.Collection(colPools).ReplaceOne(ctx,
		bson.M{"_id": m.ID, "version": expectedVersion}, m)
	if err != nil {
		return fmt.Errorf("reservoir/mongo: update pool: %w", err)
	}
	if res.MatchedCount == 0 {
		return s.poolConflictOrMissing(ctx, p.ID)
	}
	return nil
}

func (s *Store) DeletePool(ctx context.Context, poolID id.PoolID) error {
	res, err := s.mdb.NewDelete((*poolModel)(nil)).
		Filter(bson.M{"_id": poolID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reservoir/mongo: delete pool: %w", err)
	}
	if res.DeletedCount() == 0 {
		return reservoir.ErrPoolNotFound
	}
	return nil
}

func (s *Store) MarkPoolForDelete(ctx context.Context, poolID id.PoolID) error {
	res, err := s.mdb.Collection(colPools).UpdateOne(ctx,
		bson.M{"_id": poolID.String()},
		bson.M{
			"$set": bson.M{"marked_for_delete": true, "updated_at": now()},
			"$inc": bson.M{"version": 1},
		})
	if err != nil {
		return fmt.Errorf("reservoir/mongo: mark pool for delete: %w", err)
	}
	if res.MatchedCount == 0 {
		return reservoir.ErrPoolNotFound
	}
	return nil
}

func (s *Store) GetPoolBySourceEntitlement(ctx context.Context, entitlementID id.EntitlementID) (*pool.Pool, error) {
	var m poolModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"source_entitlement_id": entitlementID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, reservoir.ErrPoolNotFound
		}
		return nil, fmt.Errorf("reservoir/mongo: get pool by source entitlement: %w", err)
	}
	return fromPoolModel(&m)
}

func (s *Store) GetPoolBySourceStack(ctx context.Context, consumerID id.ConsumerID, stackID string) (*pool.Pool, error) {
	var m poolModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{
			"source_stack_consumer_id": consumerID.String(),
			"source_stack_id":          stackID,
		}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, reservoir.ErrPoolNotFound
		}
		return nil, fmt.Errorf("reservoir/mongo: get pool by source stack: %w", err)
	}
	return fromPoolModel(&m)
}

func (s *Store) GetPoolBySubscription(ctx context.Context, subscriptionID, subKey string) (*pool.Pool, error) {
	var m poolModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{
			"source_sub_id":  subscriptionID,
			"source_sub_key": subKey,
		}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, reservoir.ErrPoolNotFound
		}
		return nil, fmt.Errorf("reservoir/mongo: get pool by subscription: %w", err)
	}
	return fromPoolModel(&m)
}

// ==================== Entitlement Store ====================

// GrantEntitlement serializes admission through a compare-and-swap on
// the pool version document field; only the winner of concurrent
// grants that observed the same version inserts its record.
func (s *Store) GrantEntitlement(ctx context.Context, ent *entitlement.Entitlement, expectedPoolVersion int64) error {
	res, err := s.mdb.Collection(colPools).UpdateOne(ctx,
		bson.M{"_id": ent.PoolID.String(), "version": expectedPoolVersion},
		bson.M{
			"$inc": bson.M{"version": 1},
			"$set": bson.M{"updated_at": now()},
		})
	if err != nil {
		return fmt.Errorf("reservoir/mongo: bump pool version: %w", err)
	}
	if res.MatchedCount == 0 {
		return s.poolConflictOrMissing(ctx, ent.PoolID)
	}

	m := toEntitlementModel(ent)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("reservoir/mongo: grant entitlement: %w", err)
	}
	return nil
}

func (s *Store) RevokeEntitlement(ctx context.Context, entitlementID id.EntitlementID) (*entitlement.Entitlement, error) {
	ent, err := s.GetEntitlement(ctx, entitlementID)
	if err != nil {
		return nil, err
	}

	res, err := s.mdb.NewDelete((*entitlementModel)(nil)).
		Filter(bson.M{"_id": entitlementID.String()}).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("reservoir/mongo: revoke entitlement: %w", err)
	}
	if res.DeletedCount() == 0 {
		return nil, reservoir.ErrEntitlementNotFound
	}

	// Any change in the entitlement set invalidates versions observed
	// by in-flight admission sequences.
	_, err = s.mdb.Collection(colPools).UpdateOne(ctx,
		bson.M{"_id": ent.PoolID.String()},
		bson.M{
			"$inc": bson.M{"version": 1},
			"$set": bson.M{"updated_at": now()},
		})
	if err != nil {
		return nil, fmt.Errorf("reservoir/mongo: bump pool version: %w", err)
	}
	return ent, nil
}

func (s *Store) GetEntitlement(ctx context.Context, entitlementID id.EntitlementID) (*entitlement.Entitlement, error) {
	var m entitlementModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": entitlementID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, reservoir.ErrEntitlementNotFound
		}
		return nil, fmt.Errorf("reservoir/mongo: get entitlement: %w", err)
	}
	return fromEntitlementModel(&m)
}

func (s *Store) ListEntitlementsByPool(ctx context.Context, poolID id.PoolID) ([]*entitlement.Entitlement, error) {
	return s.listEntitlements(ctx, bson.M{"pool_id": poolID.String()})
}

func (s *Store) ListEntitlementsByConsumer(ctx context.Context, consumerID id.ConsumerID) ([]*entitlement.Entitlement, error) {
	return s.listEntitlements(ctx, bson.M{"consumer_id": consumerID.String()})
}

func (s *Store) listEntitlements(ctx context.Context, filter bson.M) ([]*entitlement.Entitlement, error) {
	var models []entitlementModel
	err := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("reservoir/mongo: list entitlements: %w", err)
	}

	result := make([]*entitlement.Entitlement, len(models))
	for i := range models {
		ent, err := fromEntitlementModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = ent
	}
	return result, nil
}

func (s *Store) SumConsumed(ctx context.Context, poolID id.PoolID) (int64, error) {
	pipeline := bson.A{
		bson.M{"$match": bson.M{"pool_id": poolID.String()}},
		bson.M{
			"$group": bson.M{
				"_id":   nil,
				"total": bson.M{"$sum": "$quantity"},
			},
		},
	}
	return s.sumPipeline(ctx, pipeline)
}

func (s *Store) SumExported(ctx context.Context, poolID id.PoolID) (int64, error) {
	pipeline := bson.A{
		bson.M{"$match": bson.M{"pool_id": poolID.String()}},
		bson.M{
			"$lookup": bson.M{
				"from":         colConsumers,
				"localField":   "consumer_id",
				"foreignField": "_id",
				"as":           "consumer",
			},
		},
		bson.M{"$unwind": "$consumer"},
		bson.M{"$match": bson.M{"consumer.manifest": true}},
		bson.M{
			"$group": bson.M{
				"_id":   nil,
				"total": bson.M{"$sum": "$quantity"},
			},
		},
	}
	return s.sumPipeline(ctx, pipeline)
}

func (s *Store) CountStack(ctx context.Context, consumerID id.ConsumerID, stackID string) (int64, error) {
	// Blank stack ids are non-stacked entitlements, never a stack.
	count, err := s.mdb.Collection(colEntitlements).CountDocuments(ctx, bson.M{
		"consumer_id": consumerID.String(),
		"stack_id":    bson.M{"$eq": stackID, "$ne": ""},
	})
	if err != nil {
		return 0, fmt.Errorf("reservoir/mongo: count stack: %w", err)
	}
	return count, nil
}

func (s *Store) sumPipeline(ctx context.Context, pipeline bson.A) (int64, error) {
	cursor, err := s.mdb.Collection(colEntitlements).Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("reservoir/mongo: aggregate: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return 0, fmt.Errorf("reservoir/mongo: aggregate decode: %w", err)
	}

	if len(results) == 0 {
		return 0, nil
	}
	return results[0].Total, nil
}

// ==================== Consumer Store ====================

func (s *Store) CreateConsumer(ctx context.Context, c *consumer.Consumer) error {
	m := toConsumerModel(c)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("reservoir/mongo: create consumer: %w", err)
	}
	return nil
}

func (s *Store) GetConsumer(ctx context.Context, consumerID id.ConsumerID) (*consumer.Consumer, error) {
	var m consumerModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": consumerID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, reservoir.ErrConsumerNotFound
		}
		return nil, fmt.Errorf("reservoir/mongo: get consumer: %w", err)
	}
	return fromConsumerModel(&m)
}

func (s *Store) ListConsumers(ctx context.Context, ownerID id.OwnerID) ([]*consumer.Consumer, error) {
	var models []consumerModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"owner_id": ownerID.String()}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("reservoir/mongo: list consumers: %w", err)
	}

	result := make([]*consumer.Consumer, len(models))
	for i := range models {
		c, err := fromConsumerModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

func (s *Store) UpdateConsumer(ctx context.Context, c *consumer.Consumer) error {
	m := toConsumerModel(c)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reservoir/mongo: update consumer: %w", err)
	}
	if res.MatchedCount() == 0 {
		return reservoir.ErrConsumerNotFound
	}
	return nil
}

func (s *Store) DeleteConsumer(ctx context.Context, consumerID id.ConsumerID) error {
	_, err := s.mdb.NewDelete((*consumerModel)(nil)).
		Filter(bson.M{"_id": consumerID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reservoir/mongo: delete consumer: %w", err)
	}
	return nil
}

// ==================== Product Store ====================

func (s *Store) UpsertProduct(ctx context.Context, p *product.Product) error {
	m := toProductModel(p)
	_, err := s.mdb.Collection(colProducts).ReplaceOne(ctx,
		bson.M{"_id": m.ID}, m,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("reservoir/mongo: upsert product: %w", err)
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, ownerID id.OwnerID, productID string) (*product.Product, error) {
	var m productModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": productDocID(ownerID.String(), productID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, reservoir.ErrProductNotFound
		}
		return nil, fmt.Errorf("reservoir/mongo: get product: %w", err)
	}
	return fromProductModel(&m)
}

func (s *Store) ListProducts(ctx context.Context, ownerID id.OwnerID) ([]*product.Product, error) {
	var models []productModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"owner_id": ownerID.String()}).
		Sort(bson.D{{Key: "product_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("reservoir/mongo: list products: %w", err)
	}

	result := make([]*product.Product, len(models))
	for i := range models {
		p, err := fromProductModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

func (s *Store) DeleteProduct(ctx context.Context, ownerID id.OwnerID, productID string) error {
	res, err := s.mdb.NewDelete((*productModel)(nil)).
		Filter(bson.M{"_id": productDocID(ownerID.String(), productID)}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reservoir/mongo: delete product: %w", err)
	}
	if res.DeletedCount() == 0 {
		return reservoir.ErrProductNotFound
	}
	return nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("reservoir/mongo: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": subID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, reservoir.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("reservoir/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) ListSubscriptions(ctx context.Context, ownerID id.OwnerID) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"owner_id": ownerID.String()}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("reservoir/mongo: list subscriptions: %w", err)
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reservoir/mongo: update subscription: %w", err)
	}
	if res.MatchedCount() == 0 {
		return reservoir.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) DeleteSubscription(ctx context.Context, subID id.SubscriptionID) error {
	_, err := s.mdb.NewDelete((*subscriptionModel)(nil)).
		Filter(bson.M{"_id": subID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reservoir/mongo: delete subscription: %w", err)
	}
	return nil
}

// ==================== Helpers ====================

// poolConflictOrMissing distinguishes a version mismatch from a missing
// document after a zero-matches conditional update.
func (s *Store) poolConflictOrMissing(ctx context.Context, poolID id.PoolID) error {
	var m poolModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": poolID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return reservoir.ErrPoolNotFound
		}
		return err
	}
	return reservoir.ErrVersionConflict
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks for the mongo no-documents sentinel.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all reservoir collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colPools: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "product_id", Value: 1}}},
			{Keys: bson.D{{Key: "source_entitlement_id", Value: 1}}},
			{
				Keys: bson.D{{Key: "source_stack_consumer_id", Value: 1}, {Key: "source_stack_id", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"source_stack_id": bson.M{"$gt": ""}}),
			},
			{
				Keys: bson.D{{Key: "source_sub_id", Value: 1}, {Key: "source_sub_key", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"source_sub_id": bson.M{"$gt": ""}}),
			},
		},
		colEntitlements: {
			{Keys: bson.D{{Key: "pool_id", Value: 1}}},
			{Keys: bson.D{{Key: "consumer_id", Value: 1}}},
			{Keys: bson.D{{Key: "consumer_id", Value: 1}, {Key: "stack_id", Value: 1}}},
		},
		colConsumers: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}}},
		},
		colProducts: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "product_id", Value: 1}}},
		},
		colSubscriptions: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}}},
		},
	}
}
