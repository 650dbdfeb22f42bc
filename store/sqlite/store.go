package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	reservoir "github.com/xraph/reservoir"
	"github.com/xraph/reservoir/consumer"
	"github.com/xraph/reservoir/entitlement"
	"github.com/xraph/reservoir/id"
	"github.com/xraph/reservoir/pool"
	"github.com/xraph/reservoir/product"
	reservoirstore "github.com/xraph/reservoir/store"
	"github.com/xraph/reservoir/subscription"
)

// compile-time interface check
var _ reservoirstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("reservoir/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("reservoir/sqlite: migration failed: %w", err)
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
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetPool(ctx context.Context, poolID id.PoolID) (*pool.Pool, error) {
	m := new(poolModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", poolID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, reservoir.ErrPoolNotFound
		}
		return nil, err
	}
	return fromPoolModel(m)
}

func (s *Store) ListPools(ctx context.Context, ownerID id.OwnerID, opts pool.ListOpts) ([]*pool.Pool, error) {
	var models []poolModel
	q := s.sdb.NewSelect(&models).Where("owner_id = ?", ownerID.String())

	if !opts.IncludeMarked {
		q = q.Where("marked_for_delete = 0")
	}
	if opts.Type != "" {
		q = q.Where("type = ?", string(opts.Type))
	}
	if opts.ProductID != "" {
		q = q.Where("product_id = ?", opts.ProductID)
	}
	if !opts.ActiveOn.IsZero() {
		q = q.Where("start_date <= ?", opts.ActiveOn).
			Where("end_date >= ?", opts.ActiveOn)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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

// UpdatePool writes the pool under optimistic locking: the row is
// rewritten only when the stored version equals expectedVersion, with
// the version bumped in the same statement.
func (s *Store) UpdatePool(ctx context.Context, p *pool.Pool, expectedVersion int64) error {
	m := toPoolModel(p)
	m.Version = expectedVersion + 1
	m.UpdatedAt = now()

	res, err := s.sdb.NewUpdate(m).
		WherePK().
		Where("version = ?", expectedVersion).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return s.poolConflictOrMissing(ctx, p.ID)
	}
	return nil
}

func (s *Store) DeletePool(ctx context.Context, poolID id.PoolID) error {
	res, err := s.sdb.NewDelete((*poolModel)(nil)).
		Where("id = ?", poolID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return reservoir.ErrPoolNotFound
	}
	return nil
}

func (s *Store) MarkPoolForDelete(ctx context.Context, poolID id.PoolID) error {
	t := now()
	res, err := s.sdb.NewUpdate((*poolModel)(nil)).
		Set("marked_for_delete = 1").
		Set("version = version + 1").
		Set("updated_at = ?", t).
		Where("id = ?", poolID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return reservoir.ErrPoolNotFound
	}
	return nil
}

func (s *Store) GetPoolBySourceEntitlement(ctx context.Context, entitlementID id.EntitlementID) (*pool.Pool, error) {
	m := new(poolModel)
	err := s.sdb.NewSelect(m).
		Where("source_entitlement_id = ?", entitlementID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, reservoir.ErrPoolNotFound
		}
		return nil, err
	}
	return fromPoolModel(m)
}

func (s *Store) GetPoolBySourceStack(ctx context.Context, consumerID id.ConsumerID, stackID string) (*pool.Pool, error) {
	m := new(poolModel)
	err := s.sdb.NewSelect(m).
		Where("source_stack_consumer_id = ?", consumerID.String()).
		Where("source_stack_id = ?", stackID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, reservoir.ErrPoolNotFound
		}
		return nil, err
	}
	return fromPoolModel(m)
}

func (s *Store) GetPoolBySubscription(ctx context.Context, subscriptionID, subKey string) (*pool.Pool, error) {
	m := new(poolModel)
	err := s.sdb.NewSelect(m).
		Where("source_sub_id = ?", subscriptionID).
		Where("source_sub_key = ?", subKey).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, reservoir.ErrPoolNotFound
		}
		return nil, err
	}
	return fromPoolModel(m)
}

// ==================== Entitlement Store ====================

// GrantEntitlement serializes admission through a compare-and-swap on
// the pool version: the bump succeeds for exactly one of any set of
// concurrent grants that observed the same version, and only the
// winner's record is inserted.
func (s *Store) GrantEntitlement(ctx context.Context, ent *entitlement.Entitlement, expectedPoolVersion int64) error {
	res, err := s.sdb.NewUpdate((*poolModel)(nil)).
		Set("version = version + 1").
		Set("updated_at = ?", now()).
		Where("id = ?", ent.PoolID.String()).
		Where("version = ?", expectedPoolVersion).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return s.poolConflictOrMissing(ctx, ent.PoolID)
	}

	m := toEntitlementModel(ent)
	_, err = s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) RevokeEntitlement(ctx context.Context, entitlementID id.EntitlementID) (*entitlement.Entitlement, error) {
	ent, err := s.GetEntitlement(ctx, entitlementID)
	if err != nil {
		return nil, err
	}

	res, err := s.sdb.NewDelete((*entitlementModel)(nil)).
		Where("id = ?", entitlementID.String()).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, reservoir.ErrEntitlementNotFound
	}

	// Any change in the entitlement set invalidates versions observed
	// by in-flight admission sequences.
	_, err = s.sdb.NewUpdate((*poolModel)(nil)).
		Set("version = version + 1").
		Set("updated_at = ?", now()).
		Where("id = ?", ent.PoolID.String()).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return ent, nil
}

func (s *Store) GetEntitlement(ctx context.Context, entitlementID id.EntitlementID) (*entitlement.Entitlement, error) {
	m := new(entitlementModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", entitlementID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, reservoir.ErrEntitlementNotFound
		}
		return nil, err
	}
	return fromEntitlementModel(m)
}

func (s *Store) ListEntitlementsByPool(ctx context.Context, poolID id.PoolID) ([]*entitlement.Entitlement, error) {
	var models []entitlementModel
	err := s.sdb.NewSelect(&models).
		Where("pool_id = ?", poolID.String()).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fromEntitlementModels(models)
}

func (s *Store) ListEntitlementsByConsumer(ctx context.Context, consumerID id.ConsumerID) ([]*entitlement.Entitlement, error) {
	var models []entitlementModel
	err := s.sdb.NewSelect(&models).
		Where("consumer_id = ?", consumerID.String()).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fromEntitlementModels(models)
}

func (s *Store) SumConsumed(ctx context.Context, poolID id.PoolID) (int64, error) {
	var total int64
	err := s.sdb.NewRaw(`
		SELECT COALESCE(SUM(quantity), 0) FROM reservoir_entitlements
		WHERE pool_id = ?
	`, poolID.String()).Scan(ctx, &total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) SumExported(ctx context.Context, poolID id.PoolID) (int64, error) {
	var total int64
	err := s.sdb.NewRaw(`
		SELECT COALESCE(SUM(e.quantity), 0)
		FROM reservoir_entitlements e
		JOIN reservoir_consumers c ON c.id = e.consumer_id
		WHERE e.pool_id = ? AND c.manifest = 1
	`, poolID.String()).Scan(ctx, &total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) CountStack(ctx context.Context, consumerID id.ConsumerID, stackID string) (int64, error) {
	var count int64
	err := s.sdb.NewRaw(`
		SELECT COUNT(*) FROM reservoir_entitlements
		WHERE consumer_id = ? AND stack_id = ? AND stack_id != ''
	`, consumerID.String(), stackID).Scan(ctx, &count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ==================== Consumer Store ====================

func (s *Store) CreateConsumer(ctx context.Context, c *consumer.Consumer) error {
	m := toConsumerModel(c)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetConsumer(ctx context.Context, consumerID id.ConsumerID) (*consumer.Consumer, error) {
	m := new(consumerModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", consumerID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, reservoir.ErrConsumerNotFound
		}
		return nil, err
	}
	return fromConsumerModel(m)
}

func (s *Store) ListConsumers(ctx context.Context, ownerID id.OwnerID) ([]*consumer.Consumer, error) {
	var models []consumerModel
	err := s.sdb.NewSelect(&models).
		Where("owner_id = ?", ownerID.String()).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
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
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return reservoir.ErrConsumerNotFound
	}
	return nil
}

func (s *Store) DeleteConsumer(ctx context.Context, consumerID id.ConsumerID) error {
	_, err := s.sdb.NewDelete((*consumerModel)(nil)).
		Where("id = ?", consumerID.String()).
		Exec(ctx)
	return err
}

// ==================== Product Store ====================

func (s *Store) UpsertProduct(ctx context.Context, p *product.Product) error {
	m := toProductModel(p)
	_, err := s.sdb.NewInsert(m).
		OnConflict("(owner_id, id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("attributes = EXCLUDED.attributes").
		Set("content = EXCLUDED.content").
		Set("dependent_product_ids = EXCLUDED.dependent_product_ids").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetProduct(ctx context.Context, ownerID id.OwnerID, productID string) (*product.Product, error) {
	m := new(productModel)
	err := s.sdb.NewSelect(m).
		Where("owner_id = ?", ownerID.String()).
		Where("id = ?", productID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, reservoir.ErrProductNotFound
		}
		return nil, err
	}
	return fromProductModel(m)
}

func (s *Store) ListProducts(ctx context.Context, ownerID id.OwnerID) ([]*product.Product, error) {
	var models []productModel
	err := s.sdb.NewSelect(&models).
		Where("owner_id = ?", ownerID.String()).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
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
	res, err := s.sdb.NewDelete((*productModel)(nil)).
		Where("owner_id = ?", ownerID.String()).
		Where("id = ?", productID).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return reservoir.ErrProductNotFound
	}
	return nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", subID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, reservoir.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) ListSubscriptions(ctx context.Context, ownerID id.OwnerID) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	err := s.sdb.NewSelect(&models).
		Where("owner_id = ?", ownerID.String()).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
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
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return reservoir.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) DeleteSubscription(ctx context.Context, subID id.SubscriptionID) error {
	_, err := s.sdb.NewDelete((*subscriptionModel)(nil)).
		Where("id = ?", subID.String()).
		Exec(ctx)
	return err
}

// ==================== Helpers ====================

// poolConflictOrMissing distinguishes a version mismatch from a missing
// row after a zero-rows conditional update.
func (s *Store) poolConflictOrMissing(ctx context.Context, poolID id.PoolID) error {
	m := new(poolModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", poolID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return reservoir.ErrPoolNotFound
		}
		return err
	}
	return reservoir.ErrVersionConflict
}

func fromEntitlementModels(models []entitlementModel) ([]*entitlement.Entitlement, error) {
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

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
