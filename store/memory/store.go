// Package memory provides an in-memory Store for tests and demos. All
// data is lost when the process exits.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/xraph/reservoir"
	"github.com/xraph/reservoir/consumer"
	"github.com/xraph/reservoir/entitlement"
	"github.com/xraph/reservoir/id"
	"github.com/xraph/reservoir/pool"
	"github.com/xraph/reservoir/product"
	"github.com/xraph/reservoir/subscription"
)

type Store struct {
	mu sync.RWMutex

	// Pool storage
	pools map[string]*pool.Pool

	// Entitlement storage
	entitlements map[string]*entitlement.Entitlement

	// Consumer storage
	consumers map[string]*consumer.Consumer

	// Product storage, keyed owner:productID
	products map[string]*product.Product

	// Subscription storage
	subscriptions map[string]*subscription.Subscription
}

func New() *Store {
	return &Store{
		pools:         make(map[string]*pool.Pool),
		entitlements:  make(map[string]*entitlement.Entitlement),
		consumers:     make(map[string]*consumer.Consumer),
		products:      make(map[string]*product.Product),
		subscriptions: make(map[string]*subscription.Subscription),
	}
}

func productKey(ownerID id.OwnerID, productID string) string {
	return fmt.Sprintf("%s:%s", ownerID.String(), productID)
}

// copyPool detaches a pool from the store so callers observe a stable
// record, the way a row read works in the database backends. The copy
// is deep: a caller mutating its copy must go through UpdatePool, and a
// write that loses the version check leaves no trace.
func copyPool(p *pool.Pool) *pool.Pool {
	cp := *p
	cp.Attributes = p.Attributes.Clone()
	cp.ProductAttributes = p.ProductAttributes.Clone()
	cp.DerivedProductAttributes = p.DerivedProductAttributes.Clone()
	if p.ProvidedProducts != nil {
		cp.ProvidedProducts = append([]pool.ProvidedProduct(nil), p.ProvidedProducts...)
	}
	if p.DerivedProvidedProducts != nil {
		cp.DerivedProvidedProducts = append([]pool.ProvidedProduct(nil), p.DerivedProvidedProducts...)
	}
	if p.Branding != nil {
		cp.Branding = append([]pool.Branding(nil), p.Branding...)
	}
	if p.SourceStack != nil {
		stack := *p.SourceStack
		cp.SourceStack = &stack
	}
	if p.SourceSubscription != nil {
		sub := *p.SourceSubscription
		cp.SourceSubscription = &sub
	}
	if p.CalculatedAttributes != nil {
		calc := make(map[string]string, len(p.CalculatedAttributes))
		for k, v := range p.CalculatedAttributes {
			calc[k] = v
		}
		cp.CalculatedAttributes = calc
	}
	return &cp
}

// copyEntitlement detaches an entitlement record from the store.
func copyEntitlement(ent *entitlement.Entitlement) *entitlement.Entitlement {
	cp := *ent
	return &cp
}

// Pool Store implementation
func (s *Store) CreatePool(_ context.Context, p *pool.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pools[p.ID.String()]; exists {
		return reservoir.ErrAlreadyExists
	}
	s.pools[p.ID.String()] = copyPool(p)
	return nil
}

func (s *Store) GetPool(_ context.Context, poolID id.PoolID) (*pool.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.pools[poolID.String()]; ok {
		return copyPool(p), nil
	}
	return nil, reservoir.ErrPoolNotFound
}

func (s *Store) ListPools(_ context.Context, ownerID id.OwnerID, opts pool.ListOpts) ([]*pool.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*pool.Pool, 0)
	for _, p := range s.pools {
		if p.OwnerID != ownerID {
			continue
		}
		if p.MarkedForDelete && !opts.IncludeMarked {
			continue
		}
		if opts.Type != "" && p.Type != opts.Type {
			continue
		}
		if opts.ProductID != "" && p.ProductID != opts.ProductID {
			continue
		}
		if !opts.ActiveOn.IsZero() && !p.ActiveAt(opts.ActiveOn) {
			continue
		}
		result = append(result, copyPool(p))
	}

	// Apply limit/offset
	start := opts.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

func (s *Store) UpdatePool(_ context.Context, p *pool.Pool, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.pools[p.ID.String()]
	if !ok {
		return reservoir.ErrPoolNotFound
	}
	if existing.Version != expectedVersion {
		return reservoir.ErrVersionConflict
	}

	stored := copyPool(p)
	stored.Version = expectedVersion + 1
	s.pools[p.ID.String()] = stored
	return nil
}

func (s *Store) DeletePool(_ context.Context, poolID id.PoolID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pools, poolID.String())
	return nil
}

func (s *Store) MarkPoolForDelete(_ context.Context, poolID id.PoolID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, exists := s.pools[poolID.String()]; exists {
		p.MarkedForDelete = true
		p.Version++
		return nil
	}
	return reservoir.ErrPoolNotFound
}

func (s *Store) GetPoolBySourceEntitlement(_ context.Context, entitlementID id.EntitlementID) (*pool.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.pools {
		if p.SourceEntitlementID == entitlementID && !p.SourceEntitlementID.IsNil() {
			return copyPool(p), nil
		}
	}
	return nil, reservoir.ErrPoolNotFound
}

func (s *Store) GetPoolBySourceStack(_ context.Context, consumerID id.ConsumerID, stackID string) (*pool.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.pools {
		if p.SourceStack != nil &&
			p.SourceStack.SourceConsumerID == consumerID &&
			p.SourceStack.StackID == stackID {
			return copyPool(p), nil
		}
	}
	return nil, reservoir.ErrPoolNotFound
}

func (s *Store) GetPoolBySubscription(_ context.Context, subscriptionID, subKey string) (*pool.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.pools {
		if p.SourceSubscription != nil &&
			p.SourceSubscription.SubscriptionID == subscriptionID &&
			p.SourceSubscription.SubKey == subKey {
			return copyPool(p), nil
		}
	}
	return nil, reservoir.ErrPoolNotFound
}

// Entitlement Store implementation
func (s *Store) GrantEntitlement(_ context.Context, ent *entitlement.Entitlement, expectedPoolVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pools[ent.PoolID.String()]
	if !ok {
		return reservoir.ErrPoolNotFound
	}
	if p.Version != expectedPoolVersion {
		return reservoir.ErrVersionConflict
	}
	if _, exists := s.entitlements[ent.ID.String()]; exists {
		return reservoir.ErrAlreadyExists
	}

	p.Version++
	s.entitlements[ent.ID.String()] = copyEntitlement(ent)
	return nil
}

func (s *Store) RevokeEntitlement(_ context.Context, entitlementID id.EntitlementID) (*entitlement.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entitlements[entitlementID.String()]
	if !ok {
		return nil, reservoir.ErrEntitlementNotFound
	}
	delete(s.entitlements, entitlementID.String())

	if p, exists := s.pools[ent.PoolID.String()]; exists {
		p.Version++
	}
	return copyEntitlement(ent), nil
}

func (s *Store) GetEntitlement(_ context.Context, entitlementID id.EntitlementID) (*entitlement.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ent, ok := s.entitlements[entitlementID.String()]; ok {
		return copyEntitlement(ent), nil
	}
	return nil, reservoir.ErrEntitlementNotFound
}

func (s *Store) ListEntitlementsByPool(_ context.Context, poolID id.PoolID) ([]*entitlement.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*entitlement.Entitlement, 0)
	for _, ent := range s.entitlements {
		if ent.PoolID == poolID {
			result = append(result, copyEntitlement(ent))
		}
	}
	return result, nil
}

func (s *Store) ListEntitlementsByConsumer(_ context.Context, consumerID id.ConsumerID) ([]*entitlement.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*entitlement.Entitlement, 0)
	for _, ent := range s.entitlements {
		if ent.ConsumerID == consumerID {
			result = append(result, copyEntitlement(ent))
		}
	}
	return result, nil
}

func (s *Store) SumConsumed(_ context.Context, poolID id.PoolID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, ent := range s.entitlements {
		if ent.PoolID == poolID {
			total += ent.Quantity
		}
	}
	return total, nil
}

func (s *Store) SumExported(_ context.Context, poolID id.PoolID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, ent := range s.entitlements {
		if ent.PoolID != poolID {
			continue
		}
		c, ok := s.consumers[ent.ConsumerID.String()]
		if ok && c.Type.Manifest {
			total += ent.Quantity
		}
	}
	return total, nil
}

func (s *Store) CountStack(_ context.Context, consumerID id.ConsumerID, stackID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, ent := range s.entitlements {
		if ent.ConsumerID == consumerID && ent.StackID == stackID && ent.StackID != "" {
			count++
		}
	}
	return count, nil
}

// Consumer Store implementation
func (s *Store) CreateConsumer(_ context.Context, c *consumer.Consumer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.consumers[c.ID.String()]; exists {
		return reservoir.ErrAlreadyExists
	}
	s.consumers[c.ID.String()] = c
	return nil
}

func (s *Store) GetConsumer(_ context.Context, consumerID id.ConsumerID) (*consumer.Consumer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.consumers[consumerID.String()]; ok {
		return c, nil
	}
	return nil, reservoir.ErrConsumerNotFound
}

func (s *Store) ListConsumers(_ context.Context, ownerID id.OwnerID) ([]*consumer.Consumer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*consumer.Consumer, 0)
	for _, c := range s.consumers {
		if c.OwnerID == ownerID {
			result = append(result, c)
		}
	}
	return result, nil
}

func (s *Store) UpdateConsumer(_ context.Context, c *consumer.Consumer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.consumers[c.ID.String()]; !exists {
		return reservoir.ErrConsumerNotFound
	}
	s.consumers[c.ID.String()] = c
	return nil
}

func (s *Store) DeleteConsumer(_ context.Context, consumerID id.ConsumerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.consumers, consumerID.String())
	return nil
}

// Product Store implementation
func (s *Store) UpsertProduct(_ context.Context, p *product.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.products[productKey(p.OwnerID, p.ID)] = p
	return nil
}

func (s *Store) GetProduct(_ context.Context, ownerID id.OwnerID, productID string) (*product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.products[productKey(ownerID, productID)]; ok {
		return p, nil
	}
	return nil, reservoir.ErrProductNotFound
}

func (s *Store) ListProducts(_ context.Context, ownerID id.OwnerID) ([]*product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*product.Product, 0)
	for _, p := range s.products {
		if p.OwnerID == ownerID {
			result = append(result, p)
		}
	}
	return result, nil
}

func (s *Store) DeleteProduct(_ context.Context, ownerID id.OwnerID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.products, productKey(ownerID, productID))
	return nil
}

// Subscription Store implementation
func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; exists {
		return reservoir.ErrAlreadyExists
	}
	s.subscriptions[sub.ID.String()] = sub
	return nil
}

func (s *Store) GetSubscription(_ context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[subID.String()]; ok {
		return sub, nil
	}
	return nil, reservoir.ErrSubscriptionNotFound
}

func (s *Store) ListSubscriptions(_ context.Context, ownerID id.OwnerID) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if sub.OwnerID == ownerID {
			result = append(result, sub)
		}
	}
	return result, nil
}

func (s *Store) UpdateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; !exists {
		return reservoir.ErrSubscriptionNotFound
	}
	s.subscriptions[sub.ID.String()] = sub
	return nil
}

func (s *Store) DeleteSubscription(_ context.Context, subID id.SubscriptionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.subscriptions, subID.String())
	return nil
}

// Core Store implementation
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}
