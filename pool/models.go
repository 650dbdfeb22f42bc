// Package pool implements the entitlement pool model: a bounded or
// unlimited allocation of rights to a product, scoped to an owning
// organization, with layered attribute sets, source linkage, and
// consumption accounting derived from entitlement records.
package pool

import (
	"time"

	"github.com/xraph/reservoir/id"
	"github.com/xraph/reservoir/types"
)

// Pool is the central entity. A pool is created either directly from a
// subscription (NORMAL) or synthesized by the entitlement issuance
// workflow (derived/bonus pools).
//
// Consumed and exported quantities are never stored on the pool; they
// are recomputed from entitlement records on every read. See Usage.
type Pool struct {
	types.Entity
	ID      id.PoolID  `json:"id"`
	OwnerID id.OwnerID `json:"owner_id"`

	// ActiveSubscription indicates the backing subscription is still live.
	ActiveSubscription bool `json:"active_subscription"`

	// Quantity is the capacity. A negative value (canonically -1)
	// means the pool is unlimited.
	Quantity int64 `json:"quantity"`

	// StartDate and EndDate bound the active window, inclusive.
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`

	// ProductID is the primary product this pool grants. Product ids
	// are externally assigned SKUs, opaque to the engine.
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`

	// DerivedProductID, when set, is the guest-facing product granted
	// by sub-pools spawned from this pool.
	DerivedProductID   string `json:"derived_product_id,omitempty"`
	DerivedProductName string `json:"derived_product_name,omitempty"`

	ProvidedProducts        []ProvidedProduct `json:"provided_products,omitempty"`
	DerivedProvidedProducts []ProvidedProduct `json:"derived_provided_products,omitempty"`

	// The three independent attribute sets. Product attributes are
	// copied from the originating product at pool-creation time, not
	// live-synced.
	Attributes               types.Attributes `json:"attributes,omitempty"`
	ProductAttributes        types.Attributes `json:"product_attributes,omitempty"`
	DerivedProductAttributes types.Attributes `json:"derived_product_attributes,omitempty"`

	// Source linkage. At most one of these is meaningful; the setters
	// clear competing sources opportunistically and Source() collapses
	// the three references into a tagged variant.
	SourceEntitlementID id.EntitlementID    `json:"source_entitlement_id,omitempty"`
	SourceStack         *SourceStack        `json:"source_stack,omitempty"`
	SourceSubscription  *SourceSubscription `json:"source_subscription,omitempty"`

	ContractNumber       string `json:"contract_number,omitempty"`
	AccountNumber        string `json:"account_number,omitempty"`
	OrderNumber          string `json:"order_number,omitempty"`
	RestrictedToUsername string `json:"restricted_to_username,omitempty"`

	// Branding triples are carried through to generated certificates
	// and have no effect on accounting.
	Branding []Branding `json:"branding,omitempty"`

	// Type is the persisted classification. It is a cache of
	// ComputeType, refreshed on every create/update.
	Type Type `json:"type"`

	// CalculatedAttributes are produced per-request by the external
	// rules evaluator. Never persisted.
	CalculatedAttributes map[string]string `json:"calculated_attributes,omitempty"`

	// Version is the optimistic-locking counter. Every successful
	// write path increments it; a mismatch on update is a conflict.
	Version int64 `json:"version"`

	// MarkedForDelete excludes the pool from active consideration
	// before physical deletion.
	MarkedForDelete bool `json:"marked_for_delete,omitempty"`
}

// ProvidedProduct is an additional product id granted alongside a
// pool's primary product.
type ProvidedProduct struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
}

// Branding is a (product id, type, name) triple carried through to
// certificates.
type Branding struct {
	ProductID string `json:"product_id"`
	Type      string `json:"type"`
	Name      string `json:"name"`
}

// Usage is the aggregate consumption of a pool, recomputed from
// entitlement records at read time.
type Usage struct {
	// Consumed is the sum of quantities across all entitlements drawn
	// from the pool. Never negative; absent aggregate reads as zero.
	Consumed int64 `json:"consumed"`

	// Exported is the subset of Consumed held by manifest-type
	// (distributor) consumers.
	Exported int64 `json:"exported"`
}

// New creates a pool with the given owner and primary product,
// bounded by quantity over [start, end].
func New(ownerID id.OwnerID, productID string, quantity int64, start, end time.Time) *Pool {
	return &Pool{
		Entity:             types.NewEntity(),
		ID:                 id.NewPoolID(),
		OwnerID:            ownerID,
		ActiveSubscription: true,
		ProductID:          productID,
		Quantity:           quantity,
		StartDate:          start,
		EndDate:            end,
	}
}

// Unlimited reports whether the pool has no enforced capacity ceiling.
// Any negative quantity is unlimited regardless of consumption.
func (p *Pool) Unlimited() bool {
	return p.Quantity < 0
}

// Available reports whether requested additional units fit within the
// pool's capacity given the current consumed aggregate. Unlimited pools
// always have room, and a request for zero units always succeeds even
// on an overflowing pool: only new consumption is checked against the
// remaining headroom. The result is advisory at check time; the storage
// layer serializes concurrent admission via the version counter.
func (p *Pool) Available(consumed, requested int64) bool {
	if requested == 0 || p.Unlimited() {
		return true
	}
	return consumed+requested <= p.Quantity
}

// Overflowing reports whether a bounded pool's consumption exceeds its
// capacity. Overflow is a reportable state, not an error: it arises
// from out-of-band administrative changes and never invalidates
// existing entitlements. Unlimited pools are never overflowing.
func (p *Pool) Overflowing(consumed int64) bool {
	if p.Unlimited() {
		return false
	}
	return consumed > p.Quantity
}

// ExpiredAt reports whether the pool's end date is strictly before asOf.
func (p *Pool) ExpiredAt(asOf time.Time) bool {
	return p.EndDate.Before(asOf)
}

// ActiveAt reports whether asOf falls within the pool's inclusive
// [StartDate, EndDate] window.
func (p *Pool) ActiveAt(asOf time.Time) bool {
	return !asOf.Before(p.StartDate) && !asOf.After(p.EndDate)
}

// AddProvidedProduct adds productID to the provided-products set.
// Adding an id that is already present is a no-op.
func (p *Pool) AddProvidedProduct(productID, productName string) {
	for _, pp := range p.ProvidedProducts {
		if pp.ProductID == productID {
			return
		}
	}
	p.ProvidedProducts = append(p.ProvidedProducts, ProvidedProduct{
		ProductID:   productID,
		ProductName: productName,
	})
}

// AddDerivedProvidedProduct adds productID to the derived
// provided-products set. Adding an id that is already present is a no-op.
func (p *Pool) AddDerivedProvidedProduct(productID, productName string) {
	for _, pp := range p.DerivedProvidedProducts {
		if pp.ProductID == productID {
			return
		}
	}
	p.DerivedProvidedProducts = append(p.DerivedProvidedProducts, ProvidedProduct{
		ProductID:   productID,
		ProductName: productName,
	})
}

// AddBranding appends a branding triple, deduplicating exact matches.
func (p *Pool) AddBranding(b Branding) {
	for _, existing := range p.Branding {
		if existing == b {
			return
		}
	}
	p.Branding = append(p.Branding, b)
}
