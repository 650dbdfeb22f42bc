// Package entitlement defines the entitlement record: a grant of one
// or more units of a pool's capacity to a specific consumer.
package entitlement

import (
	"github.com/xraph/reservoir/id"
	"github.com/xraph/reservoir/types"
)

// Entitlement is a consumption record drawn from a pool. The pool's
// consumed aggregate is the sum of Quantity across its entitlements;
// these rows are the source of truth, never a stored counter.
type Entitlement struct {
	types.Entity
	ID         id.EntitlementID `json:"id"`
	PoolID     id.PoolID        `json:"pool_id"`
	ConsumerID id.ConsumerID    `json:"consumer_id"`
	OwnerID    id.OwnerID       `json:"owner_id"`

	// Quantity is the number of pool units this grant consumes.
	// Always positive.
	Quantity int64 `json:"quantity"`

	// StackID is the stacking key of the pool's product at grant time,
	// empty for non-stacking products. Denormalized so stack
	// membership queries need no product lookup.
	StackID string `json:"stack_id,omitempty"`
}

// New creates an entitlement of quantity units from the given pool.
func New(poolID id.PoolID, consumerID id.ConsumerID, ownerID id.OwnerID, quantity int64) *Entitlement {
	return &Entitlement{
		Entity:     types.NewEntity(),
		ID:         id.NewEntitlementID(),
		PoolID:     poolID,
		ConsumerID: consumerID,
		OwnerID:    ownerID,
		Quantity:   quantity,
	}
}
