package product

import (
	"context"

	"github.com/xraph/reservoir/id"
)

// Store is the persistence contract for products. Products are keyed
// by (owner, external product id).
type Store interface {
	Upsert(ctx context.Context, p *Product) error
	Get(ctx context.Context, ownerID id.OwnerID, productID string) (*Product, error)
	List(ctx context.Context, ownerID id.OwnerID) ([]*Product, error)
	Delete(ctx context.Context, ownerID id.OwnerID, productID string) error
}
