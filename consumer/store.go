package consumer

import (
	"context"

	"github.com/xraph/reservoir/id"
)

// Store is the persistence contract for consumers.
type Store interface {
	Create(ctx context.Context, c *Consumer) error
	Get(ctx context.Context, consumerID id.ConsumerID) (*Consumer, error)
	List(ctx context.Context, ownerID id.OwnerID) ([]*Consumer, error)
	Update(ctx context.Context, c *Consumer) error
	Delete(ctx context.Context, consumerID id.ConsumerID) error
}
