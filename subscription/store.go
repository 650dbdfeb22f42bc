package subscription

import (
	"context"

	"github.com/xraph/reservoir/id"
)

// Store is the persistence contract for subscriptions.
type Store interface {
	Create(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, subscriptionID id.SubscriptionID) (*Subscription, error)
	List(ctx context.Context, ownerID id.OwnerID) ([]*Subscription, error)
	Update(ctx context.Context, s *Subscription) error
	Delete(ctx context.Context, subscriptionID id.SubscriptionID) error
}
