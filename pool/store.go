package pool

import (
	"context"
	"time"

	"github.com/xraph/reservoir/id"
)

// Store is the persistence contract for pools. Update takes the
// caller's expected version; implementations must reject the write when
// the stored version differs, so concurrent admission sequences against
// the same pool serialize through conflict-and-retry.
type Store interface {
	Create(ctx context.Context, p *Pool) error
	Get(ctx context.Context, poolID id.PoolID) (*Pool, error)
	List(ctx context.Context, ownerID id.OwnerID, opts ListOpts) ([]*Pool, error)
	Update(ctx context.Context, p *Pool, expectedVersion int64) error
	Delete(ctx context.Context, poolID id.PoolID) error
	MarkForDelete(ctx context.Context, poolID id.PoolID) error

	// Source-linkage lookups used by the derived-pool cleanup
	// predicate.
	GetBySourceEntitlement(ctx context.Context, entitlementID id.EntitlementID) (*Pool, error)
	GetBySourceStack(ctx context.Context, consumerID id.ConsumerID, stackID string) (*Pool, error)
	GetBySubscription(ctx context.Context, subscriptionID, subKey string) (*Pool, error)
}

// ListOpts filters pool listings. Marked-for-delete pools are excluded
// unless IncludeMarked is set.
type ListOpts struct {
	Type          Type
	ProductID     string
	ActiveOn      time.Time
	IncludeMarked bool
	Limit         int
	Offset        int
}
