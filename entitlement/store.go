package entitlement

import (
	"context"

	"github.com/xraph/reservoir/id"
)

// Store is the persistence contract for entitlement records and the
// aggregate queries the consumption ledger is built on.
//
// Grant inserts the record only when the pool's stored version equals
// expectedPoolVersion, incrementing it in the same transaction. This is
// what makes the check-then-create admission sequence safe: two
// concurrent grants against the same bounded pool cannot both land on
// one unit of remaining capacity.
type Store interface {
	Grant(ctx context.Context, ent *Entitlement, expectedPoolVersion int64) error
	Revoke(ctx context.Context, entitlementID id.EntitlementID) (*Entitlement, error)
	Get(ctx context.Context, entitlementID id.EntitlementID) (*Entitlement, error)
	ListByPool(ctx context.Context, poolID id.PoolID) ([]*Entitlement, error)
	ListByConsumer(ctx context.Context, consumerID id.ConsumerID) ([]*Entitlement, error)

	// SumConsumed returns the quantity aggregate across all
	// entitlements drawn from the pool; zero when none exist.
	SumConsumed(ctx context.Context, poolID id.PoolID) (int64, error)

	// SumExported is SumConsumed restricted to entitlements held by
	// manifest-type consumers; same zero-default rule.
	SumExported(ctx context.Context, poolID id.PoolID) (int64, error)

	// CountStack returns the number of remaining entitlements in the
	// given consumer's stack. Zero means the stack is empty and any
	// derived pool backed by it is a cleanup candidate.
	CountStack(ctx context.Context, consumerID id.ConsumerID, stackID string) (int64, error)
}
