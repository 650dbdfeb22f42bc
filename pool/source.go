package pool

import "github.com/xraph/reservoir/id"

// SourceStack links a stack-derived pool back to the stack that
// produced it. A given stack may have at most one derived pool; the
// store enforces uniqueness on (source consumer, stack id).
type SourceStack struct {
	// StackID is the shared stacking key grouping the source
	// entitlements.
	StackID string `json:"stack_id"`

	// SourceConsumerID is the consumer whose stacked entitlements back
	// this pool.
	SourceConsumerID id.ConsumerID `json:"source_consumer_id"`
}

// SourceSubscription links a pool to the subscription it was created
// from. Only one pool per (subscription id, sub-key) is allowed.
type SourceSubscription struct {
	SubscriptionID string `json:"subscription_id"`

	// SubKey distinguishes multiple pools spawned from one
	// subscription; the primary pool uses "master".
	SubKey string `json:"sub_key"`
}

// PrimarySubKey is the sub-key of the pool created 1:1 with a
// subscription.
const PrimarySubKey = "master"

// Kind tags the Source variant.
type Kind string

const (
	// Unsourced is a pool with no source linkage at all.
	Unsourced Kind = "unsourced"

	// FromEntitlement is a pool whose lifecycle follows a single
	// source entitlement.
	FromEntitlement Kind = "entitlement"

	// FromStack is a pool whose lifecycle follows an entitlement
	// stack.
	FromStack Kind = "stack"

	// FromSubscription is a pool created directly from a subscription.
	FromSubscription Kind = "subscription"
)

// Source is the tagged-variant view of a pool's origin. Business logic
// should branch on Kind rather than probing the three nullable
// references directly; the variant eliminates the "more than one set"
// case at the API boundary by fixed precedence: entitlement, then
// stack, then subscription.
type Source struct {
	Kind          Kind
	EntitlementID id.EntitlementID
	Stack         *SourceStack
	Subscription  *SourceSubscription
}

// Source collapses the pool's source references into a tagged variant.
func (p *Pool) Source() Source {
	switch {
	case !p.SourceEntitlementID.IsNil():
		return Source{Kind: FromEntitlement, EntitlementID: p.SourceEntitlementID}
	case p.SourceStack != nil:
		return Source{Kind: FromStack, Stack: p.SourceStack}
	case p.SourceSubscription != nil:
		return Source{Kind: FromSubscription, Subscription: p.SourceSubscription}
	default:
		return Source{Kind: Unsourced}
	}
}

// SetSourceEntitlement links the pool to a single source entitlement.
func (p *Pool) SetSourceEntitlement(entitlementID id.EntitlementID) {
	p.SourceEntitlementID = entitlementID
}

// SetSourceStack links the pool to an entitlement stack. Setting a
// non-nil stack invalidates any source subscription.
func (p *Pool) SetSourceStack(stack *SourceStack) {
	if stack != nil {
		p.SourceSubscription = nil
	}
	p.SourceStack = stack
}

// SetSourceSubscription links the pool to a subscription.
func (p *Pool) SetSourceSubscription(sub *SourceSubscription) {
	p.SourceSubscription = sub
}

// SubscriptionID returns the linked subscription id, or empty when the
// pool has no subscription source.
func (p *Pool) SubscriptionID() string {
	if p.SourceSubscription == nil {
		return ""
	}
	return p.SourceSubscription.SubscriptionID
}

// SubscriptionSubKey returns the linked subscription sub-key, or empty.
func (p *Pool) SubscriptionSubKey() string {
	if p.SourceSubscription == nil {
		return ""
	}
	return p.SourceSubscription.SubKey
}

// SetSubscriptionID sets the subscription id component of the source
// subscription, creating the linkage on first use. Clearing both the
// id and sub-key removes the linkage entirely: a blank source
// subscription is treated as no subscription source.
func (p *Pool) SetSubscriptionID(subID string) {
	if p.SourceSubscription == nil && subID != "" {
		p.SourceSubscription = &SourceSubscription{}
	}
	if p.SourceSubscription != nil {
		p.SourceSubscription.SubscriptionID = subID
		if p.SourceSubscription.SubscriptionID == "" && p.SourceSubscription.SubKey == "" {
			p.SourceSubscription = nil
		}
	}
}

// SetSubscriptionSubKey sets the sub-key component of the source
// subscription, with the same blank-clearing rule as SetSubscriptionID.
func (p *Pool) SetSubscriptionSubKey(subKey string) {
	if p.SourceSubscription == nil && subKey != "" {
		p.SourceSubscription = &SourceSubscription{}
	}
	if p.SourceSubscription != nil {
		p.SourceSubscription.SubKey = subKey
		if p.SourceSubscription.SubscriptionID == "" && p.SourceSubscription.SubKey == "" {
			p.SourceSubscription = nil
		}
	}
}

// SourceStackID returns the linked stack id, or empty when the pool has
// no stack source.
func (p *Pool) SourceStackID() string {
	if p.SourceStack == nil {
		return ""
	}
	return p.SourceStack.StackID
}

// SourceConsumerID resolves the consumer a derived pool originates
// from: the source stack's consumer for stack-derived pools. For
// entitlement-derived pools the consumer lives on the source
// entitlement record and must be resolved through the store.
func (p *Pool) SourceConsumerID() id.ConsumerID {
	if p.SourceStack != nil {
		return p.SourceStack.SourceConsumerID
	}
	return id.Nil
}
