package pool

// Type classifies a pool's behavioral category. Pools of different
// types have radically different lifecycle coupling.
type Type string

const (
	// TypeNormal is a regular pool, usually created 1:1 with a
	// subscription.
	TypeNormal Type = "normal"

	// TypeEntitlementDerived is a pool created as the result of a
	// consumer's use of an entitlement. Cleaned up when the source
	// entitlement is revoked.
	TypeEntitlementDerived Type = "entitlement_derived"

	// TypeStackDerived is a pool created as the result of a consumer's
	// use of a stack of entitlements. Cleaned up when the last
	// entitlement in the stack is revoked.
	TypeStackDerived Type = "stack_derived"

	// TypeBonus is a derived pool with neither a source entitlement nor
	// a source stack, e.g. hosted virtualization bonus pools.
	TypeBonus Type = "bonus"

	// TypeUnmappedGuest is a derived pool restricted to guests not yet
	// mapped to a host.
	TypeUnmappedGuest Type = "unmapped_guest"
)

// ComputeType derives the pool's classification from its attribute set
// and source linkage. It is a pure function of current state; the
// persisted Type field is a cache of this result and is refreshed on
// every create/update.
//
// The unmapped-guest marker is checked before source linkage: such
// pools may legitimately have neither a source entitlement nor a
// source stack and must not fall through to TypeBonus.
func (p *Pool) ComputeType() Type {
	if p.HasAttribute(AttrDerivedPool) {
		switch {
		case p.HasAttribute(AttrUnmappedGuestsOnly):
			return TypeUnmappedGuest
		case !p.SourceEntitlementID.IsNil():
			return TypeEntitlementDerived
		case p.SourceStack != nil:
			return TypeStackDerived
		default:
			return TypeBonus
		}
	}
	return TypeNormal
}

// RefreshType recomputes and stores the classification, returning it.
func (p *Pool) RefreshType() Type {
	p.Type = p.ComputeType()
	return p.Type
}

// Derived reports whether the pool carries the derived-pool marker.
func (p *Pool) Derived() bool {
	return p.HasAttribute(AttrDerivedPool)
}
