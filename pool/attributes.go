package pool

// Well-known attribute names consulted by the classifier.
const (
	// AttrDerivedPool marks a pool derived from the use of an
	// entitlement or stack rather than created from a subscription.
	AttrDerivedPool = "pool_derived"

	// AttrUnmappedGuestsOnly identifies unmapped-guest pools. Only
	// meaningful alongside AttrDerivedPool.
	AttrUnmappedGuestsOnly = "unmapped_guests_only"

	// AttrStackingID is the product attribute grouping entitlements
	// into a stack.
	AttrStackingID = "stacking_id"
)

// Attribute returns the pool-level attribute value for name.
func (p *Pool) Attribute(name string) (string, bool) {
	return p.Attributes.Get(name)
}

// HasAttribute reports whether the pool-level set contains name.
func (p *Pool) HasAttribute(name string) bool {
	return p.Attributes.Has(name)
}

// AttributeEquals reports whether the pool-level attribute name exists
// and equals expected. Safe on pools with no attributes.
func (p *Pool) AttributeEquals(name, expected string) bool {
	return p.Attributes.Equals(name, expected)
}

// SetAttribute writes a pool-level attribute, overwriting in place.
func (p *Pool) SetAttribute(name, value string) {
	p.Attributes.Set(name, value)
}

// RemoveAttribute deletes a pool-level attribute, returning its last
// known value. The second return is false when the name was absent.
func (p *Pool) RemoveAttribute(name string) (string, bool) {
	return p.Attributes.Remove(name)
}

// ProductAttribute returns the product-level attribute value for name.
func (p *Pool) ProductAttribute(name string) (string, bool) {
	return p.ProductAttributes.Get(name)
}

// HasProductAttribute reports whether the product-level set contains name.
func (p *Pool) HasProductAttribute(name string) bool {
	return p.ProductAttributes.Has(name)
}

// SetProductAttribute writes a product-level attribute, overwriting in
// place. Product attributes are a snapshot taken at pool creation; this
// is an administrative override, not a sync with the product record.
func (p *Pool) SetProductAttribute(name, value string) {
	p.ProductAttributes.Set(name, value)
}

// DerivedProductAttribute returns the derived-product attribute value
// for name. Derived attributes describe the guest-facing product and
// are only reachable through this accessor; they never participate in
// merged resolution.
func (p *Pool) DerivedProductAttribute(name string) (string, bool) {
	return p.DerivedProductAttributes.Get(name)
}

// HasDerivedProductAttribute reports whether the derived-product set
// contains name.
func (p *Pool) HasDerivedProductAttribute(name string) bool {
	return p.DerivedProductAttributes.Has(name)
}

// SetDerivedProductAttribute writes a derived-product attribute,
// overwriting in place.
func (p *Pool) SetDerivedProductAttribute(name, value string) {
	p.DerivedProductAttributes.Set(name, value)
}

// MergedAttribute resolves name against pool-level attributes first,
// falling back to product-level attributes. Pool attributes are point
// overrides for this pool instance and win over the defaults copied
// from the product. Derived-product attributes are never consulted.
func (p *Pool) MergedAttribute(name string) (string, bool) {
	if v, ok := p.Attributes.Get(name); ok {
		return v, true
	}
	return p.ProductAttributes.Get(name)
}

// HasMergedAttribute reports whether name resolves through
// MergedAttribute.
func (p *Pool) HasMergedAttribute(name string) bool {
	_, ok := p.MergedAttribute(name)
	return ok
}
