package pool

// Provides reports whether the pool grants access to productID: either
// as its primary product or through the provided-products set.
func (p *Pool) Provides(productID string) bool {
	if p.ProductID == productID {
		return true
	}
	for _, pp := range p.ProvidedProducts {
		if pp.ProductID == productID {
			return true
		}
	}
	return false
}

// ProvidesDerived reports whether a guest-facing sub-pool created from
// this pool would grant productID. When a derived product is
// configured, only the derived product and its derived-provided set are
// checked, with no fallback to the primary set: the derived side is a
// different product universe. When no derived product is configured,
// coverage is exactly what Provides answers.
func (p *Pool) ProvidesDerived(productID string) bool {
	if p.DerivedProductID == "" {
		return p.Provides(productID)
	}
	if p.DerivedProductID == productID {
		return true
	}
	for _, pp := range p.DerivedProvidedProducts {
		if pp.ProductID == productID {
			return true
		}
	}
	return false
}

// Stacked reports whether the pool's product participates in stacking.
func (p *Pool) Stacked() bool {
	return p.HasProductAttribute(AttrStackingID)
}

// StackingID returns the product's stacking key, or empty when the
// product does not stack.
func (p *Pool) StackingID() string {
	v, _ := p.ProductAttribute(AttrStackingID)
	return v
}
