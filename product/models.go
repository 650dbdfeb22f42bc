// Package product defines the product catalog records pools grant
// access to. Product ids are externally assigned SKUs, opaque to the
// engine.
package product

import (
	"github.com/xraph/reservoir/id"
	"github.com/xraph/reservoir/types"
)

// Product is a catalog entry. Its attribute set is the source snapshot
// copied onto pools at creation time, and its content set drives the
// modifies query.
type Product struct {
	types.Entity
	ID      string     `json:"id"`
	OwnerID id.OwnerID `json:"owner_id"`
	Name    string     `json:"name"`

	Attributes types.Attributes `json:"attributes,omitempty"`
	Content    []Content        `json:"content,omitempty"`

	// DependentProductIDs are products this one requires; consulted by
	// the rules evaluator, not by coverage.
	DependentProductIDs []string `json:"dependent_product_ids,omitempty"`
}

// Content is a content item attached to a product. ModifiedProductIDs
// lists the products whose content this item conditionally enables.
type Content struct {
	ID                 string   `json:"id"`
	Label              string   `json:"label"`
	Name               string   `json:"name,omitempty"`
	ModifiedProductIDs []string `json:"modified_product_ids,omitempty"`
}

// New creates a product with the given external id.
func New(ownerID id.OwnerID, productID, name string) *Product {
	return &Product{
		Entity:  types.NewEntity(),
		ID:      productID,
		OwnerID: ownerID,
		Name:    name,
	}
}

// Modifies reports whether any content item attached to this product
// declares productID among the product ids it modifies.
func (p *Product) Modifies(productID string) bool {
	for _, c := range p.Content {
		for _, mod := range c.ModifiedProductIDs {
			if mod == productID {
				return true
			}
		}
	}
	return false
}

// SetAttribute writes a product attribute, overwriting in place.
func (p *Product) SetAttribute(name, value string) {
	p.Attributes.Set(name, value)
}

// AddContent attaches a content item, replacing any existing item with
// the same content id.
func (p *Product) AddContent(c Content) {
	for i := range p.Content {
		if p.Content[i].ID == c.ID {
			p.Content[i] = c
			return
		}
	}
	p.Content = append(p.Content, c)
}
