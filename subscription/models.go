// Package subscription defines the upstream subscription records that
// normal pools are created from.
package subscription

import (
	"time"

	"github.com/xraph/reservoir/id"
	"github.com/xraph/reservoir/types"
)

// Subscription is an upstream purchase backing one or more pools.
// The primary pool is created 1:1 with the subscription; quantity
// changes here propagate to pools administratively and may leave a
// bounded pool overflowing.
type Subscription struct {
	types.Entity
	ID      id.SubscriptionID `json:"id"`
	OwnerID id.OwnerID        `json:"owner_id"`

	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`

	Quantity  int64     `json:"quantity"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`

	ContractNumber string `json:"contract_number,omitempty"`
	AccountNumber  string `json:"account_number,omitempty"`
	OrderNumber    string `json:"order_number,omitempty"`

	ProvidedProductIDs []string `json:"provided_product_ids,omitempty"`

	DerivedProductID          string   `json:"derived_product_id,omitempty"`
	DerivedProvidedProductIDs []string `json:"derived_provided_product_ids,omitempty"`
}

// New creates a subscription for the given product.
func New(ownerID id.OwnerID, productID string, quantity int64, start, end time.Time) *Subscription {
	return &Subscription{
		Entity:    types.NewEntity(),
		ID:        id.NewSubscriptionID(),
		OwnerID:   ownerID,
		ProductID: productID,
		Quantity:  quantity,
		StartDate: start,
		EndDate:   end,
	}
}
