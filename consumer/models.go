// Package consumer defines the systems that draw entitlements from
// pools.
package consumer

import (
	"github.com/xraph/reservoir/id"
	"github.com/xraph/reservoir/types"
)

// Consumer is a system registered with an owner that consumes
// entitlements.
type Consumer struct {
	types.Entity
	ID       id.ConsumerID `json:"id"`
	OwnerID  id.OwnerID    `json:"owner_id"`
	Name     string        `json:"name"`
	Username string        `json:"username,omitempty"`
	Type     Type          `json:"type"`

	// Facts are reported system properties consulted by the rules
	// evaluator. Opaque to the engine.
	Facts map[string]string `json:"facts,omitempty"`
}

// Type categorizes a consumer. The Manifest flag marks distributor
// consumers whose entitlements count toward a pool's exported
// aggregate.
type Type struct {
	Label    string `json:"label"`
	Manifest bool   `json:"manifest"`
}

// Common consumer types.
var (
	TypeSystem      = Type{Label: "system"}
	TypeHypervisor  = Type{Label: "hypervisor"}
	TypeDistributor = Type{Label: "distributor", Manifest: true}
)

// New creates a consumer of the given type.
func New(ownerID id.OwnerID, name string, consumerType Type) *Consumer {
	return &Consumer{
		Entity:  types.NewEntity(),
		ID:      id.NewConsumerID(),
		OwnerID: ownerID,
		Name:    name,
		Type:    consumerType,
	}
}
