package reservoir

import "github.com/xraph/reservoir/types"

// Re-export common types for convenience so users don't have to import types package.

// Attributes is re-exported from types package.
type Attributes = types.Attributes

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export constructors
var (
	NewAttributes = types.NewAttributes
	NewEntity     = types.NewEntity
)
