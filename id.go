package reservoir

import "github.com/xraph/reservoir/id"

// ID is the primary identifier type for all Reservoir entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
