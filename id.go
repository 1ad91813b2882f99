package txq

import "github.com/siga-labs/txq/id"

// ID is the primary identifier type for all txq entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
