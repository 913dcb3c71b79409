package gate

import "github.com/MaherFayad/ga-gate/id"

// ID is the primary identifier type for all gate entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

// RequestID identifies a queued request.
type RequestID = id.RequestID
