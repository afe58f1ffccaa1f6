package backend

import "github.com/DiOS-Analysis/Backend/id"

// ID is the identifier type for jobs and workers.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
