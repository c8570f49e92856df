// Package idgen generates the stable identifiers used for every persistent
// entity in the document (features, sketch points, entities, constraints).
// Ids must stay unique under replication from multiple peers that mint them
// independently, so it generates RFC 4122 UUIDs rather than short hash
// codes or counters.
package idgen

import (
	"github.com/paramforge/engine/internal/types"
)

// Service mints document ids. It is safe for concurrent use;
// uuid.NewString is itself concurrency-safe.
type Service struct{}

// NewService constructs an identifier service. There is no state to
// initialize today, but the constructor exists so callers depend on an
// injectable value rather than bare package functions.
func NewService() *Service {
	return &Service{}
}

// New returns a fresh, globally unique id.
func (s *Service) New() types.ID {
	return types.NewID()
}

// NewN returns n fresh, globally unique ids.
func (s *Service) NewN(n int) []types.ID {
	ids := make([]types.ID, n)
	for i := range ids {
		ids[i] = types.NewID()
	}
	return ids
}
