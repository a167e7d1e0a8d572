package mirror

import (
	"github.com/vmgrid/vmgrid-core/internal/entity"
)

// View is the read-only query surface over the registry, handed to the
// HTTP API and other observation consumers. All results are deep copies
// with registry semantics; nothing reachable through a View can mutate
// the mirror.
type View struct {
	registry *Registry
}

// NewView creates a read-only view over the registry.
func NewView(registry *Registry) *View {
	return &View{registry: registry}
}

// ListAll returns every entity matching the filter with its full
// snapshot.
func (v *View) ListAll(f Filter) []*entity.Entity {
	return v.registry.List(f)
}

// Get retrieves one entity by identity. Returns ErrNotFound when the
// identity is not registered.
func (v *View) Get(id entity.Identity) (*entity.Entity, error) {
	return v.registry.Get(id)
}

// GetProperty retrieves a single property value. Returns ErrNotFound or
// ErrUnknownProperty with the registry's semantics.
func (v *View) GetProperty(id entity.Identity, name string) (entity.Value, error) {
	return v.registry.GetProperty(id, name)
}
