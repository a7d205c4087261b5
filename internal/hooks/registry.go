package hooks

import (
	"fmt"

	"github.com/junction-api/junction/internal/jsonapierr"
)

// Registry maps resource type names to their hook containers. Registration
// happens at startup; defining hooks twice for one type is a configuration
// error, fatal at startup rather than per-request.
type Registry struct {
	containers map[string]*Container
}

// NewRegistry creates an empty hook registry
func NewRegistry() *Registry {
	return &Registry{containers: make(map[string]*Container)}
}

// Register associates a hook container with a resource type
func (r *Registry) Register(resourceType string, container *Container) error {
	if _, exists := r.containers[resourceType]; exists {
		return &jsonapierr.InvalidConfigurationError{
			Detail: fmt.Sprintf("hooks for resource type %q are defined more than once", resourceType),
		}
	}
	r.containers[resourceType] = container
	return nil
}

// Lookup returns the hook of the given kind for a resource type, or nil when
// the type has no container or the kind is not implemented
func (r *Registry) Lookup(resourceType string, kind Kind) Func {
	container, ok := r.containers[resourceType]
	if !ok {
		return nil
	}
	return container.Get(kind)
}
