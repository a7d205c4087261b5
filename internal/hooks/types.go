// Package hooks provides before/after lifecycle callbacks for resource
// types, with a capability registry resolved at startup and an executor that
// traverses materialized read results.
package hooks

import (
	"context"

	"github.com/junction-api/junction/internal/store"
)

// Kind represents the lifecycle moment a hook runs at
type Kind int

const (
	BeforeCreate Kind = iota
	AfterCreate
	BeforeUpdate
	AfterUpdate
	BeforeDelete
	AfterDelete
	AfterRead
)

// String returns the string representation of the hook kind
func (k Kind) String() string {
	switch k {
	case BeforeCreate:
		return "before_create"
	case AfterCreate:
		return "after_create"
	case BeforeUpdate:
		return "before_update"
	case AfterUpdate:
		return "after_update"
	case BeforeDelete:
		return "before_delete"
	case AfterDelete:
		return "after_delete"
	case AfterRead:
		return "after_read"
	default:
		return "unknown"
	}
}

// Func is one lifecycle callback. It receives every instance of its resource
// type participating at one level of the request, plus a flag telling
// whether the level is a descendant (included) rather than primary.
type Func func(ctx context.Context, records []*store.Record, isDescendant bool) error

// Container holds the hooks implemented for one resource type. A nil entry
// means the hook kind is not implemented; traversal still continues into
// child levels.
type Container struct {
	funcs map[Kind]Func
}

// NewContainer creates an empty hook container
func NewContainer() *Container {
	return &Container{funcs: make(map[Kind]Func)}
}

// On sets the callback for one hook kind
func (c *Container) On(kind Kind, fn Func) *Container {
	c.funcs[kind] = fn
	return c
}

// Get returns the callback for a kind, or nil when not implemented
func (c *Container) Get(kind Kind) Func {
	return c.funcs[kind]
}
