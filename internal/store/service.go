// Package store defines the resource service contract the framework delegates
// persistence to, plus two reference implementations: an in-memory store used
// by tests and the example server, and a Postgres-backed store.
package store

import (
	"context"

	"github.com/junction-api/junction/internal/query"
)

// Identifier names one resource instance. LocalID carries a client-chosen
// placeholder inside an atomic operations batch before the real ID is known.
type Identifier struct {
	Type    string
	ID      string
	LocalID string
}

// Record is one resource instance: attribute values plus relationship
// linkage, keyed by public names from the resource graph.
type Record struct {
	Type    string
	ID      string
	LocalID string

	Attributes map[string]interface{}

	// ToOne maps relationship name to the related identifier; a present key
	// with a nil value clears the relationship
	ToOne map[string]*Identifier

	// ToMany maps relationship name to the related identifiers
	ToMany map[string][]*Identifier
}

// Identifier returns the record's own identifier
func (r *Record) Identifier() *Identifier {
	return &Identifier{Type: r.Type, ID: r.ID, LocalID: r.LocalID}
}

// Clone returns a deep copy of the record
func (r *Record) Clone() *Record {
	clone := &Record{
		Type:    r.Type,
		ID:      r.ID,
		LocalID: r.LocalID,
	}
	if r.Attributes != nil {
		clone.Attributes = make(map[string]interface{}, len(r.Attributes))
		for k, v := range r.Attributes {
			clone.Attributes[k] = v
		}
	}
	if r.ToOne != nil {
		clone.ToOne = make(map[string]*Identifier, len(r.ToOne))
		for k, v := range r.ToOne {
			if v == nil {
				clone.ToOne[k] = nil
				continue
			}
			copied := *v
			clone.ToOne[k] = &copied
		}
	}
	if r.ToMany != nil {
		clone.ToMany = make(map[string][]*Identifier, len(r.ToMany))
		for k, ids := range r.ToMany {
			copied := make([]*Identifier, len(ids))
			for i, id := range ids {
				c := *id
				copied[i] = &c
			}
			clone.ToMany[k] = copied
		}
	}
	return clone
}

// RelationshipValue is the right-hand side of a set-relationship operation.
// Exactly one of the two sides is meaningful, matching the relationship kind.
type RelationshipValue struct {
	ToOne  *Identifier
	ToMany []*Identifier
}

// Result is a materialized read: the primary records plus the included
// related records resolved from the request's include chains.
type Result struct {
	Primary  []*Record
	Included []*Record
	Total    int
}

// Service exposes the persistence operations the framework delegates to.
// Implementations return ResourceNotFoundError for unknown identifiers and
// respect ctx cancellation on every call.
type Service interface {
	List(ctx context.Context, resourceType string, spec *query.Specification) (*Result, error)
	Get(ctx context.Context, resourceType, id string, spec *query.Specification) (*Result, error)
	Create(ctx context.Context, record *Record) (*Record, error)
	Update(ctx context.Context, record *Record) (*Record, error)
	Delete(ctx context.Context, resourceType, id string) error
	SetRelationship(ctx context.Context, target *Identifier, relationship string, value RelationshipValue) error
	AddToRelationship(ctx context.Context, target *Identifier, relationship string, related []*Identifier) error
	RemoveFromRelationship(ctx context.Context, target *Identifier, relationship string, related []*Identifier) error
}

// TransactionRunner scopes a batch of service calls to one all-or-nothing
// transaction. The atomic operations pipeline runs every batch inside one
// WithTransaction call.
type TransactionRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
