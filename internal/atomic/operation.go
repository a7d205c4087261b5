// Package atomic implements the atomic operations extension: ordered batches
// of create/update/delete/relationship-change requests executed as one unit,
// with client-supplied local IDs tracked and substituted across the batch.
package atomic

import "github.com/junction-api/junction/internal/store"

// OperationKind identifies what one operation in a batch does
type OperationKind int

const (
	CreateResource OperationKind = iota
	UpdateResource
	DeleteResource
	SetRelationship
	AddToRelationship
	RemoveFromRelationship
)

// String returns the string representation of the operation kind
func (k OperationKind) String() string {
	switch k {
	case CreateResource:
		return "createResource"
	case UpdateResource:
		return "updateResource"
	case DeleteResource:
		return "deleteResource"
	case SetRelationship:
		return "setRelationship"
	case AddToRelationship:
		return "addToRelationship"
	case RemoveFromRelationship:
		return "removeFromRelationship"
	default:
		return "unknown"
	}
}

// Ref targets the resource (and optionally relationship) an operation acts
// on. Either ID or LocalID identifies the resource; Relationship is set for
// relationship operations only.
type Ref struct {
	Type         string
	ID           string
	LocalID      string
	Relationship string
}

// OperationContainer is one entry of an atomic operations list. It is
// created per incoming operation descriptor, consumed once by the processor
// matching its kind, and discarded when the request completes.
type OperationContainer struct {
	Kind OperationKind

	// Ref is the operation target; nil for creates, whose target is the
	// Resource payload itself
	Ref *Ref

	// Resource is the primary payload for create and update operations. For
	// creates it may carry a client-chosen local ID.
	Resource *store.Record

	// Right-hand side of a relationship operation. Which side is meaningful
	// follows the relationship kind in the resource graph.
	RightToOne  *store.Identifier
	RightToMany []*store.Identifier
}
