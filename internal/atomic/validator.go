package atomic

import (
	"fmt"

	"github.com/junction-api/junction/internal/jsonapierr"
	"github.com/junction-api/junction/internal/store"
)

// Validator checks declare-before-reference ordering of local IDs across one
// operations list. The check is purely structural: it runs as a single
// forward pass before any operation executes, so every reference error in
// the batch is caught up front and the batch aborts untouched.
type Validator struct{}

// NewValidator creates a validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate walks the list in document order. Any failure is wrapped with the
// zero-based operation index so the error pointer reads
// /atomic:operations[<n>].
func (v *Validator) Validate(operations []*OperationContainer) error {
	tracker := NewLocalIDTracker()

	for index, operation := range operations {
		if err := v.validateOperation(operation, tracker); err != nil {
			return &jsonapierr.OperationError{Index: index, Inner: err}
		}
	}
	return nil
}

func (v *Validator) validateOperation(operation *OperationContainer, tracker *LocalIDTracker) error {
	switch operation.Kind {
	case DeleteResource, SetRelationship, AddToRelationship, RemoveFromRelationship:
		if operation.Ref == nil {
			return &jsonapierr.ErrorObject{
				Status: "400",
				Title:  "Invalid operation.",
				Detail: fmt.Sprintf("%s operations require a ref", operation.Kind),
			}
		}
	}

	// References are checked before a create declares its own local ID, so
	// an operation can never reference itself.
	if err := v.checkResourceReferences(operation.Resource, tracker); err != nil {
		return err
	}

	if operation.Ref != nil && operation.Ref.LocalID != "" {
		if !tracker.IsDeclared(operation.Ref.Type, operation.Ref.LocalID) {
			return &jsonapierr.LocalIdNotFoundError{LocalID: operation.Ref.LocalID}
		}
	}

	if operation.RightToOne != nil {
		if err := v.checkIdentifier(operation.RightToOne, tracker); err != nil {
			return err
		}
	}
	for _, identifier := range operation.RightToMany {
		if err := v.checkIdentifier(identifier, tracker); err != nil {
			return err
		}
	}

	if operation.Kind == CreateResource && operation.Resource != nil && operation.Resource.LocalID != "" {
		return tracker.Declare(operation.Resource.Type, operation.Resource.LocalID)
	}
	return nil
}

func (v *Validator) checkResourceReferences(record *store.Record, tracker *LocalIDTracker) error {
	if record == nil {
		return nil
	}
	for _, identifier := range record.ToOne {
		if identifier == nil {
			continue
		}
		if err := v.checkIdentifier(identifier, tracker); err != nil {
			return err
		}
	}
	for _, identifiers := range record.ToMany {
		for _, identifier := range identifiers {
			if err := v.checkIdentifier(identifier, tracker); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *Validator) checkIdentifier(identifier *store.Identifier, tracker *LocalIDTracker) error {
	if identifier.LocalID == "" {
		return nil
	}
	if !tracker.IsDeclared(identifier.Type, identifier.LocalID) {
		return &jsonapierr.LocalIdNotFoundError{LocalID: identifier.LocalID}
	}
	return nil
}
