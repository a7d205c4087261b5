package atomic

import "github.com/junction-api/junction/internal/jsonapierr"

type localKey struct {
	localID  string
	typeName string
}

// LocalIDTracker tracks the declaration, assignment and resolution of
// client-supplied placeholder identifiers within one atomic operations
// batch. State is scoped to one request; every request gets a fresh
// instance and the tracker is never shared across concurrent requests.
type LocalIDTracker struct {
	declared map[localKey]struct{}
	assigned map[localKey]string
}

// NewLocalIDTracker creates an empty tracker
func NewLocalIDTracker() *LocalIDTracker {
	t := &LocalIDTracker{}
	t.Reset()
	return t
}

// Reset clears all declarations and assignments
func (t *LocalIDTracker) Reset() {
	t.declared = make(map[localKey]struct{})
	t.assigned = make(map[localKey]string)
}

// Declare records a local ID introduced by a create operation. Declaring the
// same ID twice within one batch is an error.
func (t *LocalIDTracker) Declare(typeName, localID string) error {
	key := localKey{localID: localID, typeName: typeName}
	if _, exists := t.declared[key]; exists {
		return &jsonapierr.LocalIdAlreadyDeclaredError{LocalID: localID}
	}
	t.declared[key] = struct{}{}
	return nil
}

// IsDeclared reports whether the local ID was declared earlier in the batch
func (t *LocalIDTracker) IsDeclared(typeName, localID string) bool {
	_, ok := t.declared[localKey{localID: localID, typeName: typeName}]
	return ok
}

// Assign stores the server-generated identifier produced when the declaring
// create operation executed
func (t *LocalIDTracker) Assign(typeName, localID, id string) error {
	key := localKey{localID: localID, typeName: typeName}
	if _, ok := t.declared[key]; !ok {
		return &jsonapierr.LocalIdNotFoundError{LocalID: localID}
	}
	t.assigned[key] = id
	return nil
}

// Resolve returns the server-generated identifier for a local ID. The value
// is only available after the declaring create operation has executed.
func (t *LocalIDTracker) Resolve(typeName, localID string) (string, error) {
	id, ok := t.assigned[localKey{localID: localID, typeName: typeName}]
	if !ok {
		return "", &jsonapierr.LocalIdNotFoundError{LocalID: localID}
	}
	return id, nil
}
