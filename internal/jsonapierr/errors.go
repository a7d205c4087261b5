// Package jsonapierr defines the error vocabulary surfaced to API clients.
// Every error that crosses the HTTP boundary renders as one or more JSON:API
// error objects with a source pointer or parameter, never as raw internal detail.
package jsonapierr

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorSource identifies the part of the request an error originates from.
// Pointer is a JSON pointer into the request document; Parameter names a
// query string parameter. At most one of the two is set.
type ErrorSource struct {
	Pointer   string `json:"pointer,omitempty"`
	Parameter string `json:"parameter,omitempty"`
}

// ErrorObject is a single entry in a JSON:API error document.
type ErrorObject struct {
	Status string       `json:"status,omitempty"`
	Title  string       `json:"title,omitempty"`
	Detail string       `json:"detail,omitempty"`
	Source *ErrorSource `json:"source,omitempty"`
}

// Error implements the error interface.
func (e *ErrorObject) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Title, e.Detail)
	}
	return e.Title
}

// Documenter is implemented by errors that know how to render themselves as
// JSON:API error objects.
type Documenter interface {
	error
	Objects() []*ErrorObject
}

// Objects implements Documenter for a bare ErrorObject.
func (e *ErrorObject) Objects() []*ErrorObject {
	return []*ErrorObject{e}
}

// StatusCode returns the numeric HTTP status for a list of error objects.
// When the objects disagree, the generic 4xx/5xx family code is used,
// matching the JSON:API recommendation for heterogeneous error documents.
func StatusCode(objects []*ErrorObject) int {
	if len(objects) == 0 {
		return http.StatusInternalServerError
	}

	status := objects[0].Status
	for _, object := range objects[1:] {
		if object.Status != status {
			if strings.HasPrefix(status, "5") || strings.HasPrefix(object.Status, "5") {
				return http.StatusInternalServerError
			}
			return http.StatusBadRequest
		}
	}

	var code int
	if _, err := fmt.Sscanf(status, "%d", &code); err != nil || code < 100 {
		return http.StatusInternalServerError
	}
	return code
}

// QueryParseError reports malformed query string syntax. Parse errors are
// structurally fatal: the aggregator stops dispatching further parameters.
type QueryParseError struct {
	Parameter string
	Detail    string
}

// Error implements the error interface.
func (e *QueryParseError) Error() string {
	return fmt.Sprintf("failed to parse query string parameter %q: %s", e.Parameter, e.Detail)
}

// Objects implements Documenter.
func (e *QueryParseError) Objects() []*ErrorObject {
	return []*ErrorObject{{
		Status: "400",
		Title:  "Failed to parse query string parameter.",
		Detail: e.Detail,
		Source: &ErrorSource{Parameter: e.Parameter},
	}}
}

// InvalidQueryStringParameterError reports a semantically invalid query string
// parameter, such as an unknown attribute, type, or field. These accumulate:
// the aggregator collects all of them before responding.
type InvalidQueryStringParameterError struct {
	Parameter string
	Detail    string
}

// Error implements the error interface.
func (e *InvalidQueryStringParameterError) Error() string {
	return fmt.Sprintf("invalid query string parameter %q: %s", e.Parameter, e.Detail)
}

// Objects implements Documenter.
func (e *InvalidQueryStringParameterError) Objects() []*ErrorObject {
	return []*ErrorObject{{
		Status: "400",
		Title:  "Invalid query string parameter.",
		Detail: e.Detail,
		Source: &ErrorSource{Parameter: e.Parameter},
	}}
}

// ResourceNotFoundError reports a request for a resource that does not exist.
type ResourceNotFoundError struct {
	ResourceType string
	ID           string
}

// Error implements the error interface.
func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("resource %q with id %q does not exist", e.ResourceType, e.ID)
}

// Objects implements Documenter.
func (e *ResourceNotFoundError) Objects() []*ErrorObject {
	return []*ErrorObject{{
		Status: "404",
		Title:  "The requested resource does not exist.",
		Detail: fmt.Sprintf("Resource of type %q with ID %q does not exist.", e.ResourceType, e.ID),
	}}
}

// RelationshipNotFoundError reports a request for an unknown relationship.
type RelationshipNotFoundError struct {
	ResourceType string
	Relationship string
}

// Error implements the error interface.
func (e *RelationshipNotFoundError) Error() string {
	return fmt.Sprintf("resource %q has no relationship %q", e.ResourceType, e.Relationship)
}

// Objects implements Documenter.
func (e *RelationshipNotFoundError) Objects() []*ErrorObject {
	return []*ErrorObject{{
		Status: "404",
		Title:  "The requested relationship does not exist.",
		Detail: fmt.Sprintf("Resource of type %q has no relationship named %q.", e.ResourceType, e.Relationship),
	}}
}

// LocalIdAlreadyDeclaredError reports a local ID declared by more than one
// create operation within a single atomic batch.
type LocalIdAlreadyDeclaredError struct {
	LocalID string
}

// Error implements the error interface.
func (e *LocalIdAlreadyDeclaredError) Error() string {
	return fmt.Sprintf("local ID %q was already declared", e.LocalID)
}

// Objects implements Documenter.
func (e *LocalIdAlreadyDeclaredError) Objects() []*ErrorObject {
	return []*ErrorObject{{
		Status: "400",
		Title:  "Another local ID with the same name is already defined at this point.",
		Detail: fmt.Sprintf("Another local ID with name %q is already defined at this point.", e.LocalID),
	}}
}

// LocalIdNotFoundError reports a reference to a local ID that no earlier
// create operation in the batch declared.
type LocalIdNotFoundError struct {
	LocalID string
}

// Error implements the error interface.
func (e *LocalIdNotFoundError) Error() string {
	return fmt.Sprintf("local ID %q is not defined at this point", e.LocalID)
}

// Objects implements Documenter.
func (e *LocalIdNotFoundError) Objects() []*ErrorObject {
	return []*ErrorObject{{
		Status: "400",
		Title:  "Server-generated value for local ID is not available at this point.",
		Detail: fmt.Sprintf("Local ID %q is not defined at this point.", e.LocalID),
	}}
}

// InvalidConfigurationError reports startup-time misconfiguration, such as a
// duplicate hook definition for one resource type. It is fatal at startup and
// never produced per-request.
type InvalidConfigurationError struct {
	Detail string
}

// Error implements the error interface.
func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", e.Detail)
}

// Objects implements Documenter.
func (e *InvalidConfigurationError) Objects() []*ErrorObject {
	return []*ErrorObject{{
		Status: "500",
		Title:  "Invalid configuration.",
		Detail: e.Detail,
	}}
}

// ErrorList accumulates independent error objects so one response can report
// every invalid query string parameter at once.
type ErrorList struct {
	objects []*ErrorObject
}

// Add appends the objects of err to the list. Errors that do not implement
// Documenter are recorded as an opaque 500 without internal detail.
func (l *ErrorList) Add(err error) {
	if documenter, ok := err.(Documenter); ok {
		l.objects = append(l.objects, documenter.Objects()...)
		return
	}
	l.objects = append(l.objects, &ErrorObject{
		Status: "500",
		Title:  "An unhandled error occurred while processing the request.",
	})
}

// Empty reports whether any errors were recorded.
func (l *ErrorList) Empty() bool {
	return len(l.objects) == 0
}

// Objects implements Documenter.
func (l *ErrorList) Objects() []*ErrorObject {
	return l.objects
}

// Error implements the error interface.
func (l *ErrorList) Error() string {
	if len(l.objects) == 1 {
		return l.objects[0].Error()
	}
	return fmt.Sprintf("%d request errors", len(l.objects))
}

// OperationError wraps a failure from one entry in an atomic operations list,
// prefixing every source pointer with the zero-based operation index.
type OperationError struct {
	Index int
	Inner error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %d: %v", e.Index, e.Inner)
}

// Unwrap exposes the inner error to errors.Is and errors.As.
func (e *OperationError) Unwrap() error {
	return e.Inner
}

// Objects implements Documenter. The inner error's pointers are re-rooted at
// /atomic:operations[<index>]; an inner parameter source is left untouched.
func (e *OperationError) Objects() []*ErrorObject {
	prefix := fmt.Sprintf("/atomic:operations[%d]", e.Index)

	var inner []*ErrorObject
	if documenter, ok := e.Inner.(Documenter); ok {
		inner = documenter.Objects()
	} else {
		inner = []*ErrorObject{{
			Status: "500",
			Title:  "An unhandled error occurred while processing an operation.",
		}}
	}

	objects := make([]*ErrorObject, 0, len(inner))
	for _, object := range inner {
		copied := *object
		if object.Source != nil {
			source := *object.Source
			copied.Source = &source
		}
		switch {
		case copied.Source == nil:
			copied.Source = &ErrorSource{Pointer: prefix}
		case copied.Source.Parameter == "":
			copied.Source.Pointer = prefix + copied.Source.Pointer
		}
		objects = append(objects, &copied)
	}
	return objects
}
