package query

import (
	"fmt"
	"strconv"

	"github.com/junction-api/junction/internal/jsonapierr"
)

// NullsReader parses the omitNull parameter, letting a request override the
// configured default for serializing null attribute values.
type NullsReader struct {
	value *bool
}

// NewNullsReader creates a reader for the omitNull parameter
func NewNullsReader() *NullsReader {
	return &NullsReader{}
}

// Aspect implements Reader
func (r *NullsReader) Aspect() string {
	return "omitNull"
}

// CanRead implements Reader
func (r *NullsReader) CanRead(parameterName string) bool {
	return parameterName == "omitNull"
}

// Read implements Reader
func (r *NullsReader) Read(parameterName, value string) error {
	parsed, err := parseToggle(parameterName, value)
	if err != nil {
		return err
	}
	r.value = &parsed
	return nil
}

// Collect implements Reader
func (r *NullsReader) Collect(spec *Specification) {
	spec.OmitNull = r.value
}

// DefaultsReader parses the omitDefault parameter, letting a request override
// the configured default for serializing zero-valued attributes.
type DefaultsReader struct {
	value *bool
}

// NewDefaultsReader creates a reader for the omitDefault parameter
func NewDefaultsReader() *DefaultsReader {
	return &DefaultsReader{}
}

// Aspect implements Reader
func (r *DefaultsReader) Aspect() string {
	return "omitDefault"
}

// CanRead implements Reader
func (r *DefaultsReader) CanRead(parameterName string) bool {
	return parameterName == "omitDefault"
}

// Read implements Reader
func (r *DefaultsReader) Read(parameterName, value string) error {
	parsed, err := parseToggle(parameterName, value)
	if err != nil {
		return err
	}
	r.value = &parsed
	return nil
}

// Collect implements Reader
func (r *DefaultsReader) Collect(spec *Specification) {
	spec.OmitDefault = r.value
}

func parseToggle(parameterName, value string) (bool, error) {
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, &jsonapierr.InvalidQueryStringParameterError{
			Parameter: parameterName,
			Detail:    fmt.Sprintf("%q is not a valid boolean", value),
		}
	}
	return parsed, nil
}
