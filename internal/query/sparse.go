package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/junction-api/junction/internal/jsonapierr"
	"github.com/junction-api/junction/internal/resource"
)

// fieldsPattern matches query parameters like fields[typename]
var fieldsPattern = regexp.MustCompile(`^fields\[([^\]]+)\]$`)

// SparseFieldSetReader parses fields[<type>]=a,b,c parameters, restricting
// output to the listed attributes and relationships of the named type.
type SparseFieldSetReader struct {
	graph *resource.Graph
	sets  map[string]*SparseFieldSet
}

// NewSparseFieldSetReader creates a reader for sparse fieldset parameters
func NewSparseFieldSetReader(graph *resource.Graph) *SparseFieldSetReader {
	return &SparseFieldSetReader{graph: graph, sets: make(map[string]*SparseFieldSet)}
}

// Aspect implements Reader
func (r *SparseFieldSetReader) Aspect() string {
	return "fields"
}

// CanRead implements Reader
func (r *SparseFieldSetReader) CanRead(parameterName string) bool {
	return fieldsPattern.MatchString(parameterName)
}

// Read implements Reader
func (r *SparseFieldSetReader) Read(parameterName, value string) error {
	matches := fieldsPattern.FindStringSubmatch(parameterName)
	typeName := matches[1]

	rc, ok := r.graph.Lookup(typeName)
	if !ok {
		return &jsonapierr.InvalidQueryStringParameterError{
			Parameter: parameterName,
			Detail:    fmt.Sprintf("resource type %q does not exist", typeName),
		}
	}

	var fields []string
	for _, raw := range strings.Split(value, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !rc.Field(raw) {
			return &jsonapierr.InvalidQueryStringParameterError{
				Parameter: parameterName,
				Detail:    fmt.Sprintf("resource %q does not contain field %q", typeName, raw),
			}
		}
		fields = append(fields, raw)
	}

	r.sets[typeName] = newSparseFieldSet(typeName, fields)
	return nil
}

// Collect implements Reader
func (r *SparseFieldSetReader) Collect(spec *Specification) {
	if len(r.sets) > 0 {
		spec.Fields = r.sets
	}
}
