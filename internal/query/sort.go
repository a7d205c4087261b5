package query

import (
	"fmt"
	"strings"

	"github.com/junction-api/junction/internal/jsonapierr"
	"github.com/junction-api/junction/internal/resource"
)

// SortReader parses the sort parameter: a comma-separated list of attribute
// paths, each optionally prefixed with '-' for descending order.
type SortReader struct {
	graph    *resource.Graph
	base     *resource.Context
	elements []*SortElement

	// seen spans Read calls so a repeated sort parameter cannot smuggle in
	// a duplicate attribute
	seen map[string]struct{}
}

// NewSortReader creates a reader for the sort parameter
func NewSortReader(graph *resource.Graph, base *resource.Context) *SortReader {
	return &SortReader{graph: graph, base: base, seen: make(map[string]struct{})}
}

// Aspect implements Reader
func (r *SortReader) Aspect() string {
	return "sort"
}

// CanRead implements Reader
func (r *SortReader) CanRead(parameterName string) bool {
	return parameterName == "sort"
}

// Read implements Reader
func (r *SortReader) Read(parameterName, value string) error {
	for _, raw := range strings.Split(value, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return &jsonapierr.QueryParseError{
				Parameter: parameterName,
				Detail:    "sort elements cannot be empty",
			}
		}

		ascending := true
		if strings.HasPrefix(raw, "-") {
			ascending = false
			raw = raw[1:]
		}

		path, err := resolveFieldPath(parameterName, raw, r.graph, r.base, func(attr *resource.Attribute) bool {
			return attr.Sortable
		}, "sort")
		if err != nil {
			return err
		}

		if _, dup := r.seen[path.String()]; dup {
			return &jsonapierr.InvalidQueryStringParameterError{
				Parameter: parameterName,
				Detail:    fmt.Sprintf("attribute %q appears more than once in the sort list", path),
			}
		}
		r.seen[path.String()] = struct{}{}

		r.elements = append(r.elements, &SortElement{Path: path, Ascending: ascending})
	}
	return nil
}

// Collect implements Reader
func (r *SortReader) Collect(spec *Specification) {
	if len(r.elements) > 0 {
		spec.Sort = &SortExpression{Elements: r.elements}
	}
}
