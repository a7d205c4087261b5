package query

import (
	"fmt"
	"strings"

	"github.com/junction-api/junction/internal/jsonapierr"
	"github.com/junction-api/junction/internal/resource"
)

// IncludeReader parses the include parameter into validated relationship
// chains. Each dot-separated segment is resolved against the context reached
// through the previous segment.
type IncludeReader struct {
	graph    *resource.Graph
	base     *resource.Context
	maxDepth int
	chains   []IncludeChain
}

// NewIncludeReader creates a reader for the include parameter
func NewIncludeReader(graph *resource.Graph, base *resource.Context, maxDepth int) *IncludeReader {
	return &IncludeReader{graph: graph, base: base, maxDepth: maxDepth}
}

// Aspect implements Reader
func (r *IncludeReader) Aspect() string {
	return "include"
}

// CanRead implements Reader
func (r *IncludeReader) CanRead(parameterName string) bool {
	return parameterName == "include"
}

// Read implements Reader
func (r *IncludeReader) Read(parameterName, value string) error {
	for _, raw := range strings.Split(value, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		segments := strings.Split(raw, ".")
		if r.maxDepth > 0 && len(segments) > r.maxDepth {
			return &jsonapierr.InvalidQueryStringParameterError{
				Parameter: parameterName,
				Detail:    fmt.Sprintf("inclusion chain %q exceeds the maximum depth of %d", raw, r.maxDepth),
			}
		}

		current := r.base
		chain := make(IncludeChain, 0, len(segments))
		for _, segment := range segments {
			rel, ok := current.Relationship(segment)
			if !ok {
				return &jsonapierr.InvalidQueryStringParameterError{
					Parameter: parameterName,
					Detail:    fmt.Sprintf("relationship %q in %q does not exist on resource %q", segment, raw, current.PublicName),
				}
			}
			chain = append(chain, rel)
			current, _ = r.graph.Lookup(rel.RightTypeName)
		}

		r.chains = append(r.chains, chain)
	}
	return nil
}

// Collect implements Reader
func (r *IncludeReader) Collect(spec *Specification) {
	if len(r.chains) > 0 {
		spec.Include = &IncludeExpression{Chains: r.chains}
	}
}
