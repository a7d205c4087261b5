package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/junction-api/junction/internal/jsonapierr"
	"github.com/junction-api/junction/internal/resource"
)

// legacyFilterPattern matches the pre-1.0 bracket notation filter[attr]
var legacyFilterPattern = regexp.MustCompile(`^filter\[([^\]]+)\]$`)

// legacyOperators maps legacy condition prefixes to comparison operators
var legacyOperators = map[string]ComparisonOperator{
	"eq": OpEquals,
	"ne": OpNotEquals,
	"lt": OpLessThan,
	"le": OpLessOrEqual,
	"gt": OpGreaterThan,
	"ge": OpGreaterOrEqual,
}

// FilterReader parses filter parameters into expression trees. The function
// grammar (filter=equals(name,'abc')) is always available; the legacy bracket
// notation (filter[name]=abc or filter[name]=eq:abc) only when the
// compatibility flag is enabled.
type FilterReader struct {
	graph        *resource.Graph
	base         *resource.Context
	enableLegacy bool
	terms        []FilterExpression
}

// NewFilterReader creates a reader for filter parameters
func NewFilterReader(graph *resource.Graph, base *resource.Context, enableLegacy bool) *FilterReader {
	return &FilterReader{graph: graph, base: base, enableLegacy: enableLegacy}
}

// Aspect implements Reader
func (r *FilterReader) Aspect() string {
	return "filter"
}

// CanRead implements Reader
func (r *FilterReader) CanRead(parameterName string) bool {
	if parameterName == "filter" {
		return true
	}
	return r.enableLegacy && legacyFilterPattern.MatchString(parameterName)
}

// Read implements Reader
func (r *FilterReader) Read(parameterName, value string) error {
	if parameterName == "filter" {
		parser, err := newFilterParser(parameterName, value, r.graph, r.base)
		if err != nil {
			return err
		}
		expr, err := parser.Parse()
		if err != nil {
			return err
		}
		r.terms = append(r.terms, expr)
		return nil
	}

	expr, err := r.readLegacy(parameterName, value)
	if err != nil {
		return err
	}
	r.terms = append(r.terms, expr)
	return nil
}

// readLegacy parses the bracket notation: a comma-separated list of
// conditions, each either a bare value (equality) or op:value. Duplicate
// conditions collapse; multiple distinct conditions combine with OR.
func (r *FilterReader) readLegacy(parameterName, value string) (FilterExpression, error) {
	matches := legacyFilterPattern.FindStringSubmatch(parameterName)

	path, err := resolveFieldPath(parameterName, matches[1], r.graph, r.base, func(attr *resource.Attribute) bool {
		return attr.Filterable
	}, "filter")
	if err != nil {
		return nil, err
	}

	var terms []FilterExpression
	seen := make(map[string]struct{})

	for _, condition := range strings.Split(value, ",") {
		term, err := r.legacyCondition(parameterName, path, condition)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[term.String()]; dup {
			continue
		}
		seen[term.String()] = struct{}{}
		terms = append(terms, term)
	}

	if len(terms) == 0 {
		return nil, &jsonapierr.QueryParseError{
			Parameter: parameterName,
			Detail:    "filter conditions cannot be empty",
		}
	}
	if len(terms) == 1 {
		return terms[0], nil
	}
	return &LogicalExpression{Op: LogicalOr, Terms: terms}, nil
}

func (r *FilterReader) legacyCondition(parameterName string, path *FieldPath, condition string) (FilterExpression, error) {
	opName, raw := "eq", condition
	if idx := strings.Index(condition, ":"); idx > 0 {
		if _, known := legacyOperators[condition[:idx]]; known || condition[:idx] == "like" {
			opName, raw = condition[:idx], condition[idx+1:]
		}
	}

	if opName == "like" {
		if path.Attribute.Kind != resource.KindString {
			return nil, &jsonapierr.InvalidQueryStringParameterError{
				Parameter: parameterName,
				Detail:    fmt.Sprintf("like requires a string attribute, but %q is %s", path, path.Attribute.Kind),
			}
		}
		return &TextMatchExpression{Kind: MatchContains, Path: path, Value: raw}, nil
	}

	value, err := coerceLiteral(path.Attribute, raw)
	if err != nil {
		return nil, &jsonapierr.InvalidQueryStringParameterError{Parameter: parameterName, Detail: err.Error()}
	}
	return &ComparisonExpression{Op: legacyOperators[opName], Path: path, Value: value}, nil
}

// Collect implements Reader. Multiple filter parameters combine with AND.
func (r *FilterReader) Collect(spec *Specification) {
	switch len(r.terms) {
	case 0:
	case 1:
		spec.Filter = r.terms[0]
	default:
		spec.Filter = &LogicalExpression{Op: LogicalAnd, Terms: r.terms}
	}
}
