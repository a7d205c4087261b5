// Package query translates untyped, attacker-controlled query strings into
// strongly validated, typed query specifications. One reader exists per query
// aspect (include, filter, sort, sparse fieldsets, pagination, serializer
// defaults and nulls); an aggregator dispatches every incoming parameter to
// the reader claiming it and assembles the final specification.
package query

import (
	"fmt"
	"strings"

	"github.com/junction-api/junction/internal/resource"
)

// ComparisonOperator represents a comparison in a filter expression
type ComparisonOperator int

const (
	OpEquals ComparisonOperator = iota
	OpNotEquals
	OpGreaterThan
	OpGreaterOrEqual
	OpLessThan
	OpLessOrEqual
)

// String returns the string representation of the operator
func (o ComparisonOperator) String() string {
	switch o {
	case OpEquals:
		return "equals"
	case OpNotEquals:
		return "notEquals"
	case OpGreaterThan:
		return "greaterThan"
	case OpGreaterOrEqual:
		return "greaterOrEqual"
	case OpLessThan:
		return "lessThan"
	case OpLessOrEqual:
		return "lessOrEqual"
	default:
		return "unknown"
	}
}

// LogicalOperator combines filter terms
type LogicalOperator int

const (
	LogicalAnd LogicalOperator = iota
	LogicalOr
)

// String returns the string representation of the operator
func (o LogicalOperator) String() string {
	if o == LogicalOr {
		return "or"
	}
	return "and"
}

// MatchKind represents a partial text match
type MatchKind int

const (
	MatchContains MatchKind = iota
	MatchStartsWith
	MatchEndsWith
)

// String returns the string representation of the match kind
func (m MatchKind) String() string {
	switch m {
	case MatchStartsWith:
		return "startsWith"
	case MatchEndsWith:
		return "endsWith"
	default:
		return "contains"
	}
}

// FieldPath is an attribute reached through zero or more to-one
// relationships, resolved against the resource graph.
type FieldPath struct {
	Relationships []*resource.Relationship
	Attribute     *resource.Attribute
}

// String returns the dot-separated public path
func (p *FieldPath) String() string {
	parts := make([]string, 0, len(p.Relationships)+1)
	for _, rel := range p.Relationships {
		parts = append(parts, rel.PublicName)
	}
	parts = append(parts, p.Attribute.PublicName)
	return strings.Join(parts, ".")
}

// FilterExpression is an immutable tree representing one validated filter.
// Implementations: ComparisonExpression, TextMatchExpression, AnyExpression,
// LogicalExpression, NotExpression, HasExpression.
type FilterExpression interface {
	fmt.Stringer
	filterExpression()
}

// ComparisonExpression compares an attribute against a typed literal.
// A nil Value means comparison against null.
type ComparisonExpression struct {
	Op    ComparisonOperator
	Path  *FieldPath
	Value interface{}
}

func (*ComparisonExpression) filterExpression() {}

// String returns the canonical textual form of the expression
func (e *ComparisonExpression) String() string {
	return fmt.Sprintf("%s(%s,%s)", e.Op, e.Path, formatLiteral(e.Value))
}

// TextMatchExpression matches part of a text attribute
type TextMatchExpression struct {
	Kind  MatchKind
	Path  *FieldPath
	Value string
}

func (*TextMatchExpression) filterExpression() {}

// String returns the canonical textual form of the expression
func (e *TextMatchExpression) String() string {
	return fmt.Sprintf("%s(%s,'%s')", e.Kind, e.Path, e.Value)
}

// AnyExpression tests an attribute against a set of literals
type AnyExpression struct {
	Path   *FieldPath
	Values []interface{}
}

func (*AnyExpression) filterExpression() {}

// String returns the canonical textual form of the expression
func (e *AnyExpression) String() string {
	parts := make([]string, 0, len(e.Values))
	for _, v := range e.Values {
		parts = append(parts, formatLiteral(v))
	}
	return fmt.Sprintf("any(%s,%s)", e.Path, strings.Join(parts, ","))
}

// LogicalExpression combines two or more terms with and/or
type LogicalExpression struct {
	Op    LogicalOperator
	Terms []FilterExpression
}

func (*LogicalExpression) filterExpression() {}

// String returns the canonical textual form of the expression
func (e *LogicalExpression) String() string {
	parts := make([]string, 0, len(e.Terms))
	for _, term := range e.Terms {
		parts = append(parts, term.String())
	}
	return fmt.Sprintf("%s(%s)", e.Op, strings.Join(parts, ","))
}

// NotExpression negates its inner term
type NotExpression struct {
	Inner FilterExpression
}

func (*NotExpression) filterExpression() {}

// String returns the canonical textual form of the expression
func (e *NotExpression) String() string {
	return fmt.Sprintf("not(%s)", e.Inner)
}

// HasExpression tests a to-many relationship for non-emptiness
type HasExpression struct {
	Relationship *resource.Relationship
}

func (*HasExpression) filterExpression() {}

// String returns the canonical textual form of the expression
func (e *HasExpression) String() string {
	return fmt.Sprintf("has(%s)", e.Relationship.PublicName)
}

func formatLiteral(v interface{}) string {
	if v == nil {
		return "null"
	}
	if s, ok := v.(string); ok {
		return "'" + s + "'"
	}
	return fmt.Sprintf("'%v'", v)
}

// SortElement is one term of a sort expression
type SortElement struct {
	Path      *FieldPath
	Ascending bool
}

// String returns the public form of the element
func (e *SortElement) String() string {
	if e.Ascending {
		return e.Path.String()
	}
	return "-" + e.Path.String()
}

// SortExpression is an ordered list of sort terms
type SortExpression struct {
	Elements []*SortElement
}

// String returns the public comma-separated form
func (e *SortExpression) String() string {
	parts := make([]string, 0, len(e.Elements))
	for _, elem := range e.Elements {
		parts = append(parts, elem.String())
	}
	return strings.Join(parts, ",")
}

// IncludeChain is one dot-separated relationship chain, each segment resolved
// against the context reached through the previous one.
type IncludeChain []*resource.Relationship

// String returns the dot-separated public form
func (c IncludeChain) String() string {
	parts := make([]string, 0, len(c))
	for _, rel := range c {
		parts = append(parts, rel.PublicName)
	}
	return strings.Join(parts, ".")
}

// IncludeExpression is the set of validated inclusion chains
type IncludeExpression struct {
	Chains []IncludeChain
}

// String returns the public comma-separated form
func (e *IncludeExpression) String() string {
	parts := make([]string, 0, len(e.Chains))
	for _, chain := range e.Chains {
		parts = append(parts, chain.String())
	}
	return strings.Join(parts, ",")
}

// PageParams holds the page number and size for one collection
type PageParams struct {
	Number int
	Size   int
}

// PaginationExpression holds pagination for the primary collection and,
// keyed by relationship name, for included to-many collections.
type PaginationExpression struct {
	Primary PageParams
	Related map[string]*PageParams
}

// SparseFieldSet restricts output to the listed fields of one resource type
type SparseFieldSet struct {
	Type   string
	Fields []string
	set    map[string]struct{}
}

// Has reports whether the field survives the restriction
func (s *SparseFieldSet) Has(field string) bool {
	_, ok := s.set[field]
	return ok
}

func newSparseFieldSet(typeName string, fields []string) *SparseFieldSet {
	set := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		set[field] = struct{}{}
	}
	return &SparseFieldSet{Type: typeName, Fields: fields, set: set}
}

// Specification is the validated result of parsing one request's query
// string. Nil aspects were not supplied.
type Specification struct {
	Filter     FilterExpression
	Sort       *SortExpression
	Include    *IncludeExpression
	Pagination *PaginationExpression
	Fields     map[string]*SparseFieldSet

	// Serializer overrides; nil means keep the configured default
	OmitNull    *bool
	OmitDefault *bool
}

// FieldsFor returns the sparse fieldset for a type, or nil when unrestricted
func (s *Specification) FieldsFor(typeName string) *SparseFieldSet {
	if s.Fields == nil {
		return nil
	}
	return s.Fields[typeName]
}
