package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/junction-api/junction/internal/jsonapierr"
	"github.com/junction-api/junction/internal/resource"
)

// tokenType identifies a token in the filter grammar
type tokenType int

const (
	tokenIdent tokenType = iota
	tokenString
	tokenLParen
	tokenRParen
	tokenComma
	tokenEOF
)

// token is one lexical element of a filter expression
type token struct {
	kind   tokenType
	lexeme string
	pos    int
}

// filterScanner tokenizes the filter function grammar. Identifiers cover
// function names and dot-separated field paths; literals are single-quoted
// with '' as the escape for an embedded quote.
type filterScanner struct {
	source  []rune
	current int
}

func newFilterScanner(source string) *filterScanner {
	return &filterScanner{source: []rune(source)}
}

func (s *filterScanner) isAtEnd() bool {
	return s.current >= len(s.source)
}

func (s *filterScanner) peek() rune {
	if s.isAtEnd() {
		return 0
	}
	return s.source[s.current]
}

func (s *filterScanner) advance() rune {
	r := s.source[s.current]
	s.current++
	return r
}

func (s *filterScanner) next() (token, error) {
	for !s.isAtEnd() && s.peek() == ' ' {
		s.advance()
	}

	start := s.current
	if s.isAtEnd() {
		return token{kind: tokenEOF, pos: start}, nil
	}

	r := s.advance()
	switch r {
	case '(':
		return token{kind: tokenLParen, lexeme: "(", pos: start}, nil
	case ')':
		return token{kind: tokenRParen, lexeme: ")", pos: start}, nil
	case ',':
		return token{kind: tokenComma, lexeme: ",", pos: start}, nil
	case '\'':
		return s.scanString(start)
	}

	if isIdentRune(r) {
		for !s.isAtEnd() && (isIdentRune(s.peek()) || s.peek() == '.') {
			s.advance()
		}
		return token{kind: tokenIdent, lexeme: string(s.source[start:s.current]), pos: start}, nil
	}

	return token{}, fmt.Errorf("unexpected character %q at position %d", r, start)
}

func (s *filterScanner) scanString(start int) (token, error) {
	var sb strings.Builder
	for !s.isAtEnd() {
		r := s.advance()
		if r == '\'' {
			// '' inside a literal is an escaped quote
			if !s.isAtEnd() && s.peek() == '\'' {
				s.advance()
				sb.WriteRune('\'')
				continue
			}
			return token{kind: tokenString, lexeme: sb.String(), pos: start}, nil
		}
		sb.WriteRune(r)
	}
	return token{}, fmt.Errorf("unterminated string literal at position %d", start)
}

func isIdentRune(r rune) bool {
	return r == '-' || r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}

// filterParser is a recursive descent parser over the filter function
// grammar. Syntax failures are QueryParseErrors and abort the whole query
// string; resolution failures against the resource graph are
// InvalidQueryStringParameterErrors.
type filterParser struct {
	scanner   *filterScanner
	lookahead token
	parameter string
	graph     *resource.Graph
	base      *resource.Context
}

func newFilterParser(parameter, source string, graph *resource.Graph, base *resource.Context) (*filterParser, error) {
	p := &filterParser{
		scanner:   newFilterScanner(source),
		parameter: parameter,
		graph:     graph,
		base:      base,
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

// Parse consumes the entire source and returns the expression tree
func (p *filterParser) Parse() (FilterExpression, error) {
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if p.lookahead.kind != tokenEOF {
		return nil, p.syntaxError(fmt.Sprintf("unexpected trailing input at position %d", p.lookahead.pos))
	}
	return expr, nil
}

func (p *filterParser) advance() error {
	next, err := p.scanner.next()
	if err != nil {
		return p.syntaxError(err.Error())
	}
	p.lookahead = next
	return nil
}

func (p *filterParser) expect(kind tokenType, what string) (token, error) {
	if p.lookahead.kind != kind {
		return token{}, p.syntaxError(fmt.Sprintf("expected %s at position %d", what, p.lookahead.pos))
	}
	tok := p.lookahead
	if err := p.advance(); err != nil {
		return token{}, err
	}
	return tok, nil
}

func (p *filterParser) parseExpression() (FilterExpression, error) {
	name, err := p.expect(tokenIdent, "filter function name")
	if err != nil {
		return nil, err
	}

	switch name.lexeme {
	case "and", "or":
		return p.parseLogical(name.lexeme)
	case "not":
		return p.parseNot()
	case "has":
		return p.parseHas()
	case "any":
		return p.parseAny()
	case "contains", "startsWith", "endsWith":
		return p.parseTextMatch(name.lexeme)
	case "equals", "notEquals", "greaterThan", "greaterOrEqual", "lessThan", "lessOrEqual":
		return p.parseComparison(name.lexeme)
	default:
		return nil, p.syntaxError(fmt.Sprintf("unknown filter function %q", name.lexeme))
	}
}

func (p *filterParser) parseLogical(name string) (FilterExpression, error) {
	if _, err := p.expect(tokenLParen, "'('"); err != nil {
		return nil, err
	}

	var terms []FilterExpression
	for {
		term, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)

		if p.lookahead.kind != tokenComma {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	if _, err := p.expect(tokenRParen, "')'"); err != nil {
		return nil, err
	}
	if len(terms) < 2 {
		return nil, p.syntaxError(fmt.Sprintf("%s() requires at least two terms", name))
	}

	op := LogicalAnd
	if name == "or" {
		op = LogicalOr
	}
	return &LogicalExpression{Op: op, Terms: terms}, nil
}

func (p *filterParser) parseNot() (FilterExpression, error) {
	if _, err := p.expect(tokenLParen, "'('"); err != nil {
		return nil, err
	}
	inner, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokenRParen, "')'"); err != nil {
		return nil, err
	}
	return &NotExpression{Inner: inner}, nil
}

func (p *filterParser) parseHas() (FilterExpression, error) {
	if _, err := p.expect(tokenLParen, "'('"); err != nil {
		return nil, err
	}
	name, err := p.expect(tokenIdent, "relationship name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokenRParen, "')'"); err != nil {
		return nil, err
	}

	rel, ok := p.base.Relationship(name.lexeme)
	if !ok || rel.Kind != resource.ToMany {
		return nil, p.invalidParameter(fmt.Sprintf("%q is not a to-many relationship on resource %q", name.lexeme, p.base.PublicName))
	}
	return &HasExpression{Relationship: rel}, nil
}

func (p *filterParser) parseAny() (FilterExpression, error) {
	if _, err := p.expect(tokenLParen, "'('"); err != nil {
		return nil, err
	}
	path, err := p.parseFieldPath()
	if err != nil {
		return nil, err
	}

	var values []interface{}
	for p.lookahead.kind == tokenComma {
		if err := p.advance(); err != nil {
			return nil, err
		}
		lit, err := p.expect(tokenString, "quoted literal")
		if err != nil {
			return nil, err
		}
		value, err := p.coerceLiteral(path.Attribute, lit.lexeme)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}

	if _, err := p.expect(tokenRParen, "')'"); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, p.syntaxError("any() requires at least one value")
	}
	return &AnyExpression{Path: path, Values: values}, nil
}

func (p *filterParser) parseTextMatch(name string) (FilterExpression, error) {
	if _, err := p.expect(tokenLParen, "'('"); err != nil {
		return nil, err
	}
	path, err := p.parseFieldPath()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokenComma, "','"); err != nil {
		return nil, err
	}
	lit, err := p.expect(tokenString, "quoted literal")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokenRParen, "')'"); err != nil {
		return nil, err
	}

	if path.Attribute.Kind != resource.KindString {
		return nil, p.invalidParameter(fmt.Sprintf("%s() requires a string attribute, but %q is %s",
			name, path, path.Attribute.Kind))
	}

	kind := MatchContains
	switch name {
	case "startsWith":
		kind = MatchStartsWith
	case "endsWith":
		kind = MatchEndsWith
	}
	return &TextMatchExpression{Kind: kind, Path: path, Value: lit.lexeme}, nil
}

func (p *filterParser) parseComparison(name string) (FilterExpression, error) {
	if _, err := p.expect(tokenLParen, "'('"); err != nil {
		return nil, err
	}
	path, err := p.parseFieldPath()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokenComma, "','"); err != nil {
		return nil, err
	}

	var value interface{}
	switch p.lookahead.kind {
	case tokenString:
		value, err = p.coerceLiteral(path.Attribute, p.lookahead.lexeme)
		if err != nil {
			return nil, err
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	case tokenIdent:
		if p.lookahead.lexeme != "null" {
			return nil, p.syntaxError(fmt.Sprintf("expected quoted literal or null at position %d", p.lookahead.pos))
		}
		if name != "equals" && name != "notEquals" {
			return nil, p.invalidParameter(fmt.Sprintf("%s() cannot compare against null", name))
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	default:
		return nil, p.syntaxError(fmt.Sprintf("expected quoted literal or null at position %d", p.lookahead.pos))
	}

	if _, err := p.expect(tokenRParen, "')'"); err != nil {
		return nil, err
	}

	op := map[string]ComparisonOperator{
		"equals":         OpEquals,
		"notEquals":      OpNotEquals,
		"greaterThan":    OpGreaterThan,
		"greaterOrEqual": OpGreaterOrEqual,
		"lessThan":       OpLessThan,
		"lessOrEqual":    OpLessOrEqual,
	}[name]

	return &ComparisonExpression{Op: op, Path: path, Value: value}, nil
}

func (p *filterParser) parseFieldPath() (*FieldPath, error) {
	tok, err := p.expect(tokenIdent, "field path")
	if err != nil {
		return nil, err
	}
	return resolveFieldPath(p.parameter, tok.lexeme, p.graph, p.base, func(attr *resource.Attribute) bool {
		return attr.Filterable
	}, "filter")
}

func (p *filterParser) coerceLiteral(attr *resource.Attribute, raw string) (interface{}, error) {
	value, err := coerceLiteral(attr, raw)
	if err != nil {
		return nil, p.invalidParameter(err.Error())
	}
	return value, nil
}

func (p *filterParser) syntaxError(detail string) error {
	return &jsonapierr.QueryParseError{Parameter: p.parameter, Detail: detail}
}

func (p *filterParser) invalidParameter(detail string) error {
	return &jsonapierr.InvalidQueryStringParameterError{Parameter: p.parameter, Detail: detail}
}

// resolveFieldPath resolves a dot-separated public field path against the
// base context. Every intermediate segment must be a to-one relationship;
// the terminal segment must be an attribute passing the capability check.
func resolveFieldPath(parameter, path string, graph *resource.Graph, base *resource.Context, allowed func(*resource.Attribute) bool, usage string) (*FieldPath, error) {
	segments := strings.Split(path, ".")
	current := base

	var rels []*resource.Relationship
	for _, segment := range segments[:len(segments)-1] {
		rel, ok := current.Relationship(segment)
		if !ok || rel.Kind != resource.ToOne {
			return nil, &jsonapierr.InvalidQueryStringParameterError{
				Parameter: parameter,
				Detail:    fmt.Sprintf("%q in %q is not a to-one relationship on resource %q", segment, path, current.PublicName),
			}
		}
		rels = append(rels, rel)
		// Build() guarantees the right side exists
		current, _ = graph.Lookup(rel.RightTypeName)
	}

	last := segments[len(segments)-1]
	attr, ok := current.Attribute(last)
	if !ok {
		return nil, &jsonapierr.InvalidQueryStringParameterError{
			Parameter: parameter,
			Detail:    fmt.Sprintf("resource %q does not contain attribute %q", current.PublicName, last),
		}
	}
	if !allowed(attr) {
		return nil, &jsonapierr.InvalidQueryStringParameterError{
			Parameter: parameter,
			Detail:    fmt.Sprintf("attribute %q on resource %q cannot be used in %s", last, current.PublicName, usage),
		}
	}

	return &FieldPath{Relationships: rels, Attribute: attr}, nil
}

// coerceLiteral converts a raw literal to the attribute's value kind
func coerceLiteral(attr *resource.Attribute, raw string) (interface{}, error) {
	switch attr.Kind {
	case resource.KindString, resource.KindJSON:
		return raw, nil
	case resource.KindInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid integer for attribute %q", raw, attr.PublicName)
		}
		return n, nil
	case resource.KindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid number for attribute %q", raw, attr.PublicName)
		}
		return f, nil
	case resource.KindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid boolean for attribute %q", raw, attr.PublicName)
		}
		return b, nil
	case resource.KindTime:
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid RFC 3339 timestamp for attribute %q", raw, attr.PublicName)
		}
		return t, nil
	case resource.KindUUID:
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid UUID for attribute %q", raw, attr.PublicName)
		}
		return id.String(), nil
	default:
		return raw, nil
	}
}
