package query

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junction-api/junction/internal/jsonapierr"
	"github.com/junction-api/junction/internal/resource"
)

func testGraph(t *testing.T) (*resource.Graph, *resource.Context) {
	t.Helper()

	builder := resource.NewBuilder()
	builder.Resource("articles").
		Attr("title", resource.KindString).
		Attr("viewCount", resource.KindInt).
		Attr("rating", resource.KindFloat).
		Attr("published", resource.KindBool).
		Attr("publishedAt", resource.KindTime).
		RestrictedAttr("secret", resource.KindString, false, false).
		ToOne("author", "people").
		ToMany("comments", "comments")
	builder.Resource("people").
		Attr("name", resource.KindString).
		ToOne("employer", "companies")
	builder.Resource("companies").
		Attr("name", resource.KindString)
	builder.Resource("comments").
		Attr("body", resource.KindString)

	graph, err := builder.Build()
	require.NoError(t, err)
	base, ok := graph.Lookup("articles")
	require.True(t, ok)
	return graph, base
}

func parseFilter(t *testing.T, value string) (FilterExpression, error) {
	t.Helper()
	graph, base := testGraph(t)
	parser, err := newFilterParser("filter", value, graph, base)
	if err != nil {
		return nil, err
	}
	return parser.Parse()
}

func TestFilterParser_Comparisons(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"equals", "equals(title,'hello')", "equals(title,'hello')"},
		{"notEquals", "notEquals(title,'hello')", "notEquals(title,'hello')"},
		{"greaterThan", "greaterThan(viewCount,'10')", "greaterThan(viewCount,'10')"},
		{"greaterOrEqual", "greaterOrEqual(rating,'2.5')", "greaterOrEqual(rating,'2.5')"},
		{"lessThan", "lessThan(viewCount,'10')", "lessThan(viewCount,'10')"},
		{"lessOrEqual", "lessOrEqual(viewCount,'10')", "lessOrEqual(viewCount,'10')"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := parseFilter(t, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, expr.String())
		})
	}
}

func TestFilterParser_LiteralCoercion(t *testing.T) {
	expr, err := parseFilter(t, "greaterThan(viewCount,'10')")
	require.NoError(t, err)
	comparison := expr.(*ComparisonExpression)
	assert.Equal(t, int64(10), comparison.Value)

	expr, err = parseFilter(t, "equals(published,'true')")
	require.NoError(t, err)
	comparison = expr.(*ComparisonExpression)
	assert.Equal(t, true, comparison.Value)

	expr, err = parseFilter(t, "greaterThan(publishedAt,'2024-03-01T12:00:00Z')")
	require.NoError(t, err)
	comparison = expr.(*ComparisonExpression)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), comparison.Value)
}

func TestFilterParser_NullLiteral(t *testing.T) {
	expr, err := parseFilter(t, "equals(title,null)")
	require.NoError(t, err)
	comparison := expr.(*ComparisonExpression)
	assert.Nil(t, comparison.Value)

	// null only makes sense for equality
	_, err = parseFilter(t, "greaterThan(viewCount,null)")
	require.Error(t, err)
}

func TestFilterParser_TextMatch(t *testing.T) {
	for _, fn := range []string{"contains", "startsWith", "endsWith"} {
		t.Run(fn, func(t *testing.T) {
			expr, err := parseFilter(t, fn+"(title,'abc')")
			require.NoError(t, err)
			match := expr.(*TextMatchExpression)
			assert.Equal(t, fn, match.Kind.String())
			assert.Equal(t, "abc", match.Value)
		})
	}
}

func TestFilterParser_Any(t *testing.T) {
	expr, err := parseFilter(t, "any(title,'a','b','c')")
	require.NoError(t, err)
	anyExpr := expr.(*AnyExpression)
	assert.Len(t, anyExpr.Values, 3)
	assert.Equal(t, "any(title,'a','b','c')", anyExpr.String())
}

func TestFilterParser_Logical(t *testing.T) {
	expr, err := parseFilter(t, "and(equals(title,'a'),greaterThan(viewCount,'1'))")
	require.NoError(t, err)
	logical := expr.(*LogicalExpression)
	assert.Equal(t, LogicalAnd, logical.Op)
	assert.Len(t, logical.Terms, 2)

	expr, err = parseFilter(t, "or(equals(title,'a'),equals(title,'b'))")
	require.NoError(t, err)
	assert.Equal(t, "or(equals(title,'a'),equals(title,'b'))", expr.String())

	expr, err = parseFilter(t, "not(equals(title,'a'))")
	require.NoError(t, err)
	assert.Equal(t, "not(equals(title,'a'))", expr.String())
}

func TestFilterParser_Has(t *testing.T) {
	expr, err := parseFilter(t, "has(comments)")
	require.NoError(t, err)
	assert.Equal(t, "has(comments)", expr.String())

	_, err = parseFilter(t, "has(bogus)")
	require.Error(t, err)
}

func TestFilterParser_RelationshipPaths(t *testing.T) {
	expr, err := parseFilter(t, "equals(author.name,'Ada')")
	require.NoError(t, err)
	assert.Equal(t, "equals(author.name,'Ada')", expr.String())

	// chains may cross several to-one relationships
	expr, err = parseFilter(t, "equals(author.employer.name,'Initech')")
	require.NoError(t, err)
	assert.Equal(t, "equals(author.employer.name,'Initech')", expr.String())

	// to-many relationships cannot appear inside a field path
	_, err = parseFilter(t, "equals(comments.body,'x')")
	require.Error(t, err)
}

func TestFilterParser_QuoteEscaping(t *testing.T) {
	expr, err := parseFilter(t, "equals(title,'it''s')")
	require.NoError(t, err)
	comparison := expr.(*ComparisonExpression)
	assert.Equal(t, "it's", comparison.Value)
}

func TestFilterParser_SyntaxErrors(t *testing.T) {
	tests := []string{
		"equals(title",
		"equals(title,'a'",
		"equals('a',title)",
		"bogusFn(title,'a')",
		"equals(title,'unterminated",
		"",
		"equals(title,'a')trailing",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := parseFilter(t, input)
			require.Error(t, err)
			var parseErr *jsonapierr.QueryParseError
			assert.True(t, errors.As(err, &parseErr), "expected QueryParseError, got %T", err)
		})
	}
}

func TestFilterParser_ResolutionErrors(t *testing.T) {
	tests := []string{
		"equals(missing,'a')",
		"equals(secret,'a')",
		"equals(author.missing,'a')",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := parseFilter(t, input)
			require.Error(t, err)
			var paramErr *jsonapierr.InvalidQueryStringParameterError
			assert.True(t, errors.As(err, &paramErr), "expected InvalidQueryStringParameterError, got %T", err)
		})
	}
}
