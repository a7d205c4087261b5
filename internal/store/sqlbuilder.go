package store

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/junction-api/junction/internal/query"
	"github.com/junction-api/junction/internal/resource"
)

// tableName converts a public resource type to its table name. Resource types
// are already plural in the graph, so this is snake_case only.
func tableName(resourceType string) string {
	return toSnakeCase(resourceType)
}

func columnName(attributeName string) string {
	return toSnakeCase(attributeName)
}

func foreignKeyColumn(relationshipName string) string {
	return toSnakeCase(relationshipName) + "_id"
}

func joinTableName(resourceType, relationshipName string) string {
	return tableName(resourceType) + "_" + toSnakeCase(relationshipName)
}

func toSnakeCase(s string) string {
	var result []rune
	runes := []rune(s)

	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := runes[i-1]
			if prev >= 'a' && prev <= 'z' {
				result = append(result, '_')
			} else if i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z' {
				result = append(result, '_')
			}
		}
		if r >= 'A' && r <= 'Z' {
			result = append(result, r+('a'-'A'))
		} else {
			result = append(result, r)
		}
	}
	return string(result)
}

// sqlBuilder accumulates positional arguments while translating a filter
// expression tree into a WHERE clause.
type sqlBuilder struct {
	args []interface{}
}

func newSQLBuilder() *sqlBuilder {
	return &sqlBuilder{}
}

func (b *sqlBuilder) placeholder(value interface{}) string {
	b.args = append(b.args, value)
	return fmt.Sprintf("$%d", len(b.args))
}

// whereClause translates a validated filter expression into SQL. Field paths
// through to-one relationships become scalar subqueries against the related
// table.
func (b *sqlBuilder) whereClause(rc *resource.Context, expr query.FilterExpression) (string, error) {
	switch e := expr.(type) {
	case *query.ComparisonExpression:
		column := pathExpr(tableName(rc.PublicName), e.Path.Relationships, e.Path.Attribute, 0)
		if e.Value == nil {
			switch e.Op {
			case query.OpEquals:
				return fmt.Sprintf("%s IS NULL", column), nil
			case query.OpNotEquals:
				return fmt.Sprintf("%s IS NOT NULL", column), nil
			}
			return "", fmt.Errorf("operator %s does not accept null", e.Op)
		}
		op, err := comparisonSQL(e.Op)
		if err != nil {
			return "", err
		}
		if e.Op == query.OpNotEquals {
			// SQL <> drops null rows; null attributes are still "not equal"
			return fmt.Sprintf("(%s IS NULL OR %s %s %s)", column, column, op, b.placeholder(e.Value)), nil
		}
		return fmt.Sprintf("%s %s %s", column, op, b.placeholder(e.Value)), nil

	case *query.TextMatchExpression:
		column := pathExpr(tableName(rc.PublicName), e.Path.Relationships, e.Path.Attribute, 0)
		pattern := likeEscape(e.Value)
		switch e.Kind {
		case query.MatchContains:
			pattern = "%" + pattern + "%"
		case query.MatchStartsWith:
			pattern = pattern + "%"
		case query.MatchEndsWith:
			pattern = "%" + pattern
		}
		return fmt.Sprintf("%s LIKE %s ESCAPE '\\'", column, b.placeholder(pattern)), nil

	case *query.AnyExpression:
		column := pathExpr(tableName(rc.PublicName), e.Path.Relationships, e.Path.Attribute, 0)
		return fmt.Sprintf("%s = ANY(%s)", column, b.placeholder(pq.Array(e.Values))), nil

	case *query.LogicalExpression:
		parts := make([]string, 0, len(e.Terms))
		for _, term := range e.Terms {
			clause, err := b.whereClause(rc, term)
			if err != nil {
				return "", err
			}
			parts = append(parts, clause)
		}
		joiner := " AND "
		if e.Op == query.LogicalOr {
			joiner = " OR "
		}
		return "(" + strings.Join(parts, joiner) + ")", nil

	case *query.NotExpression:
		inner, err := b.whereClause(rc, e.Inner)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil

	case *query.HasExpression:
		table := tableName(rc.PublicName)
		if e.Relationship.Kind == resource.ToOne {
			return fmt.Sprintf("%s.%s IS NOT NULL", table, foreignKeyColumn(e.Relationship.PublicName)), nil
		}
		join := joinTableName(rc.PublicName, e.Relationship.PublicName)
		return fmt.Sprintf("EXISTS (SELECT 1 FROM %s WHERE %s.parent_id = %s.id)", join, join, table), nil
	}

	return "", fmt.Errorf("unsupported filter expression %T", expr)
}

// pathExpr resolves a field path to a SQL expression. A direct attribute is a
// qualified column; each to-one hop nests a scalar subquery keyed by the
// parent's foreign key.
func pathExpr(qualifier string, rels []*resource.Relationship, attr *resource.Attribute, depth int) string {
	if len(rels) == 0 {
		return qualifier + "." + columnName(attr.PublicName)
	}
	alias := fmt.Sprintf("r%d", depth)
	fk := qualifier + "." + foreignKeyColumn(rels[0].PublicName)
	inner := pathExpr(alias, rels[1:], attr, depth+1)
	return fmt.Sprintf(
		"(SELECT %s FROM %s %s WHERE %s.id = %s)",
		inner, tableName(rels[0].RightTypeName), alias, alias, fk,
	)
}

func pathColumn(rc *resource.Context, path *query.FieldPath, graph *resource.Graph) string {
	return pathExpr(tableName(rc.PublicName), path.Relationships, path.Attribute, 0)
}

func comparisonSQL(op query.ComparisonOperator) (string, error) {
	switch op {
	case query.OpEquals:
		return "=", nil
	case query.OpNotEquals:
		return "<>", nil
	case query.OpGreaterThan:
		return ">", nil
	case query.OpGreaterOrEqual:
		return ">=", nil
	case query.OpLessThan:
		return "<", nil
	case query.OpLessOrEqual:
		return "<=", nil
	}
	return "", fmt.Errorf("unsupported comparison operator %d", int(op))
}

func likeEscape(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return replacer.Replace(s)
}
