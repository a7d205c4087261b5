package query

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/junction-api/junction/internal/jsonapierr"
	"github.com/junction-api/junction/internal/resource"
)

// pagePrimaryPattern matches page[size] and page[number]
var pagePrimaryPattern = regexp.MustCompile(`^page\[(size|number)\]$`)

// pageRelatedPattern matches page[<relationship>][size|number] for included
// to-many collections
var pageRelatedPattern = regexp.MustCompile(`^page\[([^\]]+)\]\[(size|number)\]$`)

// PaginationReader parses page[size]/page[number] parameters, enforcing the
// configured maximum page size.
type PaginationReader struct {
	base        *resource.Context
	defaultSize int
	maxSize     int

	primary PageParams
	related map[string]*PageParams
}

// NewPaginationReader creates a reader for pagination parameters
func NewPaginationReader(base *resource.Context, defaultSize, maxSize int) *PaginationReader {
	return &PaginationReader{
		base:        base,
		defaultSize: defaultSize,
		maxSize:     maxSize,
		primary:     PageParams{Number: 1, Size: defaultSize},
	}
}

// Aspect implements Reader
func (r *PaginationReader) Aspect() string {
	return "page"
}

// CanRead implements Reader
func (r *PaginationReader) CanRead(parameterName string) bool {
	return pagePrimaryPattern.MatchString(parameterName) || pageRelatedPattern.MatchString(parameterName)
}

// Read implements Reader
func (r *PaginationReader) Read(parameterName, value string) error {
	if matches := pagePrimaryPattern.FindStringSubmatch(parameterName); matches != nil {
		return r.readElement(parameterName, matches[1], value, &r.primary)
	}

	matches := pageRelatedPattern.FindStringSubmatch(parameterName)
	relName := matches[1]
	rel, ok := r.base.Relationship(relName)
	if !ok || rel.Kind != resource.ToMany {
		return &jsonapierr.InvalidQueryStringParameterError{
			Parameter: parameterName,
			Detail:    fmt.Sprintf("%q is not a to-many relationship on resource %q", relName, r.base.PublicName),
		}
	}

	if r.related == nil {
		r.related = make(map[string]*PageParams)
	}
	params, ok := r.related[relName]
	if !ok {
		params = &PageParams{Number: 1, Size: r.defaultSize}
		r.related[relName] = params
	}
	return r.readElement(parameterName, matches[2], value, params)
}

func (r *PaginationReader) readElement(parameterName, element, value string, params *PageParams) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return &jsonapierr.InvalidQueryStringParameterError{
			Parameter: parameterName,
			Detail:    fmt.Sprintf("%q is not a positive number", value),
		}
	}

	if element == "size" {
		if r.maxSize > 0 && n > r.maxSize {
			return &jsonapierr.InvalidQueryStringParameterError{
				Parameter: parameterName,
				Detail:    fmt.Sprintf("page size %d exceeds the maximum of %d", n, r.maxSize),
			}
		}
		params.Size = n
		return nil
	}

	params.Number = n
	return nil
}

// Collect implements Reader. Pagination is always present in the resulting
// specification: absent parameters fall back to the configured defaults.
func (r *PaginationReader) Collect(spec *Specification) {
	spec.Pagination = &PaginationExpression{Primary: r.primary, Related: r.related}
}
