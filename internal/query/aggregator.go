package query

import (
	"errors"
	"fmt"
	"net/url"
	"sort"

	"github.com/junction-api/junction/internal/config"
	"github.com/junction-api/junction/internal/jsonapierr"
	"github.com/junction-api/junction/internal/resource"
)

// Reader validates and transforms the raw parameters of one query aspect.
// A reader accumulates state across Read calls and contributes its typed
// constraints to the specification through Collect.
type Reader interface {
	// Aspect names the query aspect, used to match per-endpoint disables
	Aspect() string

	// CanRead reports whether this reader claims the parameter
	CanRead(parameterName string) bool

	// Read validates one parameter value
	Read(parameterName, value string) error

	// Collect contributes the accumulated constraints to the specification
	Collect(spec *Specification)
}

// ParameterSet is a set of query aspects disabled for one endpoint
type ParameterSet map[string]struct{}

// NewParameterSet builds a set from aspect names
func NewParameterSet(aspects ...string) ParameterSet {
	set := make(ParameterSet, len(aspects))
	for _, aspect := range aspects {
		set[aspect] = struct{}{}
	}
	return set
}

// Has reports whether the aspect is disabled
func (s ParameterSet) Has(aspect string) bool {
	_, ok := s[aspect]
	return ok
}

// Aggregator orchestrates the fixed set of readers against one incoming
// query collection. Build one per request; the query string is read exactly
// once and the aggregator holds no state beyond its readers.
type Aggregator struct {
	readers      []Reader
	allowUnknown bool
}

// NewAggregator creates an aggregator with the standard reader set for the
// given base resource context
func NewAggregator(graph *resource.Graph, base *resource.Context, options *config.Options) *Aggregator {
	return &Aggregator{
		readers: []Reader{
			NewIncludeReader(graph, base, options.MaxIncludeDepth),
			NewFilterReader(graph, base, options.EnableLegacyFilterNotation),
			NewSortReader(graph, base),
			NewSparseFieldSetReader(graph),
			NewPaginationReader(base, options.DefaultPageSize, options.MaxPageSize),
			NewDefaultsReader(),
			NewNullsReader(),
		},
		allowUnknown: options.AllowUnknownQueryStringParameters,
	}
}

// ReadAll dispatches every parameter of the query collection to the single
// reader claiming it and assembles the validated specification. Semantic
// failures accumulate so the response reports the complete error list;
// structurally fatal parse failures short-circuit. Parameters are visited in
// a deterministic order, so reading the same collection twice yields
// identical output.
func (a *Aggregator) ReadAll(values url.Values, disabled ParameterSet) (*Specification, error) {
	var errs jsonapierr.ErrorList

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		reader := a.claim(name)
		if reader == nil {
			if a.allowUnknown {
				continue
			}
			errs.Add(&jsonapierr.InvalidQueryStringParameterError{
				Parameter: name,
				Detail:    fmt.Sprintf("unknown query string parameter %q", name),
			})
			continue
		}

		if disabled.Has(reader.Aspect()) {
			errs.Add(&jsonapierr.InvalidQueryStringParameterError{
				Parameter: name,
				Detail:    fmt.Sprintf("usage of the %q query string parameter is not allowed at this endpoint", reader.Aspect()),
			})
			continue
		}

		for _, value := range values[name] {
			if err := reader.Read(name, value); err != nil {
				var parseErr *jsonapierr.QueryParseError
				if errors.As(err, &parseErr) {
					// Malformed syntax makes the rest of the parameter
					// meaningless; stop dispatching
					errs.Add(err)
					return nil, &errs
				}
				errs.Add(err)
			}
		}
	}

	if !errs.Empty() {
		return nil, &errs
	}

	spec := &Specification{}
	for _, reader := range a.readers {
		reader.Collect(spec)
	}
	return spec, nil
}

// claim returns the reader for a parameter. An exact match on the aspect
// name (include, filter, sort, ...) wins over a bracket pattern match.
func (a *Aggregator) claim(name string) Reader {
	for _, reader := range a.readers {
		if reader.Aspect() == name && reader.CanRead(name) {
			return reader
		}
	}
	for _, reader := range a.readers {
		if reader.CanRead(name) {
			return reader
		}
	}
	return nil
}
