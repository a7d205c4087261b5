package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"

	"github.com/junction-api/junction/internal/jsonapierr"
	"github.com/junction-api/junction/internal/query"
	"github.com/junction-api/junction/internal/resource"
)

// timeSortableLayout formats timestamps so lexicographic order matches
// chronological order, letting compiled filter programs compare them as
// plain strings.
const timeSortableLayout = "2006-01-02T15:04:05.000000000Z"

// MemoryStore is an in-memory Service and TransactionRunner. It keeps one
// record map per resource type and evaluates query specifications directly
// against the materialized records. Filters are compiled to expr programs
// and run once per candidate record.
type MemoryStore struct {
	graph *resource.Graph

	mu   sync.RWMutex
	data map[string]map[string]*Record
	ids  map[string][]string

	// txMu serializes batches so a snapshot/rollback pair never interleaves
	// with another batch
	txMu sync.Mutex
}

// NewMemoryStore creates an empty store over the given resource graph
func NewMemoryStore(graph *resource.Graph) *MemoryStore {
	return &MemoryStore{
		graph: graph,
		data:  make(map[string]map[string]*Record),
		ids:   make(map[string][]string),
	}
}

// WithTransaction implements TransactionRunner. The store is snapshotted up
// front; any error from fn restores the snapshot, making the batch
// all-or-nothing.
func (s *MemoryStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := make(map[string]map[string]*Record, len(s.data))
	for typeName, records := range s.data {
		copied := make(map[string]*Record, len(records))
		for id, record := range records {
			copied[id] = record.Clone()
		}
		snapshot[typeName] = copied
	}
	idsSnapshot := make(map[string][]string, len(s.ids))
	for typeName, order := range s.ids {
		idsSnapshot[typeName] = append([]string(nil), order...)
	}
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.ids = idsSnapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// List implements Service
func (s *MemoryStore) List(ctx context.Context, resourceType string, spec *query.Specification) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.graph.Lookup(resourceType); !ok {
		return nil, &jsonapierr.ResourceNotFoundError{ResourceType: resourceType}
	}

	candidates := make([]*Record, 0, len(s.ids[resourceType]))
	for _, id := range s.ids[resourceType] {
		candidates = append(candidates, s.data[resourceType][id])
	}

	if spec != nil && spec.Filter != nil {
		program, err := compileFilter(spec.Filter)
		if err != nil {
			return nil, err
		}
		filtered := candidates[:0:0]
		for _, record := range candidates {
			match, err := s.evalFilter(program, record)
			if err != nil {
				return nil, err
			}
			if match {
				filtered = append(filtered, record)
			}
		}
		candidates = filtered
	}

	if spec != nil && spec.Sort != nil {
		s.sortRecords(candidates, spec.Sort)
	}

	total := len(candidates)
	if spec != nil && spec.Pagination != nil {
		candidates = pageSlice(candidates, spec.Pagination.Primary)
	}

	primary := make([]*Record, len(candidates))
	for i, record := range candidates {
		primary[i] = record.Clone()
	}

	result := &Result{Primary: primary, Total: total}
	if spec != nil && spec.Include != nil {
		result.Included = s.collectIncluded(primary, spec)
	}
	return result, nil
}

// Get implements Service
func (s *MemoryStore) Get(ctx context.Context, resourceType, id string, spec *query.Specification) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.data[resourceType][id]
	if !ok {
		return nil, &jsonapierr.ResourceNotFoundError{ResourceType: resourceType, ID: id}
	}

	primary := []*Record{record.Clone()}
	result := &Result{Primary: primary, Total: 1}
	if spec != nil && spec.Include != nil {
		result.Included = s.collectIncluded(primary, spec)
	}
	return result, nil
}

// Create implements Service. A missing ID is assigned a fresh UUID, which is
// how local IDs in atomic batches obtain their server-generated value.
func (s *MemoryStore) Create(ctx context.Context, record *Record) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.graph.Lookup(record.Type); !ok {
		return nil, &jsonapierr.ResourceNotFoundError{ResourceType: record.Type}
	}

	stored := record.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.LocalID = ""

	if s.data[record.Type] == nil {
		s.data[record.Type] = make(map[string]*Record)
	}
	if _, exists := s.data[record.Type][stored.ID]; exists {
		return nil, fmt.Errorf("resource %q with id %q already exists", record.Type, stored.ID)
	}
	s.data[record.Type][stored.ID] = stored
	s.ids[record.Type] = append(s.ids[record.Type], stored.ID)

	return stored.Clone(), nil
}

// Update implements Service. Only the attributes and relationships present
// on the incoming record are replaced.
func (s *MemoryStore) Update(ctx context.Context, record *Record) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.data[record.Type][record.ID]
	if !ok {
		return nil, &jsonapierr.ResourceNotFoundError{ResourceType: record.Type, ID: record.ID}
	}

	for name, value := range record.Attributes {
		if existing.Attributes == nil {
			existing.Attributes = make(map[string]interface{})
		}
		existing.Attributes[name] = value
	}
	for name, value := range record.ToOne {
		if existing.ToOne == nil {
			existing.ToOne = make(map[string]*Identifier)
		}
		existing.ToOne[name] = value
	}
	for name, values := range record.ToMany {
		if existing.ToMany == nil {
			existing.ToMany = make(map[string][]*Identifier)
		}
		existing.ToMany[name] = values
	}

	return existing.Clone(), nil
}

// Delete implements Service
func (s *MemoryStore) Delete(ctx context.Context, resourceType, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[resourceType][id]; !ok {
		return &jsonapierr.ResourceNotFoundError{ResourceType: resourceType, ID: id}
	}
	delete(s.data[resourceType], id)

	order := s.ids[resourceType]
	for i, existing := range order {
		if existing == id {
			s.ids[resourceType] = append(order[:i], order[i+1:]...)
			break
		}
	}
	return nil
}

// SetRelationship implements Service
func (s *MemoryStore) SetRelationship(ctx context.Context, target *Identifier, relationship string, value RelationshipValue) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, rel, err := s.lookupRelationship(target, relationship)
	if err != nil {
		return err
	}

	if rel.Kind == resource.ToOne {
		if record.ToOne == nil {
			record.ToOne = make(map[string]*Identifier)
		}
		record.ToOne[relationship] = value.ToOne
		return nil
	}

	if record.ToMany == nil {
		record.ToMany = make(map[string][]*Identifier)
	}
	record.ToMany[relationship] = value.ToMany
	return nil
}

// AddToRelationship implements Service
func (s *MemoryStore) AddToRelationship(ctx context.Context, target *Identifier, relationship string, related []*Identifier) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, rel, err := s.lookupRelationship(target, relationship)
	if err != nil {
		return err
	}
	if rel.Kind != resource.ToMany {
		return &jsonapierr.RelationshipNotFoundError{ResourceType: target.Type, Relationship: relationship}
	}

	if record.ToMany == nil {
		record.ToMany = make(map[string][]*Identifier)
	}
	existing := record.ToMany[relationship]
	seen := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		seen[id.Type+"\x00"+id.ID] = struct{}{}
	}
	for _, id := range related {
		key := id.Type + "\x00" + id.ID
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		existing = append(existing, id)
	}
	record.ToMany[relationship] = existing
	return nil
}

// RemoveFromRelationship implements Service
func (s *MemoryStore) RemoveFromRelationship(ctx context.Context, target *Identifier, relationship string, related []*Identifier) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, rel, err := s.lookupRelationship(target, relationship)
	if err != nil {
		return err
	}
	if rel.Kind != resource.ToMany {
		return &jsonapierr.RelationshipNotFoundError{ResourceType: target.Type, Relationship: relationship}
	}

	remove := make(map[string]struct{}, len(related))
	for _, id := range related {
		remove[id.Type+"\x00"+id.ID] = struct{}{}
	}

	kept := record.ToMany[relationship][:0:0]
	for _, id := range record.ToMany[relationship] {
		if _, drop := remove[id.Type+"\x00"+id.ID]; !drop {
			kept = append(kept, id)
		}
	}
	record.ToMany[relationship] = kept
	return nil
}

func (s *MemoryStore) lookupRelationship(target *Identifier, relationship string) (*Record, *resource.Relationship, error) {
	rc, ok := s.graph.Lookup(target.Type)
	if !ok {
		return nil, nil, &jsonapierr.ResourceNotFoundError{ResourceType: target.Type, ID: target.ID}
	}
	rel, ok := rc.Relationship(relationship)
	if !ok {
		return nil, nil, &jsonapierr.RelationshipNotFoundError{ResourceType: target.Type, Relationship: relationship}
	}
	record, ok := s.data[target.Type][target.ID]
	if !ok {
		return nil, nil, &jsonapierr.ResourceNotFoundError{ResourceType: target.Type, ID: target.ID}
	}
	return record, rel, nil
}

// collectIncluded resolves the include chains against the already
// materialized primary set, deduplicating by (type, id). Related pagination
// applies to the first chain segment.
func (s *MemoryStore) collectIncluded(primary []*Record, spec *query.Specification) []*Record {
	seen := make(map[string]struct{}, len(primary))
	for _, record := range primary {
		seen[record.Type+"\x00"+record.ID] = struct{}{}
	}

	var included []*Record
	for _, chain := range spec.Include.Chains {
		current := primary
		for depth, rel := range chain {
			var next []*Record
			for _, record := range current {
				for _, id := range s.relatedIdentifiers(record, rel, depth, spec) {
					related, ok := s.data[id.Type][id.ID]
					if !ok {
						continue
					}
					next = append(next, related)

					key := related.Type + "\x00" + related.ID
					if _, dup := seen[key]; dup {
						continue
					}
					seen[key] = struct{}{}
					included = append(included, related.Clone())
				}
			}
			current = next
		}
	}
	return included
}

func (s *MemoryStore) relatedIdentifiers(record *Record, rel *resource.Relationship, depth int, spec *query.Specification) []*Identifier {
	if rel.Kind == resource.ToOne {
		if id := record.ToOne[rel.PublicName]; id != nil {
			return []*Identifier{id}
		}
		return nil
	}

	ids := record.ToMany[rel.PublicName]
	if depth == 0 && spec.Pagination != nil {
		if params, ok := spec.Pagination.Related[rel.PublicName]; ok {
			ids = pageSlice(ids, *params)
		}
	}
	return ids
}

func (s *MemoryStore) sortRecords(records []*Record, sortExpr *query.SortExpression) {
	sort.SliceStable(records, func(i, j int) bool {
		for _, elem := range sortExpr.Elements {
			a := s.pathValue(records[i], elem.Path)
			b := s.pathValue(records[j], elem.Path)
			cmp := compareValues(a, b)
			if cmp == 0 {
				continue
			}
			if elem.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return false
	})
}

// pathValue resolves a field path against a record, following to-one
// relationships through the store
func (s *MemoryStore) pathValue(record *Record, path *query.FieldPath) interface{} {
	current := record
	for _, rel := range path.Relationships {
		id := current.ToOne[rel.PublicName]
		if id == nil {
			return nil
		}
		next, ok := s.data[id.Type][id.ID]
		if !ok {
			return nil
		}
		current = next
	}
	return normalizeValue(current.Attributes[path.Attribute.PublicName])
}

func (s *MemoryStore) evalFilter(program *vm.Program, record *Record) (bool, error) {
	values := make(map[string]interface{})
	has := make(map[string]bool)
	collectFilterEnv(s, record, values, has)

	output, err := expr.Run(program, map[string]interface{}{"values": values, "has": has})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate filter: %w", err)
	}
	match, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("filter did not evaluate to a boolean")
	}
	return match, nil
}

// collectFilterEnv materializes every attribute path and to-many emptiness
// flag a filter program might reference
func collectFilterEnv(s *MemoryStore, record *Record, values map[string]interface{}, has map[string]bool) {
	var walk func(current *Record, prefix string, depth int)
	walk = func(current *Record, prefix string, depth int) {
		for name, value := range current.Attributes {
			values[prefix+name] = normalizeValue(value)
		}
		for name, ids := range current.ToMany {
			has[prefix+name] = len(ids) > 0
		}
		if depth >= 4 {
			return
		}
		for name, id := range current.ToOne {
			if id == nil {
				continue
			}
			next, ok := s.data[id.Type][id.ID]
			if !ok {
				continue
			}
			walk(next, prefix+name+".", depth+1)
		}
	}
	walk(record, "", 0)
}

// compileFilter translates a validated filter expression into an expr
// program over the {values, has} environment. Compiling against the env
// shape keeps the identifiers resolving as env keys instead of the
// builtins of the same name.
func compileFilter(filter query.FilterExpression) (*vm.Program, error) {
	source := translateFilter(filter)
	program, err := expr.Compile(source, expr.Env(map[string]interface{}{
		"values": map[string]interface{}{},
		"has":    map[string]bool{},
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to compile filter %q: %w", source, err)
	}
	return program, nil
}

func translateFilter(filter query.FilterExpression) string {
	switch e := filter.(type) {
	case *query.ComparisonExpression:
		lhs := fmt.Sprintf("values[%q]", e.Path.String())
		if e.Value == nil {
			if e.Op == query.OpNotEquals {
				return lhs + " != nil"
			}
			return lhs + " == nil"
		}
		rhs := exprLiteral(e.Value)
		switch e.Op {
		case query.OpEquals:
			return fmt.Sprintf("%s == %s", lhs, rhs)
		case query.OpNotEquals:
			return fmt.Sprintf("(%s == nil or %s != %s)", lhs, lhs, rhs)
		case query.OpGreaterThan:
			return fmt.Sprintf("(%s != nil and %s > %s)", lhs, lhs, rhs)
		case query.OpGreaterOrEqual:
			return fmt.Sprintf("(%s != nil and %s >= %s)", lhs, lhs, rhs)
		case query.OpLessThan:
			return fmt.Sprintf("(%s != nil and %s < %s)", lhs, lhs, rhs)
		default:
			return fmt.Sprintf("(%s != nil and %s <= %s)", lhs, lhs, rhs)
		}
	case *query.TextMatchExpression:
		lhs := fmt.Sprintf("values[%q]", e.Path.String())
		op := map[query.MatchKind]string{
			query.MatchContains:   "contains",
			query.MatchStartsWith: "startsWith",
			query.MatchEndsWith:   "endsWith",
		}[e.Kind]
		return fmt.Sprintf("(%s != nil and %s %s %s)", lhs, lhs, op, exprLiteral(e.Value))
	case *query.AnyExpression:
		lhs := fmt.Sprintf("values[%q]", e.Path.String())
		literals := make([]string, len(e.Values))
		for i, v := range e.Values {
			literals[i] = exprLiteral(v)
		}
		return fmt.Sprintf("%s in [%s]", lhs, strings.Join(literals, ", "))
	case *query.LogicalExpression:
		terms := make([]string, len(e.Terms))
		for i, term := range e.Terms {
			terms[i] = translateFilter(term)
		}
		return "(" + strings.Join(terms, " "+e.Op.String()+" ") + ")"
	case *query.NotExpression:
		return "!(" + translateFilter(e.Inner) + ")"
	case *query.HasExpression:
		// records that never touched the relationship have no entry
		return fmt.Sprintf("(has[%q] ?? false)", e.Relationship.PublicName)
	default:
		return "false"
	}
}

func exprLiteral(v interface{}) string {
	switch value := v.(type) {
	case string:
		return strconv.Quote(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case float64:
		return strconv.FormatFloat(value, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	case time.Time:
		return strconv.Quote(value.UTC().Format(timeSortableLayout))
	default:
		return strconv.Quote(fmt.Sprintf("%v", value))
	}
}

// normalizeValue converts stored values to the representation filter
// programs and sorting compare against
func normalizeValue(v interface{}) interface{} {
	switch value := v.(type) {
	case time.Time:
		return value.UTC().Format(timeSortableLayout)
	case int:
		return int64(value)
	case int32:
		return int64(value)
	case float32:
		return float64(value)
	default:
		return v
	}
}

func compareValues(a, b interface{}) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0
		}
		return strings.Compare(av, bv)
	case int64:
		switch bv := b.(type) {
		case int64:
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		case float64:
			return compareFloats(float64(av), bv)
		}
	case float64:
		switch bv := b.(type) {
		case float64:
			return compareFloats(av, bv)
		case int64:
			return compareFloats(av, float64(bv))
		}
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0
		}
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	}
	return 0
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func pageSlice[T any](items []T, params query.PageParams) []T {
	if params.Size < 1 {
		return items
	}
	offset := (params.Number - 1) * params.Size
	if offset >= len(items) {
		return nil
	}
	end := offset + params.Size
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
