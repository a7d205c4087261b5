package hooks

import (
	"context"

	"github.com/junction-api/junction/internal/query"
	"github.com/junction-api/junction/internal/resource"
	"github.com/junction-api/junction/internal/store"
)

// Node is one level of the resource-to-relationship tree built from an
// already materialized result set. The root holds the primary records;
// children follow the request's inclusion chains.
type Node struct {
	Type     string
	Records  []*store.Record
	Children []*Node
}

// Executor invokes lifecycle hooks. Read-path traversal is depth-first over
// the node tree; write-path hooks wrap individual service calls.
type Executor struct {
	registry *Registry
}

// NewExecutor creates an executor over a registry
func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

// Invoke runs the hook of the given kind for one resource type, if
// implemented
func (e *Executor) Invoke(ctx context.Context, kind Kind, resourceType string, records []*store.Record, isDescendant bool) error {
	fn := e.registry.Lookup(resourceType, kind)
	if fn == nil {
		return nil
	}
	return fn(ctx, records, isDescendant)
}

// InvokeRead walks the tree depth-first and invokes the AfterRead hook once
// per resource type reached, with the instance sets of all levels sharing
// that type merged and deduplicated. A type reached only through
// relationships sees isDescendant true; absence of a hook at one level never
// suppresses hooks of descendant levels.
func (e *Executor) InvokeRead(ctx context.Context, root *Node) error {
	type visit struct {
		records      []*store.Record
		seen         map[string]struct{}
		isDescendant bool
	}

	visits := make(map[string]*visit)
	var order []string

	var walk func(node *Node, isDescendant bool)
	walk = func(node *Node, isDescendant bool) {
		v, ok := visits[node.Type]
		if !ok {
			v = &visit{seen: make(map[string]struct{}), isDescendant: isDescendant}
			visits[node.Type] = v
			order = append(order, node.Type)
		}
		if !isDescendant {
			v.isDescendant = false
		}
		for _, record := range node.Records {
			key := record.Type + "\x00" + record.ID
			if _, dup := v.seen[key]; dup {
				continue
			}
			v.seen[key] = struct{}{}
			v.records = append(v.records, record)
		}

		for _, child := range node.Children {
			walk(child, true)
		}
	}
	walk(root, false)

	for _, typeName := range order {
		v := visits[typeName]
		if len(v.records) == 0 {
			continue
		}
		if err := e.Invoke(ctx, AfterRead, typeName, v.records, v.isDescendant); err != nil {
			return err
		}
	}
	return nil
}

// BuildReadTree arranges a materialized result into the node tree InvokeRead
// traverses. Included records are grouped by following the inclusion chains
// through relationship linkage; the result set is not re-queried.
func BuildReadTree(graph *resource.Graph, resourceType string, result *store.Result, include *query.IncludeExpression) *Node {
	root := &Node{Type: resourceType, Records: result.Primary}
	if include == nil {
		return root
	}

	index := make(map[store.Identifier]*store.Record, len(result.Included))
	for _, record := range result.Included {
		index[store.Identifier{Type: record.Type, ID: record.ID}] = record
	}

	for _, chain := range include.Chains {
		parent := root
		current := result.Primary
		for _, rel := range chain {
			var next []*store.Record
			for _, record := range current {
				for _, id := range linkedIdentifiers(record, rel) {
					if related, ok := index[store.Identifier{Type: id.Type, ID: id.ID}]; ok {
						next = append(next, related)
					}
				}
			}

			child := &Node{Type: rel.RightTypeName, Records: next}
			parent.Children = append(parent.Children, child)
			parent = child
			current = next
		}
	}
	return root
}

func linkedIdentifiers(record *store.Record, rel *resource.Relationship) []*store.Identifier {
	if rel.Kind == resource.ToOne {
		if id := record.ToOne[rel.PublicName]; id != nil {
			return []*store.Identifier{id}
		}
		return nil
	}
	return record.ToMany[rel.PublicName]
}
