package atomic

import (
	"context"
	"fmt"

	"github.com/junction-api/junction/internal/jsonapierr"
	"github.com/junction-api/junction/internal/resource"
	"github.com/junction-api/junction/internal/store"
)

// Processor executes one operation kind, delegating to the resource service
// with local IDs substituted for their assigned identifiers.
type Processor interface {
	Process(ctx context.Context, operation *OperationContainer, tracker *LocalIDTracker) (*OperationContainer, error)
}

// createProcessor handles CreateResource operations
type createProcessor struct {
	service store.Service
}

func (p *createProcessor) Process(ctx context.Context, operation *OperationContainer, tracker *LocalIDTracker) (*OperationContainer, error) {
	payload, err := resolveRecord(operation.Resource, tracker)
	if err != nil {
		return nil, err
	}

	created, err := p.service.Create(ctx, payload)
	if err != nil {
		return nil, err
	}

	// The execution tracker starts empty; the declaration is re-recorded
	// here and the assignment follows immediately, because only now is the
	// server-generated identifier known.
	if operation.Resource.LocalID != "" {
		if err := tracker.Declare(operation.Resource.Type, operation.Resource.LocalID); err != nil {
			return nil, err
		}
		if err := tracker.Assign(operation.Resource.Type, operation.Resource.LocalID, created.ID); err != nil {
			return nil, err
		}
	}

	return &OperationContainer{Kind: operation.Kind, Resource: created}, nil
}

// updateProcessor handles UpdateResource operations
type updateProcessor struct {
	service store.Service
}

func (p *updateProcessor) Process(ctx context.Context, operation *OperationContainer, tracker *LocalIDTracker) (*OperationContainer, error) {
	payload, err := resolveRecord(operation.Resource, tracker)
	if err != nil {
		return nil, err
	}
	if operation.Ref != nil {
		target, err := resolveIdentifier(&store.Identifier{
			Type: operation.Ref.Type, ID: operation.Ref.ID, LocalID: operation.Ref.LocalID,
		}, tracker)
		if err != nil {
			return nil, err
		}
		payload.ID = target.ID
	}

	updated, err := p.service.Update(ctx, payload)
	if err != nil {
		return nil, err
	}
	return &OperationContainer{Kind: operation.Kind, Resource: updated}, nil
}

// deleteProcessor handles DeleteResource operations
type deleteProcessor struct {
	service store.Service
}

func (p *deleteProcessor) Process(ctx context.Context, operation *OperationContainer, tracker *LocalIDTracker) (*OperationContainer, error) {
	target, err := resolveIdentifier(&store.Identifier{
		Type: operation.Ref.Type, ID: operation.Ref.ID, LocalID: operation.Ref.LocalID,
	}, tracker)
	if err != nil {
		return nil, err
	}

	if err := p.service.Delete(ctx, target.Type, target.ID); err != nil {
		return nil, err
	}
	return &OperationContainer{Kind: operation.Kind}, nil
}

// relationshipProcessor handles the three relationship operation kinds
type relationshipProcessor struct {
	service store.Service
	graph   *resource.Graph
}

func (p *relationshipProcessor) Process(ctx context.Context, operation *OperationContainer, tracker *LocalIDTracker) (*OperationContainer, error) {
	target, err := resolveIdentifier(&store.Identifier{
		Type: operation.Ref.Type, ID: operation.Ref.ID, LocalID: operation.Ref.LocalID,
	}, tracker)
	if err != nil {
		return nil, err
	}

	rc, ok := p.graph.Lookup(operation.Ref.Type)
	if !ok {
		return nil, &jsonapierr.ResourceNotFoundError{ResourceType: operation.Ref.Type}
	}
	rel, ok := rc.Relationship(operation.Ref.Relationship)
	if !ok {
		return nil, &jsonapierr.RelationshipNotFoundError{
			ResourceType: operation.Ref.Type,
			Relationship: operation.Ref.Relationship,
		}
	}

	switch operation.Kind {
	case SetRelationship:
		if rel.Kind == resource.ToOne {
			// To-one values pass through unchanged, including nil to clear
			right, err := resolveOptionalIdentifier(operation.RightToOne, tracker)
			if err != nil {
				return nil, err
			}
			err = p.service.SetRelationship(ctx, target, rel.PublicName, store.RelationshipValue{ToOne: right})
			return &OperationContainer{Kind: operation.Kind}, err
		}

		right, err := resolveIdentifierSet(operation.RightToMany, tracker)
		if err != nil {
			return nil, err
		}
		err = p.service.SetRelationship(ctx, target, rel.PublicName, store.RelationshipValue{ToMany: right})
		return &OperationContainer{Kind: operation.Kind}, err

	case AddToRelationship:
		right, err := resolveIdentifierSet(operation.RightToMany, tracker)
		if err != nil {
			return nil, err
		}
		err = p.service.AddToRelationship(ctx, target, rel.PublicName, right)
		return &OperationContainer{Kind: operation.Kind}, err

	case RemoveFromRelationship:
		right, err := resolveIdentifierSet(operation.RightToMany, tracker)
		if err != nil {
			return nil, err
		}
		err = p.service.RemoveFromRelationship(ctx, target, rel.PublicName, right)
		return &OperationContainer{Kind: operation.Kind}, err

	default:
		return nil, fmt.Errorf("unsupported relationship operation kind %s", operation.Kind)
	}
}

// resolveIdentifier substitutes an assigned local ID for the real one
func resolveIdentifier(identifier *store.Identifier, tracker *LocalIDTracker) (*store.Identifier, error) {
	if identifier.LocalID == "" {
		return identifier, nil
	}
	id, err := tracker.Resolve(identifier.Type, identifier.LocalID)
	if err != nil {
		return nil, err
	}
	return &store.Identifier{Type: identifier.Type, ID: id}, nil
}

func resolveOptionalIdentifier(identifier *store.Identifier, tracker *LocalIDTracker) (*store.Identifier, error) {
	if identifier == nil {
		return nil, nil
	}
	return resolveIdentifier(identifier, tracker)
}

// resolveIdentifierSet resolves local IDs and collapses duplicate related
// resources into a uniqueness-deduplicated set, preserving first-seen order
func resolveIdentifierSet(identifiers []*store.Identifier, tracker *LocalIDTracker) ([]*store.Identifier, error) {
	seen := make(map[store.Identifier]struct{}, len(identifiers))
	result := make([]*store.Identifier, 0, len(identifiers))

	for _, identifier := range identifiers {
		resolved, err := resolveIdentifier(identifier, tracker)
		if err != nil {
			return nil, err
		}
		key := *resolved
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, resolved)
	}
	return result, nil
}

// resolveRecord substitutes assigned local IDs inside a resource payload's
// relationship linkage
func resolveRecord(record *store.Record, tracker *LocalIDTracker) (*store.Record, error) {
	if record == nil {
		return nil, nil
	}

	resolved := record.Clone()
	for name, identifier := range resolved.ToOne {
		if identifier == nil {
			continue
		}
		r, err := resolveIdentifier(identifier, tracker)
		if err != nil {
			return nil, err
		}
		resolved.ToOne[name] = r
	}
	for name, identifiers := range resolved.ToMany {
		r, err := resolveIdentifierSet(identifiers, tracker)
		if err != nil {
			return nil, err
		}
		resolved.ToMany[name] = r
	}
	return resolved, nil
}
