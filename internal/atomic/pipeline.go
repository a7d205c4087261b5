package atomic

import (
	"context"
	"errors"
	"fmt"

	"github.com/junction-api/junction/internal/hooks"
	"github.com/junction-api/junction/internal/jsonapierr"
	"github.com/junction-api/junction/internal/resource"
	"github.com/junction-api/junction/internal/store"
)

// Pipeline executes one atomic operations batch: a structural validation
// pass over the whole list, then a strictly sequential execution pass inside
// one transaction. Operation N+1 never begins before operation N completes,
// because later operations may reference local IDs assigned by earlier ones.
type Pipeline struct {
	graph      *resource.Graph
	service    store.Service
	runner     store.TransactionRunner
	hooks      *hooks.Executor
	validator  *Validator
	processors map[OperationKind]Processor
}

// NewPipeline creates a pipeline over the given collaborators. hooksExec may
// be nil to disable lifecycle hooks.
func NewPipeline(graph *resource.Graph, service store.Service, runner store.TransactionRunner, hooksExec *hooks.Executor) *Pipeline {
	relProcessor := &relationshipProcessor{service: service, graph: graph}
	return &Pipeline{
		graph:     graph,
		service:   service,
		runner:    runner,
		hooks:     hooksExec,
		validator: NewValidator(),
		processors: map[OperationKind]Processor{
			CreateResource:         &createProcessor{service: service},
			UpdateResource:         &updateProcessor{service: service},
			DeleteResource:         &deleteProcessor{service: service},
			SetRelationship:        relProcessor,
			AddToRelationship:      relProcessor,
			RemoveFromRelationship: relProcessor,
		},
	}
}

// ProcessAll runs the batch. Any validation failure aborts before execution;
// any processor failure aborts the remaining operations and rolls the whole
// batch back through the transaction collaborator. Each request gets its own
// local-ID tracker.
func (p *Pipeline) ProcessAll(ctx context.Context, operations []*OperationContainer) ([]*OperationContainer, error) {
	if err := p.validator.Validate(operations); err != nil {
		return nil, err
	}

	tracker := NewLocalIDTracker()
	results := make([]*OperationContainer, 0, len(operations))

	err := p.runner.WithTransaction(ctx, func(ctx context.Context) error {
		for index, operation := range operations {
			if err := ctx.Err(); err != nil {
				return err
			}

			result, err := p.processOne(ctx, operation, tracker)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				return &jsonapierr.OperationError{Index: index, Inner: err}
			}
			results = append(results, result)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Pipeline) processOne(ctx context.Context, operation *OperationContainer, tracker *LocalIDTracker) (*OperationContainer, error) {
	processor, ok := p.processors[operation.Kind]
	if !ok {
		return nil, fmt.Errorf("no processor for operation kind %s", operation.Kind)
	}

	before, after := hookKinds(operation.Kind)

	if err := p.invokeHook(ctx, before, operation); err != nil {
		return nil, err
	}
	result, err := processor.Process(ctx, operation, tracker)
	if err != nil {
		return nil, err
	}
	if err := p.invokeHook(ctx, after, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (p *Pipeline) invokeHook(ctx context.Context, kind hooks.Kind, operation *OperationContainer) error {
	if p.hooks == nil || operation == nil {
		return nil
	}

	var typeName string
	var records []*store.Record
	switch {
	case operation.Resource != nil:
		typeName = operation.Resource.Type
		records = []*store.Record{operation.Resource}
	case operation.Ref != nil:
		typeName = operation.Ref.Type
		records = []*store.Record{{Type: operation.Ref.Type, ID: operation.Ref.ID, LocalID: operation.Ref.LocalID}}
	default:
		return nil
	}

	return p.hooks.Invoke(ctx, kind, typeName, records, false)
}

// hookKinds maps an operation kind to the lifecycle hooks wrapping it.
// Relationship changes are updates of the left-side resource.
func hookKinds(kind OperationKind) (hooks.Kind, hooks.Kind) {
	switch kind {
	case CreateResource:
		return hooks.BeforeCreate, hooks.AfterCreate
	case DeleteResource:
		return hooks.BeforeDelete, hooks.AfterDelete
	default:
		return hooks.BeforeUpdate, hooks.AfterUpdate
	}
}
