package atomic

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junction-api/junction/internal/hooks"
	"github.com/junction-api/junction/internal/jsonapierr"
	"github.com/junction-api/junction/internal/resource"
	"github.com/junction-api/junction/internal/store"
)

func pipelineFixture(t *testing.T) (*Pipeline, *store.MemoryStore, *resource.Graph) {
	t.Helper()

	builder := resource.NewBuilder()
	builder.Resource("articles").
		Attr("title", resource.KindString).
		ToOne("author", "people").
		ToMany("tags", "tags")
	builder.Resource("people").
		Attr("name", resource.KindString)
	builder.Resource("tags").
		Attr("name", resource.KindString)

	graph, err := builder.Build()
	require.NoError(t, err)

	mem := store.NewMemoryStore(graph)
	return NewPipeline(graph, mem, mem, nil), mem, graph
}

func TestPipeline_CreateThenReference(t *testing.T) {
	pipeline, mem, _ := pipelineFixture(t)

	operations := []*OperationContainer{
		{
			Kind: CreateResource,
			Resource: &store.Record{
				Type: "people", LocalID: "p1",
				Attributes: map[string]interface{}{"name": "Ada"},
			},
		},
		{
			Kind: CreateResource,
			Resource: &store.Record{
				Type: "articles",
				Attributes: map[string]interface{}{"title": "Hello"},
				ToOne: map[string]*store.Identifier{
					"author": {Type: "people", LocalID: "p1"},
				},
			},
		},
	}

	results, err := pipeline.ProcessAll(context.Background(), operations)
	require.NoError(t, err)
	require.Len(t, results, 2)

	person := results[0].Resource
	article := results[1].Resource
	require.NotNil(t, person)
	require.NotNil(t, article)

	// the placeholder was substituted with the generated identifier
	author := article.ToOne["author"]
	require.NotNil(t, author)
	assert.Equal(t, person.ID, author.ID)
	assert.Empty(t, author.LocalID)

	stored, err := mem.Get(context.Background(), "articles", article.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, person.ID, stored.Primary[0].ToOne["author"].ID)
}

func TestPipeline_CreateThenSetRelationship(t *testing.T) {
	pipeline, mem, _ := pipelineFixture(t)

	operations := []*OperationContainer{
		{
			Kind: CreateResource,
			Resource: &store.Record{
				Type: "articles", LocalID: "t1",
				Attributes: map[string]interface{}{"title": "Hello"},
			},
		},
		{
			Kind: CreateResource,
			Resource: &store.Record{
				Type:       "people",
				ID:         "p-9",
				Attributes: map[string]interface{}{"name": "Grace"},
			},
		},
		{
			Kind: SetRelationship,
			Ref:  &Ref{Type: "articles", LocalID: "t1", Relationship: "author"},
			RightToOne: &store.Identifier{Type: "people", ID: "p-9"},
		},
	}

	results, err := pipeline.ProcessAll(context.Background(), operations)
	require.NoError(t, err)
	require.Len(t, results, 3)

	articleID := results[0].Resource.ID
	stored, err := mem.Get(context.Background(), "articles", articleID, nil)
	require.NoError(t, err)
	assert.Equal(t, "p-9", stored.Primary[0].ToOne["author"].ID)
}

func TestPipeline_UndeclaredLocalID(t *testing.T) {
	pipeline, _, _ := pipelineFixture(t)

	operations := []*OperationContainer{
		{
			Kind: SetRelationship,
			Ref:  &Ref{Type: "articles", LocalID: "never-declared", Relationship: "author"},
			RightToOne: &store.Identifier{Type: "people", ID: "1"},
		},
	}

	_, err := pipeline.ProcessAll(context.Background(), operations)
	require.Error(t, err)

	var opErr *jsonapierr.OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, 0, opErr.Index)

	var notFound *jsonapierr.LocalIdNotFoundError
	assert.True(t, errors.As(err, &notFound))

	objects := opErr.Objects()
	require.NotEmpty(t, objects)
	assert.True(t, strings.HasPrefix(objects[0].Source.Pointer, "/atomic:operations[0]"),
		"pointer %q should name the failing operation", objects[0].Source.Pointer)
}

func TestPipeline_DoubleDeclaration(t *testing.T) {
	pipeline, _, _ := pipelineFixture(t)

	operations := []*OperationContainer{
		{Kind: CreateResource, Resource: &store.Record{Type: "tags", LocalID: "x"}},
		{Kind: CreateResource, Resource: &store.Record{Type: "tags", LocalID: "x"}},
	}

	_, err := pipeline.ProcessAll(context.Background(), operations)
	require.Error(t, err)

	var opErr *jsonapierr.OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, 1, opErr.Index)

	var dup *jsonapierr.LocalIdAlreadyDeclaredError
	assert.True(t, errors.As(err, &dup))
}

func TestPipeline_MissingRefRejected(t *testing.T) {
	pipeline, _, _ := pipelineFixture(t)

	for _, kind := range []OperationKind{DeleteResource, SetRelationship, AddToRelationship, RemoveFromRelationship} {
		operations := []*OperationContainer{{Kind: kind}}

		_, err := pipeline.ProcessAll(context.Background(), operations)
		require.Error(t, err, "%s without a ref should be rejected", kind)

		var opErr *jsonapierr.OperationError
		require.True(t, errors.As(err, &opErr))
		assert.Equal(t, 0, opErr.Index)

		objects := opErr.Objects()
		require.NotEmpty(t, objects)
		assert.Equal(t, "400", objects[0].Status)
	}
}

func TestPipeline_SelfReferenceRejected(t *testing.T) {
	pipeline, _, _ := pipelineFixture(t)

	// an operation's own local ID is declared after its references are
	// checked, so pointing at itself fails
	operations := []*OperationContainer{
		{
			Kind: CreateResource,
			Resource: &store.Record{
				Type: "articles", LocalID: "a1",
				ToOne: map[string]*store.Identifier{
					"author": {Type: "articles", LocalID: "a1"},
				},
			},
		},
	}

	_, err := pipeline.ProcessAll(context.Background(), operations)
	require.Error(t, err)
}

func TestPipeline_FailureRollsBackBatch(t *testing.T) {
	pipeline, mem, _ := pipelineFixture(t)

	operations := []*OperationContainer{
		{
			Kind: CreateResource,
			Resource: &store.Record{
				Type: "tags", ID: "t-1",
				Attributes: map[string]interface{}{"name": "go"},
			},
		},
		{
			Kind: DeleteResource,
			Ref:  &Ref{Type: "tags", ID: "does-not-exist"},
		},
	}

	_, err := pipeline.ProcessAll(context.Background(), operations)
	require.Error(t, err)

	var opErr *jsonapierr.OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, 1, opErr.Index)

	// the first operation's create must not survive
	_, err = mem.Get(context.Background(), "tags", "t-1", nil)
	require.Error(t, err)
	var notFound *jsonapierr.ResourceNotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestPipeline_ToManyDeduplicated(t *testing.T) {
	pipeline, mem, _ := pipelineFixture(t)

	operations := []*OperationContainer{
		{Kind: CreateResource, Resource: &store.Record{Type: "tags", ID: "t-1"}},
		{Kind: CreateResource, Resource: &store.Record{Type: "articles", ID: "a-1"}},
		{
			Kind: AddToRelationship,
			Ref:  &Ref{Type: "articles", ID: "a-1", Relationship: "tags"},
			RightToMany: []*store.Identifier{
				{Type: "tags", ID: "t-1"},
				{Type: "tags", ID: "t-1"},
			},
		},
	}

	_, err := pipeline.ProcessAll(context.Background(), operations)
	require.NoError(t, err)

	stored, err := mem.Get(context.Background(), "articles", "a-1", nil)
	require.NoError(t, err)
	assert.Len(t, stored.Primary[0].ToMany["tags"], 1)
}

func TestPipeline_UpdateByLocalID(t *testing.T) {
	pipeline, mem, _ := pipelineFixture(t)

	operations := []*OperationContainer{
		{
			Kind: CreateResource,
			Resource: &store.Record{
				Type: "tags", LocalID: "t1",
				Attributes: map[string]interface{}{"name": "go"},
			},
		},
		{
			Kind: UpdateResource,
			Ref:  &Ref{Type: "tags", LocalID: "t1"},
			Resource: &store.Record{
				Type:       "tags",
				Attributes: map[string]interface{}{"name": "golang"},
			},
		},
	}

	results, err := pipeline.ProcessAll(context.Background(), operations)
	require.NoError(t, err)

	stored, err := mem.Get(context.Background(), "tags", results[0].Resource.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "golang", stored.Primary[0].Attributes["name"])
}

func TestPipeline_ContextCancellation(t *testing.T) {
	pipeline, _, _ := pipelineFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	operations := []*OperationContainer{
		{Kind: CreateResource, Resource: &store.Record{Type: "tags"}},
	}

	_, err := pipeline.ProcessAll(ctx, operations)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	// cancellation is not an operation failure
	var opErr *jsonapierr.OperationError
	assert.False(t, errors.As(err, &opErr))
}

func TestPipeline_WriteHooks(t *testing.T) {
	builder := resource.NewBuilder()
	builder.Resource("tags").Attr("name", resource.KindString)
	graph, err := builder.Build()
	require.NoError(t, err)

	mem := store.NewMemoryStore(graph)

	var calls []string
	registry := hooks.NewRegistry()
	err = registry.Register("tags", hooks.NewContainer().
		On(hooks.BeforeCreate, func(ctx context.Context, records []*store.Record, isDescendant bool) error {
			calls = append(calls, "before")
			return nil
		}).
		On(hooks.AfterCreate, func(ctx context.Context, records []*store.Record, isDescendant bool) error {
			calls = append(calls, "after")
			return nil
		}))
	require.NoError(t, err)

	pipeline := NewPipeline(graph, mem, mem, hooks.NewExecutor(registry))

	_, err = pipeline.ProcessAll(context.Background(), []*OperationContainer{
		{Kind: CreateResource, Resource: &store.Record{Type: "tags"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"before", "after"}, calls)
}
