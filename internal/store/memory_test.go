package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junction-api/junction/internal/config"
	"github.com/junction-api/junction/internal/jsonapierr"
	"github.com/junction-api/junction/internal/query"
	"github.com/junction-api/junction/internal/resource"
)

func memoryFixture(t *testing.T) (*MemoryStore, *resource.Graph, *resource.Context) {
	t.Helper()

	builder := resource.NewBuilder()
	builder.Resource("articles").
		Attr("title", resource.KindString).
		Attr("viewCount", resource.KindInt).
		ToOne("author", "people").
		ToMany("tags", "tags")
	builder.Resource("people").
		Attr("name", resource.KindString)
	builder.Resource("tags").
		Attr("name", resource.KindString)

	graph, err := builder.Build()
	require.NoError(t, err)
	base, ok := graph.Lookup("articles")
	require.True(t, ok)

	mem := NewMemoryStore(graph)
	ctx := context.Background()

	_, err = mem.Create(ctx, &Record{
		Type: "people", ID: "p-1",
		Attributes: map[string]interface{}{"name": "Ada"},
	})
	require.NoError(t, err)
	_, err = mem.Create(ctx, &Record{
		Type: "tags", ID: "t-1",
		Attributes: map[string]interface{}{"name": "go"},
	})
	require.NoError(t, err)
	_, err = mem.Create(ctx, &Record{
		Type: "tags", ID: "t-2",
		Attributes: map[string]interface{}{"name": "api"},
	})
	require.NoError(t, err)

	titles := []string{"Alpha", "Beta", "Gamma", "Delta"}
	for i, title := range titles {
		_, err = mem.Create(ctx, &Record{
			Type: "articles", ID: fmt.Sprintf("a-%d", i+1),
			Attributes: map[string]interface{}{"title": title, "viewCount": (i + 1) * 10},
			ToOne:      map[string]*Identifier{"author": {Type: "people", ID: "p-1"}},
			ToMany: map[string][]*Identifier{"tags": {
				{Type: "tags", ID: "t-1"},
				{Type: "tags", ID: "t-2"},
			}},
		})
		require.NoError(t, err)
	}

	return mem, graph, base
}

func readSpec(t *testing.T, graph *resource.Graph, base *resource.Context, rawQuery string) *query.Specification {
	t.Helper()
	values, err := url.ParseQuery(rawQuery)
	require.NoError(t, err)
	spec, err := query.NewAggregator(graph, base, config.Default()).ReadAll(values, nil)
	require.NoError(t, err)
	return spec
}

func primaryIDs(result *Result) []string {
	ids := make([]string, len(result.Primary))
	for i, record := range result.Primary {
		ids[i] = record.ID
	}
	return ids
}

func TestMemoryStore_List_FilterSortPage(t *testing.T) {
	mem, graph, base := memoryFixture(t)

	spec := readSpec(t, graph, base, "filter=greaterThan(viewCount,'10')&sort=-viewCount&page[size]=2&page[number]=1")
	result, err := mem.List(context.Background(), "articles", spec)
	require.NoError(t, err)

	// three articles pass the filter, the page shows the top two
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, []string{"a-4", "a-3"}, primaryIDs(result))

	spec = readSpec(t, graph, base, "filter=greaterThan(viewCount,'10')&sort=-viewCount&page[size]=2&page[number]=2")
	result, err = mem.List(context.Background(), "articles", spec)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-2"}, primaryIDs(result))
}

func TestMemoryStore_List_TextAndAnyFilters(t *testing.T) {
	mem, graph, base := memoryFixture(t)

	spec := readSpec(t, graph, base, "filter=startsWith(title,'Ga')")
	result, err := mem.List(context.Background(), "articles", spec)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-3"}, primaryIDs(result))

	spec = readSpec(t, graph, base, "filter=any(title,'Alpha','Delta')&sort=title")
	result, err = mem.List(context.Background(), "articles", spec)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-1", "a-4"}, primaryIDs(result))
}

func TestMemoryStore_List_RelationshipPathFilter(t *testing.T) {
	mem, graph, base := memoryFixture(t)

	_, err := mem.Create(context.Background(), &Record{
		Type: "people", ID: "p-2",
		Attributes: map[string]interface{}{"name": "Grace"},
	})
	require.NoError(t, err)
	_, err = mem.Create(context.Background(), &Record{
		Type: "articles", ID: "a-5",
		Attributes: map[string]interface{}{"title": "Epsilon", "viewCount": 1},
		ToOne:      map[string]*Identifier{"author": {Type: "people", ID: "p-2"}},
	})
	require.NoError(t, err)

	spec := readSpec(t, graph, base, "filter=equals(author.name,'Grace')")
	result, err := mem.List(context.Background(), "articles", spec)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-5"}, primaryIDs(result))
}

func TestMemoryStore_List_HasFilter(t *testing.T) {
	mem, graph, base := memoryFixture(t)

	_, err := mem.Create(context.Background(), &Record{
		Type: "articles", ID: "a-5",
		Attributes: map[string]interface{}{"title": "Untagged", "viewCount": 0},
	})
	require.NoError(t, err)

	spec := readSpec(t, graph, base, "filter=not(has(tags))")
	result, err := mem.List(context.Background(), "articles", spec)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-5"}, primaryIDs(result))
}

func TestMemoryStore_List_IncludeDeduplicates(t *testing.T) {
	mem, graph, base := memoryFixture(t)

	// all four articles share one author and two tags
	spec := readSpec(t, graph, base, "include=author,tags")
	result, err := mem.List(context.Background(), "articles", spec)
	require.NoError(t, err)

	require.Len(t, result.Included, 3)
	seen := make(map[string]int)
	for _, record := range result.Included {
		seen[record.Type]++
	}
	assert.Equal(t, 1, seen["people"])
	assert.Equal(t, 2, seen["tags"])
}

func TestMemoryStore_List_RelatedPagination(t *testing.T) {
	mem, graph, base := memoryFixture(t)

	spec := readSpec(t, graph, base, "include=tags&page[tags][size]=1")
	result, err := mem.List(context.Background(), "articles", spec)
	require.NoError(t, err)

	// only the first tag of each article is traversed
	require.Len(t, result.Included, 1)
	assert.Equal(t, "t-1", result.Included[0].ID)
}

func TestMemoryStore_List_UnknownType(t *testing.T) {
	mem, _, _ := memoryFixture(t)

	_, err := mem.List(context.Background(), "widgets", nil)
	var notFound *jsonapierr.ResourceNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "widgets", notFound.ResourceType)
}

func TestMemoryStore_Get(t *testing.T) {
	mem, graph, base := memoryFixture(t)

	spec := readSpec(t, graph, base, "include=author")
	result, err := mem.Get(context.Background(), "articles", "a-1", spec)
	require.NoError(t, err)
	require.Len(t, result.Primary, 1)
	assert.Equal(t, "Alpha", result.Primary[0].Attributes["title"])
	require.Len(t, result.Included, 1)
	assert.Equal(t, "p-1", result.Included[0].ID)

	_, err = mem.Get(context.Background(), "articles", "missing", nil)
	var notFound *jsonapierr.ResourceNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.ID)
}

func TestMemoryStore_Create(t *testing.T) {
	mem, _, _ := memoryFixture(t)

	created, err := mem.Create(context.Background(), &Record{
		Type: "tags", LocalID: "t-local",
		Attributes: map[string]interface{}{"name": "fresh"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Empty(t, created.LocalID)

	// duplicate explicit ID is rejected
	_, err = mem.Create(context.Background(), &Record{Type: "tags", ID: "t-1"})
	require.Error(t, err)
}

func TestMemoryStore_Update_MergesPresentFields(t *testing.T) {
	mem, _, _ := memoryFixture(t)

	updated, err := mem.Update(context.Background(), &Record{
		Type: "articles", ID: "a-1",
		Attributes: map[string]interface{}{"title": "Alpha v2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Alpha v2", updated.Attributes["title"])
	assert.Equal(t, 10, updated.Attributes["viewCount"])
	require.NotNil(t, updated.ToOne["author"])
	assert.Equal(t, "p-1", updated.ToOne["author"].ID)

	_, err = mem.Update(context.Background(), &Record{Type: "articles", ID: "missing"})
	var notFound *jsonapierr.ResourceNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestMemoryStore_Delete(t *testing.T) {
	mem, _, _ := memoryFixture(t)

	require.NoError(t, mem.Delete(context.Background(), "articles", "a-1"))

	_, err := mem.Get(context.Background(), "articles", "a-1", nil)
	var notFound *jsonapierr.ResourceNotFoundError
	require.ErrorAs(t, err, &notFound)

	err = mem.Delete(context.Background(), "articles", "a-1")
	require.ErrorAs(t, err, &notFound)
}

func TestMemoryStore_SetRelationship(t *testing.T) {
	mem, _, _ := memoryFixture(t)
	ctx := context.Background()

	// clear a to-one relationship
	err := mem.SetRelationship(ctx, &Identifier{Type: "articles", ID: "a-1"}, "author", RelationshipValue{ToOne: nil})
	require.NoError(t, err)

	result, err := mem.Get(ctx, "articles", "a-1", nil)
	require.NoError(t, err)
	assert.Nil(t, result.Primary[0].ToOne["author"])

	// replace a to-many relationship wholesale
	err = mem.SetRelationship(ctx, &Identifier{Type: "articles", ID: "a-1"}, "tags", RelationshipValue{
		ToMany: []*Identifier{{Type: "tags", ID: "t-2"}},
	})
	require.NoError(t, err)

	result, err = mem.Get(ctx, "articles", "a-1", nil)
	require.NoError(t, err)
	require.Len(t, result.Primary[0].ToMany["tags"], 1)
	assert.Equal(t, "t-2", result.Primary[0].ToMany["tags"][0].ID)

	err = mem.SetRelationship(ctx, &Identifier{Type: "articles", ID: "a-1"}, "bogus", RelationshipValue{})
	var relErr *jsonapierr.RelationshipNotFoundError
	require.ErrorAs(t, err, &relErr)
}

func TestMemoryStore_AddToRelationship_Deduplicates(t *testing.T) {
	mem, _, _ := memoryFixture(t)
	ctx := context.Background()

	_, err := mem.Create(ctx, &Record{Type: "tags", ID: "t-3", Attributes: map[string]interface{}{"name": "new"}})
	require.NoError(t, err)

	err = mem.AddToRelationship(ctx, &Identifier{Type: "articles", ID: "a-1"}, "tags", []*Identifier{
		{Type: "tags", ID: "t-3"},
		{Type: "tags", ID: "t-1"},
		{Type: "tags", ID: "t-3"},
	})
	require.NoError(t, err)

	result, err := mem.Get(ctx, "articles", "a-1", nil)
	require.NoError(t, err)
	ids := make([]string, 0, 3)
	for _, id := range result.Primary[0].ToMany["tags"] {
		ids = append(ids, id.ID)
	}
	assert.Equal(t, []string{"t-1", "t-2", "t-3"}, ids)

	// to-one relationships reject membership mutation
	err = mem.AddToRelationship(ctx, &Identifier{Type: "articles", ID: "a-1"}, "author", nil)
	var relErr *jsonapierr.RelationshipNotFoundError
	require.ErrorAs(t, err, &relErr)
}

func TestMemoryStore_RemoveFromRelationship(t *testing.T) {
	mem, _, _ := memoryFixture(t)
	ctx := context.Background()

	err := mem.RemoveFromRelationship(ctx, &Identifier{Type: "articles", ID: "a-1"}, "tags", []*Identifier{
		{Type: "tags", ID: "t-1"},
		{Type: "tags", ID: "t-9"},
	})
	require.NoError(t, err)

	result, err := mem.Get(ctx, "articles", "a-1", nil)
	require.NoError(t, err)
	require.Len(t, result.Primary[0].ToMany["tags"], 1)
	assert.Equal(t, "t-2", result.Primary[0].ToMany["tags"][0].ID)
}

func TestMemoryStore_WithTransaction_RollsBackOnError(t *testing.T) {
	mem, _, _ := memoryFixture(t)
	ctx := context.Background()

	sentinel := errors.New("boom")
	err := mem.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := mem.Create(ctx, &Record{Type: "tags", ID: "t-tx", Attributes: map[string]interface{}{"name": "doomed"}}); err != nil {
			return err
		}
		if err := mem.Delete(ctx, "articles", "a-1"); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	_, err = mem.Get(ctx, "tags", "t-tx", nil)
	var notFound *jsonapierr.ResourceNotFoundError
	require.ErrorAs(t, err, &notFound)

	_, err = mem.Get(ctx, "articles", "a-1", nil)
	require.NoError(t, err)
}

func TestMemoryStore_WithTransaction_CommitsOnSuccess(t *testing.T) {
	mem, _, _ := memoryFixture(t)
	ctx := context.Background()

	err := mem.WithTransaction(ctx, func(ctx context.Context) error {
		_, err := mem.Create(ctx, &Record{Type: "tags", ID: "t-tx", Attributes: map[string]interface{}{"name": "kept"}})
		return err
	})
	require.NoError(t, err)

	result, err := mem.Get(ctx, "tags", "t-tx", nil)
	require.NoError(t, err)
	assert.Equal(t, "kept", result.Primary[0].Attributes["name"])
}
