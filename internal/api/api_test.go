package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junction-api/junction/internal/config"
	"github.com/junction-api/junction/internal/resource"
	"github.com/junction-api/junction/internal/store"
)

func apiFixture(t *testing.T) (*httptest.Server, *store.MemoryStore) {
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

	mem := store.NewMemoryStore(graph)
	ctx := context.Background()

	seed := []*store.Record{
		{Type: "people", ID: "p-1", Attributes: map[string]interface{}{"name": "Ada"}},
		{Type: "tags", ID: "t-1", Attributes: map[string]interface{}{"name": "go"}},
		{Type: "tags", ID: "t-2", Attributes: map[string]interface{}{"name": "api"}},
		{
			Type: "articles", ID: "a-1",
			Attributes: map[string]interface{}{"title": "Hello", "viewCount": 7},
			ToOne:      map[string]*store.Identifier{"author": {Type: "people", ID: "p-1"}},
			ToMany:     map[string][]*store.Identifier{"tags": {{Type: "tags", ID: "t-1"}}},
		},
	}
	for _, record := range seed {
		_, err := mem.Create(ctx, record)
		require.NoError(t, err)
	}

	api := New(graph, mem, mem, nil, config.Default(), nil)
	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)
	return server, mem
}

type wireError struct {
	Status string `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Source struct {
		Pointer   string `json:"pointer"`
		Parameter string `json:"parameter"`
	} `json:"source"`
}

type wireDocument struct {
	Data     json.RawMessage          `json:"data"`
	Included []map[string]interface{} `json:"included"`
	Errors   []wireError              `json:"errors"`
	Meta     map[string]interface{}   `json:"meta"`
	Results  []json.RawMessage        `json:"atomic:results"`
}

func doRequest(t *testing.T, method, url, contentType, body string) (int, *wireDocument) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	doc := &wireDocument{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, doc), "body: %s", raw)
	}
	return resp.StatusCode, doc
}

func dataObject(t *testing.T, doc *wireDocument) map[string]interface{} {
	t.Helper()
	var object map[string]interface{}
	require.NoError(t, json.Unmarshal(doc.Data, &object))
	return object
}

func dataList(t *testing.T, doc *wireDocument) []map[string]interface{} {
	t.Helper()
	var objects []map[string]interface{}
	require.NoError(t, json.Unmarshal(doc.Data, &objects))
	return objects
}

func TestHandleList(t *testing.T) {
	server, _ := apiFixture(t)

	status, doc := doRequest(t, http.MethodGet, server.URL+"/articles", "", "")
	require.Equal(t, http.StatusOK, status)

	objects := dataList(t, doc)
	require.Len(t, objects, 1)
	assert.Equal(t, "articles", objects[0]["type"])
	assert.Equal(t, float64(1), doc.Meta["total"])
}

func TestHandleList_UnknownParameter(t *testing.T) {
	server, _ := apiFixture(t)

	status, doc := doRequest(t, http.MethodGet, server.URL+"/articles?bogus=1", "", "")
	require.Equal(t, http.StatusBadRequest, status)
	require.Len(t, doc.Errors, 1)
	assert.Equal(t, "bogus", doc.Errors[0].Source.Parameter)
}

func TestHandleList_AccumulatesParameterErrors(t *testing.T) {
	server, _ := apiFixture(t)

	status, doc := doRequest(t, http.MethodGet,
		server.URL+"/articles?sort=bogus&include=bogus", "", "")
	require.Equal(t, http.StatusBadRequest, status)
	require.Len(t, doc.Errors, 2)
}

func TestHandleGet_IncludeAndSparseFields(t *testing.T) {
	server, _ := apiFixture(t)

	status, doc := doRequest(t, http.MethodGet,
		server.URL+"/articles/a-1?include=author&fields%5Barticles%5D=title,author", "", "")
	require.Equal(t, http.StatusOK, status)

	object := dataObject(t, doc)
	attributes := object["attributes"].(map[string]interface{})
	assert.Equal(t, "Hello", attributes["title"])
	assert.NotContains(t, attributes, "viewCount")

	relationships := object["relationships"].(map[string]interface{})
	assert.Contains(t, relationships, "author")
	assert.NotContains(t, relationships, "tags")

	require.Len(t, doc.Included, 1)
	assert.Equal(t, "people", doc.Included[0]["type"])
	assert.Equal(t, "p-1", doc.Included[0]["id"])
}

func TestHandleGet_NotFound(t *testing.T) {
	server, _ := apiFixture(t)

	status, doc := doRequest(t, http.MethodGet, server.URL+"/articles/missing", "", "")
	require.Equal(t, http.StatusNotFound, status)
	require.Len(t, doc.Errors, 1)
	assert.Equal(t, "404", doc.Errors[0].Status)
}

func TestHandleCreate(t *testing.T) {
	server, mem := apiFixture(t)

	body := `{"data": {
		"type": "articles",
		"attributes": {"title": "Fresh"},
		"relationships": {"author": {"data": {"type": "people", "id": "p-1"}}}
	}}`
	status, doc := doRequest(t, http.MethodPost, server.URL+"/articles", MediaType, body)
	require.Equal(t, http.StatusCreated, status)

	object := dataObject(t, doc)
	id, _ := object["id"].(string)
	require.NotEmpty(t, id)

	result, err := mem.Get(context.Background(), "articles", id, nil)
	require.NoError(t, err)
	assert.Equal(t, "Fresh", result.Primary[0].Attributes["title"])
}

func TestHandleCreate_TypeMismatch(t *testing.T) {
	server, _ := apiFixture(t)

	body := `{"data": {"type": "people", "attributes": {"name": "Eve"}}}`
	status, doc := doRequest(t, http.MethodPost, server.URL+"/articles", MediaType, body)
	require.Equal(t, http.StatusBadRequest, status)
	require.Len(t, doc.Errors, 1)
	assert.Equal(t, "/data", doc.Errors[0].Source.Pointer)
}

func TestHandleCreate_UnknownAttribute(t *testing.T) {
	server, _ := apiFixture(t)

	body := `{"data": {"type": "articles", "attributes": {"bogus": 1}}}`
	status, doc := doRequest(t, http.MethodPost, server.URL+"/articles", MediaType, body)
	require.Equal(t, http.StatusBadRequest, status)
	require.Len(t, doc.Errors, 1)
	assert.Contains(t, doc.Errors[0].Detail, "bogus")
}

func TestHandleUpdate(t *testing.T) {
	server, _ := apiFixture(t)

	body := `{"data": {"type": "articles", "id": "a-1", "attributes": {"title": "Renamed"}}}`
	status, doc := doRequest(t, http.MethodPatch, server.URL+"/articles/a-1", MediaType, body)
	require.Equal(t, http.StatusOK, status)

	object := dataObject(t, doc)
	attributes := object["attributes"].(map[string]interface{})
	assert.Equal(t, "Renamed", attributes["title"])
	// untouched attributes survive a partial update
	assert.Equal(t, float64(7), attributes["viewCount"])
}

func TestHandleDelete(t *testing.T) {
	server, _ := apiFixture(t)

	status, _ := doRequest(t, http.MethodDelete, server.URL+"/articles/a-1", "", "")
	require.Equal(t, http.StatusNoContent, status)

	status, _ = doRequest(t, http.MethodGet, server.URL+"/articles/a-1", "", "")
	require.Equal(t, http.StatusNotFound, status)
}

func TestHandleGetRelationship(t *testing.T) {
	server, _ := apiFixture(t)

	status, doc := doRequest(t, http.MethodGet, server.URL+"/articles/a-1/relationships/tags", "", "")
	require.Equal(t, http.StatusOK, status)

	linkage := dataList(t, doc)
	require.Len(t, linkage, 1)
	assert.Equal(t, "tags", linkage[0]["type"])
	assert.Equal(t, "t-1", linkage[0]["id"])
}

func TestHandleGetRelationship_RejectsCollectionParameters(t *testing.T) {
	server, _ := apiFixture(t)

	status, doc := doRequest(t, http.MethodGet,
		server.URL+"/articles/a-1/relationships/tags?include=author", "", "")
	require.Equal(t, http.StatusBadRequest, status)
	require.Len(t, doc.Errors, 1)
	assert.Equal(t, "include", doc.Errors[0].Source.Parameter)
}

func TestHandleSetRelationship_ClearsToOne(t *testing.T) {
	server, mem := apiFixture(t)

	status, _ := doRequest(t, http.MethodPatch,
		server.URL+"/articles/a-1/relationships/author", MediaType, `{"data": null}`)
	require.Equal(t, http.StatusNoContent, status)

	result, err := mem.Get(context.Background(), "articles", "a-1", nil)
	require.NoError(t, err)
	assert.Nil(t, result.Primary[0].ToOne["author"])
}

func TestHandleAddToRelationship(t *testing.T) {
	server, mem := apiFixture(t)

	status, _ := doRequest(t, http.MethodPost,
		server.URL+"/articles/a-1/relationships/tags", MediaType,
		`{"data": [{"type": "tags", "id": "t-2"}]}`)
	require.Equal(t, http.StatusNoContent, status)

	result, err := mem.Get(context.Background(), "articles", "a-1", nil)
	require.NoError(t, err)
	require.Len(t, result.Primary[0].ToMany["tags"], 2)
}

func TestHandleRemoveFromRelationship(t *testing.T) {
	server, mem := apiFixture(t)

	status, _ := doRequest(t, http.MethodDelete,
		server.URL+"/articles/a-1/relationships/tags", MediaType,
		`{"data": [{"type": "tags", "id": "t-1"}]}`)
	require.Equal(t, http.StatusNoContent, status)

	result, err := mem.Get(context.Background(), "articles", "a-1", nil)
	require.NoError(t, err)
	assert.Empty(t, result.Primary[0].ToMany["tags"])
}

func TestHandleOperations(t *testing.T) {
	server, mem := apiFixture(t)

	body := `{"atomic:operations": [
		{"op": "add", "data": {"type": "people", "lid": "p-9", "attributes": {"name": "Grace"}}},
		{"op": "add", "data": {
			"type": "articles",
			"attributes": {"title": "Batched"},
			"relationships": {"author": {"data": {"type": "people", "lid": "p-9"}}}
		}}
	]}`
	status, doc := doRequest(t, http.MethodPost, server.URL+"/operations", AtomicMediaType, body)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, doc.Results, 2)

	var person, article struct {
		Data *ResourceObject `json:"data"`
	}
	require.NoError(t, json.Unmarshal(doc.Results[0], &person))
	require.NoError(t, json.Unmarshal(doc.Results[1], &article))
	require.NotNil(t, person.Data)
	require.NotNil(t, article.Data)

	// the placeholder resolved to the server-generated identifier
	author := article.Data.Relationships["author"].Data.(map[string]interface{})
	assert.Equal(t, person.Data.ID, author["id"])

	result, err := mem.Get(context.Background(), "people", person.Data.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "Grace", result.Primary[0].Attributes["name"])
}

func TestHandleOperations_UnsupportedMediaType(t *testing.T) {
	server, _ := apiFixture(t)

	status, doc := doRequest(t, http.MethodPost, server.URL+"/operations", MediaType,
		`{"atomic:operations": []}`)
	require.Equal(t, http.StatusUnsupportedMediaType, status)
	require.Len(t, doc.Errors, 1)
	assert.Equal(t, "415", doc.Errors[0].Status)
}

func TestHandleOperations_ErrorPointer(t *testing.T) {
	server, _ := apiFixture(t)

	body := `{"atomic:operations": [
		{"op": "add", "data": {
			"type": "articles",
			"relationships": {"author": {"data": {"type": "people", "lid": "never-declared"}}}
		}}
	]}`
	status, doc := doRequest(t, http.MethodPost, server.URL+"/operations", AtomicMediaType, body)
	require.Equal(t, http.StatusBadRequest, status)
	require.Len(t, doc.Errors, 1)
	assert.True(t, strings.HasPrefix(doc.Errors[0].Source.Pointer, "/atomic:operations[0]"),
		"pointer %q", doc.Errors[0].Source.Pointer)
}

func TestHandleOperations_FailureRollsBackBatch(t *testing.T) {
	server, mem := apiFixture(t)

	body := `{"atomic:operations": [
		{"op": "add", "data": {"type": "tags", "id": "t-batch", "attributes": {"name": "doomed"}}},
		{"op": "remove", "ref": {"type": "articles", "id": "missing"}}
	]}`
	status, doc := doRequest(t, http.MethodPost, server.URL+"/operations", AtomicMediaType, body)
	require.Equal(t, http.StatusNotFound, status)
	require.Len(t, doc.Errors, 1)
	assert.True(t, strings.HasPrefix(doc.Errors[0].Source.Pointer, "/atomic:operations[1]"),
		"pointer %q", doc.Errors[0].Source.Pointer)

	// the first operation's create was rolled back with the batch
	_, err := mem.Get(context.Background(), "tags", "t-batch", nil)
	require.Error(t, err)
}

func TestRequestIDEcho(t *testing.T) {
	server, _ := apiFixture(t)

	req, err := http.NewRequest(http.MethodGet, server.URL+"/articles", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "trace-42")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "trace-42", resp.Header.Get("X-Request-ID"))

	resp, err = http.Get(server.URL + "/articles")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
