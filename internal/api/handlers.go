package api

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/junction-api/junction/internal/atomic"
	"github.com/junction-api/junction/internal/config"
	"github.com/junction-api/junction/internal/hooks"
	"github.com/junction-api/junction/internal/jsonapierr"
	"github.com/junction-api/junction/internal/query"
	"github.com/junction-api/junction/internal/resource"
	"github.com/junction-api/junction/internal/store"
)

// relationship endpoints never accept these collection parameters
var relationshipDisabled = query.NewParameterSet("include", "filter", "sort", "fields")

// API wires the query aggregator, the store service, and the atomic pipeline
// into HTTP handlers.
type API struct {
	graph    *resource.Graph
	service  store.Service
	runner   store.TransactionRunner
	hooks    *hooks.Executor
	pipeline *atomic.Pipeline
	codec    *Codec
	options  *config.Options
	logger   *zap.Logger
}

// New creates the API surface. hooksExec may be nil to disable lifecycle
// hooks; logger may be nil to disable request logging.
func New(graph *resource.Graph, service store.Service, runner store.TransactionRunner, hooksExec *hooks.Executor, options *config.Options, logger *zap.Logger) *API {
	return &API{
		graph:    graph,
		service:  service,
		runner:   runner,
		hooks:    hooksExec,
		pipeline: atomic.NewPipeline(graph, service, runner, hooksExec),
		codec:    NewCodec(graph, options),
		options:  options,
		logger:   logger,
	}
}

func (a *API) lookupType(r *http.Request) (*resource.Context, error) {
	typeName := chi.URLParam(r, "type")
	rc, ok := a.graph.Lookup(typeName)
	if !ok {
		return nil, &jsonapierr.ResourceNotFoundError{ResourceType: typeName}
	}
	return rc, nil
}

func (a *API) readSpec(r *http.Request, rc *resource.Context, disabled query.ParameterSet) (*query.Specification, error) {
	aggregator := query.NewAggregator(a.graph, rc, a.options)
	return aggregator.ReadAll(r.URL.Query(), disabled)
}

// handleList serves GET /{type}.
func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	rc, err := a.lookupType(r)
	if err != nil {
		RenderError(w, a.logger, err)
		return
	}
	spec, err := a.readSpec(r, rc, nil)
	if err != nil {
		RenderError(w, a.logger, err)
		return
	}

	result, err := a.service.List(r.Context(), rc.PublicName, spec)
	if err != nil {
		RenderError(w, a.logger, err)
		return
	}
	if err := a.invokeReadHooks(r, rc.PublicName, result, spec); err != nil {
		RenderError(w, a.logger, err)
		return
	}

	doc, err := a.codec.MarshalResult(result, spec, true)
	if err != nil {
		RenderError(w, a.logger, err)
		return
	}
	render(w, a.logger, http.StatusOK, doc)
}

// handleGet serves GET /{type}/{id}.
func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	rc, err := a.lookupType(r)
	if err != nil {
		RenderError(w, a.logger, err)
		return
	}
	spec, err := a.readSpec(r, rc, nil)
	if err != nil {
		RenderError(w, a.logger, err)
		return
	}

	result, err := a.service.Get(r.Context(), rc.PublicName, chi.URLParam(r, "id"), spec)
	if err != nil {
		RenderError(w, a.logger, err)
		return
	}
	if err := a.invokeReadHooks(r, rc.PublicName, result, spec); err != nil {
		RenderError(w, a.logger, err)
		return
	}

	doc, err := a.codec.MarshalResult(result, spec, false)
	if err != nil {
		RenderError(w, a.logger, err)
		return
	}
	render(w, a.logger, http.StatusOK, doc)
}

// handleCreate serves POST /{type}.
func (a *API) handleCreate(w http.ResponseWriter, r *http.Request) {
	rc, err := a.lookupType(r)
	if err != nil {
		RenderError(w, a.logger, err)
		return
	}
	record, err := a.decodeBody(r, rc)
	if err != nil {
		RenderError(w, a.logger, err)
		return
	}

	var created *store.Record
	err = a.runner.WithTransaction(r.Context(), func(ctx context.Context) error {
		if err := a.invokeHook(ctx, hooks.BeforeCreate, record); err != nil {
			return err
		}
		result, err := a.service.Create(ctx, record)
		if err != nil {
			return err
		}
		created = result
		return a.invokeHook(ctx, hooks.AfterCreate, created)
	})
	if err != nil {
		RenderError(w, a.logger, err)
		return
	}

	doc, err := a.codec.MarshalRecord(created)
	if err != nil {
		RenderError(w, a.logger, err)
		return
	}
	render(w, a.logger, http.StatusCreated, doc)
}

// handleUpdate serves PATCH /{type}/{id}.
func (a *API) handleUpdate(w http.ResponseWriter, r *http.Request) {
	rc, err := a.lookupType(r)
	if err != nil {
		RenderError(w, a.logger, err)
		return
	}
	record, err := a.decodeBody(r, rc)
	if err != nil {
		RenderError(w, a.logger, err)
		return
	}
	record.ID = chi.URLParam(r, "id")

	var updated *store.Record
	err = a.runner.WithTransaction(r.Context(), func(ctx context.Context) error {
		if err := a.invokeHook(ctx, hooks.BeforeUpdate, record); err != nil {
			return err
		}
		result, err := a.service.Update(ctx, record)
		if err != nil {
			return err
		}
		updated = result
		return a.invokeHook(ctx, hooks.AfterUpdate, updated)
	})
	if err != nil {
		RenderError(w, a.logger, err)
		return
	}

	doc, err := a.codec.MarshalRecord(updated)
	if err != nil {
		RenderError(w, a.logger, err)
		return
	}
	render(w, a.logger, http.StatusOK, doc)
}

// handleDelete serves DELETE /{type}/{id}.
func (a *API) handleDelete(w http.ResponseWriter, r *http.Request) {
	rc, err := a.lookupType(r)
	if err != nil {
		RenderError(w, a.logger, err)
		return
	}
	id := chi.URLParam(r, "id")
	target := &store.Record{Type: rc.PublicName, ID: id}

	err = a.runner.WithTransaction(r.Context(), func(ctx context.Context) error {
		if err := a.invokeHook(ctx, hooks.BeforeDelete, target); err != nil {
			return err
		}
		if err := a.service.Delete(ctx, rc.PublicName, id); err != nil {
			return err
		}
		return a.invokeHook(ctx, hooks.AfterDelete, target)
	})
	if err != nil {
		RenderError(w, a.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetRelationship serves GET /{type}/{id}/relationships/{relationship}.
func (a *API) handleGetRelationship(w http.ResponseWriter, r *http.Request) {
	rc, rel, err := a.lookupRelationship(r)
	if err != nil {
		RenderError(w, a.logger, err)
		return
	}
	if _, err := a.readSpec(r, rc, relationshipDisabled); err != nil {
		RenderError(w, a.logger, err)
		return
	}

	result, err := a.service.Get(r.Context(), rc.PublicName, chi.URLParam(r, "id"), nil)
	if err != nil {
		RenderError(w, a.logger, err)
		return
	}
	record := result.Primary[0]

	doc := &Document{}
	if rel.Kind == resource.ToOne {
		if identifier := record.ToOne[rel.PublicName]; identifier != nil {
			doc.Data = identifierObject(identifier)
		}
	} else {
		linkage := make([]*ResourceIdentifier, 0, len(record.ToMany[rel.PublicName]))
		for _, identifier := range record.ToMany[rel.PublicName] {
			linkage = append(linkage, identifierObject(identifier))
		}
		doc.Data = linkage
	}
	render(w, a.logger, http.StatusOK, doc)
}

// handleSetRelationship serves PATCH /{type}/{id}/relationships/{relationship}.
func (a *API) handleSetRelationship(w http.ResponseWriter, r *http.Request) {
	a.mutateRelationship(w, r, func(ctx context.Context, target *store.Identifier, rel *resource.Relationship, value store.RelationshipValue) error {
		return a.service.SetRelationship(ctx, target, rel.PublicName, value)
	})
}

// handleAddToRelationship serves POST /{type}/{id}/relationships/{relationship}.
func (a *API) handleAddToRelationship(w http.ResponseWriter, r *http.Request) {
	a.mutateRelationship(w, r, func(ctx context.Context, target *store.Identifier, rel *resource.Relationship, value store.RelationshipValue) error {
		if rel.Kind != resource.ToMany {
			return &jsonapierr.RelationshipNotFoundError{ResourceType: target.Type, Relationship: rel.PublicName}
		}
		return a.service.AddToRelationship(ctx, target, rel.PublicName, value.ToMany)
	})
}

// handleRemoveFromRelationship serves DELETE /{type}/{id}/relationships/{relationship}.
func (a *API) handleRemoveFromRelationship(w http.ResponseWriter, r *http.Request) {
	a.mutateRelationship(w, r, func(ctx context.Context, target *store.Identifier, rel *resource.Relationship, value store.RelationshipValue) error {
		if rel.Kind != resource.ToMany {
			return &jsonapierr.RelationshipNotFoundError{ResourceType: target.Type, Relationship: rel.PublicName}
		}
		return a.service.RemoveFromRelationship(ctx, target, rel.PublicName, value.ToMany)
	})
}

func (a *API) mutateRelationship(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, target *store.Identifier, rel *resource.Relationship, value store.RelationshipValue) error) {
	rc, rel, err := a.lookupRelationship(r)
	if err != nil {
		RenderError(w, a.logger, err)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		RenderError(w, a.logger, err)
		return
	}
	value, err := a.codec.DecodeRelationship(body, rel.Kind)
	if err != nil {
		RenderError(w, a.logger, documentError(err))
		return
	}

	target := &store.Identifier{Type: rc.PublicName, ID: chi.URLParam(r, "id")}
	hookRecord := &store.Record{Type: target.Type, ID: target.ID}

	err = a.runner.WithTransaction(r.Context(), func(ctx context.Context) error {
		if err := a.invokeHook(ctx, hooks.BeforeUpdate, hookRecord); err != nil {
			return err
		}
		if err := apply(ctx, target, rel, value); err != nil {
			return err
		}
		return a.invokeHook(ctx, hooks.AfterUpdate, hookRecord)
	})
	if err != nil {
		RenderError(w, a.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) lookupRelationship(r *http.Request) (*resource.Context, *resource.Relationship, error) {
	rc, err := a.lookupType(r)
	if err != nil {
		return nil, nil, err
	}
	name := chi.URLParam(r, "relationship")
	rel, ok := rc.Relationship(name)
	if !ok {
		return nil, nil, &jsonapierr.RelationshipNotFoundError{ResourceType: rc.PublicName, Relationship: name}
	}
	return rc, rel, nil
}

func (a *API) decodeBody(r *http.Request, rc *resource.Context) (*store.Record, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	record, err := a.codec.DecodeResource(body)
	if err != nil {
		return nil, documentError(err)
	}
	if record.Type != rc.PublicName {
		return nil, documentError(fmt.Errorf("document type %q does not match endpoint type %q", record.Type, rc.PublicName))
	}
	return record, nil
}

// documentError wraps a request body problem as a 400 error document pointing
// at the primary data.
func documentError(err error) *jsonapierr.ErrorObject {
	return &jsonapierr.ErrorObject{
		Status: "400",
		Title:  "Invalid request document.",
		Detail: err.Error(),
		Source: &jsonapierr.ErrorSource{Pointer: "/data"},
	}
}

func (a *API) invokeHook(ctx context.Context, kind hooks.Kind, record *store.Record) error {
	if a.hooks == nil {
		return nil
	}
	return a.hooks.Invoke(ctx, kind, record.Type, []*store.Record{record}, false)
}

func (a *API) invokeReadHooks(r *http.Request, resourceType string, result *store.Result, spec *query.Specification) error {
	if a.hooks == nil {
		return nil
	}
	var include *query.IncludeExpression
	if spec != nil {
		include = spec.Include
	}
	root := hooks.BuildReadTree(a.graph, resourceType, result, include)
	return a.hooks.InvokeRead(r.Context(), root)
}
