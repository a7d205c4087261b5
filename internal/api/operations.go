package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/junction-api/junction/internal/atomic"
	"github.com/junction-api/junction/internal/jsonapierr"
	"github.com/junction-api/junction/internal/resource"
)

// operationsDocument is the wire form of an atomic operations request.
type operationsDocument struct {
	Operations []rawOperation `json:"atomic:operations"`
}

type rawOperation struct {
	Op   string          `json:"op"`
	Ref  *rawRef         `json:"ref"`
	Data json.RawMessage `json:"data"`
}

type rawRef struct {
	Type         string `json:"type"`
	ID           string `json:"id"`
	Lid          string `json:"lid"`
	Relationship string `json:"relationship"`
}

// resultsDocument is the wire form of an atomic operations response. Every
// operation yields one entry, in document order; operations without a
// resource result yield an empty entry.
type resultsDocument struct {
	Results []resultEntry `json:"atomic:results"`
}

type resultEntry struct {
	Data *ResourceObject `json:"data,omitempty"`
}

// handleOperations serves POST /operations.
func (a *API) handleOperations(w http.ResponseWriter, r *http.Request) {
	if contentType := r.Header.Get("Content-Type"); !strings.Contains(contentType, "ext=") || !strings.Contains(contentType, "atomic") {
		RenderError(w, a.logger, &jsonapierr.ErrorObject{
			Status: "415",
			Title:  "Unsupported Media Type",
			Detail: fmt.Sprintf("atomic operations require the %s content type", AtomicMediaType),
		})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		RenderError(w, a.logger, err)
		return
	}

	operations, err := a.decodeOperations(body)
	if err != nil {
		RenderError(w, a.logger, err)
		return
	}

	results, err := a.pipeline.ProcessAll(r.Context(), operations)
	if err != nil {
		RenderError(w, a.logger, err)
		return
	}

	doc := resultsDocument{Results: make([]resultEntry, 0, len(results))}
	for _, result := range results {
		entry := resultEntry{}
		if result != nil && result.Resource != nil {
			object, err := a.codec.buildResource(result.Resource, nil)
			if err != nil {
				RenderError(w, a.logger, err)
				return
			}
			entry.Data = object
		}
		doc.Results = append(doc.Results, entry)
	}
	render(w, a.logger, http.StatusOK, doc)
}

// decodeOperations maps the wire operations onto typed containers. Decode
// failures carry the failing operation's pointer so clients can locate them.
func (a *API) decodeOperations(body []byte) ([]*atomic.OperationContainer, error) {
	var doc operationsDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, documentError(fmt.Errorf("malformed operations document: %w", err))
	}
	if len(doc.Operations) == 0 {
		return nil, documentError(fmt.Errorf("operations document has no atomic:operations member"))
	}

	operations := make([]*atomic.OperationContainer, 0, len(doc.Operations))
	for index, raw := range doc.Operations {
		operation, err := a.decodeOperation(raw)
		if err != nil {
			return nil, &jsonapierr.OperationError{Index: index, Inner: err}
		}
		operations = append(operations, operation)
	}
	return operations, nil
}

func (a *API) decodeOperation(raw rawOperation) (*atomic.OperationContainer, error) {
	var ref *atomic.Ref
	if raw.Ref != nil {
		ref = &atomic.Ref{
			Type:         raw.Ref.Type,
			ID:           raw.Ref.ID,
			LocalID:      raw.Ref.Lid,
			Relationship: raw.Ref.Relationship,
		}
	}

	relational := ref != nil && ref.Relationship != ""

	switch raw.Op {
	case "add":
		if relational {
			return a.decodeRelationshipOperation(atomic.AddToRelationship, ref, raw.Data)
		}
		record, err := a.codec.decodeResourceObject(raw.Data)
		if err != nil {
			return nil, documentError(err)
		}
		return &atomic.OperationContainer{Kind: atomic.CreateResource, Resource: record}, nil

	case "update":
		if relational {
			return a.decodeRelationshipOperation(atomic.SetRelationship, ref, raw.Data)
		}
		record, err := a.codec.decodeResourceObject(raw.Data)
		if err != nil {
			return nil, documentError(err)
		}
		return &atomic.OperationContainer{Kind: atomic.UpdateResource, Ref: ref, Resource: record}, nil

	case "remove":
		if relational {
			return a.decodeRelationshipOperation(atomic.RemoveFromRelationship, ref, raw.Data)
		}
		if ref == nil {
			return nil, documentError(fmt.Errorf("remove operation needs a ref"))
		}
		return &atomic.OperationContainer{Kind: atomic.DeleteResource, Ref: ref}, nil
	}

	return nil, documentError(fmt.Errorf("unknown operation code %q", raw.Op))
}

func (a *API) decodeRelationshipOperation(kind atomic.OperationKind, ref *atomic.Ref, data json.RawMessage) (*atomic.OperationContainer, error) {
	rc, ok := a.graph.Lookup(ref.Type)
	if !ok {
		return nil, &jsonapierr.ResourceNotFoundError{ResourceType: ref.Type}
	}
	rel, ok := rc.Relationship(ref.Relationship)
	if !ok {
		return nil, &jsonapierr.RelationshipNotFoundError{ResourceType: ref.Type, Relationship: ref.Relationship}
	}

	operation := &atomic.OperationContainer{Kind: kind, Ref: ref}

	if rel.Kind == resource.ToOne {
		if kind != atomic.SetRelationship {
			return nil, documentError(fmt.Errorf("relationship %q is to-one and only supports update", ref.Relationship))
		}
		identifier, err := decodeIdentifier(data, true)
		if err != nil {
			return nil, documentError(err)
		}
		operation.RightToOne = identifier
		return operation, nil
	}

	identifiers, err := decodeIdentifierList(data)
	if err != nil {
		return nil, documentError(err)
	}
	operation.RightToMany = identifiers
	return operation, nil
}
