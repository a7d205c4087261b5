// Package api is the HTTP surface: a chi router over the query aggregator,
// the store service, and the atomic operations pipeline, with a JSON:API
// document codec for the runtime resource model.
package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/junction-api/junction/internal/config"
	"github.com/junction-api/junction/internal/query"
	"github.com/junction-api/junction/internal/resource"
	"github.com/junction-api/junction/internal/store"
)

const (
	// MediaType is the official JSON:API media type
	MediaType = "application/vnd.api+json"

	// AtomicMediaType is the media type for atomic operations requests
	AtomicMediaType = `application/vnd.api+json; ext="https://jsonapi.org/ext/atomic"`
)

// ResourceIdentifier is a JSON:API resource identifier object. Lid carries a
// local ID inside atomic operations batches.
type ResourceIdentifier struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Lid  string `json:"lid,omitempty"`
}

// RelationshipObject holds one relationship's linkage. Data is a
// *ResourceIdentifier for to-one (nil for empty) or []*ResourceIdentifier for
// to-many.
type RelationshipObject struct {
	Data interface{} `json:"data"`
}

// ResourceObject is a full JSON:API resource object.
type ResourceObject struct {
	Type          string                         `json:"type"`
	ID            string                         `json:"id,omitempty"`
	Lid           string                         `json:"lid,omitempty"`
	Attributes    map[string]interface{}         `json:"attributes,omitempty"`
	Relationships map[string]*RelationshipObject `json:"relationships,omitempty"`
}

// Document is a top-level JSON:API document. Data holds a *ResourceObject,
// []*ResourceObject, or relationship linkage depending on the endpoint.
type Document struct {
	Data     interface{}            `json:"data,omitempty"`
	Included []*ResourceObject      `json:"included,omitempty"`
	Errors   []interface{}          `json:"errors,omitempty"`
	Meta     map[string]interface{} `json:"meta,omitempty"`
}

// rawDocument is the decode-side counterpart; raw data distinguishes a null
// member from an absent one.
type rawDocument struct {
	Data json.RawMessage `json:"data"`
}

type rawResource struct {
	Type          string                     `json:"type"`
	ID            string                     `json:"id"`
	Lid           string                     `json:"lid"`
	Attributes    map[string]interface{}     `json:"attributes"`
	Relationships map[string]json.RawMessage `json:"relationships"`
}

type rawLinkage struct {
	Data json.RawMessage `json:"data"`
}

// Codec renders records as JSON:API documents and decodes request bodies into
// records, validating against the resource graph.
type Codec struct {
	graph   *resource.Graph
	options *config.Options
}

// NewCodec creates a codec over the given graph and serializer defaults.
func NewCodec(graph *resource.Graph, options *config.Options) *Codec {
	return &Codec{graph: graph, options: options}
}

// MarshalResult builds a document from a materialized read, applying sparse
// field sets and null/default omission from the request's specification.
func (c *Codec) MarshalResult(result *store.Result, spec *query.Specification, collection bool) (*Document, error) {
	doc := &Document{}

	primary := make([]*ResourceObject, 0, len(result.Primary))
	for _, record := range result.Primary {
		object, err := c.buildResource(record, spec)
		if err != nil {
			return nil, err
		}
		primary = append(primary, object)
	}
	if collection {
		doc.Data = primary
		doc.Meta = map[string]interface{}{"total": result.Total}
	} else if len(primary) > 0 {
		doc.Data = primary[0]
	}

	for _, record := range result.Included {
		object, err := c.buildResource(record, spec)
		if err != nil {
			return nil, err
		}
		doc.Included = append(doc.Included, object)
	}
	return doc, nil
}

// MarshalRecord builds a single-resource document without sparse restriction.
func (c *Codec) MarshalRecord(record *store.Record) (*Document, error) {
	object, err := c.buildResource(record, nil)
	if err != nil {
		return nil, err
	}
	return &Document{Data: object}, nil
}

func (c *Codec) buildResource(record *store.Record, spec *query.Specification) (*ResourceObject, error) {
	rc, ok := c.graph.Lookup(record.Type)
	if !ok {
		return nil, fmt.Errorf("unknown resource type %q", record.Type)
	}

	var fields *query.SparseFieldSet
	if spec != nil {
		fields = spec.FieldsFor(record.Type)
	}
	omitNull := !c.options.SerializeNullValues
	omitDefault := !c.options.SerializeDefaultValues
	if spec != nil && spec.OmitNull != nil {
		omitNull = *spec.OmitNull
	}
	if spec != nil && spec.OmitDefault != nil {
		omitDefault = *spec.OmitDefault
	}

	object := &ResourceObject{Type: record.Type, ID: record.ID, Lid: record.LocalID}

	for _, attr := range rc.Attributes() {
		if fields != nil && !fields.Has(attr.PublicName) {
			continue
		}
		value, present := record.Attributes[attr.PublicName]
		if !present {
			continue
		}
		if omitNull && value == nil {
			continue
		}
		if omitDefault && isDefaultValue(attr.Kind, value) {
			continue
		}
		if object.Attributes == nil {
			object.Attributes = make(map[string]interface{})
		}
		object.Attributes[attr.PublicName] = value
	}

	for _, rel := range rc.Relationships() {
		if fields != nil && !fields.Has(rel.PublicName) {
			continue
		}
		if rel.Kind == resource.ToOne {
			identifier, present := record.ToOne[rel.PublicName]
			if !present {
				continue
			}
			linkage := &RelationshipObject{}
			if identifier != nil {
				linkage.Data = identifierObject(identifier)
			}
			if object.Relationships == nil {
				object.Relationships = make(map[string]*RelationshipObject)
			}
			object.Relationships[rel.PublicName] = linkage
			continue
		}
		identifiers, present := record.ToMany[rel.PublicName]
		if !present {
			continue
		}
		linkage := make([]*ResourceIdentifier, 0, len(identifiers))
		for _, identifier := range identifiers {
			linkage = append(linkage, identifierObject(identifier))
		}
		if object.Relationships == nil {
			object.Relationships = make(map[string]*RelationshipObject)
		}
		object.Relationships[rel.PublicName] = &RelationshipObject{Data: linkage}
	}

	return object, nil
}

func identifierObject(identifier *store.Identifier) *ResourceIdentifier {
	return &ResourceIdentifier{Type: identifier.Type, ID: identifier.ID, Lid: identifier.LocalID}
}

func isDefaultValue(kind resource.AttrKind, value interface{}) bool {
	switch kind {
	case resource.KindString, resource.KindUUID:
		s, ok := value.(string)
		return ok && s == ""
	case resource.KindInt:
		switch v := value.(type) {
		case int:
			return v == 0
		case int64:
			return v == 0
		case float64:
			return v == 0
		}
	case resource.KindFloat:
		f, ok := value.(float64)
		return ok && f == 0
	case resource.KindBool:
		b, ok := value.(bool)
		return ok && !b
	case resource.KindTime:
		t, ok := value.(time.Time)
		return ok && t.IsZero()
	}
	return false
}

// DecodeResource parses a single-resource request body into a record. The
// resource type must exist in the graph; relationship linkage is shaped by the
// declared relationship kind.
func (c *Codec) DecodeResource(body []byte) (*store.Record, error) {
	var doc rawDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("malformed request document: %w", err)
	}
	if len(doc.Data) == 0 {
		return nil, fmt.Errorf("request document has no data member")
	}
	return c.decodeResourceObject(doc.Data)
}

func (c *Codec) decodeResourceObject(data []byte) (*store.Record, error) {
	var raw rawResource
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed resource object: %w", err)
	}
	rc, ok := c.graph.Lookup(raw.Type)
	if !ok {
		return nil, fmt.Errorf("unknown resource type %q", raw.Type)
	}

	record := &store.Record{
		Type:       raw.Type,
		ID:         raw.ID,
		LocalID:    raw.Lid,
		Attributes: make(map[string]interface{}),
		ToOne:      make(map[string]*store.Identifier),
		ToMany:     make(map[string][]*store.Identifier),
	}

	for name, value := range raw.Attributes {
		if _, ok := rc.Attribute(name); !ok {
			return nil, fmt.Errorf("unknown attribute %q on type %q", name, raw.Type)
		}
		record.Attributes[name] = value
	}

	for name, linkage := range raw.Relationships {
		rel, ok := rc.Relationship(name)
		if !ok {
			return nil, fmt.Errorf("unknown relationship %q on type %q", name, raw.Type)
		}
		var rawLink rawLinkage
		if err := json.Unmarshal(linkage, &rawLink); err != nil {
			return nil, fmt.Errorf("malformed relationship object %q: %w", name, err)
		}
		if rel.Kind == resource.ToOne {
			identifier, err := decodeIdentifier(rawLink.Data, true)
			if err != nil {
				return nil, fmt.Errorf("relationship %q: %w", name, err)
			}
			record.ToOne[name] = identifier
			continue
		}
		identifiers, err := decodeIdentifierList(rawLink.Data)
		if err != nil {
			return nil, fmt.Errorf("relationship %q: %w", name, err)
		}
		record.ToMany[name] = identifiers
	}

	return record, nil
}

// DecodeRelationship parses a relationship endpoint body into a value shaped
// by the relationship kind.
func (c *Codec) DecodeRelationship(body []byte, kind resource.RelKind) (store.RelationshipValue, error) {
	var doc rawDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return store.RelationshipValue{}, fmt.Errorf("malformed request document: %w", err)
	}
	if kind == resource.ToOne {
		identifier, err := decodeIdentifier(doc.Data, true)
		if err != nil {
			return store.RelationshipValue{}, err
		}
		return store.RelationshipValue{ToOne: identifier}, nil
	}
	identifiers, err := decodeIdentifierList(doc.Data)
	if err != nil {
		return store.RelationshipValue{}, err
	}
	return store.RelationshipValue{ToMany: identifiers}, nil
}

func decodeIdentifier(data []byte, allowNull bool) (*store.Identifier, error) {
	if len(data) == 0 || string(data) == "null" {
		if allowNull {
			return nil, nil
		}
		return nil, fmt.Errorf("resource identifier must not be null")
	}
	var raw ResourceIdentifier
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed resource identifier: %w", err)
	}
	if raw.Type == "" {
		return nil, fmt.Errorf("resource identifier is missing its type")
	}
	if raw.ID == "" && raw.Lid == "" {
		return nil, fmt.Errorf("resource identifier needs an id or lid")
	}
	return &store.Identifier{Type: raw.Type, ID: raw.ID, LocalID: raw.Lid}, nil
}

func decodeIdentifierList(data []byte) ([]*store.Identifier, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, fmt.Errorf("to-many linkage must be an array")
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("malformed to-many linkage: %w", err)
	}
	identifiers := make([]*store.Identifier, 0, len(raws))
	for _, raw := range raws {
		identifier, err := decodeIdentifier(raw, false)
		if err != nil {
			return nil, err
		}
		identifiers = append(identifiers, identifier)
	}
	return identifiers, nil
}
