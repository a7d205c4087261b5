package resource

import (
	"fmt"
	"sort"

	"github.com/junction-api/junction/internal/jsonapierr"
)

// Graph is the immutable resource graph. It is built once via Builder.Build
// and afterwards safe for concurrent reads from any number of requests.
type Graph struct {
	contexts map[string]*Context
	names    []string
}

// Lookup returns the resource context with the given public name
func (g *Graph) Lookup(publicName string) (*Context, bool) {
	rc, ok := g.contexts[publicName]
	return rc, ok
}

// All returns every resource context, sorted by public name
func (g *Graph) All() []*Context {
	result := make([]*Context, 0, len(g.names))
	for _, name := range g.names {
		result = append(result, g.contexts[name])
	}
	return result
}

// Builder accumulates resource declarations and validates them into a Graph.
// Registration is explicit: there is no runtime scanning of types.
type Builder struct {
	resources []*ResourceBuilder
}

// NewBuilder creates an empty graph builder
func NewBuilder() *Builder {
	return &Builder{}
}

// Resource starts the declaration of one resource type
func (b *Builder) Resource(publicName string) *ResourceBuilder {
	rb := &ResourceBuilder{publicName: publicName}
	b.resources = append(b.resources, rb)
	return rb
}

// Build validates all declarations and freezes them into a Graph. Any
// violation (duplicate resource, duplicate field, dangling relationship
// target) is an InvalidConfigurationError and fatal at startup.
func (b *Builder) Build() (*Graph, error) {
	contexts := make(map[string]*Context, len(b.resources))

	for _, rb := range b.resources {
		if rb.publicName == "" {
			return nil, &jsonapierr.InvalidConfigurationError{
				Detail: "resource with empty public name",
			}
		}
		if _, exists := contexts[rb.publicName]; exists {
			return nil, &jsonapierr.InvalidConfigurationError{
				Detail: fmt.Sprintf("resource %q is declared more than once", rb.publicName),
			}
		}

		rc := &Context{
			PublicName:    rb.publicName,
			attributes:    make(map[string]*Attribute, len(rb.attributes)),
			relationships: make(map[string]*Relationship, len(rb.relationships)),
		}

		for _, attr := range rb.attributes {
			if rc.Field(attr.PublicName) {
				return nil, &jsonapierr.InvalidConfigurationError{
					Detail: fmt.Sprintf("resource %q declares field %q more than once", rb.publicName, attr.PublicName),
				}
			}
			rc.attributes[attr.PublicName] = attr
			rc.attributeNames = append(rc.attributeNames, attr.PublicName)
		}

		for _, rel := range rb.relationships {
			if rc.Field(rel.PublicName) {
				return nil, &jsonapierr.InvalidConfigurationError{
					Detail: fmt.Sprintf("resource %q declares field %q more than once", rb.publicName, rel.PublicName),
				}
			}
			rc.relationships[rel.PublicName] = rel
			rc.relationshipNames = append(rc.relationshipNames, rel.PublicName)
		}

		contexts[rb.publicName] = rc
	}

	// Relationship targets may be declared in any order, so resolve them in a
	// second pass over the complete set.
	for _, rc := range contexts {
		for _, rel := range rc.relationships {
			if _, ok := contexts[rel.RightTypeName]; !ok {
				return nil, &jsonapierr.InvalidConfigurationError{
					Detail: fmt.Sprintf("relationship %q on resource %q targets unknown resource %q",
						rel.PublicName, rc.PublicName, rel.RightTypeName),
				}
			}
		}
	}

	names := make([]string, 0, len(contexts))
	for name := range contexts {
		names = append(names, name)
	}
	sort.Strings(names)

	return &Graph{contexts: contexts, names: names}, nil
}

// ResourceBuilder declares the fields of one resource type
type ResourceBuilder struct {
	publicName    string
	attributes    []*Attribute
	relationships []*Relationship
}

// Attr declares a sortable, filterable attribute
func (rb *ResourceBuilder) Attr(publicName string, kind AttrKind) *ResourceBuilder {
	rb.attributes = append(rb.attributes, &Attribute{
		PublicName: publicName,
		Kind:       kind,
		Sortable:   true,
		Filterable: true,
	})
	return rb
}

// RestrictedAttr declares an attribute with explicit capability flags
func (rb *ResourceBuilder) RestrictedAttr(publicName string, kind AttrKind, sortable, filterable bool) *ResourceBuilder {
	rb.attributes = append(rb.attributes, &Attribute{
		PublicName: publicName,
		Kind:       kind,
		Sortable:   sortable,
		Filterable: filterable,
	})
	return rb
}

// ToOne declares a to-one relationship to the named resource
func (rb *ResourceBuilder) ToOne(publicName, rightTypeName string) *ResourceBuilder {
	rb.relationships = append(rb.relationships, &Relationship{
		PublicName:    publicName,
		Kind:          ToOne,
		RightTypeName: rightTypeName,
	})
	return rb
}

// ToMany declares a to-many relationship to the named resource
func (rb *ResourceBuilder) ToMany(publicName, rightTypeName string) *ResourceBuilder {
	rb.relationships = append(rb.relationships, &Relationship{
		PublicName:    publicName,
		Kind:          ToMany,
		RightTypeName: rightTypeName,
	})
	return rb
}
