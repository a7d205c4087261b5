// Package resource provides the static metadata registry that maps public
// resource names to their attributes and relationships. The graph is built
// once at startup and read concurrently by request handlers without
// synchronization.
package resource

import "fmt"

// AttrKind represents the value kind of an attribute
type AttrKind int

const (
	KindString AttrKind = iota
	KindInt
	KindFloat
	KindBool
	KindTime
	KindUUID
	KindJSON
)

// String returns the string representation of the attribute kind
func (k AttrKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindUUID:
		return "uuid"
	case KindJSON:
		return "json"
	default:
		return "unknown"
	}
}

// ParseAttrKind converts a string to an AttrKind
func ParseAttrKind(s string) (AttrKind, error) {
	switch s {
	case "string":
		return KindString, nil
	case "int":
		return KindInt, nil
	case "float":
		return KindFloat, nil
	case "bool":
		return KindBool, nil
	case "time":
		return KindTime, nil
	case "uuid":
		return KindUUID, nil
	case "json":
		return KindJSON, nil
	default:
		return 0, fmt.Errorf("unknown attribute kind: %s", s)
	}
}

// RelKind represents the cardinality of a relationship
type RelKind int

const (
	ToOne RelKind = iota
	ToMany
)

// String returns the string representation of the relationship kind
func (k RelKind) String() string {
	switch k {
	case ToOne:
		return "to-one"
	case ToMany:
		return "to-many"
	default:
		return "unknown"
	}
}

// Attribute describes one exposed attribute of a resource
type Attribute struct {
	PublicName string
	Kind       AttrKind

	// Capability flags consulted by the query string readers
	Sortable   bool
	Filterable bool
}

// Relationship describes one navigable relationship of a resource
type Relationship struct {
	PublicName string
	Kind       RelKind

	// RightTypeName is the public name of the resource on the right side
	RightTypeName string
}

// Context identifies one resource type: its public name plus the attribute
// and relationship sets resolved against it. Immutable after graph
// construction.
type Context struct {
	PublicName    string
	attributes    map[string]*Attribute
	relationships map[string]*Relationship

	// Declaration order, used for deterministic output
	attributeNames    []string
	relationshipNames []string
}

// Attribute returns the attribute with the given public name
func (c *Context) Attribute(publicName string) (*Attribute, bool) {
	attr, ok := c.attributes[publicName]
	return attr, ok
}

// Relationship returns the relationship with the given public name
func (c *Context) Relationship(publicName string) (*Relationship, bool) {
	rel, ok := c.relationships[publicName]
	return rel, ok
}

// Field reports whether the resource exposes a field (attribute or
// relationship) with the given public name
func (c *Context) Field(publicName string) bool {
	if _, ok := c.attributes[publicName]; ok {
		return true
	}
	_, ok := c.relationships[publicName]
	return ok
}

// Attributes returns all attributes in declaration order
func (c *Context) Attributes() []*Attribute {
	result := make([]*Attribute, 0, len(c.attributeNames))
	for _, name := range c.attributeNames {
		result = append(result, c.attributes[name])
	}
	return result
}

// Relationships returns all relationships in declaration order
func (c *Context) Relationships() []*Relationship {
	result := make([]*Relationship, 0, len(c.relationshipNames))
	for _, name := range c.relationshipNames {
		result = append(result, c.relationships[name])
	}
	return result
}
