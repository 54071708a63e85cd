package strata

import (
	"fmt"
	"sort"
	"strings"
)

// SchemaFormat identifies the representation a schema document encodes.
type SchemaFormat string

const (
	// SchemaFormatDescriptors represents flattened trait descriptors.
	SchemaFormatDescriptors SchemaFormat = "descriptors"
	// SchemaFormatOpenAPI represents OpenAPI-compatible JSON Schema documents.
	SchemaFormatOpenAPI SchemaFormat = "openapi"
)

// SchemaDocument is a generated description of a model kind. Document must
// be JSON-serialisable.
type SchemaDocument struct {
	Format   SchemaFormat
	Type     string
	Document any
}

// SchemaGenerator describes a kind's traits. Implementations must be safe
// for concurrent use.
type SchemaGenerator interface {
	Generate(kind *Kind) (SchemaDocument, error)
}

// FieldDescriptor describes one trait, or one path inside an object trait's
// default value.
type FieldDescriptor struct {
	Path        string `json:"path"`
	Type        string `json:"type"`
	Merge       string `json:"merge,omitempty"`
	Capability  string `json:"capability,omitempty"`
	Description string `json:"description,omitempty"`
	Default     any    `json:"default,omitempty"`
}

// Schema generates the schema document of typeTag with the catalog's
// generator.
func (c *Catalog) Schema(typeTag string) (SchemaDocument, error) {
	kind, ok := c.Registry().Kind(typeTag)
	if !ok {
		return SchemaDocument{}, fmt.Errorf("%w: %s", ErrUnknownKind, typeTag)
	}
	return c.cfg.schemaGenerator.Generate(kind)
}

// DefaultSchemaGenerator returns the built-in descriptor-based schema generator.
func DefaultSchemaGenerator() SchemaGenerator {
	return descriptorGenerator{}
}

type descriptorGenerator struct{}

func (descriptorGenerator) Generate(kind *Kind) (SchemaDocument, error) {
	if kind == nil {
		return SchemaDocument{Format: SchemaFormatDescriptors, Document: []FieldDescriptor{}}, nil
	}
	schema := kind.Schema()
	descriptors := []FieldDescriptor{}
	for _, trait := range schema.Traits() {
		descriptors = append(descriptors, FieldDescriptor{
			Path:        trait.Name,
			Type:        trait.Kind.String(),
			Merge:       trait.Strategy().String(),
			Capability:  schema.Origin(trait.Name),
			Description: trait.Description,
			Default:     trait.Default,
		})
		if trait.Kind == KindObject {
			descriptors = append(descriptors, deriveFieldDescriptors(trait.Default, trait.Name)...)
		}
	}
	return SchemaDocument{
		Format:   SchemaFormatDescriptors,
		Type:     kind.Type(),
		Document: descriptors,
	}, nil
}

func deriveFieldDescriptors(value any, prefix string) []FieldDescriptor {
	typed, ok := value.(map[string]any)
	if !ok || len(typed) == 0 {
		return nil
	}
	keys := make([]string, 0, len(typed))
	for key := range typed {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var fields []FieldDescriptor
	for _, key := range keys {
		path := joinPath(prefix, key)
		switch child := typed[key].(type) {
		case map[string]any:
			if len(child) == 0 {
				fields = append(fields, FieldDescriptor{Path: path, Type: "map[string]any"})
				continue
			}
			fields = append(fields, deriveFieldDescriptors(child, path)...)
		case []any:
			elementType := "any"
			if len(child) > 0 {
				elementType = typeName(child[0])
			}
			fields = append(fields, FieldDescriptor{Path: path, Type: "[]" + elementType})
		default:
			fields = append(fields, FieldDescriptor{Path: path, Type: typeName(child)})
		}
	}
	return fields
}

func typeName(value any) string {
	if value == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", value)
}

func joinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return strings.Join([]string{prefix, segment}, ".")
}
