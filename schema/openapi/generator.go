package openapi

import (
	"fmt"
	"reflect"

	strata "github.com/goliatone/go-strata"
	"github.com/goliatone/go-strata/layering"
)

type generator struct {
	config generatorConfig
}

// NewGenerator constructs a schema generator that describes a model kind as
// an OpenAPI document. The kind's traits become the properties of one
// component schema, annotated with x-merge and x-capability.
func NewGenerator(opts ...GeneratorOption) strata.SchemaGenerator {
	cfg := defaultGeneratorConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return generator{config: cfg}
}

// Option returns a catalog option that wires the OpenAPI generator into
// Catalog.Schema.
func Option(opts ...GeneratorOption) strata.Option {
	return strata.WithSchemaGenerator(NewGenerator(opts...))
}

func (g generator) Generate(kind *strata.Kind) (strata.SchemaDocument, error) {
	if kind == nil {
		return strata.SchemaDocument{}, fmt.Errorf("openapi: kind cannot be nil")
	}
	schema, err := kindSchema(kind)
	if err != nil {
		return strata.SchemaDocument{}, err
	}
	document, err := newOpenAPIDocumentBuilder(g.config, kind.Type(), schema).build()
	if err != nil {
		return strata.SchemaDocument{}, err
	}
	return strata.SchemaDocument{
		Format:   strata.SchemaFormatOpenAPI,
		Type:     kind.Type(),
		Document: document,
	}, nil
}

func kindSchema(kind *strata.Kind) (map[string]any, error) {
	schema := kind.Schema()
	properties := map[string]any{}
	for _, trait := range schema.Traits() {
		property, err := traitSchema(trait)
		if err != nil {
			return nil, fmt.Errorf("openapi: %s.%s: %w", kind.Type(), trait.Name, err)
		}
		if origin := schema.Origin(trait.Name); origin != "" {
			property["x-capability"] = origin
		}
		properties[trait.Name] = property
	}
	out := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if caps := kind.Capabilities(); len(caps) > 0 {
		out["x-capabilities"] = caps
	}
	return out, nil
}

func traitSchema(trait strata.TraitDescriptor) (map[string]any, error) {
	var (
		out map[string]any
		err error
	)
	switch trait.Kind {
	case strata.KindModelReference:
		out = modelIDSchema()
	case strata.KindModelReferenceArray:
		out = map[string]any{"type": "array", "items": modelIDSchema()}
	case strata.KindObject:
		out = map[string]any{"type": "object", "additionalProperties": true}
		if trait.Default != nil {
			var derived map[string]any
			if derived, err = defaultSchema(trait.Default); err == nil {
				out["properties"] = derived["properties"]
			}
		}
	case strata.KindArray:
		out = map[string]any{"type": "array", "items": map[string]any{}}
		if trait.Default != nil {
			out, err = defaultSchema(trait.Default)
		}
	default:
		out = map[string]any{}
		if trait.Default != nil {
			out, err = defaultSchema(trait.Default)
		}
	}
	if err != nil {
		return nil, err
	}
	out["x-merge"] = trait.Strategy().String()
	if trait.Description != "" {
		out["description"] = trait.Description
	}
	if trait.Default != nil {
		out["default"] = trait.Default
	}
	return out, nil
}

func modelIDSchema() map[string]any {
	return map[string]any{"type": "string", "format": "model-id"}
}

// defaultSchema derives a schema from a trait default. Defaults are
// normalised first, so structs arrive as JSON objects.
func defaultSchema(value any) (map[string]any, error) {
	tree, err := layering.Normalize(value)
	if err != nil {
		return nil, err
	}
	return valueSchema(tree), nil
}

func valueSchema(value any) map[string]any {
	switch v := value.(type) {
	case nil:
		return map[string]any{"type": "null"}
	case bool:
		return map[string]any{"type": "boolean"}
	case string:
		return map[string]any{"type": "string"}
	case map[string]any:
		properties := make(map[string]any, len(v))
		for key, child := range v {
			properties[key] = valueSchema(child)
		}
		return map[string]any{"type": "object", "properties": properties}
	case []any:
		items := map[string]any{}
		if len(v) > 0 {
			items = valueSchema(v[0])
		}
		return map[string]any{"type": "array", "items": items}
	}
	switch reflect.ValueOf(value).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}
	default:
		return map[string]any{"type": "string", "format": fmt.Sprintf("go:%T", value)}
	}
}
