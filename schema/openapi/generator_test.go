package openapi

import (
	"encoding/json"
	"testing"

	strata "github.com/goliatone/go-strata"
)

func TestNewGeneratorOptions(t *testing.T) {
	custom := NewGenerator(
		WithOpenAPIVersion("3.1.0"),
		WithInfo("Custom Catalog", "2.0.0", "custom schema"),
		WithOperation("PATCH", "/layers/{type}", "edit-{type}"),
		WithSummary("  Edit user stratum "),
		WithContentTypes("application/merge-patch+json"),
		WithStrata(strata.StratumUser),
		WithResponse("409", "ETag mismatch"),
		WithResponse("", "ignored"),
	)

	internal, ok := custom.(generator)
	if !ok {
		t.Fatalf("expected generator implementation, got %T", custom)
	}
	cfg := internal.config
	if cfg.openAPIVersion != "3.1.0" || cfg.title != "Custom Catalog" || cfg.version != "2.0.0" || cfg.description != "custom schema" {
		t.Fatalf("unexpected header config %+v", cfg)
	}
	if cfg.method != "patch" || cfg.operationID != "edit-{type}" || cfg.summary != "Edit user stratum" {
		t.Fatalf("unexpected operation config %+v", cfg)
	}
	if len(cfg.contentTypes) != 1 || cfg.contentTypes[0] != "application/merge-patch+json" {
		t.Fatalf("unexpected content types %v", cfg.contentTypes)
	}
	if len(cfg.strata) != 1 || cfg.strata[0] != strata.StratumUser {
		t.Fatalf("unexpected strata %v", cfg.strata)
	}
	if cfg.responses["409"] != "ETag mismatch" || cfg.responses["204"] == "" || len(cfg.responses) != 2 {
		t.Fatalf("unexpected responses %v", cfg.responses)
	}

	defaults := NewGenerator(WithInfo("", "", ""), WithContentTypes(), WithStrata()).(generator).config
	if defaults.title != "Catalog Member Schema" || len(defaults.contentTypes) != 2 || len(defaults.strata) != 3 {
		t.Fatalf("empty options should keep defaults, got %+v", defaults)
	}
}

func newCatalog(t *testing.T, opts ...GeneratorOption) (*strata.Catalog, *strata.Kind) {
	t.Helper()
	c, err := strata.New(Option(opts...))
	if err != nil {
		t.Fatalf("strata.New error: %v", err)
	}
	kind, err := c.RegisterKind(strata.Definition{
		Type: "csv-item",
		Traits: []strata.TraitDescriptor{
			strata.Object("style", "Rendering style.").WithDefault(map[string]any{"color": "red", "width": 2}),
			strata.Array("columns", "Column names.").WithDefault([]any{"id"}),
			strata.ModelReference("legend", "Legend model."),
			strata.Primitive("opacity", "Layer opacity.").WithDefault(0.8),
		},
	}, strata.CatalogMember(), strata.URL(), strata.Group())
	if err != nil {
		t.Fatalf("RegisterKind error: %v", err)
	}
	return c, kind
}

func TestGenerateKindDocument(t *testing.T) {
	c, _ := newCatalog(t)
	doc, err := c.Schema("csv-item")
	if err != nil {
		t.Fatalf("Schema error: %v", err)
	}
	if doc.Format != strata.SchemaFormatOpenAPI || doc.Type != "csv-item" {
		t.Fatalf("unexpected document header %+v", doc)
	}
	document, ok := doc.Document.(map[string]any)
	if !ok {
		t.Fatalf("expected map document, got %T", doc.Document)
	}

	paths := document["paths"].(map[string]any)
	item, ok := paths["/models/csv-item/strata/{stratum}"].(map[string]any)
	if !ok {
		t.Fatalf("expected expanded path, got %v", paths)
	}
	operation := item["put"].(map[string]any)
	if operation["operationId"] != "put:/models/csv-item/strata/{stratum}" {
		t.Fatalf("unexpected operation id %v", operation["operationId"])
	}
	params := operation["parameters"].([]any)
	stratum := params[0].(map[string]any)
	enum := stratum["schema"].(map[string]any)["enum"].([]any)
	if stratum["name"] != "stratum" || stratum["in"] != "path" || len(enum) != 3 || enum[0] != strata.StratumUser {
		t.Fatalf("unexpected stratum parameter %v", stratum)
	}
	content := operation["requestBody"].(map[string]any)["content"].(map[string]any)
	for _, contentType := range []string{"application/json", "application/yaml"} {
		body, ok := content[contentType].(map[string]any)
		if !ok {
			t.Fatalf("missing %s body in %v", contentType, content)
		}
		if ref := body["schema"].(map[string]any)["$ref"]; ref != "#/components/schemas/CsvItem" {
			t.Fatalf("unexpected %s schema ref %v", contentType, ref)
		}
	}

	schemas := document["components"].(map[string]any)["schemas"].(map[string]any)
	component, ok := schemas["CsvItem"].(map[string]any)
	if !ok {
		t.Fatalf("expected CsvItem component, got %v", schemas)
	}
	props := component["properties"].(map[string]any)

	members := props[strata.TraitMembers].(map[string]any)
	if members["x-merge"] != "concat" || members["x-capability"] != strata.CapabilityGroup {
		t.Fatalf("unexpected members annotations %v", members)
	}
	if items := members["items"].(map[string]any); items["format"] != "model-id" {
		t.Fatalf("expected model-id items, got %v", items)
	}

	style := props["style"].(map[string]any)
	if style["type"] != "object" || style["x-merge"] != "deep" {
		t.Fatalf("unexpected style schema %v", style)
	}
	styleProps := style["properties"].(map[string]any)
	if width := styleProps["width"].(map[string]any); width["type"] != "integer" {
		t.Fatalf("expected integer width, got %v", width)
	}

	columns := props["columns"].(map[string]any)
	if columns["type"] != "array" || columns["x-merge"] != "replace" {
		t.Fatalf("unexpected columns schema %v", columns)
	}
	if opacity := props["opacity"].(map[string]any); opacity["type"] != "number" || opacity["default"] != 0.8 {
		t.Fatalf("unexpected opacity schema %v", opacity)
	}
	if legend := props["legend"].(map[string]any); legend["format"] != "model-id" {
		t.Fatalf("unexpected legend schema %v", legend)
	}
	if name := props[strata.TraitName].(map[string]any); name["x-capability"] != strata.CapabilityCatalogMember {
		t.Fatalf("unexpected name schema %v", name)
	}

	if _, err := json.Marshal(document); err != nil {
		t.Fatalf("document must be JSON serialisable: %v", err)
	}
}

func TestGenerateCustomOperation(t *testing.T) {
	c, _ := newCatalog(t, WithOperation("patch", "/layers/{type}/user", "edit-{type}"))
	doc, err := c.Schema("csv-item")
	if err != nil {
		t.Fatalf("Schema error: %v", err)
	}
	paths := doc.Document.(map[string]any)["paths"].(map[string]any)
	item, ok := paths["/layers/csv-item/user"].(map[string]any)
	if !ok {
		t.Fatalf("expected custom path, got %v", paths)
	}
	operation := item["patch"].(map[string]any)
	if id := operation["operationId"]; id != "edit-csv-item" {
		t.Fatalf("unexpected operation id %v", id)
	}
	if _, ok := operation["parameters"]; ok {
		t.Fatalf("paths without a stratum segment take no parameters")
	}
}

func TestGenerateRejectsNilKind(t *testing.T) {
	if _, err := NewGenerator().Generate(nil); err == nil {
		t.Fatalf("expected error for nil kind")
	}
}

func TestComponentName(t *testing.T) {
	cases := map[string]string{
		"csv-item":      "CsvItem",
		"url_reference": "UrlReference",
		"wms":           "Wms",
		"--":            "Model",
	}
	for in, want := range cases {
		if got := componentName(in); got != want {
			t.Fatalf("componentName(%q) = %q, want %q", in, got, want)
		}
	}
}
