package strata

import (
	"testing"
)

const testLayerType = "test-layer"

func newTestCatalog(t *testing.T, opts ...Option) *Catalog {
	t.Helper()
	c, err := New(opts...)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return c
}

func registerTestLayer(t *testing.T, c *Catalog) *Kind {
	t.Helper()
	kind, err := c.RegisterKind(Definition{
		Type: testLayerType,
		Traits: []TraitDescriptor{
			Primitive("opacity", "Layer opacity.").WithDefault(1.0),
			Object("style", "Rendering style."),
			Array("columns", "Column names."),
			Array("tags", "Free tags.").Concatenable(nil),
			ModelReference("legend", "Legend model."),
		},
	}, CatalogMember(), URL())
	if err != nil {
		t.Fatalf("RegisterKind error: %v", err)
	}
	return kind
}

func mustModel(t *testing.T, c *Catalog, typeTag, id string) *Model {
	t.Helper()
	m, err := c.NewModel(typeTag, id)
	if err != nil {
		t.Fatalf("NewModel(%s, %s) error: %v", typeTag, id, err)
	}
	return m
}

func mustSet(t *testing.T, m *Model, stratum, trait string, value any) {
	t.Helper()
	if err := m.SetTrait(stratum, trait, value); err != nil {
		t.Fatalf("SetTrait(%s, %s) error: %v", stratum, trait, err)
	}
}
