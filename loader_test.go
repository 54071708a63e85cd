package strata

import (
	"context"
	"errors"
	"testing"
)

func TestLoadMetadataPrefersKindMethod(t *testing.T) {
	var calls []string
	c := newTestCatalog(t, WithLoader(LoaderFunc(func(_ context.Context, m *Model) error {
		calls = append(calls, "catalog:"+m.ID())
		return nil
	})))
	_, err := c.RegisterKind(Definition{Type: "sniffed", Methods: map[string]Method{
		MethodLoadMetadata: func(_ context.Context, m *Model, _ ...any) (any, error) {
			calls = append(calls, "kind:"+m.ID())
			return nil, nil
		},
	}}, CatalogMember(), URL())
	if err != nil {
		t.Fatalf("RegisterKind error: %v", err)
	}
	registerTestLayer(t, c)

	ctx := context.Background()
	if err := c.LoadMetadata(ctx, mustModel(t, c, "sniffed", "s")); err != nil {
		t.Fatalf("LoadMetadata error: %v", err)
	}
	if err := c.LoadMetadata(ctx, mustModel(t, c, testLayerType, "l")); err != nil {
		t.Fatalf("LoadMetadata error: %v", err)
	}
	if len(calls) != 2 || calls[0] != "kind:s" || calls[1] != "catalog:l" {
		t.Fatalf("unexpected loader calls %v", calls)
	}
}

func TestLoadMetadataWrapsFailures(t *testing.T) {
	cause := errors.New("404")
	c := newTestCatalog(t, WithLoader(LoaderFunc(func(context.Context, *Model) error { return cause })))
	registerTestLayer(t, c)
	m := mustModel(t, c, testLayerType, "l")
	mustSet(t, m, StratumDefinition, TraitURL, "https://example.com/l.csv")

	err := c.LoadMetadata(context.Background(), m)
	var loadErr *LoadError
	if !errors.As(err, &loadErr) || !errors.Is(err, cause) {
		t.Fatalf("expected LoadError wrapping the cause, got %v", err)
	}
	if loadErr.ModelID != "l" || loadErr.Type != testLayerType || loadErr.URL != "https://example.com/l.csv" {
		t.Fatalf("unexpected load error fields %+v", loadErr)
	}
	want := `strata: load test-layer "l" url="https://example.com/l.csv": 404`
	if err.Error() != want {
		t.Fatalf("unexpected message %q", err.Error())
	}

	c.Remove(context.Background(), "l")
	if err := c.LoadMetadata(context.Background(), m); !errors.Is(err, ErrModelDestroyed) {
		t.Fatalf("expected ErrModelDestroyed, got %v", err)
	}
	if err := c.LoadMetadata(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil model")
	}
}

func TestLoadMetadataWithoutLoaderSucceeds(t *testing.T) {
	c := newTestCatalog(t)
	registerTestLayer(t, c)
	if err := c.LoadMetadata(context.Background(), mustModel(t, c, testLayerType, "l")); err != nil {
		t.Fatalf("expected trivial load, got %v", err)
	}
}
