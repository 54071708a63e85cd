package strata

import (
	"context"
	"errors"
	"testing"
)

func seedSnapshotCatalog(t *testing.T) *Catalog {
	t.Helper()
	c := newTestCatalog(t)
	registerTestLayer(t, c)
	a := mustModel(t, c, testLayerType, "a")
	mustSet(t, a, StratumDefinition, "opacity", 0.5)
	mustSet(t, a, StratumUser, "opacity", 0.2)
	mustSet(t, a, StratumDefinition, "style", map[string]any{"color": "red"})
	b := mustModel(t, c, testLayerType, "b")
	mustSet(t, b, StratumDefinition, TraitName, "B")
	return c
}

func TestSnapshotCapturesAndFilters(t *testing.T) {
	c := seedSnapshotCatalog(t)

	full := c.Snapshot()
	if len(full.Models) != 2 || full.Models[0].ID != "a" || full.Models[1].ID != "b" {
		t.Fatalf("unexpected snapshot models %+v", full.Models)
	}
	if len(full.Models[0].Strata) != 2 {
		t.Fatalf("expected definition and user strata, got %v", full.Models[0].Strata)
	}

	user := c.Snapshot(StratumUser)
	if len(user.Models) != 1 || user.Models[0].ID != "a" {
		t.Fatalf("expected only a in user snapshot, got %+v", user.Models)
	}
	if _, ok := user.Models[0].Strata[StratumDefinition]; ok {
		t.Fatalf("filtered snapshot leaked the definition stratum")
	}
	if empty := c.Snapshot("override"); len(empty.Models) != 0 || empty.Models == nil {
		t.Fatalf("expected empty non-nil models, got %#v", empty.Models)
	}
}

func TestSnapshotFingerprint(t *testing.T) {
	c := seedSnapshotCatalog(t)
	first, err := c.Snapshot().Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint error: %v", err)
	}
	second, _ := c.Snapshot().Fingerprint()
	if first != second || len(first) != 64 {
		t.Fatalf("fingerprint not stable: %s vs %s", first, second)
	}

	mustSet(t, c.Get("b"), StratumUser, TraitName, "Renamed")
	changed, _ := c.Snapshot().Fingerprint()
	if changed == first {
		t.Fatalf("fingerprint should change after a write")
	}

	var zero Snapshot
	encoded, err := zero.ToJSON()
	if err != nil || string(encoded) != `{"models":[]}` {
		t.Fatalf("unexpected zero snapshot encoding %s (%v)", encoded, err)
	}
}

func TestSnapshotRoundTripRestore(t *testing.T) {
	source := seedSnapshotCatalog(t)
	payload, err := source.Snapshot().ToJSON()
	if err != nil {
		t.Fatalf("ToJSON error: %v", err)
	}
	decoded, err := SnapshotFromJSON(payload)
	if err != nil {
		t.Fatalf("SnapshotFromJSON error: %v", err)
	}

	target := newTestCatalog(t)
	registerTestLayer(t, target)
	// Existing strata are replaced, not merged.
	a := mustModel(t, target, testLayerType, "a")
	mustSet(t, a, StratumUser, "columns", []any{"stale"})

	if err := target.Restore(context.Background(), decoded); err != nil {
		t.Fatalf("Restore error: %v", err)
	}
	if opacity, _ := a.Get("opacity"); opacity != 0.2 {
		t.Fatalf("expected restored user opacity, got %v", opacity)
	}
	if columns, ok := a.Get("columns"); ok {
		t.Fatalf("restored user stratum should replace stale values, got %v", columns)
	}
	if target.Get("b").GetString(TraitName) != "B" {
		t.Fatalf("expected b to be created by restore")
	}

	sourceFP, _ := source.Snapshot().Fingerprint()
	targetFP, _ := target.Snapshot().Fingerprint()
	if sourceFP != targetFP {
		t.Fatalf("restored catalog should fingerprint like its source")
	}
}

func TestRestoreReportsFailures(t *testing.T) {
	c := newTestCatalog(t)
	registerTestLayer(t, c)
	snapshot := Snapshot{Models: []ModelSnapshot{
		{ID: "x", Type: "unknown", Strata: map[string]map[string]any{}},
		{ID: "y", Type: testLayerType, Strata: map[string]map[string]any{"bogus": {"opacity": 1}}},
		{ID: "z", Type: testLayerType, Strata: map[string]map[string]any{StratumUser: {"opacity": 0.3}}},
	}}
	err := c.Restore(context.Background(), snapshot)
	if !errors.Is(err, ErrUnknownKind) || !errors.Is(err, ErrUnknownStratum) {
		t.Fatalf("expected unknown kind and stratum errors, got %v", err)
	}
	if opacity, _ := c.Get("z").Get("opacity"); opacity != 0.3 {
		t.Fatalf("valid entries should still be restored, got %v", opacity)
	}
	if _, err := SnapshotFromJSON([]byte("{")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestRejectedRestoreKeepsExistingStratum(t *testing.T) {
	c := newTestCatalog(t)
	registerTestLayer(t, c)
	m := mustModel(t, c, testLayerType, "roads")
	mustSet(t, m, StratumUser, "opacity", 0.2)
	mustSet(t, m, StratumUser, "style", map[string]any{"color": "red"})

	for name, values := range map[string]map[string]any{
		"unknown trait": {"opacity": 0.9, "bogus": 1},
		"invalid value": {"opacity": 0.9, "style": "not-a-map"},
	} {
		t.Run(name, func(t *testing.T) {
			err := c.Restore(context.Background(), Snapshot{Models: []ModelSnapshot{
				{ID: "roads", Type: testLayerType, Strata: map[string]map[string]any{StratumUser: values}},
			}})
			if err == nil {
				t.Fatalf("expected restore error")
			}
			if !m.HasStratum(StratumUser) {
				t.Fatalf("user stratum should survive a rejected restore")
			}
			if opacity, _ := m.Get("opacity"); opacity != 0.2 {
				t.Fatalf("opacity = %v, want 0.2", opacity)
			}
			if style, ok := m.Resolve("style"); !ok || style.(map[string]any)["color"] != "red" {
				t.Fatalf("style = %v, want color red", style)
			}
		})
	}
}

func TestRestoreReplacesStratumWholesale(t *testing.T) {
	c := newTestCatalog(t)
	registerTestLayer(t, c)
	m := mustModel(t, c, testLayerType, "roads")
	mustSet(t, m, StratumUser, "opacity", 0.2)
	mustSet(t, m, StratumUser, "style", map[string]any{"color": "red"})

	err := c.Restore(context.Background(), Snapshot{Models: []ModelSnapshot{
		{ID: "roads", Type: testLayerType, Strata: map[string]map[string]any{StratumUser: {"opacity": 0.9}}},
	}})
	if err != nil {
		t.Fatalf("Restore error: %v", err)
	}
	if opacity, _ := m.Get("opacity"); opacity != 0.9 {
		t.Fatalf("opacity = %v, want 0.9", opacity)
	}
	if _, ok := m.Resolve("style"); ok {
		t.Fatalf("style should be gone after the stratum was replaced")
	}
}
