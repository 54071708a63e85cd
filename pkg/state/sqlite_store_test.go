package state_test

import (
	"context"
	"path/filepath"
	"testing"

	strata "github.com/goliatone/go-strata"
	"github.com/goliatone/go-strata/pkg/state"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")
	store, err := state.OpenSQLiteStore[strata.Snapshot](path)
	if err != nil {
		t.Fatalf("OpenSQLiteStore error: %v", err)
	}
	defer store.Close()

	ref := state.Ref{Catalog: "main", Stratum: strata.StratumUser}
	if _, _, ok, err := store.Load(ctx, ref); err != nil || ok {
		t.Fatalf("expected empty load, got ok=%v err=%v", ok, err)
	}

	snapshot := strata.Snapshot{Models: []strata.ModelSnapshot{{
		ID:     "parks",
		Type:   "csv",
		Strata: map[string]map[string]any{strata.StratumUser: {strata.TraitName: "Parks"}},
	}}}
	saved, err := store.Save(ctx, ref, snapshot, state.Meta{SnapshotID: "s-1", Extra: map[string]string{"by": "tester"}})
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if saved.ETag == "" {
		t.Fatalf("expected derived etag")
	}

	loaded, meta, ok, err := store.Load(ctx, ref)
	if err != nil || !ok {
		t.Fatalf("Load returned ok=%v err=%v", ok, err)
	}
	if meta.SnapshotID != "s-1" || meta.ETag != saved.ETag || meta.Extra["by"] != "tester" {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if len(loaded.Models) != 1 || loaded.Models[0].Strata[strata.StratumUser][strata.TraitName] != "Parks" {
		t.Fatalf("unexpected snapshot %+v", loaded)
	}
}

func TestSQLiteStoreBacksManager(t *testing.T) {
	ctx := context.Background()
	store, err := state.OpenSQLiteStore[strata.Snapshot](filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore error: %v", err)
	}
	defer store.Close()

	source := newCatalog(t)
	seed(t, source)
	manager := state.Manager{Store: store}
	ref := state.Ref{Catalog: "main"}
	first, err := manager.Save(ctx, source, ref, state.Meta{})
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}
	second, err := manager.Save(ctx, source, ref, state.Meta{ETag: first.ETag})
	if err != nil {
		t.Fatalf("second Save error: %v", err)
	}
	if second.ETag != first.ETag {
		t.Fatalf("expected stable etag")
	}

	target := newCatalog(t)
	if _, ok, err := manager.Restore(ctx, target, ref); err != nil || !ok {
		t.Fatalf("Restore returned ok=%v err=%v", ok, err)
	}
	if got := target.Get("parks").GetString(strata.TraitName); got != "My parks" {
		t.Fatalf("expected user name after restore, got %q", got)
	}
}
