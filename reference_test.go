package strata

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const testRefType = "test-ref"

func registerTestRef(t *testing.T, c *Catalog, loader ReferenceLoader) {
	t.Helper()
	if _, err := c.RegisterKind(Definition{Type: testRefType}, CatalogMember(), URL(), Reference(loader)); err != nil {
		t.Fatalf("RegisterKind error: %v", err)
	}
}

func layerLoader(calls *int32) ReferenceLoader {
	return func(_ context.Context, ref *Model, _ *Model) (*Model, error) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		return ref.Catalog().CreateCatalogMember(testLayerType, ref.ID(), ref), nil
	}
}

func TestLoadReferenceHandsOffStrata(t *testing.T) {
	c := newTestCatalog(t)
	registerTestLayer(t, c)
	registerTestRef(t, c, layerLoader(nil))
	ref := mustModel(t, c, testRefType, "roads")
	mustSet(t, ref, StratumDefinition, TraitName, "Roads")
	mustSet(t, ref, StratumUser, TraitURL, "https://example.com/roads.csv")

	if ref.ReferenceStatus() != ReferenceUnresolved {
		t.Fatalf("expected unresolved status")
	}
	target, err := ref.LoadReference(context.Background())
	if err != nil {
		t.Fatalf("LoadReference error: %v", err)
	}
	if target.GetString(TraitName) != "Roads" || target.GetString(TraitURL) != "https://example.com/roads.csv" {
		t.Fatalf("target missing handed off traits: name=%q url=%q", target.GetString(TraitName), target.GetString(TraitURL))
	}
	handed := target.HandedOffStrata()
	if len(handed) != 2 || handed[0] != StratumUser || handed[1] != StratumDefinition {
		t.Fatalf("unexpected handed off strata %v", handed)
	}
	if target.SourceReference() != ref {
		t.Fatalf("expected target to record its source reference")
	}
	if ref.Target() != target || ref.ReferenceStatus() != ReferenceResolved {
		t.Fatalf("reference not marked resolved")
	}

	mustSet(t, ref, StratumUser, TraitName, "Edited")
	if target.GetString(TraitName) != "Roads" {
		t.Fatalf("hand-off must copy strata, not share them")
	}
	again, err := ref.LoadReference(context.Background())
	if err != nil || again != target {
		t.Fatalf("resolved reference must return its current target")
	}
}

func TestReloadReferenceKeepsPreviousTarget(t *testing.T) {
	c := newTestCatalog(t)
	registerTestLayer(t, c)
	var seen []*Model
	registerTestRef(t, c, func(_ context.Context, ref *Model, previous *Model) (*Model, error) {
		seen = append(seen, previous)
		return ref.Catalog().CreateCatalogMember(testLayerType, ref.ID(), ref), nil
	})
	ref := mustModel(t, c, testRefType, "roads")
	mustSet(t, ref, StratumDefinition, TraitName, "Roads")

	first, err := ref.LoadReference(context.Background())
	if err != nil {
		t.Fatalf("LoadReference error: %v", err)
	}
	second, err := ref.ReloadReference(context.Background())
	if err != nil {
		t.Fatalf("ReloadReference error: %v", err)
	}
	if second == first {
		t.Fatalf("reload must produce a new target")
	}
	if ref.PreviousTarget() != first {
		t.Fatalf("expected previous target to be the first target")
	}
	if len(seen) != 2 || seen[0] != nil || seen[1] != first {
		t.Fatalf("loader did not receive the previous target: %v", seen)
	}
	if len(first.HandedOffStrata()) != 0 {
		t.Fatalf("old target must lose its hand-off markers")
	}
	if len(second.HandedOffStrata()) != 1 {
		t.Fatalf("new target must carry hand-off markers")
	}
}

func TestFailedReloadKeepsHandOffMarkers(t *testing.T) {
	c := newTestCatalog(t)
	registerTestLayer(t, c)
	fail := false
	reuse := false
	registerTestRef(t, c, func(_ context.Context, ref *Model, previous *Model) (*Model, error) {
		switch {
		case fail:
			return nil, errors.New("upstream gone")
		case reuse:
			return previous, nil
		}
		return ref.Catalog().CreateCatalogMember(testLayerType, ref.ID(), ref), nil
	})
	ref := mustModel(t, c, testRefType, "roads")
	mustSet(t, ref, StratumDefinition, TraitName, "Roads")

	target, err := ref.LoadReference(context.Background())
	if err != nil {
		t.Fatalf("LoadReference error: %v", err)
	}

	fail = true
	if _, err := ref.ReloadReference(context.Background()); err == nil {
		t.Fatalf("expected reload error")
	}
	if ref.ReferenceStatus() != ReferenceFailed || ref.Target() != target {
		t.Fatalf("failed reload should keep the current target")
	}
	if handed := target.HandedOffStrata(); len(handed) != 1 || handed[0] != StratumDefinition {
		t.Fatalf("failed reload must keep hand-off markers, got %v", handed)
	}

	fail, reuse = false, true
	again, err := ref.ReloadReference(context.Background())
	if err != nil || again != target {
		t.Fatalf("expected the same target back, got %v %v", again, err)
	}
	if handed := target.HandedOffStrata(); len(handed) != 1 || target.SourceReference() != ref {
		t.Fatalf("reused target must keep hand-off markers, got %v", handed)
	}
}

func TestConcurrentLoadReferenceRunsLoaderOnce(t *testing.T) {
	c := newTestCatalog(t)
	registerTestLayer(t, c)
	var calls int32
	release := make(chan struct{})
	registerTestRef(t, c, func(ctx context.Context, ref *Model, previous *Model) (*Model, error) {
		<-release
		return layerLoader(&calls)(ctx, ref, previous)
	})
	ref := mustModel(t, c, testRefType, "roads")

	const callers = 8
	results := make([]*Model, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			target, err := ref.LoadReference(context.Background())
			if err != nil {
				t.Errorf("LoadReference error: %v", err)
			}
			results[i] = target
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected one loader call, got %d", got)
	}
	for i, target := range results {
		if target == nil || target != results[0] {
			t.Fatalf("caller %d observed a different target", i)
		}
	}
}

func TestLoadReferenceDestroyedInFlight(t *testing.T) {
	c := newTestCatalog(t)
	registerTestLayer(t, c)
	started := make(chan struct{})
	release := make(chan struct{})
	var produced *Model
	registerTestRef(t, c, func(_ context.Context, ref *Model, _ *Model) (*Model, error) {
		close(started)
		<-release
		produced = ref.Catalog().CreateCatalogMember(testLayerType, ref.ID(), ref)
		return produced, nil
	})
	ref := mustModel(t, c, testRefType, "roads")

	errs := make(chan error, 1)
	go func() {
		_, err := ref.LoadReference(context.Background())
		errs <- err
	}()
	<-started
	if !c.Remove(context.Background(), "roads") {
		t.Fatalf("expected reference to be removed")
	}
	close(release)

	if err := <-errs; !errors.Is(err, ErrModelDestroyed) {
		t.Fatalf("expected ErrModelDestroyed, got %v", err)
	}
	if produced == nil || produced.IsLive() {
		t.Fatalf("target produced for a destroyed reference must be destroyed")
	}
	if ref.Target() != nil {
		t.Fatalf("destroyed reference must not hold a target")
	}
}

func TestLoadReferenceFailures(t *testing.T) {
	c := newTestCatalog(t)
	registerTestLayer(t, c)
	boom := errors.New("boom")
	fail := true
	registerTestRef(t, c, func(_ context.Context, ref *Model, _ *Model) (*Model, error) {
		if fail {
			return nil, boom
		}
		return nil, nil
	})
	ref := mustModel(t, c, testRefType, "roads")

	if _, err := ref.LoadReference(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected loader error, got %v", err)
	}
	if ref.ReferenceStatus() != ReferenceFailed || !errors.Is(ref.ReferenceError(), boom) {
		t.Fatalf("expected failed status with recorded error")
	}
	fail = false
	if _, err := ref.LoadReference(context.Background()); !errors.Is(err, ErrNoTarget) {
		t.Fatalf("expected ErrNoTarget, got %v", err)
	}

	plain := mustModel(t, c, testLayerType, "plain")
	if _, err := plain.LoadReference(context.Background()); !errors.Is(err, ErrNotReference) {
		t.Fatalf("expected ErrNotReference, got %v", err)
	}
}

func TestResolveAll(t *testing.T) {
	c := newTestCatalog(t)
	registerTestLayer(t, c)
	var calls int32
	registerTestRef(t, c, func(ctx context.Context, ref *Model, previous *Model) (*Model, error) {
		if ref.GetString(TraitURL) == "" {
			return nil, errors.New("no url")
		}
		return layerLoader(&calls)(ctx, ref, previous)
	})
	var refs []*Model
	for _, id := range []string{"a", "b", "c"} {
		ref := mustModel(t, c, testRefType, id)
		if id != "b" {
			mustSet(t, ref, StratumDefinition, TraitURL, "https://example.com/"+id)
		}
		refs = append(refs, ref)
	}

	targets, err := c.ResolveAll(context.Background(), refs, 2)
	if err == nil {
		t.Fatalf("expected joined error for the failing reference")
	}
	if targets[0] == nil || targets[1] != nil || targets[2] == nil {
		t.Fatalf("unexpected targets %v", targets)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected two successful loads, got %d", calls)
	}
}
