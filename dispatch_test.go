package strata

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-strata/pkg/activity"
)

// registerDispatchKinds registers csv, geotiff and binary kinds and their
// rules. The returned map counts metadata loads per type.
func registerDispatchKinds(t *testing.T, c *Catalog, failing map[string]bool) map[string]int {
	t.Helper()
	loads := map[string]int{}
	for _, typeTag := range []string{"csv", "geotiff", "binary"} {
		typeTag := typeTag
		def := Definition{Type: typeTag, Methods: map[string]Method{
			MethodLoadMetadata: func(context.Context, *Model, ...any) (any, error) {
				loads[typeTag]++
				if failing[typeTag] {
					return nil, errors.New(typeTag + " sniff failed")
				}
				return nil, nil
			},
		}}
		if _, err := c.RegisterKind(def, CatalogMember(), URL()); err != nil {
			t.Fatalf("RegisterKind(%s) error: %v", typeTag, err)
		}
	}
	if err := c.Chain().Register(MatchExtensions("csv"), "csv", false); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if err := c.Chain().Register(nil, "geotiff", true); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if err := c.Chain().RegisterRule(DispatchRule{Name: "sniff-binary", CandidateType: "binary", RequiresLoad: true}); err != nil {
		t.Fatalf("RegisterRule error: %v", err)
	}
	return loads
}

func TestDispatchPicksFirstMatchingRule(t *testing.T) {
	capture := &activity.CaptureHook{}
	c := newTestCatalog(t, WithActivityHooks(activity.Hooks{capture}))
	loads := registerDispatchKinds(t, c, map[string]bool{"geotiff": true})

	m, err := c.Dispatch(context.Background(), "https://example.com/a.csv", true)
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if m.Type() != "csv" {
		t.Fatalf("expected csv, got %s", m.Type())
	}
	record, ok := m.Stratum(StratumURLRecord)
	if !ok {
		t.Fatalf("expected url-record stratum")
	}
	if name, _ := record.Get(TraitName); name != "https://example.com/a.csv" {
		t.Fatalf("unexpected url-record name %v", name)
	}
	if url, _ := record.Get(TraitURL); url != "https://example.com/a.csv" {
		t.Fatalf("unexpected url-record url %v", url)
	}
	if len(loads) != 0 {
		t.Fatalf("csv rule needs no load, got loads %v", loads)
	}
	if c.Get(m.ID()) != nil {
		t.Fatalf("dispatched candidates must not be added to the catalog")
	}

	verbs := capture.Verbs()
	if len(verbs) == 0 || verbs[len(verbs)-1] != activity.VerbDispatchMatched {
		t.Fatalf("expected dispatch.matched event, got %v", verbs)
	}
}

func TestDispatchTrialLoadSkipsFailedCandidates(t *testing.T) {
	c := newTestCatalog(t)
	registerDispatchKinds(t, c, map[string]bool{"geotiff": true})

	m, err := c.Dispatch(context.Background(), "https://example.com/b.bin", true, WithDispatchID("b"))
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if m.Type() != "binary" || m.ID() != "b" {
		t.Fatalf("expected binary candidate with id b, got %s %s", m.Type(), m.ID())
	}
}

func TestDispatchExhausted(t *testing.T) {
	capture := &activity.CaptureHook{}
	c := newTestCatalog(t, WithActivityHooks(activity.Hooks{capture}))
	loads := registerDispatchKinds(t, c, map[string]bool{"geotiff": true, "binary": true})

	m, err := c.Dispatch(context.Background(), "https://example.com/b.bin", true)
	if m != nil {
		t.Fatalf("expected no candidate, got %v", m.Type())
	}
	if !errors.Is(err, ErrNoCandidate) {
		t.Fatalf("expected ErrNoCandidate, got %v", err)
	}
	var dispatchErr *DispatchError
	if !errors.As(err, &dispatchErr) || len(dispatchErr.Attempts) != 2 {
		t.Fatalf("expected two recorded attempts, got %v", err)
	}
	var loadErr *LoadError
	if !errors.As(err, &loadErr) || loadErr.Type != "geotiff" {
		t.Fatalf("expected load error for geotiff, got %v", err)
	}
	if loads["geotiff"] != 1 || loads["binary"] != 1 || loads["csv"] != 0 {
		t.Fatalf("expected one trial load per load rule, got %v", loads)
	}

	if _, err := c.Dispatch(context.Background(), "https://example.com/b.bin", false); !errors.Is(err, ErrNoCandidate) {
		t.Fatalf("load rules must be skipped without trial loads, got %v", err)
	}
	if loads["geotiff"] != 1 || loads["binary"] != 1 {
		t.Fatalf("dispatch without trial loads must not load, got %v", loads)
	}
	verbs := capture.Verbs()
	if verbs[len(verbs)-1] != activity.VerbDispatchExhausted {
		t.Fatalf("expected dispatch.exhausted event, got %v", verbs)
	}
}

func TestDispatchLoadsOnlyWhenRequired(t *testing.T) {
	c := newTestCatalog(t)
	loads := map[string]int{}
	for _, typeTag := range []string{"csv", "generic"} {
		typeTag := typeTag
		def := Definition{Type: typeTag, Methods: map[string]Method{
			MethodLoadMetadata: func(context.Context, *Model, ...any) (any, error) {
				loads[typeTag]++
				return nil, errors.New("load failed")
			},
		}}
		if _, err := c.RegisterKind(def, CatalogMember(), URL()); err != nil {
			t.Fatalf("RegisterKind(%s) error: %v", typeTag, err)
		}
	}
	csvGlob, err := MatchGlob("*.csv")
	if err != nil {
		t.Fatalf("MatchGlob error: %v", err)
	}
	if err := c.Chain().Register(csvGlob, "csv", false); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if err := c.Chain().Register(MatchAll(), "generic", true); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	m, err := c.Dispatch(context.Background(), "x.csv", true)
	if err != nil || m.Type() != "csv" {
		t.Fatalf("expected csv candidate, got %v %v", m, err)
	}
	if len(loads) != 0 {
		t.Fatalf("csv dispatch must not load, got %v", loads)
	}

	m, err = c.Dispatch(context.Background(), "x.bin", true)
	if m != nil || !errors.Is(err, ErrNoCandidate) {
		t.Fatalf("expected exhausted chain, got %v %v", m, err)
	}
	if loads["generic"] != 1 || loads["csv"] != 0 {
		t.Fatalf("expected exactly one failed trial load, got %v", loads)
	}
}

func TestDispatchUnknownCandidateType(t *testing.T) {
	c := newTestCatalog(t)
	if err := c.Chain().Register(nil, "ghost", false); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	_, err := c.Dispatch(context.Background(), "x", false)
	if !errors.Is(err, ErrNoCandidate) || !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected exhausted chain with unknown kind, got %v", err)
	}
	if err := c.Chain().Register(nil, " ", false); err == nil {
		t.Fatalf("expected empty candidate type to be rejected")
	}
}

func TestDispatchHonoursContext(t *testing.T) {
	c := newTestCatalog(t)
	registerDispatchKinds(t, c, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Dispatch(ctx, "a.csv", false); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
