package strata

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goliatone/go-strata/pkg/activity"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ReferenceStatus is the resolution state of a reference.
type ReferenceStatus int

const (
	ReferenceUnresolved ReferenceStatus = iota
	ReferenceResolving
	ReferenceResolved
	ReferenceFailed
)

func (s ReferenceStatus) String() string {
	switch s {
	case ReferenceResolving:
		return "resolving"
	case ReferenceResolved:
		return "resolved"
	case ReferenceFailed:
		return "failed"
	default:
		return "unresolved"
	}
}

type referenceState struct {
	flight singleflight.Group

	mu       sync.Mutex
	status   ReferenceStatus
	target   *Model
	previous *Model
	err      error
}

// release destroys the owned target. It runs under the reference model's
// lock and must not call back into it.
func (s *referenceState) release() {
	s.mu.Lock()
	target := s.target
	s.target = nil
	s.previous = nil
	s.status = ReferenceUnresolved
	s.err = nil
	s.mu.Unlock()
	target.destroy()
}

// IsReference reports whether m carries the reference capability.
func (m *Model) IsReference() bool {
	return m != nil && m.ref != nil
}

// LoadReference resolves the reference into its target model. A resolved
// reference returns its current target without loading again. Concurrent
// callers share one in-flight resolution and observe its result, which is
// computed with the context of the first caller.
func (m *Model) LoadReference(ctx context.Context) (*Model, error) {
	return m.loadReference(ctx, false)
}

// ReloadReference resolves the reference again even when it is resolved.
// The old target stays available through PreviousTarget.
func (m *Model) ReloadReference(ctx context.Context) (*Model, error) {
	return m.loadReference(ctx, true)
}

func (m *Model) loadReference(ctx context.Context, force bool) (*Model, error) {
	if !m.IsReference() {
		return nil, fmt.Errorf("%w: %s", ErrNotReference, m.ID())
	}
	if !m.IsLive() {
		return nil, fmt.Errorf("%w: %s", ErrModelDestroyed, m.ID())
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !force {
		if target, ok := m.resolvedTarget(); ok {
			return target, nil
		}
	}

	result, err, _ := m.ref.flight.Do("load", func() (any, error) {
		return m.resolveReference(ctx, force)
	})
	if err != nil {
		return nil, err
	}
	target, _ := result.(*Model)
	return target, nil
}

func (m *Model) resolvedTarget() (*Model, bool) {
	m.ref.mu.Lock()
	defer m.ref.mu.Unlock()
	if m.ref.status == ReferenceResolved && m.ref.target != nil {
		return m.ref.target, true
	}
	return nil, false
}

func (m *Model) resolveReference(ctx context.Context, force bool) (*Model, error) {
	st := m.ref
	st.mu.Lock()
	if !force && st.status == ReferenceResolved && st.target != nil {
		target := st.target
		st.mu.Unlock()
		return target, nil
	}
	old := st.target
	st.status = ReferenceResolving
	st.mu.Unlock()

	detached := old.detachHandOff(m.id)

	target, err := m.runReferenceLoader(ctx, old)
	if !m.IsLive() {
		if target != nil && target != old {
			target.destroy()
		}
		return nil, fmt.Errorf("%w: %s", ErrModelDestroyed, m.id)
	}
	if err == nil && target == nil {
		err = fmt.Errorf("%w: %s", ErrNoTarget, m.id)
	}
	if err != nil || target == old {
		old.reattachHandOff(m.id, detached)
	}
	if err != nil {
		st.mu.Lock()
		st.status = ReferenceFailed
		st.err = err
		st.mu.Unlock()
		m.catalog.logger().Warn("reference resolution failed", "reference", m.id, "type", m.Type(), "error", err)
		m.catalog.emit(ctx, activity.BuildReferenceFailedEvent(activity.CatalogEventInput{
			ModelID:   m.id,
			ModelType: m.Type(),
			URL:       m.GetString(TraitURL),
			Err:       err,
		}))
		return nil, err
	}

	handedOff := m.handOff(target)

	st.mu.Lock()
	st.previous = old
	st.target = target
	st.status = ReferenceResolved
	st.err = nil
	st.mu.Unlock()

	metadata := map[string]any{"target": target.ID(), "target_type": target.Type()}
	if old != nil {
		metadata["previous_target"] = old.ID()
	}
	if len(handedOff) > 0 {
		metadata["handed_off"] = handedOff
	}
	m.catalog.logger().Debug("reference resolved", "reference", m.id, "target", target.ID(), "target_type", target.Type())
	m.catalog.emit(ctx, activity.BuildReferenceResolvedEvent(activity.CatalogEventInput{
		ModelID:   m.id,
		ModelType: m.Type(),
		URL:       m.GetString(TraitURL),
		Metadata:  metadata,
	}))
	return target, nil
}

func (m *Model) runReferenceLoader(ctx context.Context, previous *Model) (*Model, error) {
	method, ok := m.kind.Method(MethodLoadReference)
	if !ok {
		return nil, fmt.Errorf("strata: reference kind %q has no %s method", m.Type(), MethodLoadReference)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := method(ctx, m, previous)
	if err != nil {
		return nil, err
	}
	target, ok := result.(*Model)
	if result != nil && !ok {
		return nil, fmt.Errorf("strata: reference %q loader returned %T", m.id, result)
	}
	if target != nil && target.catalog != m.catalog {
		return nil, fmt.Errorf("strata: reference %q target belongs to another catalog", m.id)
	}
	return target, nil
}

// handOff copies every stratum of m that target lacks onto target, marking
// the copies as handed off. It returns the copied stratum names.
func (m *Model) handOff(target *Model) []string {
	m.mu.Lock()
	copies := make([]*Stratum, 0, len(m.strata))
	for _, layer := range m.strata {
		copies = append(copies, layer.clone())
	}
	m.mu.Unlock()

	target.mu.Lock()
	if target.destroyed {
		target.mu.Unlock()
		return nil
	}
	var names []string
	var changes []TraitChange
	for _, layer := range copies {
		if _, exists := target.strata[layer.name]; exists {
			continue
		}
		target.strata[layer.name] = layer
		if target.handedOff == nil {
			target.handedOff = map[string]struct{}{}
		}
		target.handedOff[layer.name] = struct{}{}
		names = append(names, layer.name)
		for trait := range layer.values {
			delete(target.cache, trait)
			changes = append(changes, TraitChange{ModelID: target.id, Stratum: layer.name, Trait: trait})
		}
	}
	target.handedFrom = m.id
	if target.source == nil {
		target.source = m
	}
	watchers := target.watchersLocked()
	target.mu.Unlock()

	for _, change := range changes {
		notifyWatchers(watchers, change)
	}
	return m.catalog.Order().SortNames(names)
}

// detachHandOff clears the hand-off markers left by reference refID and
// returns them. The copied strata stay on the model.
func (m *Model) detachHandOff(refID string) map[string]struct{} {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handedFrom != refID {
		return nil
	}
	detached := m.handedOff
	m.handedOff = nil
	m.handedFrom = ""
	return detached
}

// reattachHandOff restores markers removed by detachHandOff when the
// resolution that removed them did not move to a new target. Strata dropped
// in the meantime stay unmarked.
func (m *Model) reattachHandOff(refID string, marks map[string]struct{}) {
	if m == nil || len(marks) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed || (m.handedFrom != "" && m.handedFrom != refID) {
		return
	}
	for name := range marks {
		if _, ok := m.strata[name]; !ok {
			continue
		}
		if m.handedOff == nil {
			m.handedOff = map[string]struct{}{}
		}
		m.handedOff[name] = struct{}{}
	}
	m.handedFrom = refID
}

// Target returns the current target of a reference.
func (m *Model) Target() *Model {
	if !m.IsReference() {
		return nil
	}
	m.ref.mu.Lock()
	defer m.ref.mu.Unlock()
	return m.ref.target
}

// PreviousTarget returns the target replaced by the last successful
// resolution. It is a non-owning record.
func (m *Model) PreviousTarget() *Model {
	if !m.IsReference() {
		return nil
	}
	m.ref.mu.Lock()
	defer m.ref.mu.Unlock()
	return m.ref.previous
}

// ReferenceStatus returns the resolution state of a reference.
func (m *Model) ReferenceStatus() ReferenceStatus {
	if !m.IsReference() {
		return ReferenceUnresolved
	}
	m.ref.mu.Lock()
	defer m.ref.mu.Unlock()
	return m.ref.status
}

// ReferenceError returns the error of the last failed resolution.
func (m *Model) ReferenceError() error {
	if !m.IsReference() {
		return nil
	}
	m.ref.mu.Lock()
	defer m.ref.mu.Unlock()
	return m.ref.err
}

// ResolveAll resolves refs concurrently, at most limit at a time (no limit
// when limit <= 0). Targets are returned in the order of refs, nil where a
// resolution failed; failures are joined into the returned error.
func (c *Catalog) ResolveAll(ctx context.Context, refs []*Model, limit int) ([]*Model, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	targets := make([]*Model, len(refs))
	errs := make([]error, len(refs))

	var group errgroup.Group
	if limit > 0 {
		group.SetLimit(limit)
	}
	for i, ref := range refs {
		group.Go(func() error {
			target, err := ref.LoadReference(ctx)
			if err != nil {
				errs[i] = fmt.Errorf("strata: resolve %q: %w", ref.ID(), err)
				return nil
			}
			targets[i] = target
			return nil
		})
	}
	_ = group.Wait()
	return targets, errors.Join(errs...)
}
