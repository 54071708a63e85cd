package strata

import (
	"fmt"
	"sort"
	"sync"

	"github.com/goliatone/go-strata/layering"
)

// TraitChange describes an invalidated trait on a model.
type TraitChange struct {
	ModelID string
	Stratum string
	Trait   string
}

// Model is a catalog item whose effective trait values are derived from its
// strata on every read. Models are created by a Catalog.
type Model struct {
	mu        sync.Mutex
	id        string
	kind      *Kind
	catalog   *Catalog
	source    *Model
	strata    map[string]*Stratum
	cache     map[string]cachedTrait
	watchers  map[int]func(TraitChange)
	watchSeq  int
	destroyed bool
	// handedOff holds the names of strata copied in from a reference, and
	// handedFrom that reference's id. Both are cleared when the reference
	// re-resolves.
	handedOff  map[string]struct{}
	handedFrom string

	ref *referenceState
}

func newModel(c *Catalog, kind *Kind, id string, source *Model) *Model {
	m := &Model{
		id:      id,
		kind:    kind,
		catalog: c,
		source:  source,
		strata:  map[string]*Stratum{},
		cache:   map[string]cachedTrait{},
	}
	if kind.Has(CapabilityReference) {
		m.ref = &referenceState{}
	}
	return m
}

// ID returns the model id.
func (m *Model) ID() string {
	if m == nil {
		return ""
	}
	return m.id
}

// Type returns the type tag of the model kind.
func (m *Model) Type() string {
	if m == nil {
		return ""
	}
	return m.kind.Type()
}

// Kind returns the composed kind of the model.
func (m *Model) Kind() *Kind {
	if m == nil {
		return nil
	}
	return m.kind
}

// Catalog returns the catalog that created the model.
func (m *Model) Catalog() *Catalog {
	if m == nil {
		return nil
	}
	return m.catalog
}

// SourceReference returns the reference the model was produced for, if any.
func (m *Model) SourceReference() *Model {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.source
}

// HasCapability reports whether the model kind carries capability.
func (m *Model) HasCapability(capability string) bool {
	return m != nil && m.kind.Has(capability)
}

// IsLive reports whether the model has not been destroyed.
func (m *Model) IsLive() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.destroyed
}

// SetTrait writes value for trait into the named stratum, creating the
// stratum on first write. A nil value removes the trait from the stratum.
// Writing a value equal to the stored one leaves caches untouched.
func (m *Model) SetTrait(stratum, trait string, value any) error {
	if m == nil {
		return fmt.Errorf("strata: model is nil")
	}
	descriptor, ok := m.kind.Schema().Trait(trait)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownTrait, m.Type(), trait)
	}
	if _, ok := m.catalog.Order().Lookup(stratum); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStratum, stratum)
	}
	normalized, err := normalizeTraitValue(descriptor, value)
	if err != nil {
		return fmt.Errorf("strata: %s.%s: %w", m.Type(), trait, err)
	}

	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrModelDestroyed, m.id)
	}
	layer := m.strata[stratum]
	if normalized == nil {
		if layer == nil || !layer.Has(trait) {
			m.mu.Unlock()
			return nil
		}
		delete(layer.values, trait)
	} else {
		if layer == nil {
			layer = newStratum(stratum)
			m.strata[stratum] = layer
		}
		if existing, found := layer.values[trait]; found && layering.Equal(existing, normalized) {
			m.mu.Unlock()
			return nil
		}
		layer.values[trait] = normalized
	}
	delete(m.cache, trait)
	watchers := m.watchersLocked()
	m.mu.Unlock()

	notifyWatchers(watchers, TraitChange{ModelID: m.id, Stratum: stratum, Trait: trait})
	m.catalog.emitStratumUpdated(m, stratum, trait)
	return nil
}

// SetTraits writes every entry of values into stratum. All entries are
// validated before any write happens.
func (m *Model) SetTraits(stratum string, values map[string]any) error {
	if _, err := m.normalizeStratum(stratum, values); err != nil {
		return err
	}
	for _, name := range keys(values) {
		if err := m.SetTrait(stratum, name, values[name]); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceStratum swaps the named stratum for one holding values. Nothing is
// written unless every entry is valid. Empty values remove the stratum.
func (m *Model) ReplaceStratum(stratum string, values map[string]any) error {
	if m == nil {
		return fmt.Errorf("strata: model is nil")
	}
	normalized, err := m.normalizeStratum(stratum, values)
	if err != nil {
		return err
	}
	next := newStratum(stratum)
	for name, value := range normalized {
		if value != nil {
			next.values[name] = value
		}
	}

	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrModelDestroyed, m.id)
	}
	previous := m.strata[stratum]
	if (previous == nil && next.Len() == 0) || (previous != nil && layering.Equal(previous.values, next.values)) {
		m.mu.Unlock()
		return nil
	}
	changed := map[string]struct{}{}
	for _, trait := range previous.Traits() {
		changed[trait] = struct{}{}
	}
	for _, trait := range next.Traits() {
		changed[trait] = struct{}{}
	}
	if next.Len() == 0 {
		delete(m.strata, stratum)
	} else {
		m.strata[stratum] = next
	}
	delete(m.handedOff, stratum)
	traits := keys(changed)
	for _, trait := range traits {
		delete(m.cache, trait)
	}
	watchers := m.watchersLocked()
	m.mu.Unlock()

	for _, trait := range traits {
		notifyWatchers(watchers, TraitChange{ModelID: m.id, Stratum: stratum, Trait: trait})
	}
	m.catalog.emitStratumUpdated(m, stratum, traits...)
	return nil
}

// normalizeStratum validates stratum and every entry of values against the
// model's schema, returning the normalized values.
func (m *Model) normalizeStratum(stratum string, values map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, fmt.Errorf("strata: model is nil")
	}
	if _, ok := m.catalog.Order().Lookup(stratum); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStratum, stratum)
	}
	out := make(map[string]any, len(values))
	for _, name := range keys(values) {
		descriptor, ok := m.kind.Schema().Trait(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownTrait, m.Type(), name)
		}
		normalized, err := normalizeTraitValue(descriptor, values[name])
		if err != nil {
			return nil, fmt.Errorf("strata: %s.%s: %w", m.Type(), name, err)
		}
		out[name] = normalized
	}
	return out, nil
}

// RemoveStratum drops an entire stratum from the model.
func (m *Model) RemoveStratum(stratum string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	layer, ok := m.strata[stratum]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.strata, stratum)
	traits := layer.Traits()
	for _, trait := range traits {
		delete(m.cache, trait)
	}
	delete(m.handedOff, stratum)
	watchers := m.watchersLocked()
	m.mu.Unlock()

	for _, trait := range traits {
		notifyWatchers(watchers, TraitChange{ModelID: m.id, Stratum: stratum, Trait: trait})
	}
	m.catalog.emitStratumUpdated(m, stratum, traits...)
}

// Stratum returns a detached copy of the named stratum.
func (m *Model) Stratum(name string) (*Stratum, bool) {
	if m == nil {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	layer, ok := m.strata[name]
	if !ok {
		return nil, false
	}
	return layer.clone(), true
}

// HasStratum reports whether the model holds the named stratum.
func (m *Model) HasStratum(name string) bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.strata[name]
	return ok
}

// StratumNames returns the names of the model's strata from strongest to
// weakest.
func (m *Model) StratumNames() []string {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	names := make([]string, 0, len(m.strata))
	for name := range m.strata {
		names = append(names, name)
	}
	m.mu.Unlock()
	return m.catalog.Order().SortNames(names)
}

// HandedOffStrata returns the names of strata copied in from a reference
// that still carry the hand-off marker, strongest first.
func (m *Model) HandedOffStrata() []string {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.handedOff))
	for name := range m.handedOff {
		names = append(names, name)
	}
	return m.catalog.Order().SortNames(names)
}

// Watch registers fn to be called after a trait of the model is invalidated.
// The returned function removes the watcher.
func (m *Model) Watch(fn func(TraitChange)) func() {
	if m == nil || fn == nil {
		return func() {}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watchers == nil {
		m.watchers = map[int]func(TraitChange){}
	}
	m.watchSeq++
	key := m.watchSeq
	m.watchers[key] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.watchers, key)
	}
}

func (m *Model) watchersLocked() []func(TraitChange) {
	if len(m.watchers) == 0 {
		return nil
	}
	keys := make([]int, 0, len(m.watchers))
	for key := range m.watchers {
		keys = append(keys, key)
	}
	sort.Ints(keys)
	out := make([]func(TraitChange), 0, len(keys))
	for _, key := range keys {
		out = append(out, m.watchers[key])
	}
	return out
}

func notifyWatchers(watchers []func(TraitChange), change TraitChange) {
	for _, fn := range watchers {
		fn(change)
	}
}

// destroy releases every stratum and reference held by the model. Further
// writes fail with ErrModelDestroyed and reads report no values.
func (m *Model) destroy() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return
	}
	m.destroyed = true
	m.strata = map[string]*Stratum{}
	m.cache = map[string]cachedTrait{}
	m.watchers = nil
	m.source = nil
	m.handedOff = nil
	if m.ref != nil {
		m.ref.release()
	}
}

func normalizeTraitValue(descriptor TraitDescriptor, value any) (any, error) {
	switch descriptor.Kind {
	case KindModelReference:
		if model, ok := value.(*Model); ok {
			if model == nil {
				return nil, nil
			}
			return model.ID(), nil
		}
	case KindModelReferenceArray:
		if models, ok := value.([]*Model); ok {
			ids := make([]any, 0, len(models))
			for _, model := range models {
				if model != nil {
					ids = append(ids, model.ID())
				}
			}
			return ids, nil
		}
	}

	normalized, err := layering.Normalize(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTraitValue, err)
	}
	if normalized == nil {
		return nil, nil
	}

	switch descriptor.Kind {
	case KindPrimitive:
		switch normalized.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("%w: primitive trait got %T", ErrInvalidTraitValue, normalized)
		}
	case KindObject:
		if _, ok := normalized.(map[string]any); !ok {
			return nil, fmt.Errorf("%w: object trait got %T", ErrInvalidTraitValue, normalized)
		}
	case KindArray:
		if _, ok := normalized.([]any); !ok {
			return nil, fmt.Errorf("%w: array trait got %T", ErrInvalidTraitValue, normalized)
		}
	case KindModelReference:
		if _, ok := normalized.(string); !ok {
			return nil, fmt.Errorf("%w: model reference must be an id string, got %T", ErrInvalidTraitValue, normalized)
		}
	case KindModelReferenceArray:
		items, ok := normalized.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: model reference array got %T", ErrInvalidTraitValue, normalized)
		}
		for i, item := range items {
			if _, ok := item.(string); !ok {
				return nil, fmt.Errorf("%w: model reference array index %d got %T", ErrInvalidTraitValue, i, item)
			}
		}
	}
	return normalized, nil
}
