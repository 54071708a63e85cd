package strata

import (
	"github.com/goliatone/go-strata/layering"
)

type cachedTrait struct {
	value any
	ok    bool
}

// Resolve returns the effective value of trait. Strata are walked from
// strongest to weakest and combined with the trait's merge strategy. Traits
// no stratum defines fall back to the declared default; unknown traits and
// destroyed models report false. Repeated calls without intervening writes
// return the same cached value, which callers must not mutate.
func (m *Model) Resolve(trait string) (any, bool) {
	if m == nil {
		return nil, false
	}
	descriptor, ok := m.kind.Schema().Trait(trait)
	if !ok {
		return nil, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return nil, false
	}
	if cached, ok := m.cache[trait]; ok {
		return cached.value, cached.ok
	}
	value, found := m.composeLocked(descriptor)
	m.cache[trait] = cachedTrait{value: value, ok: found}
	return value, found
}

// Get is shorthand for Resolve.
func (m *Model) Get(trait string) (any, bool) {
	return m.Resolve(trait)
}

// GetString resolves trait and returns it when it holds a string.
func (m *Model) GetString(trait string) string {
	value, _ := m.Resolve(trait)
	s, _ := value.(string)
	return s
}

// GetBool resolves trait and returns it when it holds a bool.
func (m *Model) GetBool(trait string) bool {
	value, _ := m.Resolve(trait)
	b, _ := value.(bool)
	return b
}

// Value resolves trait on m and converts it to T.
func Value[T any](m *Model, trait string) (T, bool) {
	var zero T
	value, ok := m.Resolve(trait)
	if !ok {
		return zero, false
	}
	typed, ok := value.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// ResolveModel resolves a model reference trait to the live model it names.
// Dangling ids resolve to nil and are logged.
func (m *Model) ResolveModel(trait string) *Model {
	descriptor, ok := m.traitOfKind(trait, KindModelReference)
	if !ok {
		return nil
	}
	value, ok := m.Resolve(descriptor.Name)
	if !ok {
		return nil
	}
	id, _ := value.(string)
	return m.lookupReference(trait, id)
}

// ResolveModels resolves a model reference array trait to live models,
// omitting dangling ids.
func (m *Model) ResolveModels(trait string) []*Model {
	descriptor, ok := m.traitOfKind(trait, KindModelReferenceArray)
	if !ok {
		return nil
	}
	value, ok := m.Resolve(descriptor.Name)
	if !ok {
		return nil
	}
	ids, _ := value.([]any)
	out := make([]*Model, 0, len(ids))
	for _, raw := range ids {
		id, _ := raw.(string)
		if target := m.lookupReference(trait, id); target != nil {
			out = append(out, target)
		}
	}
	return out
}

func (m *Model) traitOfKind(trait string, kind TraitKind) (TraitDescriptor, bool) {
	if m == nil {
		return TraitDescriptor{}, false
	}
	descriptor, ok := m.kind.Schema().Trait(trait)
	if !ok || descriptor.Kind != kind {
		return TraitDescriptor{}, false
	}
	return descriptor, true
}

func (m *Model) lookupReference(trait, id string) *Model {
	if id == "" {
		return nil
	}
	target := m.catalog.Get(id)
	if target == nil {
		err := &DanglingReferenceError{ModelID: m.id, Trait: trait, Target: id}
		m.catalog.logger().Debug("dangling model reference", "model", m.id, "trait", trait, "target", id, "error", err)
		return nil
	}
	return target
}

// orderedStrataLocked returns the model's strata from strongest to weakest.
func (m *Model) orderedStrataLocked() []*Stratum {
	names := make([]string, 0, len(m.strata))
	for name := range m.strata {
		names = append(names, name)
	}
	names = m.catalog.Order().SortNames(names)
	out := make([]*Stratum, 0, len(names))
	for _, name := range names {
		out = append(out, m.strata[name])
	}
	return out
}

func (m *Model) composeLocked(descriptor TraitDescriptor) (any, bool) {
	ordered := m.orderedStrataLocked()

	switch descriptor.Strategy() {
	case MergeDeep:
		layers := make([]any, 0, len(ordered))
		for _, layer := range ordered {
			if value, ok := layer.values[descriptor.Name]; ok {
				layers = append(layers, value)
			}
		}
		if len(layers) == 0 {
			return defaultValue(descriptor)
		}
		return layering.MergeLayers(layers...), true
	case MergeConcat:
		var layers [][]any
		for i := len(ordered) - 1; i >= 0; i-- {
			value, ok := ordered[i].values[descriptor.Name]
			if !ok {
				continue
			}
			if items, ok := value.([]any); ok {
				layers = append(layers, items)
			}
		}
		if len(layers) == 0 {
			return defaultValue(descriptor)
		}
		return layering.Concat(layers, descriptor.Equal), true
	default:
		for _, layer := range ordered {
			if value, ok := layer.values[descriptor.Name]; ok {
				return layering.Clone(value), true
			}
		}
		return defaultValue(descriptor)
	}
}

func defaultValue(descriptor TraitDescriptor) (any, bool) {
	if descriptor.Default == nil {
		return nil, false
	}
	value, err := layering.Normalize(descriptor.Default)
	if err != nil || value == nil {
		return nil, false
	}
	return value, true
}
