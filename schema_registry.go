package strata

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Schema is the full, immutable trait schema of one model kind: base traits
// followed by the traits of every applied capability, in registration order.
type Schema struct {
	kind   string
	traits map[string]TraitDescriptor
	origin map[string]string
	order  []string
}

// Kind returns the type tag the schema belongs to.
func (s *Schema) Kind() string {
	if s == nil {
		return ""
	}
	return s.kind
}

// Trait looks up a descriptor by name.
func (s *Schema) Trait(name string) (TraitDescriptor, bool) {
	if s == nil {
		return TraitDescriptor{}, false
	}
	d, ok := s.traits[name]
	return d, ok
}

// Origin returns the capability that contributed name, or "" for base traits.
func (s *Schema) Origin(name string) string {
	if s == nil {
		return ""
	}
	return s.origin[name]
}

// Names returns trait names in their stable iteration order.
func (s *Schema) Names() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Traits returns descriptors in the stable iteration order.
func (s *Schema) Traits() []TraitDescriptor {
	if s == nil {
		return nil
	}
	out := make([]TraitDescriptor, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.traits[name])
	}
	return out
}

// Len returns the number of traits in the schema.
func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

type pendingTrait struct {
	descriptor TraitDescriptor
	capability string
}

// SchemaRegistry stores trait declarations per model kind and builds each
// kind's schema once. A built schema is sealed: later registrations fail.
type SchemaRegistry struct {
	mu      sync.RWMutex
	pending map[string][]pendingTrait
	schemas map[string]*Schema
	kinds   map[string]*Kind
}

// NewSchemaRegistry constructs an empty registry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{
		pending: map[string][]pendingTrait{},
		schemas: map[string]*Schema{},
		kinds:   map[string]*Kind{},
	}
}

// RegisterTrait declares descriptor on kind. It fails with a
// *DuplicateTraitError when the name already exists for that kind.
func (r *SchemaRegistry) RegisterTrait(kind string, descriptor TraitDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(kind, "", descriptor)
}

func (r *SchemaRegistry) registerLocked(kind, capability string, descriptor TraitDescriptor) error {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return fmt.Errorf("strata: kind must be provided")
	}
	if _, sealed := r.schemas[kind]; sealed {
		return fmt.Errorf("%w: %s", ErrSchemaSealed, kind)
	}
	if err := descriptor.validate(); err != nil {
		return err
	}
	for _, existing := range r.pending[kind] {
		if existing.descriptor.Name == descriptor.Name {
			return &DuplicateTraitError{Kind: kind, Trait: descriptor.Name, Capability: capability}
		}
	}
	r.pending[kind] = append(r.pending[kind], pendingTrait{descriptor: descriptor, capability: capability})
	return nil
}

// SchemaFor returns the merged schema for kind, building and caching it on
// first use.
func (r *SchemaRegistry) SchemaFor(kind string) (*Schema, error) {
	r.mu.RLock()
	schema, ok := r.schemas[kind]
	r.mu.RUnlock()
	if ok {
		return schema, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buildLocked(kind)
}

func (r *SchemaRegistry) buildLocked(kind string) (*Schema, error) {
	if schema, ok := r.schemas[kind]; ok {
		return schema, nil
	}
	pending, ok := r.pending[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	schema := &Schema{
		kind:   kind,
		traits: make(map[string]TraitDescriptor, len(pending)),
		origin: make(map[string]string, len(pending)),
		order:  make([]string, 0, len(pending)),
	}
	for _, entry := range pending {
		schema.traits[entry.descriptor.Name] = entry.descriptor
		schema.order = append(schema.order, entry.descriptor.Name)
		if entry.capability != "" {
			schema.origin[entry.descriptor.Name] = entry.capability
		}
	}
	r.schemas[kind] = schema
	return schema, nil
}

// Kind returns the composed kind registered under typeTag.
func (r *SchemaRegistry) Kind(typeTag string) (*Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kind, ok := r.kinds[typeTag]
	return kind, ok
}

// Kinds returns the composed type tags sorted alphabetically.
func (r *SchemaRegistry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
