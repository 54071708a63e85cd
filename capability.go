package strata

import (
	"context"
	"fmt"
	"strings"
)

// Method is a behaviour contributed to a kind by its definition or one of its
// capabilities.
type Method func(ctx context.Context, m *Model, args ...any) (any, error)

// Definition is the base of a model kind before capabilities are applied.
type Definition struct {
	Type    string
	Traits  []TraitDescriptor
	Methods map[string]Method
}

// Capability is an optional module mixed into a kind. It may add traits and
// methods, and may require other capabilities to be applied before it.
type Capability struct {
	Name     string
	Requires []string
	Traits   []TraitDescriptor
	Methods  map[string]Method
}

// Kind is a composed model kind: a static table of schema, capability set and
// resolved methods. It never changes after composition.
type Kind struct {
	typeTag      string
	schema       *Schema
	capabilities []string
	capSet       map[string]struct{}
	methods      map[string]Method
	methodOwner  map[string]string
}

// Type returns the type tag of the kind.
func (k *Kind) Type() string {
	if k == nil {
		return ""
	}
	return k.typeTag
}

// Schema returns the merged trait schema of the kind.
func (k *Kind) Schema() *Schema {
	if k == nil {
		return nil
	}
	return k.schema
}

// Capabilities returns capability names in application order.
func (k *Kind) Capabilities() []string {
	if k == nil {
		return nil
	}
	out := make([]string, len(k.capabilities))
	copy(out, k.capabilities)
	return out
}

// Has reports whether the capability was applied to the kind.
func (k *Kind) Has(capability string) bool {
	if k == nil {
		return false
	}
	_, ok := k.capSet[capability]
	return ok
}

// Method returns the method registered under name after override resolution.
func (k *Kind) Method(name string) (Method, bool) {
	if k == nil {
		return nil, false
	}
	fn, ok := k.methods[name]
	return fn, ok && fn != nil
}

// MethodOwner returns the capability that supplied name, or "" when the
// method comes from the base definition.
func (k *Kind) MethodOwner(name string) string {
	if k == nil {
		return ""
	}
	return k.methodOwner[name]
}

// Compose builds a kind by applying capabilities, in order, on top of base.
// Traits must be unique across the base and every capability. When two
// capabilities define the same method the later one wins.
func (r *SchemaRegistry) Compose(base Definition, capabilities ...Capability) (*Kind, error) {
	typeTag := strings.TrimSpace(base.Type)
	if typeTag == "" {
		return nil, fmt.Errorf("strata: kind type must be provided")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.kinds[typeTag]; exists {
		return nil, fmt.Errorf("strata: kind %q already composed", typeTag)
	}
	if _, sealed := r.schemas[typeTag]; sealed {
		return nil, fmt.Errorf("%w: %s", ErrSchemaSealed, typeTag)
	}

	// Validate the whole chain before touching the registry so a failed
	// composition leaves no partial traits behind.
	seen := map[string]struct{}{}
	for _, existing := range r.pending[typeTag] {
		seen[existing.descriptor.Name] = struct{}{}
	}
	check := func(capability string, traits []TraitDescriptor) error {
		for _, descriptor := range traits {
			if err := descriptor.validate(); err != nil {
				return err
			}
			if _, dup := seen[descriptor.Name]; dup {
				return &DuplicateTraitError{Kind: typeTag, Trait: descriptor.Name, Capability: capability}
			}
			seen[descriptor.Name] = struct{}{}
		}
		return nil
	}
	if err := check("", base.Traits); err != nil {
		return nil, err
	}
	applied := map[string]struct{}{}
	for _, capability := range capabilities {
		if strings.TrimSpace(capability.Name) == "" {
			return nil, fmt.Errorf("strata: kind %q: capability name must be provided", typeTag)
		}
		if _, dup := applied[capability.Name]; dup {
			return nil, fmt.Errorf("strata: kind %q: capability %q applied twice", typeTag, capability.Name)
		}
		for _, required := range capability.Requires {
			if _, ok := applied[required]; !ok {
				return nil, &MissingCapabilityError{Kind: typeTag, Capability: capability.Name, Requires: required}
			}
		}
		if err := check(capability.Name, capability.Traits); err != nil {
			return nil, err
		}
		applied[capability.Name] = struct{}{}
	}

	if _, ok := r.pending[typeTag]; !ok {
		r.pending[typeTag] = nil
	}
	for _, descriptor := range base.Traits {
		if err := r.registerLocked(typeTag, "", descriptor); err != nil {
			return nil, err
		}
	}

	kind := &Kind{
		typeTag:     typeTag,
		capSet:      make(map[string]struct{}, len(capabilities)),
		methods:     map[string]Method{},
		methodOwner: map[string]string{},
	}
	for name, fn := range base.Methods {
		kind.methods[name] = fn
	}
	for _, capability := range capabilities {
		for _, descriptor := range capability.Traits {
			if err := r.registerLocked(typeTag, capability.Name, descriptor); err != nil {
				return nil, err
			}
		}
		for name, fn := range capability.Methods {
			kind.methods[name] = fn
			kind.methodOwner[name] = capability.Name
		}
		kind.capabilities = append(kind.capabilities, capability.Name)
		kind.capSet[capability.Name] = struct{}{}
	}

	schema, err := r.buildLocked(typeTag)
	if err != nil {
		return nil, err
	}
	kind.schema = schema
	r.kinds[typeTag] = kind
	return kind, nil
}
