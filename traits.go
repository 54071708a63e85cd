package strata

import (
	"fmt"
	"strings"
)

// TraitKind classifies the values a trait holds.
type TraitKind int

const (
	KindUnknown TraitKind = iota
	KindPrimitive
	KindObject
	KindArray
	KindModelReference
	KindModelReferenceArray
)

func (k TraitKind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindModelReference:
		return "modelReference"
	case KindModelReferenceArray:
		return "modelReferenceArray"
	default:
		return "unknown"
	}
}

// ParseTraitKind converts a string representation into a TraitKind. Returns
// KindUnknown for unrecognised values.
func ParseTraitKind(value string) TraitKind {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "primitive":
		return KindPrimitive
	case "object":
		return KindObject
	case "array":
		return KindArray
	case "modelreference":
		return KindModelReference
	case "modelreferencearray":
		return KindModelReferenceArray
	default:
		return KindUnknown
	}
}

func (k TraitKind) isArray() bool {
	return k == KindArray || k == KindModelReferenceArray
}

// MergeStrategy selects how values from several strata combine.
type MergeStrategy int

const (
	// MergeDefault derives the strategy from the trait kind: objects deep
	// merge, everything else takes the strongest defining stratum.
	MergeDefault MergeStrategy = iota
	// MergeReplace takes the value of the strongest defining stratum.
	MergeReplace
	// MergeDeep deep merges object values from weakest to strongest.
	MergeDeep
	// MergeConcat concatenates arrays from weakest to strongest, dropping
	// duplicates according to the trait's Equal function.
	MergeConcat
)

func (s MergeStrategy) String() string {
	switch s {
	case MergeReplace:
		return "replace"
	case MergeDeep:
		return "deep"
	case MergeConcat:
		return "concat"
	default:
		return "default"
	}
}

// TraitDescriptor declares one named, typed property of a model kind.
type TraitDescriptor struct {
	Name        string
	Kind        TraitKind
	Merge       MergeStrategy
	Default     any
	Description string
	// Equal identifies duplicates when Merge is MergeConcat. Deep equality is
	// used when nil.
	Equal func(a, b any) bool
}

// Primitive declares a primitive trait.
func Primitive(name, description string) TraitDescriptor {
	return TraitDescriptor{Name: name, Kind: KindPrimitive, Description: description}
}

// Object declares a deep-merged object trait.
func Object(name, description string) TraitDescriptor {
	return TraitDescriptor{Name: name, Kind: KindObject, Description: description}
}

// Array declares an array trait replaced wholesale by the strongest stratum.
func Array(name, description string) TraitDescriptor {
	return TraitDescriptor{Name: name, Kind: KindArray, Description: description}
}

// ModelReference declares a trait holding one model id.
func ModelReference(name, description string) TraitDescriptor {
	return TraitDescriptor{Name: name, Kind: KindModelReference, Description: description}
}

// ModelReferenceArray declares a trait holding a list of model ids.
func ModelReferenceArray(name, description string) TraitDescriptor {
	return TraitDescriptor{Name: name, Kind: KindModelReferenceArray, Description: description}
}

// WithDefault returns a copy of d carrying value as its declared default.
func (d TraitDescriptor) WithDefault(value any) TraitDescriptor {
	d.Default = value
	return d
}

// Concatenable returns a copy of d merged with MergeConcat.
func (d TraitDescriptor) Concatenable(equal func(a, b any) bool) TraitDescriptor {
	d.Merge = MergeConcat
	d.Equal = equal
	return d
}

// Strategy returns the effective merge strategy for the descriptor.
func (d TraitDescriptor) Strategy() MergeStrategy {
	if d.Merge != MergeDefault {
		return d.Merge
	}
	if d.Kind == KindObject {
		return MergeDeep
	}
	return MergeReplace
}

func (d TraitDescriptor) validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("strata: trait name must be provided")
	}
	if d.Kind == KindUnknown {
		return fmt.Errorf("strata: trait %q has no kind", d.Name)
	}
	switch d.Merge {
	case MergeDeep:
		if d.Kind != KindObject {
			return fmt.Errorf("strata: trait %q: deep merge requires an object trait", d.Name)
		}
	case MergeConcat:
		if !d.Kind.isArray() {
			return fmt.Errorf("strata: trait %q: concat merge requires an array trait", d.Name)
		}
	}
	return nil
}
