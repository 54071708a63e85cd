package strata

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownKind indicates no model kind is registered under a type tag.
	ErrUnknownKind = errors.New("strata: unknown model kind")
	// ErrUnknownTrait indicates a trait name missing from a kind's schema.
	ErrUnknownTrait = errors.New("strata: unknown trait")
	// ErrUnknownStratum indicates a stratum name missing from the stratum order.
	ErrUnknownStratum = errors.New("strata: unknown stratum")
	// ErrInvalidTraitValue indicates a value that does not fit the trait kind.
	ErrInvalidTraitValue = errors.New("strata: invalid trait value")
	// ErrSchemaSealed indicates a trait registration after the schema was built.
	ErrSchemaSealed = errors.New("strata: schema already built")
	// ErrModelDestroyed indicates an operation on a model removed from its catalog.
	ErrModelDestroyed = errors.New("strata: model destroyed")
	// ErrDuplicateModelID indicates a catalog already holds a model with the id.
	ErrDuplicateModelID = errors.New("strata: duplicate model id")
	// ErrNotReference indicates the model lacks the reference capability.
	ErrNotReference = errors.New("strata: model is not a reference")
	// ErrNoTarget indicates a reference loader produced no target model.
	ErrNoTarget = errors.New("strata: reference produced no target")
	// ErrNoCandidate indicates the dispatch chain was exhausted.
	ErrNoCandidate = errors.New("strata: no dispatch candidate")
)

// DuplicateTraitError reports a trait registered twice for a model kind,
// either directly or through a mixed-in capability.
type DuplicateTraitError struct {
	Kind       string
	Trait      string
	Capability string
}

func (e *DuplicateTraitError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Capability != "" {
		return fmt.Sprintf("strata: trait %q already registered for kind %q (capability %q)", e.Trait, e.Kind, e.Capability)
	}
	return fmt.Sprintf("strata: trait %q already registered for kind %q", e.Trait, e.Kind)
}

// MissingCapabilityError reports a capability composed before one it requires.
type MissingCapabilityError struct {
	Kind       string
	Capability string
	Requires   string
}

func (e *MissingCapabilityError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("strata: kind %q: capability %q requires %q earlier in the chain", e.Kind, e.Capability, e.Requires)
}

// LoadError wraps a failed metadata load for a model.
type LoadError struct {
	ModelID string
	Type    string
	URL     string
	Err     error
}

func (e *LoadError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "strata: load %s %q", e.Type, e.ModelID)
	if e.URL != "" {
		fmt.Fprintf(&b, " url=%q", e.URL)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *LoadError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// DanglingReferenceError describes a model reference trait pointing at an id
// the catalog does not hold. It is logged, never returned from Resolve.
type DanglingReferenceError struct {
	ModelID string
	Trait   string
	Target  string
}

func (e *DanglingReferenceError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("strata: model %q trait %q references missing model %q", e.ModelID, e.Trait, e.Target)
}

// DispatchError reports an exhausted dispatch chain together with the
// failures observed along the way.
type DispatchError struct {
	URL      string
	Attempts []error
}

func (e *DispatchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("strata: dispatch %q: no matching rule", e.URL)
	}
	return fmt.Sprintf("strata: dispatch %q: %d candidate(s) failed: %v", e.URL, len(e.Attempts), errors.Join(e.Attempts...))
}

func (e *DispatchError) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, len(e.Attempts)+1)
	out = append(out, ErrNoCandidate)
	out = append(out, e.Attempts...)
	return out
}
