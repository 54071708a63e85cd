package strata

import (
	"sort"

	"github.com/goliatone/go-strata/layering"
)

// Stratum is one named layer of raw trait values owned by a single model.
// Values returned from a Stratum must be treated as read-only.
type Stratum struct {
	name   string
	values map[string]any
}

func newStratum(name string) *Stratum {
	return &Stratum{name: name, values: map[string]any{}}
}

// Name returns the stratum name.
func (s *Stratum) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}

// Get returns the raw value stored for trait.
func (s *Stratum) Get(trait string) (any, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.values[trait]
	return v, ok
}

// Has reports whether the stratum defines trait.
func (s *Stratum) Has(trait string) bool {
	_, ok := s.Get(trait)
	return ok
}

// Traits returns the defined trait names sorted alphabetically.
func (s *Stratum) Traits() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Values returns a deep copy of the stratum content.
func (s *Stratum) Values() map[string]any {
	if s == nil {
		return nil
	}
	out := make(map[string]any, len(s.values))
	for key, value := range s.values {
		out[key] = layering.Clone(value)
	}
	return out
}

// Len returns the number of traits defined in the stratum.
func (s *Stratum) Len() int {
	if s == nil {
		return 0
	}
	return len(s.values)
}

// clone duplicates the stratum so the copy shares no maps or slices.
func (s *Stratum) clone() *Stratum {
	return &Stratum{name: s.name, values: s.Values()}
}
