package strata

import (
	"encoding/json"

	"github.com/goliatone/go-strata/layering"
)

// Trace captures how each stratum of a model contributed to one trait.
type Trace struct {
	ModelID string       `json:"model_id"`
	Trait   string       `json:"trait"`
	Merge   string       `json:"merge"`
	Value   any          `json:"value,omitempty"`
	Found   bool         `json:"found"`
	Layers  []Provenance `json:"layers"`
}

// Provenance details one stratum's contribution to a traced trait. Layers are
// listed from strongest to weakest.
type Provenance struct {
	Stratum  string `json:"stratum"`
	Role     string `json:"role"`
	Priority int    `json:"priority"`
	Value    any    `json:"value,omitempty"`
	Found    bool   `json:"found"`
}

// ResolveWithTrace resolves trait and reports every stratum of the model with
// the raw value it holds for the trait.
func (m *Model) ResolveWithTrace(trait string) (any, bool, Trace) {
	value, found := m.Resolve(trait)
	trace := Trace{ModelID: m.ID(), Trait: trait, Value: value, Found: found}
	if m == nil {
		return value, found, trace
	}
	if descriptor, ok := m.kind.Schema().Trait(trait); ok {
		trace.Merge = descriptor.Strategy().String()
	}

	order := m.catalog.Order()
	m.mu.Lock()
	ordered := m.orderedStrataLocked()
	layers := make([]Provenance, 0, len(ordered))
	for _, layer := range ordered {
		entry, _ := order.Lookup(layer.name)
		raw, ok := layer.values[trait]
		layers = append(layers, Provenance{
			Stratum:  layer.name,
			Role:     entry.Role.String(),
			Priority: entry.Priority,
			Value:    layering.Clone(raw),
			Found:    ok,
		})
	}
	m.mu.Unlock()
	trace.Layers = layers
	return value, found, trace
}

// ToJSON serialises the trace into JSON for logging or transport helpers.
func (t Trace) ToJSON() ([]byte, error) {
	type alias Trace
	return json.Marshal(alias(t))
}

// TraceFromJSON deserialises a JSON payload that was previously generated via
// ToJSON.
func TraceFromJSON(payload []byte) (Trace, error) {
	type alias Trace
	var trace alias
	if err := json.Unmarshal(payload, &trace); err != nil {
		return Trace{}, err
	}
	return Trace(trace), nil
}
