package strata

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"lukechampine.com/blake3"
)

// ModelSnapshot is the serialisable form of one model.
type ModelSnapshot struct {
	ID     string                    `json:"id"`
	Type   string                    `json:"type"`
	Strata map[string]map[string]any `json:"strata"`
}

// Snapshot is the serialisable form of a catalog: its models and their
// strata, ordered by model id.
type Snapshot struct {
	Models []ModelSnapshot `json:"models"`
}

// Snapshot captures every live model. When strata names are given only those
// strata are captured, and models holding none of them are omitted.
func (c *Catalog) Snapshot(strata ...string) Snapshot {
	filter := map[string]struct{}{}
	for _, name := range strata {
		filter[name] = struct{}{}
	}
	out := Snapshot{Models: []ModelSnapshot{}}
	for _, m := range c.Models() {
		entry, ok := m.snapshot(filter)
		if !ok {
			continue
		}
		out.Models = append(out.Models, entry)
	}
	return out
}

func (m *Model) snapshot(filter map[string]struct{}) (ModelSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := ModelSnapshot{ID: m.id, Type: m.kind.Type(), Strata: map[string]map[string]any{}}
	for name, layer := range m.strata {
		if len(filter) > 0 {
			if _, keep := filter[name]; !keep {
				continue
			}
		}
		entry.Strata[name] = layer.Values()
	}
	if len(filter) > 0 && len(entry.Strata) == 0 {
		return ModelSnapshot{}, false
	}
	return entry, true
}

// Restore writes a snapshot into the catalog. Missing models are created;
// each captured stratum replaces the model's stratum of the same name.
// Failures are collected and returned together.
func (c *Catalog) Restore(ctx context.Context, snapshot Snapshot) error {
	var errs []error
	for _, entry := range snapshot.Models {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		m := c.Get(entry.ID)
		if m == nil {
			created, err := c.NewModel(entry.Type, entry.ID)
			if err != nil {
				errs = append(errs, fmt.Errorf("strata: restore %q: %w", entry.ID, err))
				continue
			}
			m = created
		} else if m.Type() != entry.Type {
			errs = append(errs, fmt.Errorf("strata: restore %q: type %q conflicts with existing %q", entry.ID, entry.Type, m.Type()))
			continue
		}
		for _, name := range c.Order().SortNames(keys(entry.Strata)) {
			if _, ok := c.Order().Lookup(name); !ok {
				errs = append(errs, fmt.Errorf("strata: restore %q: %w: %s", entry.ID, ErrUnknownStratum, name))
				continue
			}
			if err := m.ReplaceStratum(name, entry.Strata[name]); err != nil {
				errs = append(errs, fmt.Errorf("strata: restore %q: %w", entry.ID, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Fingerprint is a blake3 digest of the snapshot's canonical JSON encoding.
func (s Snapshot) Fingerprint() (string, error) {
	payload, err := s.ToJSON()
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// ToJSON encodes the snapshot. Map keys are sorted, so equal snapshots
// encode identically.
func (s Snapshot) ToJSON() ([]byte, error) {
	if s.Models == nil {
		s.Models = []ModelSnapshot{}
	}
	return json.Marshal(s)
}

// SnapshotFromJSON decodes a snapshot produced by ToJSON.
func SnapshotFromJSON(payload []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(payload, &s); err != nil {
		return Snapshot{}, fmt.Errorf("strata: decode snapshot: %w", err)
	}
	return s, nil
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for key := range m {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
