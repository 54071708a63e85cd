package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrETagMismatch = errors.New("state: etag mismatch")
	ErrInvalidRef   = errors.New("state: invalid ref")
)

// Ref identifies one persisted snapshot: a whole catalog, or a single
// stratum of it, optionally owned by one user or tenant.
type Ref struct {
	Catalog string
	// Stratum restricts the snapshot to one stratum when set.
	Stratum string
	// Owner scopes the snapshot, e.g. to the user whose edits it holds.
	Owner string
}

// Meta is storage-owned metadata used for audit and concurrency control.
type Meta struct {
	SnapshotID string            `json:"snapshot_id,omitempty"`
	ETag       string            `json:"etag,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Store loads and saves one snapshot for a single Ref.
type Store[T any] interface {
	Load(ctx context.Context, ref Ref) (snapshot T, meta Meta, ok bool, err error)
	Save(ctx context.Context, ref Ref, snapshot T, meta Meta) (Meta, error)
}

// Entry describes one stored snapshot without its payload.
type Entry struct {
	Key  string `json:"key"`
	Meta Meta   `json:"meta"`
}

// Lister is implemented by stores that can enumerate the snapshots of a
// catalog, in key order.
type Lister interface {
	List(ctx context.Context, catalog string) ([]Entry, error)
}

// Deleter is implemented by stores that can remove a snapshot. It reports
// whether anything was stored under ref.
type Deleter interface {
	Delete(ctx context.Context, ref Ref) (bool, error)
}

// Mutator edits a loaded snapshot in place.
type Mutator[T any] func(*T) error

// Identifier returns the canonical storage key of r:
//
//	catalog/<catalog>[/strata/<stratum>][/owner/<owner>]
func (r Ref) Identifier() (string, error) {
	parts := []string{"catalog"}
	for _, segment := range []struct{ label, value string }{
		{"", r.Catalog},
		{"strata", r.Stratum},
		{"owner", r.Owner},
	} {
		value := strings.TrimSpace(segment.value)
		if segment.label == "" && value == "" {
			return "", fmt.Errorf("%w: catalog is required", ErrInvalidRef)
		}
		if value == "" {
			continue
		}
		if strings.Contains(value, "/") {
			return "", fmt.Errorf("%w: %q must not contain '/'", ErrInvalidRef, value)
		}
		if segment.label != "" {
			parts = append(parts, segment.label)
		}
		parts = append(parts, value)
	}
	return strings.Join(parts, "/"), nil
}

// catalogPrefix returns the key of the whole-catalog snapshot; every other
// key of the catalog extends it with "/".
func catalogPrefix(catalog string) (string, error) {
	return Ref{Catalog: catalog}.Identifier()
}

func mergeMeta(base, override Meta) Meta {
	out := base
	if override.SnapshotID != "" {
		out.SnapshotID = override.SnapshotID
	}
	if override.ETag != "" {
		out.ETag = override.ETag
	}
	if !override.UpdatedAt.IsZero() {
		out.UpdatedAt = override.UpdatedAt
	}
	if override.Extra != nil {
		out.Extra = override.Extra
	}
	return out
}

func cloneMeta(meta Meta) Meta {
	out := meta
	if meta.Extra == nil {
		return out
	}
	out.Extra = make(map[string]string, len(meta.Extra))
	for k, v := range meta.Extra {
		out.Extra[k] = v
	}
	return out
}
