package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	strata "github.com/goliatone/go-strata"
	"github.com/google/uuid"
)

// Manager saves and restores catalog snapshots through a Store. ETags are
// snapshot fingerprints, so saving an unchanged catalog keeps its ETag.
type Manager struct {
	Store Store[strata.Snapshot]
}

// Save captures c (or only ref.Stratum when set) and stores it. When
// meta.ETag is set it must match the stored ETag.
func (m Manager) Save(ctx context.Context, c *strata.Catalog, ref Ref, meta Meta) (Meta, error) {
	if err := m.validate(ref); err != nil {
		return Meta{}, err
	}
	if c == nil {
		return Meta{}, errors.New("state: catalog is required")
	}
	_, loadedMeta, _, err := m.Store.Load(ctx, ref)
	if err != nil {
		return Meta{}, fmt.Errorf("state: load %s: %w", describeRef(ref), err)
	}
	if err := checkETag(meta, loadedMeta); err != nil {
		return loadedMeta, err
	}

	var snapshot strata.Snapshot
	if ref.Stratum != "" {
		snapshot = c.Snapshot(ref.Stratum)
	} else {
		snapshot = c.Snapshot()
	}
	return m.save(ctx, ref, snapshot, loadedMeta, meta)
}

// Restore loads the snapshot for ref into c. It reports false when nothing
// is stored under ref.
func (m Manager) Restore(ctx context.Context, c *strata.Catalog, ref Ref) (Meta, bool, error) {
	if err := m.validate(ref); err != nil {
		return Meta{}, false, err
	}
	snapshot, meta, ok, err := m.Store.Load(ctx, ref)
	if err != nil {
		return Meta{}, false, fmt.Errorf("state: load %s: %w", describeRef(ref), err)
	}
	if !ok {
		return Meta{}, false, nil
	}
	if err := c.Restore(ctx, snapshot); err != nil {
		return meta, true, err
	}
	return meta, true, nil
}

// Mutate loads the snapshot for ref, applies fn, validates the result and
// saves it. A missing snapshot starts empty.
func (m Manager) Mutate(ctx context.Context, ref Ref, meta Meta, fn Mutator[strata.Snapshot]) (strata.Snapshot, Meta, error) {
	if err := m.validate(ref); err != nil {
		return strata.Snapshot{}, Meta{}, err
	}
	if fn == nil {
		return strata.Snapshot{}, Meta{}, errors.New("state: mutator is required")
	}

	snapshot, loadedMeta, ok, err := m.Store.Load(ctx, ref)
	if err != nil {
		return strata.Snapshot{}, Meta{}, fmt.Errorf("state: load %s: %w", describeRef(ref), err)
	}
	if !ok {
		snapshot = strata.Snapshot{}
		loadedMeta = Meta{}
	}
	if err := checkETag(meta, loadedMeta); err != nil {
		return strata.Snapshot{}, loadedMeta, err
	}
	if err := fn(&snapshot); err != nil {
		return strata.Snapshot{}, loadedMeta, err
	}
	if err := validateSnapshot(snapshot, ref); err != nil {
		return strata.Snapshot{}, loadedMeta, err
	}

	saved, err := m.save(ctx, ref, snapshot, loadedMeta, meta)
	if err != nil {
		return strata.Snapshot{}, loadedMeta, err
	}
	return snapshot, saved, nil
}

// ErrUnsupported is returned when the store cannot list or delete.
var ErrUnsupported = errors.New("state: operation not supported by store")

// List returns the snapshots stored for catalog.
func (m Manager) List(ctx context.Context, catalog string) ([]Entry, error) {
	if m.Store == nil {
		return nil, errors.New("state: store is required")
	}
	lister, ok := m.Store.(Lister)
	if !ok {
		return nil, ErrUnsupported
	}
	return lister.List(ctx, catalog)
}

// Delete removes the snapshot under ref. When meta.ETag is set it must
// match the stored ETag. It reports whether a snapshot was removed.
func (m Manager) Delete(ctx context.Context, ref Ref, meta Meta) (bool, error) {
	if err := m.validate(ref); err != nil {
		return false, err
	}
	deleter, ok := m.Store.(Deleter)
	if !ok {
		return false, ErrUnsupported
	}
	if meta.ETag != "" {
		_, loaded, _, err := m.Store.Load(ctx, ref)
		if err != nil {
			return false, fmt.Errorf("state: load %s: %w", describeRef(ref), err)
		}
		if err := checkETag(meta, loaded); err != nil {
			return false, err
		}
	}
	removed, err := deleter.Delete(ctx, ref)
	if err != nil {
		return false, fmt.Errorf("state: delete %s: %w", describeRef(ref), err)
	}
	return removed, nil
}

func (m Manager) save(ctx context.Context, ref Ref, snapshot strata.Snapshot, loaded, requested Meta) (Meta, error) {
	fingerprint, err := snapshot.Fingerprint()
	if err != nil {
		return Meta{}, fmt.Errorf("state: fingerprint %s: %w", describeRef(ref), err)
	}
	next := mergeMeta(loaded, requested)
	next.ETag = fingerprint
	next.UpdatedAt = time.Now().UTC()
	if requested.SnapshotID == "" {
		next.SnapshotID = uuid.NewString()
	}
	saved, err := m.Store.Save(ctx, ref, snapshot, next)
	if err != nil {
		return Meta{}, fmt.Errorf("state: save %s: %w", describeRef(ref), err)
	}
	return saved, nil
}

func (m Manager) validate(ref Ref) error {
	if m.Store == nil {
		return errors.New("state: store is required")
	}
	_, err := ref.Identifier()
	return err
}

func checkETag(requested, loaded Meta) error {
	if requested.ETag != "" && loaded.ETag != "" && requested.ETag != loaded.ETag {
		return fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, requested.ETag, loaded.ETag)
	}
	return nil
}

func validateSnapshot(snapshot strata.Snapshot, ref Ref) error {
	seen := map[string]struct{}{}
	for i, model := range snapshot.Models {
		if model.ID == "" || model.Type == "" {
			return fmt.Errorf("state: snapshot model %d needs an id and a type", i)
		}
		if _, dup := seen[model.ID]; dup {
			return fmt.Errorf("state: snapshot model %q appears twice", model.ID)
		}
		seen[model.ID] = struct{}{}
		for name := range model.Strata {
			if name == "" {
				return fmt.Errorf("state: snapshot model %q has an unnamed stratum", model.ID)
			}
			if ref.Stratum != "" && name != ref.Stratum {
				return fmt.Errorf("state: snapshot model %q holds stratum %q outside %q", model.ID, name, ref.Stratum)
			}
		}
	}
	return nil
}

func describeRef(ref Ref) string {
	key, err := ref.Identifier()
	if err != nil {
		return fmt.Sprintf("%+v", ref)
	}
	return key
}
