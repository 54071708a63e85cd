package state

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps snapshots in process, keyed by Ref.Identifier. Stored
// values are not copied, so callers must not mutate a snapshot after saving
// it.
type MemoryStore[T any] struct {
	mu      sync.RWMutex
	records map[string]memoryRecord[T]
}

type memoryRecord[T any] struct {
	snapshot T
	meta     Meta
}

// NewMemoryStore returns an empty store.
func NewMemoryStore[T any]() *MemoryStore[T] {
	return &MemoryStore[T]{records: map[string]memoryRecord[T]{}}
}

func (s *MemoryStore[T]) Load(ctx context.Context, ref Ref) (T, Meta, bool, error) {
	var zero T
	key, err := s.key(ctx, ref)
	if err != nil {
		return zero, Meta{}, false, err
	}
	s.mu.RLock()
	record, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return zero, Meta{}, false, nil
	}
	return record.snapshot, cloneMeta(record.meta), true, nil
}

func (s *MemoryStore[T]) Save(ctx context.Context, ref Ref, snapshot T, meta Meta) (Meta, error) {
	key, err := s.key(ctx, ref)
	if err != nil {
		return Meta{}, err
	}
	s.mu.Lock()
	s.records[key] = memoryRecord[T]{snapshot: snapshot, meta: cloneMeta(meta)}
	s.mu.Unlock()
	return cloneMeta(meta), nil
}

// Delete removes the snapshot stored under ref.
func (s *MemoryStore[T]) Delete(ctx context.Context, ref Ref) (bool, error) {
	key, err := s.key(ctx, ref)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[key]
	delete(s.records, key)
	return ok, nil
}

// List returns the snapshots stored for catalog, whole-catalog and
// per-stratum alike.
func (s *MemoryStore[T]) List(ctx context.Context, catalog string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix, err := catalogPrefix(catalog)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	var entries []Entry
	for key, record := range s.records {
		if key == prefix || strings.HasPrefix(key, prefix+"/") {
			entries = append(entries, Entry{Key: key, Meta: cloneMeta(record.meta)})
		}
	}
	s.mu.RUnlock()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// Len returns the number of stored snapshots.
func (s *MemoryStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore[T]) key(ctx context.Context, ref Ref) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return ref.Identifier()
}
