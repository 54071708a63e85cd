package state

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
	"lukechampine.com/blake3"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS snapshots (
	key TEXT PRIMARY KEY,
	payload BLOB NOT NULL,
	snapshot_id TEXT NOT NULL DEFAULT '',
	etag TEXT NOT NULL DEFAULT '',
	updated_at INTEGER NOT NULL DEFAULT 0,
	extra TEXT NOT NULL DEFAULT ''
)`

// SQLiteStore persists snapshots as zstd-compressed JSON rows. Saves without
// an ETag get the blake3 digest of the uncompressed payload.
type SQLiteStore[T any] struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the database at path.
func OpenSQLiteStore[T any](path string) (*SQLiteStore[T], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("state: open sqlite %q: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: enable WAL: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: create schema: %w", err)
	}
	return &SQLiteStore[T]{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore[T]) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore[T]) Load(ctx context.Context, ref Ref) (T, Meta, bool, error) {
	var zero T
	key, err := ref.Identifier()
	if err != nil {
		return zero, Meta{}, false, err
	}

	var (
		payload   []byte
		meta      Meta
		updatedAt int64
		extra     string
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT payload, snapshot_id, etag, updated_at, extra FROM snapshots WHERE key = ?`, key)
	if err := row.Scan(&payload, &meta.SnapshotID, &meta.ETag, &updatedAt, &extra); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, Meta{}, false, nil
		}
		return zero, Meta{}, false, fmt.Errorf("state: load %q: %w", key, err)
	}
	if err := decodeMeta(&meta, updatedAt, extra); err != nil {
		return zero, Meta{}, false, fmt.Errorf("state: decode meta for %q: %w", key, err)
	}

	raw, err := decompress(payload)
	if err != nil {
		return zero, Meta{}, false, fmt.Errorf("state: decompress %q: %w", key, err)
	}
	var snapshot T
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return zero, Meta{}, false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return snapshot, meta, true, nil
}

func (s *SQLiteStore[T]) Save(ctx context.Context, ref Ref, snapshot T, meta Meta) (Meta, error) {
	key, err := ref.Identifier()
	if err != nil {
		return Meta{}, err
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return Meta{}, fmt.Errorf("state: encode %q: %w", key, err)
	}
	saved := cloneMeta(meta)
	if saved.ETag == "" {
		sum := blake3.Sum256(raw)
		saved.ETag = hex.EncodeToString(sum[:])
	}
	if saved.UpdatedAt.IsZero() {
		saved.UpdatedAt = time.Now().UTC()
	}
	extra := ""
	if len(saved.Extra) > 0 {
		encoded, err := json.Marshal(saved.Extra)
		if err != nil {
			return Meta{}, fmt.Errorf("state: encode meta for %q: %w", key, err)
		}
		extra = string(encoded)
	}
	payload, err := compress(raw)
	if err != nil {
		return Meta{}, fmt.Errorf("state: compress %q: %w", key, err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO snapshots (key, payload, snapshot_id, etag, updated_at, extra)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			snapshot_id = excluded.snapshot_id,
			etag = excluded.etag,
			updated_at = excluded.updated_at,
			extra = excluded.extra`,
		key, payload, saved.SnapshotID, saved.ETag, saved.UpdatedAt.UnixMilli(), extra)
	if err != nil {
		return Meta{}, fmt.Errorf("state: save %q: %w", key, err)
	}
	return saved, nil
}

// Delete removes the row stored under ref.
func (s *SQLiteStore[T]) Delete(ctx context.Context, ref Ref) (bool, error) {
	key, err := ref.Identifier()
	if err != nil {
		return false, err
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("state: delete %q: %w", key, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("state: delete %q: %w", key, err)
	}
	return n > 0, nil
}

// List returns the meta of every row stored for catalog, in key order.
func (s *SQLiteStore[T]) List(ctx context.Context, catalog string) ([]Entry, error) {
	prefix, err := catalogPrefix(catalog)
	if err != nil {
		return nil, err
	}
	nested := prefix + "/"
	rows, err := s.db.QueryContext(ctx, `SELECT key, snapshot_id, etag, updated_at, extra FROM snapshots
		WHERE key = ? OR substr(key, 1, ?) = ?
		ORDER BY key`, prefix, len(nested), nested)
	if err != nil {
		return nil, fmt.Errorf("state: list %q: %w", catalog, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry     Entry
			updatedAt int64
			extra     string
		)
		if err := rows.Scan(&entry.Key, &entry.Meta.SnapshotID, &entry.Meta.ETag, &updatedAt, &extra); err != nil {
			return nil, fmt.Errorf("state: list %q: %w", catalog, err)
		}
		if err := decodeMeta(&entry.Meta, updatedAt, extra); err != nil {
			return nil, fmt.Errorf("state: decode meta for %q: %w", entry.Key, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func decodeMeta(meta *Meta, updatedAt int64, extra string) error {
	if updatedAt > 0 {
		meta.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	}
	if extra == "" {
		return nil
	}
	return json.Unmarshal([]byte(extra), &meta.Extra)
}

func compress(raw []byte) ([]byte, error) {
	var compressed bytes.Buffer
	encoder, err := zstd.NewWriter(&compressed)
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	if _, err := encoder.Write(raw); err != nil {
		encoder.Close()
		return nil, fmt.Errorf("compressing: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("closing encoder: %w", err)
	}
	return compressed.Bytes(), nil
}

func decompress(payload []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer decoder.Close()
	return io.ReadAll(decoder)
}
