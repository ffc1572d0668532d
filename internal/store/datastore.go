package store

import (
	"context"
	"fmt"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/timeline"
)

// PutDatastoreEntry inserts or replaces one datastore key.
func (s *Store) PutDatastoreEntry(ctx context.Context, key string, entry timeline.DatastoreEntry) error {
	value, err := marshalValue(entry.Value)
	if err != nil {
		return fmt.Errorf("put datastore %q: %w", key, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO datastore (key, value, modified)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, modified = excluded.modified
	`, key, value, entry.Modified)
	if err != nil {
		return fmt.Errorf("put datastore %q: %w", key, err)
	}
	return nil
}

// DeleteDatastoreKey removes a key. Removing a missing key is not an error.
func (s *Store) DeleteDatastoreKey(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM datastore WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete datastore %q: %w", key, err)
	}
	return nil
}

// ReplaceDatastore swaps the whole datastore in one transaction, matching
// the wholesale replacement the conductor does.
func (s *Store) ReplaceDatastore(ctx context.Context, ds timeline.Datastore) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace datastore: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `DELETE FROM datastore`); err != nil {
		return fmt.Errorf("replace datastore: %w", err)
	}
	for key, entry := range ds {
		value, err := marshalValue(entry.Value)
		if err != nil {
			return fmt.Errorf("replace datastore %q: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO datastore (key, value, modified) VALUES (?, ?, ?)
		`, key, value, entry.Modified); err != nil {
			return fmt.Errorf("replace datastore %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace datastore: commit: %w", err)
	}
	return nil
}

// LoadDatastore returns the stored datastore. An empty store yields an
// empty, non-nil datastore.
func (s *Store) LoadDatastore(ctx context.Context) (timeline.Datastore, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value, modified
		FROM datastore
		ORDER BY key COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query datastore: %w", err)
	}
	defer rows.Close()

	ds := timeline.Datastore{}
	for rows.Next() {
		var (
			key, raw string
			modified int64
		)
		if err := rows.Scan(&key, &raw, &modified); err != nil {
			return nil, fmt.Errorf("scan datastore: %w", err)
		}
		value, err := unmarshalValue(raw)
		if err != nil {
			return nil, fmt.Errorf("datastore %q: %w", key, err)
		}
		ds[key] = timeline.DatastoreEntry{Value: value, Modified: modified}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate datastore: %w", err)
	}
	return ds, nil
}
