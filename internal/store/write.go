package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/graphsql/internal/options"
	"github.com/roach88/graphsql/internal/schema"
)

// SaveCatalog stores a snapshot and its catalog. Uses ON CONFLICT DO NOTHING
// for idempotency: a snapshot already stored under the same SnapshotID is not
// rewritten. It reports whether the snapshot was new.
//
// The snapshot, table and column writes share one transaction.
func (s *Store) SaveCatalog(ctx context.Context, snap *schema.Snapshot, cat *schema.Catalog) (bool, error) {
	snapJSON, err := marshalSnapshot(snap)
	if err != nil {
		return false, fmt.Errorf("save catalog: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("save catalog: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (id, built_at, snapshot)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, cat.SnapshotID, formatTime(cat.BuiltAt), snapJSON)
	if err != nil {
		return false, fmt.Errorf("save catalog: insert snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("save catalog: %w", err)
	}
	if n == 0 {
		return false, tx.Commit()
	}

	for pos, t := range cat.Tables() {
		if err := insertTable(ctx, tx, cat.SnapshotID, pos, t); err != nil {
			return false, fmt.Errorf("save catalog: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("save catalog: commit: %w", err)
	}
	return true, nil
}

func insertTable(ctx context.Context, tx *sql.Tx, snapshotID string, pos int, t *options.Table) error {
	opts, err := options.EncodeTable(t)
	if err != nil {
		return err
	}
	q := t.QualifiedName()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO catalog_tables (snapshot_id, qualified_name, position, table_options)
		VALUES (?, ?, ?, ?)
	`, snapshotID, q, pos, opts["table_options"]); err != nil {
		return fmt.Errorf("insert table %s: %w", q, err)
	}

	for cpos, c := range t.Columns {
		copts, err := options.EncodeColumn(c)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO catalog_columns (snapshot_id, qualified_name, position, name, column_options)
			VALUES (?, ?, ?, ?, ?)
		`, snapshotID, q, cpos, c.Name, copts["column_options"]); err != nil {
			return fmt.Errorf("insert column %s.%s: %w", q, c.Name, err)
		}
	}
	return nil
}

// RecordRefresh appends a refresh to the history. The snapshot must
// already be stored.
func (s *Store) RecordRefresh(ctx context.Context, snapshotID string, at time.Time, changed bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refreshes (snapshot_id, refreshed_at, changed)
		VALUES (?, ?, ?)
	`, snapshotID, formatTime(at), changed)
	if err != nil {
		return fmt.Errorf("record refresh: %w", err)
	}
	return nil
}
