package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/graphsql/internal/options"
	"github.com/roach88/graphsql/internal/schema"
)

// ErrNotFound is returned when no matching catalog is stored.
var ErrNotFound = errors.New("catalog not found in store")

// Refresh is one entry of the refresh history.
type Refresh struct {
	Seq         int64
	SnapshotID  string
	RefreshedAt time.Time

	// Changed is true when the refresh installed a new snapshot.
	Changed bool
}

// LatestSnapshotID returns the snapshot of the most recent refresh.
func (s *Store) LatestSnapshotID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT snapshot_id FROM refreshes ORDER BY seq DESC LIMIT 1
	`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("latest snapshot: %w", err)
	}
	return id, nil
}

// LoadLatest rebuilds the catalog of the most recent refresh.
func (s *Store) LoadLatest(ctx context.Context) (*schema.Catalog, error) {
	id, err := s.LatestSnapshotID(ctx)
	if err != nil {
		return nil, err
	}
	return s.LoadCatalog(ctx, id)
}

// LoadCatalog rebuilds a stored catalog from its option model. Tables and
// columns come back in the order they were saved.
func (s *Store) LoadCatalog(ctx context.Context, snapshotID string) (*schema.Catalog, error) {
	var builtAtRaw string
	err := s.db.QueryRowContext(ctx, `SELECT built_at FROM snapshots WHERE id = ?`, snapshotID).Scan(&builtAtRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: snapshot %s", ErrNotFound, snapshotID)
	}
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	builtAt, err := parseTime(builtAtRaw)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	tables, err := s.readTables(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	for _, t := range tables {
		cols, err := s.readColumns(ctx, snapshotID, t.QualifiedName())
		if err != nil {
			return nil, err
		}
		t.Columns = cols
	}
	return schema.NewCatalog(snapshotID, builtAt, tables)
}

func (s *Store) readTables(ctx context.Context, snapshotID string) ([]*options.Table, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT table_options FROM catalog_tables
		WHERE snapshot_id = ?
		ORDER BY position ASC
	`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []*options.Table
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		t, err := options.DecodeTable(map[string]string{"table_options": raw})
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, nil
}

func (s *Store) readColumns(ctx context.Context, snapshotID, qualified string) ([]options.Column, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, column_options FROM catalog_columns
		WHERE snapshot_id = ? AND qualified_name = ?
		ORDER BY position ASC
	`, snapshotID, qualified)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var cols []options.Column
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		c, err := options.DecodeColumn(name, map[string]string{"column_options": raw})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", qualified, err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return cols, nil
}

// Snapshot returns a stored snapshot.
func (s *Store) Snapshot(ctx context.Context, snapshotID string) (*schema.Snapshot, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM snapshots WHERE id = ?`, snapshotID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: snapshot %s", ErrNotFound, snapshotID)
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return unmarshalSnapshot(raw)
}

// History returns the most recent refreshes, newest first. limit <= 0
// returns all of them.
func (s *Store) History(ctx context.Context, limit int) ([]Refresh, error) {
	query := `SELECT seq, snapshot_id, refreshed_at, changed FROM refreshes ORDER BY seq DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	history := []Refresh{}
	for rows.Next() {
		var r Refresh
		var at string
		if err := rows.Scan(&r.Seq, &r.SnapshotID, &at, &r.Changed); err != nil {
			return nil, fmt.Errorf("scan refresh: %w", err)
		}
		if r.RefreshedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		history = append(history, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return history, nil
}
