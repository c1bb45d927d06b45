package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/graphsql/internal/schema"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testBuiltAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const testSnapshotJSON = `{
  "entities": {"classes": {
    "Person": {"matched": 3, "properties": {"name": [3, true, "String"], "age": [2, false, "Number"]}},
    "_Image": {"matched": 2, "properties": {"label": [2, false, "String"]}}
  }},
  "connections": {"classes": {
    "Owns": {"matched": 2, "src": "Person", "dst": "Person", "properties": {"since": [2, false, "Number"]}}
  }},
  "descriptor_sets": [{
    "name": "docs", "count": 4, "dimensions": 3,
    "properties": {"embeddings_provider": "clip", "embeddings_model": "m", "embeddings_pretrained": "openai"},
    "descriptor": {"matched": 4, "properties": {"text": [4, false, "String"]}}
  }]
}`

// createTestCatalog parses raw and builds its catalog.
func createTestCatalog(t *testing.T, raw string) (*schema.Snapshot, *schema.Catalog) {
	t.Helper()
	snap, err := schema.ParseSnapshot([]byte(raw))
	require.NoError(t, err)
	cat, err := schema.Build(snap, testBuiltAt, schema.WithBuildLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	return snap, cat
}

func saveTestCatalog(t *testing.T, s *Store, raw string) *schema.Catalog {
	t.Helper()
	snap, cat := createTestCatalog(t, raw)
	_, err := s.SaveCatalog(context.Background(), snap, cat)
	require.NoError(t, err)
	require.NoError(t, s.RecordRefresh(context.Background(), cat.SnapshotID, testBuiltAt, true))
	return cat
}
