package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/graphsql/internal/ir"
	"github.com/roach88/graphsql/internal/schema"
)

// timeLayout is used for every timestamp column. Timestamps are stored in
// UTC so lexical order matches time order.
const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// marshalSnapshot converts a snapshot to canonical JSON TEXT so that equal
// snapshots are stored byte-identically.
func marshalSnapshot(snap *schema.Snapshot) (string, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	out, err := ir.MarshalCanonical(generic)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	return string(out), nil
}

// unmarshalSnapshot parses snapshot TEXT.
func unmarshalSnapshot(data string) (*schema.Snapshot, error) {
	snap, err := schema.ParseSnapshot([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}
