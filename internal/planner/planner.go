// Package planner advertises access paths for virtual tables.
//
// An indexed or uniqueid column advertises a path on itself: one row for
// unique columns, the configured estimate otherwise. The endpoint columns
// of a connection also advertise the composite (_src, _dst) and
// (_dst, _src) paths at one row.
package planner

import "github.com/roach88/graphsql/internal/options"

// DefaultIndexedEstimate is the expected row count for a lookup on a
// non-unique indexed column.
const DefaultIndexedEstimate = 1000

// PathKey is an access path: equality on Columns yields about Rows rows.
type PathKey struct {
	Columns []string `json:"columns"`
	Rows    int64    `json:"rows"`
}

// PathKeys returns the access paths of t in column order.
func PathKeys(t *options.Table, indexedEstimate int64) []PathKey {
	if indexedEstimate <= 0 {
		indexedEstimate = DefaultIndexedEstimate
	}
	var keys []PathKey
	for _, c := range t.Columns {
		if !c.Indexed && c.Type != options.TypeUniqueID {
			continue
		}
		rows := indexedEstimate
		if c.Unique {
			rows = 1
		}
		keys = append(keys, PathKey{Columns: []string{c.Name}, Rows: rows})

		switch c.Name {
		case options.ColSrc:
			keys = append(keys, PathKey{Columns: []string{options.ColSrc, options.ColDst}, Rows: 1})
		case options.ColDst:
			keys = append(keys, PathKey{Columns: []string{options.ColDst, options.ColSrc}, Rows: 1})
		}
	}
	return keys
}
