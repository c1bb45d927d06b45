// Package ir provides the canonical wire representation shared by graphsql
// packages.
//
// Native graph commands are built as plain JSON-shaped Go values
// (map[string]any, []any, string, bool, numbers). This package contains the
// deterministic serialization used whenever a command or a schema snapshot
// has to be compared, printed, or fingerprinted:
//
//   - MarshalCanonical: RFC 8785 style JSON with UTF-16 key ordering and NFC
//     normalized strings
//   - SnapshotID: content-addressed identity of a schema snapshot
//   - Clone: deep copy of a JSON-shaped value
//
// All other internal packages may import ir; ir imports nothing internal.
package ir
