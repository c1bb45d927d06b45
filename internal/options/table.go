package options

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/roach88/graphsql/internal/ir"
)

// Table is the option model of one virtual table.
type Table struct {
	// Name is the table name within its kind, e.g. "Person" or "Image".
	Name string `json:"name"`

	// Kind is the namespace the table is published under.
	Kind TableKind `json:"kind"`

	// Class is the backing class or descriptor set name. Empty for the
	// catch-all Entity and Connection tables.
	Class string `json:"class,omitempty"`

	// Count is the number of matched objects at snapshot time.
	Count int64 `json:"count"`

	// Command is the native verb, e.g. "FindEntity".
	Command string `json:"command"`

	// ResultField is the response key holding result objects.
	ResultField string `json:"result_field"`

	// Extra holds fixed parameters merged into every command body
	// (with_class, set, distances).
	Extra map[string]any `json:"extra,omitempty"`

	// SrcClass and DstClass are the endpoint classes of a connection table,
	// when the snapshot names them.
	SrcClass string `json:"src_class,omitempty"`
	DstClass string `json:"dst_class,omitempty"`

	// SystemClass marks tables backed by a system-defined class.
	SystemClass bool `json:"system_class,omitempty"`

	// Columns in declaration order. Not serialized with table options;
	// each column carries its own options.
	Columns []Column `json:"-"`
}

// QualifiedName returns "<kind>.<name>".
func (t *Table) QualifiedName() string {
	return string(t.Kind) + "." + t.Name
}

// IsConnection reports whether the table addresses connections.
func (t *Table) IsConnection() bool {
	return t.ResultField == FieldConnections
}

// EndpointClass returns the class behind the _src or _dst column of a
// connection table. It is empty for other columns and for connection
// tables that span classes.
func (t *Table) EndpointClass(col string) string {
	switch col {
	case ColSrc:
		return t.SrcClass
	case ColDst:
		return t.DstClass
	}
	return ""
}

// Column looks up a column by name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ScanColumns are the columns a bare scan returns: everything except
// pseudo columns and blob payloads.
func (t *Table) ScanColumns() []string {
	var names []string
	for _, c := range t.Columns {
		if c.IsPseudo() || c.Type == TypeBlob {
			continue
		}
		names = append(names, c.Name)
	}
	return names
}

// BlobColumn returns the single blob payload column, if any.
func (t *Table) BlobColumn() (string, bool) {
	for _, c := range t.Columns {
		if c.Type == TypeBlob && !c.Listable {
			return c.Name, true
		}
	}
	return "", false
}

// Validate checks table invariants, including every column.
func (t *Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table name is required")
	}
	if !t.Kind.Valid() {
		return fmt.Errorf("table %q: unknown kind %q", t.Name, t.Kind)
	}
	if t.Command == "" || t.ResultField == "" {
		return fmt.Errorf("table %q: command and result_field are required", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	blobs := 0
	for _, c := range t.Columns {
		if seen[c.Name] {
			return fmt.Errorf("table %q: duplicate column %q", t.Name, c.Name)
		}
		seen[c.Name] = true
		if err := c.Validate(); err != nil {
			return fmt.Errorf("table %q: %w", t.Name, err)
		}
		if c.Type == TypeBlob {
			blobs++
		}
	}
	if blobs > 1 {
		return fmt.Errorf("table %q: at most one blob column allowed, found %d", t.Name, blobs)
	}
	for _, c := range t.Columns {
		if c.Hook != nil && c.Hook.Kind == HookBlobToggle && !seen[c.Hook.BlobColumn] {
			return fmt.Errorf("table %q: column %q toggles unknown blob column %q", t.Name, c.Name, c.Hook.BlobColumn)
		}
	}
	return nil
}

// ExtraParams returns a deep copy of the fixed extra parameters.
func (t *Table) ExtraParams() map[string]any {
	if len(t.Extra) == 0 {
		return map[string]any{}
	}
	return ir.CloneObject(t.Extra)
}

// EncodeTable serializes table options to a string map.
func EncodeTable(t *Table) (map[string]string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode table %q: %w", t.Name, err)
	}
	return map[string]string{"table_options": string(data)}, nil
}

// DecodeTable is the inverse of EncodeTable. Columns are decoded separately
// with DecodeColumn and appended by the caller.
func DecodeTable(opts map[string]string) (*Table, error) {
	raw, ok := opts["table_options"]
	if !ok {
		return nil, fmt.Errorf("missing table_options")
	}
	t := &Table{}
	if err := decodeStrict(raw, t); err != nil {
		return nil, fmt.Errorf("decode table: %w", err)
	}
	if t.Extra != nil {
		normalizeNumbers(t.Extra)
	}
	return t, nil
}

// normalizeNumbers converts json.Number values produced by UseNumber back to
// int64 where exact, float64 otherwise.
func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, elem := range val {
			val[k] = normalizeNumbers(elem)
		}
		return val
	case []any:
		for i, elem := range val {
			val[i] = normalizeNumbers(elem)
		}
		return val
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	default:
		return v
	}
}

// SortTables orders tables by kind then name, for stable listings.
func SortTables(tables []*Table) {
	slices.SortFunc(tables, func(a, b *Table) int {
		if a.Kind != b.Kind {
			if a.Kind < b.Kind {
				return -1
			}
			return 1
		}
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
}
