package rows

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/graphsql/internal/options"
)

// Row is one output row keyed by column name. Columns the backend did not
// return are absent.
type Row map[string]any

// Normalizer converts raw result objects to rows for one compiled request.
type Normalizer struct {
	Table *options.Table

	// Columns are the columns each row may carry.
	Columns []string

	// Echo holds pseudo-column values copied into every row.
	Echo map[string]any

	// AttachBlob names the column that receives the positional payload.
	// Empty means payloads are never attached.
	AttachBlob string
}

// Normalize converts one raw object. blob is the payload positionally
// matched to the object, or nil.
func (n *Normalizer) Normalize(raw map[string]any, blob []byte) (Row, error) {
	row := make(Row, len(n.Columns))
	for _, name := range n.Columns {
		if v, ok := n.Echo[name]; ok {
			row[name] = v
			continue
		}
		if name == n.AttachBlob {
			if blob != nil {
				row[name] = blob
			}
			continue
		}
		v, ok := raw[name]
		if !ok || v == nil {
			continue
		}
		col, _ := n.Table.Column(name)
		out, err := convert(v, col.Type)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", name, err)
		}
		row[name] = out
	}
	return row, nil
}

func convert(v any, typ options.ValueType) (any, error) {
	switch typ {
	case options.TypeDatetime:
		return parseDate(v)
	case options.TypeJSON:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	case options.TypeBoolean:
		if s, ok := v.(string); ok {
			switch strings.ToLower(s) {
			case "true", "t", "1":
				return true, nil
			case "false", "f", "0":
				return false, nil
			}
			return nil, fmt.Errorf("invalid boolean %q", s)
		}
	case options.TypeBlob:
		// Payloads only arrive positionally.
		return nil, fmt.Errorf("unexpected inline blob value")
	}
	return v, nil
}

func parseDate(v any) (time.Time, error) {
	var s string
	switch d := v.(type) {
	case map[string]any:
		str, ok := d["_date"].(string)
		if !ok {
			return time.Time{}, fmt.Errorf("datetime object without _date")
		}
		s = str
	case string:
		s = d
	default:
		return time.Time{}, fmt.Errorf("datetime value is %T", v)
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime %q", s)
}
