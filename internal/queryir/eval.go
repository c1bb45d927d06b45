package queryir

import (
	"encoding/json"
	"time"
)

// Match evaluates pred against a row the way a SQL host would: a missing
// or null value satisfies only IS NULL.
func Match(pred Predicate, row map[string]any) bool {
	v, present := row[pred.Column()]
	present = present && v != nil
	switch p := pred.(type) {
	case IsNull:
		return present == p.Negated
	case Compare:
		if !present {
			return false
		}
		c, ok := compare(v, p.Value)
		if !ok {
			return false
		}
		switch p.Op {
		case OpEq:
			return c == 0
		case OpNe:
			return c != 0
		case OpLt:
			return c < 0
		case OpLe:
			return c <= 0
		case OpGt:
			return c > 0
		case OpGe:
			return c >= 0
		}
	case In:
		if !present {
			return false
		}
		for _, want := range p.Values {
			if c, ok := compare(v, want); ok && c == 0 {
				return !p.Negated
			}
		}
		return p.Negated
	}
	return false
}

// MatchAll reports whether row satisfies every predicate.
func MatchAll(preds []Predicate, row map[string]any) bool {
	for _, p := range preds {
		if !Match(p, row) {
			return false
		}
	}
	return true
}

// compare orders a row value against a literal. ok is false when the two
// are not comparable.
func compare(v, lit any) (int, bool) {
	if a, ok := toFloat(v); ok {
		b, ok := toFloat(lit)
		if !ok {
			return 0, false
		}
		return order(a, b), true
	}
	switch a := v.(type) {
	case time.Time:
		b, ok := toTime(lit)
		if !ok {
			return 0, false
		}
		return a.Compare(b), true
	case string:
		b, ok := lit.(string)
		if !ok {
			return 0, false
		}
		return order(a, b), true
	case bool:
		b, ok := lit.(bool)
		if !ok || a != b {
			return 1, ok
		}
		return 0, true
	}
	return 0, false
}

func order[T int | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}
