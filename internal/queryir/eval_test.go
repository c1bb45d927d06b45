package queryir

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	born := time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC)
	row := map[string]any{
		"age":    float64(34),
		"name":   "Ann",
		"active": true,
		"born":   born,
		"empty":  nil,
	}
	tests := []struct {
		name string
		pred Predicate
		want bool
	}{
		{"eq number literal", Compare{Field: "age", Op: OpEq, Value: json.Number("34")}, true},
		{"gt int", Compare{Field: "age", Op: OpGt, Value: 40}, false},
		{"le float", Compare{Field: "age", Op: OpLe, Value: 34.0}, true},
		{"string lt", Compare{Field: "name", Op: OpLt, Value: "Bo"}, true},
		{"string ne", Compare{Field: "name", Op: OpNe, Value: "Ann"}, false},
		{"bool", Compare{Field: "active", Op: OpEq, Value: true}, true},
		{"bool ne", Compare{Field: "active", Op: OpNe, Value: false}, true},
		{"date string", Compare{Field: "born", Op: OpGe, Value: "1990-05-01T00:00:00Z"}, true},
		{"date only", Compare{Field: "born", Op: OpLt, Value: "1990-05-02"}, true},
		{"mismatched types", Compare{Field: "age", Op: OpEq, Value: "34"}, false},
		{"missing column", Compare{Field: "nope", Op: OpNe, Value: 1}, false},
		{"null value", Compare{Field: "empty", Op: OpNe, Value: 1}, false},
		{"in", In{Field: "name", Values: []any{"Bo", "Ann"}}, true},
		{"not in", In{Field: "name", Values: []any{"Bo", "Ann"}, Negated: true}, false},
		{"not in missing", In{Field: "nope", Values: []any{"Bo"}, Negated: true}, false},
		{"is null missing", IsNull{Field: "nope"}, true},
		{"is null nil", IsNull{Field: "empty"}, true},
		{"is not null", IsNull{Field: "name", Negated: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.pred, row))
		})
	}
}

func TestMatchAll(t *testing.T) {
	row := map[string]any{"age": float64(3), "name": "x"}
	assert.True(t, MatchAll(nil, row))
	assert.True(t, MatchAll([]Predicate{
		Compare{Field: "age", Op: OpLt, Value: 4},
		IsNull{Field: "name", Negated: true},
	}, row))
	assert.False(t, MatchAll([]Predicate{
		Compare{Field: "age", Op: OpLt, Value: 4},
		IsNull{Field: "name"},
	}, row))
}
