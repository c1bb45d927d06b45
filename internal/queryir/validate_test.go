package queryir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphsql/internal/options"
)

func TestPushdownTable(t *testing.T) {
	all := []Operator{OpEq, OpNe, OpLt, OpLe, OpGt, OpGe}
	literal := map[options.ValueType]any{
		options.TypeNumber:   30.0,
		options.TypeDatetime: "2024-01-02T03:04:05Z",
		options.TypeString:   "x",
		options.TypeBoolean:  true,
		options.TypeUniqueID: "1.2.3",
		options.TypeJSON:     "{}",
		options.TypeBlob:     "x",
	}
	want := map[options.ValueType][]Operator{
		options.TypeNumber:   {OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpIn, OpNotIn},
		options.TypeDatetime: {OpEq, OpNe, OpLt, OpLe, OpGt, OpGe},
		options.TypeString:   {OpEq, OpNe, OpIn, OpNotIn},
		options.TypeBoolean:  {OpEq, OpNe},
		options.TypeUniqueID: {OpEq, OpIn},
		options.TypeJSON:     nil,
		options.TypeBlob:     nil,
	}

	for typ, ops := range want {
		for _, op := range append(all, OpIn, OpNotIn) {
			var pred Predicate = Compare{Field: "f", Op: op, Value: literal[typ]}
			if op == OpIn || op == OpNotIn {
				pred = In{Field: "f", Values: []any{literal[typ]}, Negated: op == OpNotIn}
			}
			got, _ := Pushdown(pred, typ)
			assert.Equal(t, contains(ops, op), got, "%s %s", typ, op)
		}
	}
}

func contains(ops []Operator, op Operator) bool {
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}

func TestPushdownNeverPushes(t *testing.T) {
	tests := []struct {
		name string
		pred Predicate
		typ  options.ValueType
	}{
		{"is null", IsNull{Field: "f"}, options.TypeNumber},
		{"is not null", IsNull{Field: "f", Negated: true}, options.TypeString},
		{"empty in", In{Field: "f"}, options.TypeNumber},
		{"string literal on number", Compare{Field: "f", Op: OpEq, Value: "30"}, options.TypeNumber},
		{"number literal on string", Compare{Field: "f", Op: OpEq, Value: 3}, options.TypeString},
		{"bad datetime", Compare{Field: "f", Op: OpLt, Value: "yesterday"}, options.TypeDatetime},
		{"mixed in list", In{Field: "f", Values: []any{"a", 1}}, options.TypeString},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := Pushdown(tt.pred, tt.typ)
			assert.False(t, ok)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestPushdownDatetimeLiteral(t *testing.T) {
	ok, _ := Pushdown(Compare{Field: "f", Op: OpGe, Value: time.Now()}, options.TypeDatetime)
	assert.True(t, ok)
}

func personTable() *options.Table {
	return &options.Table{
		Name:        "Person",
		Kind:        options.KindEntity,
		Command:     options.VerbFindEntity,
		ResultField: options.FieldEntities,
		Columns: []options.Column{
			options.PropertyColumn("age", options.TypeNumber, 10, true),
			options.PropertyColumn("name", options.TypeString, 10, false),
			options.PropertyColumn("bio", options.TypeJSON, 10, false),
			options.UniqueIDColumn(10),
			{Name: options.ColAsFormat, ColumnOptions: options.ColumnOptions{Type: options.TypeString, Hook: options.Passthrough("as_format")}},
		},
	}
}

func TestValidate(t *testing.T) {
	table := personTable()

	res, err := Validate(Request{
		Columns: []string{"name"},
		Where:   []Predicate{Compare{Field: "age", Op: OpGt, Value: 30}},
	}, table)
	require.NoError(t, err)
	assert.True(t, res.FullyPushed)
	assert.Empty(t, res.Warnings)

	res, err = Validate(Request{
		Columns: []string{"name"},
		Where: []Predicate{
			Compare{Field: "name", Op: OpLt, Value: "m"},
			IsNull{Field: "bio"},
		},
	}, table)
	require.NoError(t, err)
	assert.False(t, res.FullyPushed)
	require.Len(t, res.Warnings, 2)
	assert.Contains(t, res.Warnings[0], "name")
}

func TestValidateErrors(t *testing.T) {
	table := personTable()

	_, err := Validate(Request{Columns: []string{"height"}}, table)
	assert.ErrorContains(t, err, `no column "height"`)

	_, err = Validate(Request{Where: []Predicate{Compare{Field: "height", Op: OpEq, Value: 1}}}, table)
	assert.ErrorContains(t, err, `no column "height"`)

	_, err = Validate(Request{Where: []Predicate{Compare{Field: options.ColAsFormat, Op: OpNe, Value: "png"}}}, table)
	assert.ErrorContains(t, err, "only supports equality")

	_, err = Validate(Request{Where: []Predicate{In{Field: options.ColAsFormat, Values: []any{"png"}}}}, table)
	assert.ErrorContains(t, err, "only supports equality")
}

func TestHostColumns(t *testing.T) {
	table := personTable()

	cols := HostColumns(table, []Predicate{
		Compare{Field: "age", Op: OpGt, Value: 30},
		Compare{Field: "name", Op: OpLt, Value: "m"},
		Compare{Field: "name", Op: OpGe, Value: "b"},
		IsNull{Field: "bio"},
		Compare{Field: options.ColAsFormat, Op: OpEq, Value: "png"},
	})
	assert.Equal(t, []string{"name", "bio"}, cols)
	assert.Empty(t, HostColumns(table, nil))
}
