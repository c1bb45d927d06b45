package queryaql

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphsql/internal/ir"
	"github.com/roach88/graphsql/internal/options"
	"github.com/roach88/graphsql/internal/queryir"
)

func personTable() *options.Table {
	return &options.Table{
		Name:        "Person",
		Kind:        options.KindEntity,
		Class:       "Person",
		Command:     options.VerbFindEntity,
		ResultField: options.FieldEntities,
		Extra:       map[string]any{"with_class": "Person"},
		Columns: []options.Column{
			options.PropertyColumn("age", options.TypeNumber, 10, true),
			options.PropertyColumn("born", options.TypeDatetime, 10, false),
			options.PropertyColumn("name", options.TypeString, 10, false),
			options.PropertyColumn("meta", options.TypeJSON, 10, false),
			options.UniqueIDColumn(10),
		},
	}
}

func imageTable() *options.Table {
	cols := []options.Column{
		options.PropertyColumn("label", options.TypeString, 3, false),
		options.UniqueIDColumn(3),
	}
	cols = append(cols, options.BlobColumns(options.ColImage)...)
	cols = append(cols,
		options.Column{Name: options.ColAsFormat, ColumnOptions: options.ColumnOptions{Type: options.TypeString, Hook: options.Passthrough("as_format")}},
		options.Column{Name: options.ColOperations, ColumnOptions: options.ColumnOptions{Type: options.TypeJSON, Hook: options.Operations("resize", "crop")}},
	)
	return &options.Table{
		Name:        "Image",
		Kind:        options.KindSystem,
		Class:       "_Image",
		Command:     "FindImage",
		ResultField: options.FieldEntities,
		SystemClass: true,
		Columns:     cols,
	}
}

func descriptorTable() *options.Table {
	cols := []options.Column{
		options.PropertyColumn("text", options.TypeString, 5, false),
		options.UniqueIDColumn(5),
		{Name: options.ColFindSimilar, ColumnOptions: options.ColumnOptions{Type: options.TypeJSON, Hook: options.FindSimilar(2)}},
		{Name: options.ColDistance, ColumnOptions: options.ColumnOptions{Type: options.TypeNumber, Listable: true}},
	}
	cols = append(cols, options.BlobColumns(options.ColVector)...)
	return &options.Table{
		Name:        "docs",
		Kind:        options.KindDescriptor,
		Class:       "docs",
		Command:     options.VerbFindDescriptor,
		ResultField: options.FieldEntities,
		Extra:       map[string]any{"set": "docs", "distances": true},
		Columns:     cols,
	}
}

func wireOf(t *testing.T, p *Plan) []byte {
	t.Helper()
	wire, err := p.Batch().Resolve()
	require.NoError(t, err)
	data, err := ir.MarshalCanonical(wire)
	require.NoError(t, err)
	return data
}

func assertGolden(t *testing.T, name string, data []byte) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}

func TestCompile_PersonAgeScenario(t *testing.T) {
	c := NewCompiler()
	p, err := c.Compile(personTable(), queryir.Request{
		Columns: []string{"name"},
		Where:   []queryir.Predicate{queryir.Compare{Field: "age", Op: queryir.OpGt, Value: 30}},
	})
	require.NoError(t, err)

	assert.Equal(t, 100, p.BatchSize)
	assert.Empty(t, p.Residual)
	assertGolden(t, "person_age", wireOf(t, p))
}

func TestCompile_MultipleQualsAppend(t *testing.T) {
	c := NewCompiler()
	p, err := c.Compile(personTable(), queryir.Request{
		Columns: []string{"name", "age"},
		Where: []queryir.Predicate{
			queryir.Compare{Field: "age", Op: queryir.OpGe, Value: 18},
			queryir.Compare{Field: "age", Op: queryir.OpLt, Value: 65},
			queryir.In{Field: "name", Values: []any{"ann", "bob"}, Negated: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{">=", 18, "<", 65}, p.Constraints["age"])
	assert.Equal(t, []any{"not in", []any{"ann", "bob"}}, p.Constraints["name"])
	assertGolden(t, "person_range", wireOf(t, p))
}

func TestCompile_ResidualPredicates(t *testing.T) {
	c := NewCompiler()
	p, err := c.Compile(personTable(), queryir.Request{
		Columns: []string{"name"},
		Where: []queryir.Predicate{
			queryir.Compare{Field: "name", Op: queryir.OpGt, Value: "m"},
			queryir.IsNull{Field: "age"},
			queryir.Compare{Field: "meta", Op: queryir.OpEq, Value: "{}"},
			queryir.In{Field: "age"},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, p.Constraints)
	assert.Len(t, p.Residual, 4)
	_, hasConstraints := p.Body()["constraints"]
	assert.False(t, hasConstraints)
}

func TestCompile_DatetimeLiteral(t *testing.T) {
	c := NewCompiler()
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p, err := c.Compile(personTable(), queryir.Request{
		Where: []queryir.Predicate{
			queryir.Compare{Field: "born", Op: queryir.OpLt, Value: when},
			queryir.Compare{Field: "born", Op: queryir.OpGe, Value: "2000-01-01T00:00:00Z"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{
		"<", map[string]any{"_date": "2024-03-01T12:00:00Z"},
		">=", map[string]any{"_date": "2000-01-01T00:00:00Z"},
	}, p.Constraints["born"])
}

func TestCompile_NoListableColumnsOmitsResults(t *testing.T) {
	c := NewCompiler()
	p, err := c.Compile(imageTable(), queryir.Request{Columns: []string{options.ColImage}})
	require.NoError(t, err)

	body := p.Body()
	_, ok := body["results"]
	assert.False(t, ok)
	assert.Equal(t, 10, p.BatchSize, "payload columns use the small page size")
	assert.Empty(t, p.AttachBlob, "payloads attach only when toggled")
}

func TestCompile_ImageHooks(t *testing.T) {
	c := NewCompiler()
	p, err := c.Compile(imageTable(), queryir.Request{
		Columns: []string{"label", options.ColImage},
		Where: []queryir.Predicate{
			queryir.Compare{Field: options.ColBlobs, Op: queryir.OpEq, Value: true},
			queryir.Compare{Field: options.ColAsFormat, Op: queryir.OpEq, Value: "png"},
			queryir.Compare{Field: options.ColOperations, Op: queryir.OpEq, Value: `[{"type":"resize","width":64}]`},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, options.ColImage, p.AttachBlob)
	assert.Equal(t, 10, p.BatchSize)
	assert.Equal(t, []string{"label", options.ColImage, options.ColBlobs, options.ColAsFormat, options.ColOperations}, p.Columns)
	assert.Equal(t, true, p.Echo[options.ColBlobs])
	assert.Equal(t, "png", p.Echo[options.ColAsFormat])
	assertGolden(t, "image_hooks", wireOf(t, p))
}

func TestCompile_BlobToggleOffKeepsPayloadsOut(t *testing.T) {
	c := NewCompiler()
	p, err := c.Compile(imageTable(), queryir.Request{
		Columns: []string{"label"},
		Where:   []queryir.Predicate{queryir.Compare{Field: options.ColBlobs, Op: queryir.OpEq, Value: false}},
	})
	require.NoError(t, err)
	assert.Empty(t, p.AttachBlob)
	assert.Equal(t, false, p.Body()["blobs"])
	assert.Equal(t, 100, p.BatchSize)
}

func TestCompile_PseudoColumnErrors(t *testing.T) {
	c := NewCompiler()
	tests := []struct {
		name    string
		pred    queryir.Predicate
		wantErr string
	}{
		{"non-equality", queryir.Compare{Field: options.ColAsFormat, Op: queryir.OpNe, Value: "png"}, "only equality"},
		{"in list", queryir.In{Field: options.ColBlobs, Values: []any{true}}, "only equality"},
		{"bad operation", queryir.Compare{Field: options.ColOperations, Op: queryir.OpEq, Value: `[{"type":"blur"}]`}, "invalid operation type"},
		{"toggle not bool", queryir.Compare{Field: options.ColBlobs, Op: queryir.OpEq, Value: "yes"}, "expected boolean"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Compile(imageTable(), queryir.Request{Where: []queryir.Predicate{tt.pred}})
			require.Error(t, err)
			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, "system.Image", ce.Table)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCompile_ConflictingPseudoValues(t *testing.T) {
	c := NewCompiler()
	_, err := c.Compile(imageTable(), queryir.Request{Where: []queryir.Predicate{
		queryir.Compare{Field: options.ColAsFormat, Op: queryir.OpEq, Value: "png"},
		queryir.Compare{Field: options.ColAsFormat, Op: queryir.OpEq, Value: "jpg"},
	}})
	assert.ErrorContains(t, err, "conflicting values")
}

func TestCompile_FindSimilar(t *testing.T) {
	c := NewCompiler()
	p, err := c.Compile(descriptorTable(), queryir.Request{
		Columns: []string{"text", options.ColDistance},
		Where: []queryir.Predicate{queryir.Compare{
			Field: options.ColFindSimilar,
			Op:    queryir.OpEq,
			Value: `{"vector":[1.5,-2],"k_neighbors":3}`,
		}},
	})
	require.NoError(t, err)

	require.Len(t, p.Blobs, 1)
	require.Len(t, p.Blobs[0], 8)
	assert.Equal(t, float32(1.5), math.Float32frombits(binary.LittleEndian.Uint32(p.Blobs[0][0:4])))
	assert.Equal(t, float32(-2), math.Float32frombits(binary.LittleEndian.Uint32(p.Blobs[0][4:8])))

	b := p.Batch()
	assert.Len(t, b.Blobs, 1)
	assertGolden(t, "find_similar", wireOf(t, p))
}

func TestCompile_FindSimilarEmbeddingUnsupported(t *testing.T) {
	c := NewCompiler()
	_, err := c.Compile(descriptorTable(), queryir.Request{
		Where: []queryir.Predicate{queryir.Compare{Field: options.ColFindSimilar, Op: queryir.OpEq, Value: `{"text":"cats"}`}},
	})
	assert.ErrorIs(t, err, options.ErrEmbeddingUnsupported)
}

func TestCompile_UnknownColumn(t *testing.T) {
	c := NewCompiler()
	_, err := c.Compile(personTable(), queryir.Request{Columns: []string{"height"}})
	assert.ErrorContains(t, err, "no such column")

	_, err = c.Compile(personTable(), queryir.Request{Where: []queryir.Predicate{queryir.IsNull{Field: "height"}}})
	assert.ErrorContains(t, err, "no such column")
}

func TestCompile_BatchSizeOverride(t *testing.T) {
	c := NewCompiler(WithBatchSizes(7, 2))
	p, err := c.Compile(personTable(), queryir.Request{Columns: []string{"name"}})
	require.NoError(t, err)
	assert.Equal(t, 7, p.BatchSize)
	assert.Equal(t, map[string]any{"batch_id": 0, "batch_size": 7}, p.Batch().Result().Body["batch"])
}

func connectionTable() *options.Table {
	cols := []options.Column{
		options.PropertyColumn("since", options.TypeNumber, 4, false),
		options.UniqueIDColumn(4),
	}
	cols = append(cols, options.EndpointColumns(4)...)
	return &options.Table{
		Name:        "Knows",
		Kind:        options.KindConnection,
		Class:       "Knows",
		Command:     options.VerbFindConnection,
		ResultField: options.FieldConnections,
		Extra:       map[string]any{"with_class": "Knows"},
		SrcClass:    "Person",
		DstClass:    "Person",
		Columns:     cols,
	}
}

func TestCompile_EndpointIdentity(t *testing.T) {
	c := NewCompiler()
	p, err := c.Compile(connectionTable(), queryir.Request{
		Columns: []string{options.ColSrc, options.ColDst},
		Where: []queryir.Predicate{
			queryir.In{Field: options.ColSrc, Values: []any{"a", "b", "c"}},
			queryir.Compare{Field: options.ColSrc, Op: queryir.OpEq, Value: "b"},
			queryir.Compare{Field: options.ColDst, Op: queryir.OpNe, Value: "x"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string][]string{options.ColSrc: {"b"}}, p.Endpoints)
	assert.False(t, p.Empty)
	assert.Empty(t, p.Constraints, "identity predicates are not FindConnection constraints")
	require.Len(t, p.Residual, 1)
}

func TestCompile_ContradictoryIdentity(t *testing.T) {
	c := NewCompiler()
	p, err := c.Compile(connectionTable(), queryir.Request{
		Where: []queryir.Predicate{
			queryir.Compare{Field: options.ColDst, Op: queryir.OpEq, Value: "a"},
			queryir.Compare{Field: options.ColDst, Op: queryir.OpEq, Value: "b"},
		},
	})
	require.NoError(t, err)
	assert.True(t, p.Empty)
}

func TestCompile_CatchAllEndpointsStayOnHost(t *testing.T) {
	table := connectionTable()
	table.Name, table.Kind, table.Class = "Connection", options.KindSystem, ""
	table.Extra, table.SrcClass, table.DstClass = nil, "", ""

	c := NewCompiler()
	p, err := c.Compile(table, queryir.Request{
		Columns: []string{options.ColSrc, options.ColDst},
		Where: []queryir.Predicate{
			queryir.Compare{Field: options.ColSrc, Op: queryir.OpEq, Value: "a"},
			queryir.In{Field: options.ColDst, Values: []any{"b", "c"}},
		},
	})
	require.NoError(t, err)

	assert.Empty(t, p.Endpoints)
	assert.Empty(t, p.Constraints)
	assert.False(t, p.Empty)
	assert.Len(t, p.Residual, 2)
}
