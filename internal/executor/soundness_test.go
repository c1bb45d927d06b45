package executor

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphsql/internal/options"
	"github.com/roach88/graphsql/internal/queryir"
	"github.com/roach88/graphsql/internal/rows"
	"github.com/roach88/graphsql/internal/schema"
	"github.com/roach88/graphsql/internal/testutil"
)

// mixedGraph has user entities, system images and connections between
// them, including connections whose source is a system object.
type mixedGraph struct {
	*testutil.Graph
	id map[string]string
}

func newMixedGraph() *mixedGraph {
	g := &mixedGraph{Graph: testutil.NewGraph(), id: map[string]string{}}
	g.id["ann"] = g.AddEntity("Person", map[string]any{"name": "ann", "age": 31})
	g.id["bob"] = g.AddEntity("Person", map[string]any{"name": "bob", "age": 17})
	g.id["cy"] = g.AddEntity("Person", map[string]any{"name": "cy", "age": 45})
	g.id["dee"] = g.AddEntity("Person", map[string]any{"name": "dee"})
	g.id["rex"] = g.AddEntity("Pet", map[string]any{"name": "rex"})
	g.id["fido"] = g.AddEntity("Pet", map[string]any{"name": "fido", "age": 3})
	g.id["img1"] = g.AddObject("_Image", map[string]any{"label": "cat"}, []byte("CAT"))
	g.id["img2"] = g.AddObject("_Image", map[string]any{"label": "dog"}, []byte("DOG"))

	for _, e := range []struct {
		class, src, dst string
		props           map[string]any
	}{
		{"Owns", "ann", "rex", map[string]any{"since": 2019}},
		{"Owns", "bob", "rex", map[string]any{"since": 2020}},
		{"Owns", "cy", "fido", map[string]any{"since": 2021}},
		{"Depicts", "img1", "ann", nil},
		{"Depicts", "img1", "bob", nil},
		{"Depicts", "img2", "cy", nil},
		{"Knows", "ann", "bob", nil},
		{"Knows", "bob", "cy", nil},
	} {
		g.Connect(e.class, g.id[e.src], g.id[e.dst], e.props)
	}
	return g
}

func (g *mixedGraph) ids(names ...string) []any {
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = g.id[n]
	}
	return out
}

func eq(col string, v any) queryir.Predicate {
	return queryir.Compare{Field: col, Op: queryir.OpEq, Value: v}
}

func compareTo(col string, op queryir.Operator, v any) queryir.Predicate {
	return queryir.Compare{Field: col, Op: op, Value: v}
}

// hostFiltered runs req the way a host does: fetch output plus the columns
// of residual predicates, drop rows failing a residual, project.
func hostFiltered(t *testing.T, e *Executor, cat *schema.Catalog, table *options.Table, req queryir.Request) []string {
	t.Helper()
	output := req.Columns
	fetch := slices.Clone(output)
	for _, c := range queryir.HostColumns(table, req.Where) {
		if !slices.Contains(fetch, c) {
			fetch = append(fetch, c)
		}
	}
	req.Columns = fetch

	p, err := e.Prepare(cat, req)
	require.NoError(t, err)
	var out []string
	for row, err := range e.Run(context.Background(), p) {
		require.NoError(t, err)
		if queryir.MatchAll(p.Plan.Residual, row) {
			out = append(out, projectKey(row, output))
		}
	}
	slices.Sort(out)
	return out
}

// bruteForce scans every row unfiltered and applies all predicates on the
// host.
func bruteForce(t *testing.T, e *Executor, cat *schema.Catalog, table *options.Table, req queryir.Request) []string {
	t.Helper()
	all := table.ScanColumns()
	for _, c := range req.Columns {
		if !slices.Contains(all, c) {
			all = append(all, c)
		}
	}
	var out []string
	for row, err := range e.Rows(context.Background(), cat, queryir.Request{Table: req.Table, Columns: all}) {
		require.NoError(t, err)
		if queryir.MatchAll(req.Where, row) {
			out = append(out, projectKey(row, req.Columns))
		}
	}
	slices.Sort(out)
	return out
}

func projectKey(row rows.Row, columns []string) string {
	cols := slices.Sorted(slices.Values(columns))
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		if v, ok := row[c]; ok && v != nil {
			parts = append(parts, fmt.Sprintf("%s=%v", c, v))
		}
	}
	return strings.Join(parts, ",")
}

func TestRows_PushdownIsSound(t *testing.T) {
	g := newMixedGraph()
	f := newFixture(t, g.Graph)
	e := f.executor()

	endpoints := []string{options.ColSrc, options.ColDst}
	tests := []struct {
		table   string
		columns []string
		where   []queryir.Predicate
	}{
		{table: "Person", where: []queryir.Predicate{compareTo("age", queryir.OpGt, 30)}},
		{table: "Person", where: []queryir.Predicate{compareTo("age", queryir.OpGe, 17), compareTo("name", queryir.OpNe, "cy")}},
		{table: "Person", where: []queryir.Predicate{queryir.In{Field: "name", Values: []any{"ann", "dee"}}}},
		{table: "Person", where: []queryir.Predicate{queryir.In{Field: "name", Values: []any{"bob"}, Negated: true}}},
		{table: "Person", where: []queryir.Predicate{queryir.IsNull{Field: "age"}}},
		{table: "Person", where: []queryir.Predicate{queryir.IsNull{Field: "age", Negated: true}}},
		{table: "Person", where: []queryir.Predicate{compareTo("age", queryir.OpNe, 31)}},
		{table: "Person", where: []queryir.Predicate{eq(options.ColUniqueID, g.id["ann"])}},
		{table: "Person", where: []queryir.Predicate{
			queryir.In{Field: options.ColUniqueID, Values: g.ids("ann", "cy")},
			compareTo("age", queryir.OpLt, 40),
		}},
		{table: "Person", where: []queryir.Predicate{compareTo("name", queryir.OpLt, "c")}},

		{table: schema.CatchAllEntity, where: []queryir.Predicate{compareTo("age", queryir.OpLt, 20)}},
		{table: schema.CatchAllEntity, where: []queryir.Predicate{queryir.In{Field: "name", Values: []any{"rex", "ann"}}}},
		{table: schema.CatchAllEntity, where: []queryir.Predicate{queryir.IsNull{Field: "age"}}},
		{table: schema.CatchAllEntity, where: []queryir.Predicate{queryir.In{Field: options.ColUniqueID, Values: g.ids("rex", "bob", "img1")}}},

		{table: "Image", where: []queryir.Predicate{eq("label", "cat")}},
		{table: "Image", where: []queryir.Predicate{compareTo("label", queryir.OpNe, "cat")}},
		{table: "Image", where: []queryir.Predicate{eq(options.ColUniqueID, g.id["img2"])}},

		{table: "Owns", where: []queryir.Predicate{eq(options.ColSrc, g.id["ann"])}},
		{table: "Owns", where: []queryir.Predicate{eq(options.ColDst, g.id["rex"])}},
		{table: "Owns", where: []queryir.Predicate{compareTo("since", queryir.OpGe, 2020)}},
		{table: "Owns", where: []queryir.Predicate{compareTo(options.ColDst, queryir.OpNe, g.id["rex"])}},
		{table: "Owns", where: []queryir.Predicate{eq(options.ColSrc, g.id["cy"]), compareTo("since", queryir.OpGt, 2000)}},
		{table: "Owns", columns: endpoints, where: []queryir.Predicate{
			queryir.In{Field: options.ColSrc, Values: g.ids("ann", "bob")},
			eq(options.ColDst, g.id["rex"]),
		}},
		{table: "Owns", columns: endpoints, where: []queryir.Predicate{
			queryir.In{Field: options.ColSrc, Values: g.ids("ann", "cy")},
			queryir.In{Field: options.ColDst, Values: g.ids("rex", "fido")},
		}},

		{table: "Depicts", where: []queryir.Predicate{eq(options.ColSrc, g.id["img1"])}},
		{table: "Depicts", where: []queryir.Predicate{eq(options.ColDst, g.id["cy"])}},
		{table: "Depicts", where: []queryir.Predicate{compareTo(options.ColSrc, queryir.OpNe, g.id["img1"])}},
		{table: "Depicts", columns: endpoints, where: []queryir.Predicate{
			queryir.In{Field: options.ColSrc, Values: g.ids("img1", "img2")},
			queryir.In{Field: options.ColDst, Values: g.ids("ann", "cy")},
		}},

		{table: "Knows", where: []queryir.Predicate{eq(options.ColSrc, g.id["bob"])}},
		{table: "Knows", columns: endpoints, where: []queryir.Predicate{
			eq(options.ColSrc, g.id["ann"]),
			queryir.In{Field: options.ColDst, Values: g.ids("bob", "cy")},
		}},

		{table: schema.CatchAllConnection, where: []queryir.Predicate{eq(options.ColSrc, g.id["img1"])}},
		{table: schema.CatchAllConnection, where: []queryir.Predicate{eq(options.ColDst, g.id["rex"])}},
		{table: schema.CatchAllConnection, where: []queryir.Predicate{compareTo("since", queryir.OpGt, 2019)}},
		{table: schema.CatchAllConnection, columns: endpoints, where: []queryir.Predicate{
			queryir.In{Field: options.ColSrc, Values: g.ids("ann", "img2")},
			queryir.In{Field: options.ColDst, Values: g.ids("cy", "bob")},
		}},
		{table: schema.CatchAllConnection, columns: endpoints, where: []queryir.Predicate{
			eq(options.ColSrc, g.id["ann"]),
			eq(options.ColDst, g.id["bob"]),
		}},
	}

	nonEmpty := 0
	for i, tt := range tests {
		t.Run(fmt.Sprintf("%d_%s", i, tt.table), func(t *testing.T) {
			table, err := f.cat.Lookup(tt.table)
			require.NoError(t, err)
			columns := tt.columns
			if columns == nil {
				columns = table.ScanColumns()
			}
			req := queryir.Request{Table: tt.table, Columns: columns, Where: tt.where}

			want := bruteForce(t, e, f.cat, table, req)
			got := hostFiltered(t, e, f.cat, table, req)
			assert.Equal(t, want, got)
			if len(want) > 0 {
				nonEmpty++
			}
		})
	}
	assert.Greater(t, nonEmpty, len(tests)/2, "most predicate sets select some rows")
}

func TestRows_CatchAllConnectionReachesSystemEndpoints(t *testing.T) {
	g := newMixedGraph()
	f := newFixture(t, g.Graph)

	got, err := collect(t, f.executor(), f.cat, queryir.Request{
		Table:   schema.CatchAllConnection,
		Columns: []string{options.ColSrc, options.ColDst},
		Where:   []queryir.Predicate{eq(options.ColSrc, g.id["img1"])},
	})
	require.NoError(t, err)

	var kept []rows.Row
	for _, r := range got {
		if r[options.ColSrc] == g.id["img1"] {
			kept = append(kept, r)
		}
	}
	assert.ElementsMatch(t, []rows.Row{
		{options.ColSrc: g.id["img1"], options.ColDst: g.id["ann"]},
		{options.ColSrc: g.id["img1"], options.ColDst: g.id["bob"]},
	}, kept)

	for _, cmd := range g.Requests()[0] {
		_, endpointFind := cmd[options.VerbFindEntity]
		assert.False(t, endpointFind, "no class-less endpoint find")
	}
}
