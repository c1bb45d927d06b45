package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/roach88/graphsql/internal/connector"
	"github.com/roach88/graphsql/internal/executor"
	"github.com/roach88/graphsql/internal/queryaql"
	"github.com/roach88/graphsql/internal/queryir"
	"github.com/roach88/graphsql/internal/rows"
	"github.com/roach88/graphsql/internal/schema"
	"github.com/roach88/graphsql/internal/store"
	"github.com/roach88/graphsql/internal/testutil"
)

// env is the per-run state shared by the steps.
type env struct {
	graph    *testutil.Graph
	refs     map[string]string
	registry *schema.Registry
	exec     *executor.Executor
}

// Run executes a scenario and returns the trace with any expectation
// failures. An error means the scenario could not run at all: a malformed
// where string, an unknown ref or a failed refresh.
//
// Each run gets its own graph, clock and in-memory catalog store.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	g, refs, err := seedGraph(scenario.Graph)
	if err != nil {
		return nil, fmt.Errorf("seed graph: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	pool := connector.NewPool(1, func() (connector.Connector, error) { return g, nil })
	defer pool.Close()

	clock := testutil.NewManualClock()
	var (
		saveErr error
		changed bool
	)
	registry := schema.NewRegistry(
		schema.NewIntrospector(pool, schema.WithIntrospectorLogger(logger)),
		schema.WithClock(clock.Now),
		schema.WithRegistryLogger(logger),
		schema.OnChange(func(snap *schema.Snapshot, cat *schema.Catalog) {
			changed = true
			if _, err := st.SaveCatalog(ctx, snap, cat); err != nil {
				saveErr = errors.Join(saveErr, err)
			}
		}),
	)
	refresh := func() error {
		changed = false
		cat, err := registry.Refresh(ctx)
		if err != nil {
			return fmt.Errorf("refresh catalog: %w", err)
		}
		if saveErr != nil {
			return fmt.Errorf("save catalog: %w", saveErr)
		}
		return st.RecordRefresh(ctx, cat.SnapshotID, clock.Now(), changed)
	}
	if err := refresh(); err != nil {
		return nil, err
	}

	e := &env{
		graph:    g,
		refs:     refs,
		registry: registry,
		exec:     newExecutor(pool, scenario.Config, clock, logger),
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if step.Advance != "" {
			d, _ := time.ParseDuration(step.Advance)
			clock.Advance(d)
		}
		if step.Refresh {
			if err := refresh(); err != nil {
				return nil, fmt.Errorf("step %d (%s): %w", i, step.Name, err)
			}
		}
		trace, err := e.runStep(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Name, err)
		}
		result.Steps = append(result.Steps, trace)
		if step.Expect != nil {
			for _, msg := range checkExpect(trace, step.Expect) {
				result.AddError(fmt.Sprintf("step %d (%s): %s", i, step.Name, msg))
			}
		}
	}

	cat, err := st.LoadLatest(ctx)
	if err != nil {
		return nil, fmt.Errorf("load persisted catalog: %w", err)
	}
	result.Catalog = cat
	return result, nil
}

func newExecutor(pool *connector.Pool, cfg Config, clock *testutil.ManualClock, logger *slog.Logger) *executor.Executor {
	compiler := queryaql.NewCompiler(
		queryaql.WithBatchSizes(cfg.BatchSize, cfg.BlobBatchSize),
		queryaql.WithLogger(logger),
	)
	opts := []executor.Option{
		executor.WithCompiler(compiler),
		executor.WithClock(clock.Now),
		executor.WithLogger(logger),
	}
	if cfg.PopulationMaxAge != "" {
		d, _ := time.ParseDuration(cfg.PopulationMaxAge)
		opts = append(opts, executor.WithPopulationMaxAge(d))
	}
	return executor.New(pool, opts...)
}

// seedGraph builds the graph and maps each ref to its _uniqueid.
func seedGraph(seed GraphSeed) (*testutil.Graph, map[string]string, error) {
	g := testutil.NewGraph()
	refs := make(map[string]string)
	bind := func(ref, id string) {
		if ref != "" {
			refs[ref] = id
		}
	}

	for _, o := range seed.Entities {
		bind(o.Ref, g.AddEntity(o.Class, o.Props))
	}
	for _, o := range seed.Objects {
		var blob []byte
		if o.Blob != "" {
			blob = []byte(o.Blob)
		}
		bind(o.Ref, g.AddObject(o.Class, o.Props, blob))
	}
	for _, s := range seed.DescriptorSets {
		g.AddDescriptorSet(s.Name, s.Dimensions, s.Props)
	}
	for _, d := range seed.Descriptors {
		bind(d.Ref, g.AddDescriptor(d.Set, d.Vector, d.Props))
	}
	for _, c := range seed.Connections {
		src, ok := refs[c.Src]
		if !ok {
			return nil, nil, fmt.Errorf("connection %s: unknown ref %q", c.Class, c.Src)
		}
		dst, ok := refs[c.Dst]
		if !ok {
			return nil, nil, fmt.Errorf("connection %s: unknown ref %q", c.Class, c.Dst)
		}
		bind(c.Ref, g.Connect(c.Class, src, dst, c.Props))
	}
	for _, ix := range seed.Indexes {
		g.Index(ix.Class, ix.Property)
	}
	return g, refs, nil
}

// runStep scans one table. Lookup, compile and execution failures are
// recorded in the trace; only scenario mistakes are returned.
func (e *env) runStep(ctx context.Context, step Step) (trace StepTrace, err error) {
	trace = StepTrace{
		Step:     step.Name,
		Table:    step.Query.Table,
		Requests: [][]map[string]any{},
		Rows:     []map[string]any{},
	}

	where, err := e.expandRefs(step.Query.Where)
	if err != nil {
		return trace, err
	}
	preds, err := queryir.ParseWhere(where)
	if err != nil {
		return trace, fmt.Errorf("invalid where: %w", err)
	}

	cat, err := e.registry.Current()
	if err != nil {
		return trace, err
	}
	table, err := cat.Lookup(step.Query.Table)
	if err != nil {
		trace.Error = err.Error()
		return trace, nil
	}

	output := step.Query.Columns
	if len(output) == 0 {
		output = table.ScanColumns()
	}
	fetch := slices.Clone(output)
	for _, c := range queryir.HostColumns(table, preds) {
		if !slices.Contains(fetch, c) {
			fetch = append(fetch, c)
		}
	}

	e.graph.ResetRequests()
	defer func() { trace.Requests = e.graph.Requests() }()

	p, err := e.exec.Prepare(cat, queryir.Request{Table: table.QualifiedName(), Columns: fetch, Where: preds})
	if err != nil {
		trace.Error = err.Error()
		return trace, nil
	}
	if p.Decision != nil {
		trace.Case = p.Decision.Case.String()
	}
	trace.Empty = p.Plan.Empty

	for row, err := range e.exec.Run(ctx, p) {
		if err != nil {
			trace.Error = errorCode(err)
			break
		}
		if !queryir.MatchAll(p.Plan.Residual, row) {
			trace.Filtered++
			continue
		}
		trace.Rows = append(trace.Rows, render(row, output))
		if step.Query.Limit > 0 && len(trace.Rows) >= step.Query.Limit {
			break
		}
	}
	return trace, nil
}

// expandRefs replaces ${ref} with the seeded object's _uniqueid.
func (e *env) expandRefs(where string) (string, error) {
	var missing []string
	out := os.Expand(where, func(ref string) string {
		id, ok := e.refs[ref]
		if !ok {
			missing = append(missing, ref)
		}
		return id
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("unknown refs in where: %v", missing)
	}
	return out, nil
}

func errorCode(err error) string {
	var ee *executor.ExecutionError
	if errors.As(err, &ee) {
		return string(ee.Code)
	}
	return err.Error()
}

// render projects row to columns and converts values a JSON document
// cannot carry.
func render(row rows.Row, columns []string) map[string]any {
	out := make(map[string]any, len(columns))
	for _, c := range columns {
		v, ok := row[c]
		if !ok {
			continue
		}
		switch x := v.(type) {
		case time.Time:
			v = x.UTC().Format(time.RFC3339Nano)
		case []byte:
			if utf8.Valid(x) {
				v = string(x)
			} else {
				v = fmt.Sprintf("<%d bytes>", len(x))
			}
		}
		out[c] = v
	}
	return out
}
