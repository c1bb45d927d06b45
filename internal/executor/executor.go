package executor

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/roach88/graphsql/internal/batch"
	"github.com/roach88/graphsql/internal/connection"
	"github.com/roach88/graphsql/internal/connector"
	"github.com/roach88/graphsql/internal/ir"
	"github.com/roach88/graphsql/internal/queryaql"
	"github.com/roach88/graphsql/internal/queryir"
	"github.com/roach88/graphsql/internal/rows"
	"github.com/roach88/graphsql/internal/schema"
)

// Acquirer lends Connectors. *connector.Pool implements it.
type Acquirer interface {
	Acquire(ctx context.Context) (connector.Connector, func(), error)
}

// Executor compiles and runs requests.
//
// Thread-safety: an Executor is safe for concurrent use. Each query holds
// its own Connector.
type Executor struct {
	pool     Acquirer
	compiler *queryaql.Compiler
	rewriter *connection.Rewriter
	maxAge   time.Duration
	now      func() time.Time
	metrics  *Metrics
	logger   *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithCompiler replaces the default compiler, e.g. to change batch sizes.
func WithCompiler(c *queryaql.Compiler) Option {
	return func(e *Executor) { e.compiler = c }
}

// WithPopulationMaxAge sets how old a catalog may get before endpoint
// populations are treated as unknown. Zero never expires.
func WithPopulationMaxAge(d time.Duration) Option {
	return func(e *Executor) { e.maxAge = d }
}

// WithClock sets the time source used for population staleness.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// WithMetrics records execution metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// New creates an Executor drawing connections from pool.
func New(pool Acquirer, opts ...Option) *Executor {
	e := &Executor{
		pool:   pool,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.compiler == nil {
		e.compiler = queryaql.NewCompiler(queryaql.WithLogger(e.logger))
	}
	e.rewriter = connection.NewRewriter(e.logger)
	return e
}

// Prepared is a request ready to run. It is consumed by one Run; pagination
// mutates its batch.
type Prepared struct {
	Plan       *queryaql.Plan
	Validation queryir.ValidationResult

	// Decision is set for connection tables.
	Decision *connection.Decision

	Batch   *batch.CommandBatch
	Reshape rows.Reshape

	normalizer *rows.Normalizer
}

// Commands returns the wire commands of the next page.
func (p *Prepared) Commands() ([]map[string]any, error) {
	return p.Batch.Resolve()
}

// Fingerprint identifies the first-page command batch.
func (p *Prepared) Fingerprint() (string, error) {
	commands, err := p.Commands()
	if err != nil {
		return "", err
	}
	generic := make([]any, len(commands))
	for i, c := range commands {
		generic[i] = c
	}
	return ir.CommandID(generic)
}

// Prepare looks up the table, compiles the request and, for connection
// tables, chooses the query shape.
func (e *Executor) Prepare(cat *schema.Catalog, req queryir.Request) (*Prepared, error) {
	table, err := cat.Lookup(req.Table)
	if err != nil {
		return nil, err
	}
	validation, err := queryir.Validate(req, table)
	if err != nil {
		return nil, err
	}
	plan, err := e.compiler.Compile(table, req)
	if err != nil {
		return nil, err
	}

	p := &Prepared{
		Plan:       plan,
		Validation: validation,
		normalizer: &rows.Normalizer{
			Table:      table,
			Columns:    plan.Columns,
			Echo:       plan.Echo,
			AttachBlob: plan.AttachBlob,
		},
	}

	if !table.IsConnection() {
		p.Batch = plan.Batch()
		p.Reshape = rows.Flat(p.Batch.ResultField, len(plan.Listed) > 0)
		return p, nil
	}

	q, err := connection.Annotate(plan)
	if err != nil {
		return nil, err
	}
	pops := connection.PopulationsFor(table, cat, e.now(), e.maxAge)
	rw := e.rewriter.Rewrite(q, pops)
	p.Decision = &rw.Decision
	p.Batch = rw.Batch
	p.Reshape = rw.Reshape
	e.metrics.observeShape(rw.Decision.Case.String())
	return p, nil
}

// Rows prepares req against cat and runs it. Preparation errors are
// yielded as the first and only element.
func (e *Executor) Rows(ctx context.Context, cat *schema.Catalog, req queryir.Request) iter.Seq2[rows.Row, error] {
	return func(yield func(rows.Row, error) bool) {
		p, err := e.Prepare(cat, req)
		if err != nil {
			yield(nil, err)
			return
		}
		for row, err := range e.Run(ctx, p) {
			if !yield(row, err) {
				return
			}
		}
	}
}

// Run executes a prepared request, paging until the cursor is exhausted or
// the consumer stops. An error is always the last element.
func (e *Executor) Run(ctx context.Context, p *Prepared) iter.Seq2[rows.Row, error] {
	return func(yield func(rows.Row, error) bool) {
		kind := string(p.Plan.Table.Kind)
		if p.Plan.Empty {
			e.logger.Debug("contradictory identity predicates, no round trip",
				"table", p.Plan.Table.QualifiedName(),
			)
			e.metrics.observeQuery(kind, "empty", 0)
			return
		}

		start := time.Now()
		outcome := "ok"
		total := 0
		defer func() {
			e.metrics.observeRows(total)
			e.metrics.observeQuery(kind, outcome, time.Since(start))
		}()

		conn, release, err := e.pool.Acquire(ctx)
		if err != nil {
			outcome = "error"
			yield(nil, fmt.Errorf("acquire connector: %w", err))
			return
		}
		defer release()

		for page := 0; ; page++ {
			raw, body, err := e.fetch(ctx, conn, p)
			if err != nil {
				outcome = "error"
				e.logger.Error("query failed",
					"table", p.Plan.Table.QualifiedName(),
					"page", page,
					"error", err,
				)
				yield(nil, err)
				return
			}
			for i, obj := range raw.objects {
				row, err := p.normalizer.Normalize(obj, raw.blob(i))
				if err != nil {
					outcome = "error"
					yield(nil, e.shapeError(raw.commands, raw.resp, "normalize row", err))
					return
				}
				total++
				if !yield(row, nil) {
					outcome = "stopped"
					return
				}
			}

			more, err := p.Batch.Advance(body)
			if err != nil {
				outcome = "error"
				yield(nil, e.shapeError(raw.commands, raw.resp, "read cursor", err))
				return
			}
			if !more {
				e.logger.Debug("query complete",
					"table", p.Plan.Table.QualifiedName(),
					"pages", page+1,
					"rows", total,
				)
				return
			}
		}
	}
}

type page struct {
	commands []map[string]any
	resp     *connector.Response
	objects  []map[string]any
	attach   bool
}

func (pg *page) blob(i int) []byte {
	if !pg.attach {
		return nil
	}
	return pg.resp.Blobs[i]
}

// fetch submits the current page and returns its objects and the result
// body.
func (e *Executor) fetch(ctx context.Context, conn connector.Connector, p *Prepared) (*page, map[string]any, error) {
	commands, err := p.Batch.Resolve()
	if err != nil {
		return nil, nil, err
	}
	e.metrics.observePage()
	resp, err := conn.Execute(ctx, commands, p.Batch.Blobs)
	if err != nil {
		return nil, nil, &ExecutionError{Code: ErrCodeExecutionFailed, Message: "submit commands", Commands: commands, Err: err}
	}

	if resp.Status != 0 {
		return nil, nil, &ExecutionError{
			Code:     ErrCodeExecutionFailed,
			Message:  fmt.Sprintf("backend returned status %d", resp.Status),
			Commands: commands,
			Response: resp,
		}
	}
	if len(resp.JSON) != len(commands) {
		return nil, nil, e.shapeError(commands, resp,
			fmt.Sprintf("got %d results for %d commands", len(resp.JSON), len(commands)), nil)
	}
	for i, result := range resp.JSON {
		for verb, raw := range result {
			if body, ok := raw.(map[string]any); ok && connector.CommandStatus(body) != 0 {
				return nil, nil, &ExecutionError{
					Code:     ErrCodeExecutionFailed,
					Message:  fmt.Sprintf("command %d (%s) returned status %d", i, verb, connector.CommandStatus(body)),
					Commands: commands,
					Response: resp,
				}
			}
		}
	}

	body, err := resp.Body(p.Batch.ResultIndex, p.Batch.Result().Verb)
	if err != nil {
		return nil, nil, e.shapeError(commands, resp, "result command", err)
	}
	objects, err := p.Reshape(body)
	if err != nil {
		return nil, nil, e.shapeError(commands, resp, "reshape result", err)
	}

	pg := &page{commands: commands, resp: resp, objects: objects, attach: p.Plan.AttachBlob != ""}
	if pg.attach && len(resp.Blobs) != len(objects) {
		return nil, nil, e.shapeError(commands, resp,
			fmt.Sprintf("got %d payloads for %d objects", len(resp.Blobs), len(objects)), nil)
	}
	return pg, body, nil
}

func (e *Executor) shapeError(commands []map[string]any, resp *connector.Response, msg string, err error) error {
	return &ExecutionError{Code: ErrCodeShapeInvalid, Message: msg, Commands: commands, Response: resp, Err: err}
}
