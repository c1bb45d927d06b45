package queryaql

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"time"

	"github.com/roach88/graphsql/internal/batch"
	"github.com/roach88/graphsql/internal/options"
	"github.com/roach88/graphsql/internal/queryir"
)

// Default page sizes.
const (
	DefaultBatchSize     = 100
	DefaultBlobBatchSize = 10
)

// CompileError reports a request that cannot be translated.
type CompileError struct {
	Table   string
	Column  string
	Message string
	Err     error
}

func (e *CompileError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Column != "" {
		return fmt.Sprintf("%s.%s: %s", e.Table, e.Column, msg)
	}
	return fmt.Sprintf("%s: %s", e.Table, msg)
}

func (e *CompileError) Unwrap() error { return e.Err }

// Plan is a compiled request.
type Plan struct {
	Table *options.Table

	// Columns are the columns each row carries: the requested columns
	// followed by any pseudo columns referenced by predicates.
	Columns []string

	// Listed is results.list, in request order.
	Listed []string

	// Constraints holds pushed predicates as property -> [op, literal, ...].
	Constraints map[string][]any

	// Endpoints holds identity lists for _src and _dst on connection
	// tables. A key is present only when that endpoint is constrained.
	Endpoints map[string][]string

	// Empty is set when identity predicates contradict each other; the
	// request has no rows.
	Empty bool

	// Modifiers are body fields written by pseudo-column hooks.
	Modifiers map[string]any

	// Blobs are input blobs supplied by hooks.
	Blobs [][]byte

	// Echo holds pseudo-column values copied into every row.
	Echo map[string]any

	// AttachBlob names the blob column that receives payloads, if any.
	AttachBlob string

	// BatchSize is the page size for the result command.
	BatchSize int

	// Residual lists predicates left to the host.
	Residual []queryir.Predicate
}

// Body returns the command body without a batch clause.
func (p *Plan) Body() map[string]any {
	body := p.Table.ExtraParams()
	if len(p.Constraints) > 0 {
		constraints := make(map[string]any, len(p.Constraints))
		for k, v := range p.Constraints {
			constraints[k] = slices.Clone(v)
		}
		body["constraints"] = constraints
	}
	if len(p.Listed) > 0 {
		list := make([]any, len(p.Listed))
		for i, col := range p.Listed {
			list[i] = col
		}
		body["results"] = map[string]any{"list": list}
	}
	for k, v := range p.Modifiers {
		body[k] = v
	}
	return body
}

// Batch returns a single-command batch with a cursor.
func (p *Plan) Batch() *batch.CommandBatch {
	b := &batch.CommandBatch{
		ResultField: p.Table.ResultField,
		Blobs:       p.Blobs,
	}
	b.ResultIndex = b.Add(p.Table.Command, p.Body())
	b.SetCursor(p.BatchSize)
	return b
}

// Compiler translates requests into plans.
type Compiler struct {
	BatchSize     int
	BlobBatchSize int

	logger *slog.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithBatchSizes overrides the page sizes.
func WithBatchSizes(normal, blob int) Option {
	return func(c *Compiler) {
		if normal > 0 {
			c.BatchSize = normal
		}
		if blob > 0 {
			c.BlobBatchSize = blob
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) { c.logger = l }
}

// NewCompiler creates a Compiler with default page sizes.
func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{
		BatchSize:     DefaultBatchSize,
		BlobBatchSize: DefaultBlobBatchSize,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile translates req against table.
func (c *Compiler) Compile(table *options.Table, req queryir.Request) (*Plan, error) {
	if table == nil {
		return nil, fmt.Errorf("cannot compile against nil table")
	}
	p := &Plan{
		Table:       table,
		Constraints: make(map[string][]any),
		Modifiers:   make(map[string]any),
		Echo:        make(map[string]any),
	}
	name := table.QualifiedName()

	seen := make(map[string]bool)
	wantPayload := false
	for _, col := range req.Columns {
		if seen[col] {
			continue
		}
		seen[col] = true
		opt, ok := table.Column(col)
		if !ok {
			return nil, &CompileError{Table: name, Column: col, Message: "no such column"}
		}
		p.Columns = append(p.Columns, col)
		if opt.Listable {
			p.Listed = append(p.Listed, col)
		}
		if opt.Type == options.TypeBlob {
			wantPayload = true
		}
	}

	// Pseudo columns first: they change the command, not the filter.
	var filters []queryir.Predicate
	for _, pred := range req.Where {
		col, ok := table.Column(pred.Column())
		if !ok {
			return nil, &CompileError{Table: name, Column: pred.Column(), Message: "no such column"}
		}
		if !col.IsPseudo() {
			filters = append(filters, pred)
			continue
		}
		if err := c.applyHook(p, col, pred); err != nil {
			return nil, &CompileError{Table: name, Column: col.Name, Err: err}
		}
		if !seen[col.Name] {
			seen[col.Name] = true
			p.Columns = append(p.Columns, col.Name)
		}
	}
	if p.AttachBlob != "" || p.Modifiers["blobs"] == true {
		wantPayload = true
	}

	for _, pred := range filters {
		col, _ := table.Column(pred.Column())
		if err := c.push(p, col, pred); err != nil {
			return nil, &CompileError{Table: name, Column: col.Name, Err: err}
		}
	}

	p.BatchSize = c.BatchSize
	if wantPayload {
		p.BatchSize = c.BlobBatchSize
	}

	if len(p.Residual) > 0 {
		c.logger.Debug("predicates left to host",
			"table", name,
			"residual", len(p.Residual),
		)
	}
	return p, nil
}

func (c *Compiler) applyHook(p *Plan, col options.Column, pred queryir.Predicate) error {
	cmp, ok := pred.(queryir.Compare)
	if !ok || cmp.Op != queryir.OpEq {
		return fmt.Errorf("only equality is supported on this column")
	}
	if prev, dup := p.Echo[col.Name]; dup {
		if !reflect.DeepEqual(prev, cmp.Value) {
			return fmt.Errorf("conflicting values %v and %v", prev, cmp.Value)
		}
		return nil
	}

	if err := col.Hook.ModifyBody(cmp.Value, p.Modifiers); err != nil {
		return err
	}
	blobs, err := col.Hook.ExtraBlobs(cmp.Value)
	if err != nil {
		return err
	}
	p.Blobs = append(p.Blobs, blobs...)
	if target, attach := col.Hook.AttachesBlob(cmp.Value); attach {
		p.AttachBlob = target
	}
	p.Echo[col.Name] = cmp.Value
	return nil
}

func (c *Compiler) push(p *Plan, col options.Column, pred queryir.Predicate) error {
	if ok, _ := queryir.Pushdown(pred, col.Type); !ok {
		p.Residual = append(p.Residual, pred)
		return nil
	}

	if p.Table.IsConnection() && (col.Name == options.ColSrc || col.Name == options.ColDst) {
		// An endpoint find needs the endpoint's class. Without one (the
		// catch-all table) the find cannot reach system objects.
		if p.Table.EndpointClass(col.Name) == "" {
			p.Residual = append(p.Residual, pred)
			return nil
		}
		p.constrainEndpoint(col.Name, pred)
		return nil
	}

	switch pr := pred.(type) {
	case queryir.Compare:
		lit, err := literal(pr.Value, col.Type)
		if err != nil {
			return err
		}
		p.Constraints[col.Name] = append(p.Constraints[col.Name], string(pr.Op), lit)
	case queryir.In:
		lits := make([]any, len(pr.Values))
		for i, v := range pr.Values {
			lit, err := literal(v, col.Type)
			if err != nil {
				return err
			}
			lits[i] = lit
		}
		p.Constraints[col.Name] = append(p.Constraints[col.Name], string(pr.Op()), lits)
	default:
		p.Residual = append(p.Residual, pred)
	}
	return nil
}

// constrainEndpoint intersects the identity list of an endpoint column.
func (p *Plan) constrainEndpoint(col string, pred queryir.Predicate) {
	var ids []string
	switch pr := pred.(type) {
	case queryir.Compare:
		ids = []string{pr.Value.(string)}
	case queryir.In:
		for _, v := range pr.Values {
			id := v.(string)
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}

	if p.Endpoints == nil {
		p.Endpoints = make(map[string][]string)
	}
	prev, ok := p.Endpoints[col]
	if !ok {
		p.Endpoints[col] = ids
		return
	}
	var both []string
	for _, id := range prev {
		if slices.Contains(ids, id) {
			both = append(both, id)
		}
	}
	p.Endpoints[col] = both
	if len(both) == 0 {
		p.Empty = true
	}
}

// literal converts a predicate value to its wire form.
func literal(v any, typ options.ValueType) (any, error) {
	switch typ {
	case options.TypeDatetime:
		switch t := v.(type) {
		case time.Time:
			return map[string]any{"_date": t.UTC().Format(time.RFC3339Nano)}, nil
		case string:
			return map[string]any{"_date": t}, nil
		}
		return nil, fmt.Errorf("datetime literal %T", v)
	case options.TypeNumber:
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				return i, nil
			}
			return n.Float64()
		}
	}
	return v, nil
}
