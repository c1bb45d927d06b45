package connection

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/graphsql/internal/batch"
	"github.com/roach88/graphsql/internal/options"
	"github.com/roach88/graphsql/internal/queryaql"
	"github.com/roach88/graphsql/internal/rows"
)

// Case identifies a query shape.
type Case int

const (
	CaseUnconstrained Case = 1 + iota
	CaseOneEndpoint
	CaseBothEndpoints
	CaseTraversal
)

func (c Case) String() string {
	switch c {
	case CaseUnconstrained:
		return "case1"
	case CaseOneEndpoint:
		return "case2"
	case CaseBothEndpoints:
		return "case3"
	case CaseTraversal:
		return "case4"
	}
	return fmt.Sprintf("case(%d)", int(c))
}

// Signals are the request facts the case choice depends on.
type Signals struct {
	SrcConstrained bool
	DstConstrained bool

	// Other is set when the request pushes a constraint on, or projects, a
	// column other than _src and _dst, or the relationship class is
	// system-defined.
	Other bool
}

// Populations describe the endpoint classes at snapshot time.
type Populations struct {
	Src, Dst int64

	// Known is false when either population is missing or stale.
	Known bool

	// SrcIDs and DstIDs are the lengths of the identity lists.
	SrcIDs, DstIDs int
}

// Decision is the chosen case. Origin is meaningful for case 4 only.
type Decision struct {
	Case        Case
	OriginIsSrc bool

	// Reason explains a case 3 fallback from the traversal branch.
	Reason string
}

// Choose picks the query shape. limit is the per-group member limit.
func Choose(s Signals, p Populations, limit int) Decision {
	switch {
	case !s.SrcConstrained && !s.DstConstrained:
		return Decision{Case: CaseUnconstrained}
	case s.SrcConstrained != s.DstConstrained:
		return Decision{Case: CaseOneEndpoint}
	case s.Other:
		return Decision{Case: CaseBothEndpoints, Reason: "other columns involved"}
	case !p.Known:
		return Decision{Case: CaseBothEndpoints, Reason: "endpoint populations unknown or stale"}
	}

	originIsSrc := p.Src <= p.Dst
	members := p.DstIDs
	if !originIsSrc {
		members = p.SrcIDs
	}
	if members > limit {
		return Decision{Case: CaseBothEndpoints, Reason: fmt.Sprintf("member id list (%d) exceeds limit %d", members, limit)}
	}
	return Decision{Case: CaseTraversal, OriginIsSrc: originIsSrc}
}

// Query is a connection request annotated for rewriting.
type Query struct {
	Plan *queryaql.Plan

	SrcIDs, DstIDs []string
	Signals        Signals
}

// Annotate partitions a compiled plan for a connection table.
func Annotate(p *queryaql.Plan) (*Query, error) {
	if !p.Table.IsConnection() {
		return nil, fmt.Errorf("table %s is not a connection table", p.Table.QualifiedName())
	}
	q := &Query{Plan: p}
	q.SrcIDs, q.Signals.SrcConstrained = p.Endpoints[options.ColSrc]
	q.DstIDs, q.Signals.DstConstrained = p.Endpoints[options.ColDst]

	q.Signals.Other = len(p.Constraints) > 0 || p.Table.SystemClass
	for _, col := range p.Listed {
		if col != options.ColSrc && col != options.ColDst {
			q.Signals.Other = true
		}
	}
	return q, nil
}

// Rewrite is a chosen shape ready for execution.
type Rewrite struct {
	Decision Decision
	Batch    *batch.CommandBatch
	Reshape  rows.Reshape
}

// Rewriter builds connection query shapes.
type Rewriter struct {
	logger *slog.Logger
}

// NewRewriter creates a Rewriter.
func NewRewriter(logger *slog.Logger) *Rewriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rewriter{logger: logger}
}

// Rewrite chooses a case for q and builds it.
func (r *Rewriter) Rewrite(q *Query, pops Populations) *Rewrite {
	pops.SrcIDs, pops.DstIDs = len(q.SrcIDs), len(q.DstIDs)
	d := Choose(q.Signals, pops, q.Plan.BatchSize)
	if d.Reason != "" {
		r.logger.Info("connection traversal not used",
			"table", q.Plan.Table.QualifiedName(),
			"reason", d.Reason,
		)
	}
	return Build(q, d)
}

// Build constructs the batch for a given decision. The decision must be
// consistent with which endpoints q constrains.
func Build(q *Query, d Decision) *Rewrite {
	switch d.Case {
	case CaseOneEndpoint:
		return buildEndpointFind(q, d, q.Signals.SrcConstrained, !q.Signals.SrcConstrained)
	case CaseBothEndpoints:
		return buildEndpointFind(q, d, true, true)
	case CaseTraversal:
		return buildTraversal(q, d)
	}
	b := q.Plan.Batch()
	return &Rewrite{Decision: d, Batch: b, Reshape: rows.Flat(b.ResultField, len(q.Plan.Listed) > 0)}
}

func buildEndpointFind(q *Query, d Decision, src, dst bool) *Rewrite {
	t := q.Plan.Table
	b := &batch.CommandBatch{ResultField: t.ResultField, Blobs: q.Plan.Blobs}
	body := q.Plan.Body()
	if src {
		verb, eb := endpointCommand(t.SrcClass, q.SrcIDs)
		eb["_ref"] = batch.Ref("src")
		b.Add(verb, eb)
		body["src"] = batch.Ref("src")
	}
	if dst {
		verb, eb := endpointCommand(t.DstClass, q.DstIDs)
		eb["_ref"] = batch.Ref("dst")
		b.Add(verb, eb)
		body["dst"] = batch.Ref("dst")
	}
	b.ResultIndex = b.Add(t.Command, body)
	b.SetCursor(q.Plan.BatchSize)
	return &Rewrite{Decision: d, Batch: b, Reshape: rows.Flat(b.ResultField, len(q.Plan.Listed) > 0)}
}

func buildTraversal(q *Query, d Decision) *Rewrite {
	t := q.Plan.Table
	originClass, originIDs := t.SrcClass, q.SrcIDs
	memberClass, memberIDs := t.DstClass, q.DstIDs
	direction := "in"
	if !d.OriginIsSrc {
		originClass, originIDs = t.DstClass, q.DstIDs
		memberClass, memberIDs = t.SrcClass, q.SrcIDs
		direction = "out"
	}

	b := &batch.CommandBatch{ResultField: options.FieldEntities}
	verb, origin := endpointCommand(originClass, originIDs)
	origin["_ref"] = batch.Ref("origin")
	b.Add(verb, origin)

	verb, member := endpointCommand(memberClass, memberIDs)
	link := map[string]any{"ref": batch.Ref("origin"), "direction": direction}
	if t.Class != "" {
		link["connection_class"] = t.Class
	}
	member["is_connected_to"] = link
	member["group_by_source"] = true
	member["results"] = map[string]any{
		"list":  []any{options.ColUniqueID},
		"limit": q.Plan.BatchSize,
	}
	b.ResultIndex = b.Add(verb, member)

	return &Rewrite{Decision: d, Batch: b, Reshape: rows.GroupedPairs(options.FieldEntities, d.OriginIsSrc)}
}

// endpointCommand builds an unpaged find for the given endpoint class
// restricted to ids.
func endpointCommand(class string, ids []string) (string, map[string]any) {
	lits := make([]any, len(ids))
	for i, id := range ids {
		lits[i] = id
	}
	body := map[string]any{
		"constraints": map[string]any{options.ColUniqueID: []any{"in", lits}},
	}
	switch {
	case class == "":
		return options.VerbFindEntity, body
	case strings.HasPrefix(class, "_"):
		return "Find" + class[1:], body
	}
	body["with_class"] = class
	return options.VerbFindEntity, body
}
