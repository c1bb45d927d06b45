package cli

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/roach88/graphsql/internal/executor"
	"github.com/roach88/graphsql/internal/queryir"
	"github.com/roach88/graphsql/internal/rows"
)

// QueryResult is the JSON output of query.
type QueryResult struct {
	Table   string           `json:"table"`
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Count   int              `json:"count"`

	// Filtered counts rows dropped by host-side predicates.
	Filtered int `json:"filtered,omitempty"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	var flags requestFlags
	var limit int
	var metrics bool
	cmd := &cobra.Command{
		Use:   "query <table>",
		Short: "Scan a virtual table",
		Long: `Scan a virtual table. Pushable predicates run on the backend; the rest
are applied here after rows arrive. Pages are fetched until the cursor is
exhausted or --limit rows have been printed.

Example:
  graphsql query entity.Person --columns name --where "age > 30"
  graphsql query descriptor.faces --where "_find_similar = '{\"vector\":[0,0],\"k_neighbors\":2}'"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			cat, err := s.catalog(ctx)
			if err != nil {
				return err
			}
			if err := s.lookup(cat, args[0]); err != nil {
				return err
			}
			t, _ := cat.Lookup(args[0])
			req, output, err := flags.build(t)
			if err != nil {
				return s.out.Fail(ExitCommandError, ErrCodeRequest, "invalid request", err)
			}

			reg := prometheus.NewRegistry()
			exec := s.executor(reg)
			p, err := exec.Prepare(cat, req)
			if err != nil {
				return s.out.Fail(ExitCommandError, ErrCodeRequest, "failed to compile request", err)
			}
			for _, w := range p.Validation.Warnings {
				s.logger.Debug("host filter", "table", t.QualifiedName(), "reason", w)
			}

			res := QueryResult{Table: t.QualifiedName(), Columns: output, Rows: []map[string]any{}}
			for row, err := range exec.Run(ctx, p) {
				if err != nil {
					code := ErrCodeExecution
					if executor.IsShapeError(err) {
						code = ErrCodeShape
					}
					return s.out.Fail(ExitFailure, code, "query failed", err)
				}
				if !queryir.MatchAll(p.Plan.Residual, row) {
					res.Filtered++
					continue
				}
				res.Rows = append(res.Rows, project(row, output))
				res.Count++
				if limit > 0 && res.Count >= limit {
					break
				}
			}

			if metrics {
				if err := writeMetrics(s.out, reg); err != nil {
					s.logger.Warn("writing metrics", "error", err)
				}
			}
			if s.out.Format == "json" {
				return s.out.SuccessFor(cat.SnapshotID, res)
			}
			return writeRows(s.out, res)
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "stop after this many rows (0 for all)")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "print execution metrics to stderr")
	return cmd
}

// project keeps the output columns. Absent values stay absent.
func project(row rows.Row, columns []string) map[string]any {
	out := make(map[string]any, len(columns))
	for _, c := range columns {
		if v, ok := row[c]; ok {
			out[c] = v
		}
	}
	return out
}

func writeRows(out *OutputFormatter, res QueryResult) error {
	cells := make([][]any, len(res.Rows))
	for i, row := range res.Rows {
		line := make([]any, len(res.Columns))
		for j, c := range res.Columns {
			line[j] = row[c]
		}
		cells[i] = line
	}
	if err := out.Table(res.Columns, cells); err != nil {
		return err
	}
	summary := fmt.Sprintf("(%d row(s)", res.Count)
	if res.Filtered > 0 {
		summary += fmt.Sprintf(", %d filtered on host", res.Filtered)
	}
	_, err := fmt.Fprintln(out.Writer, summary+")")
	return err
}

func writeMetrics(out *OutputFormatter, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(out.GetErrWriter(), mf); err != nil {
			return err
		}
	}
	return nil
}
