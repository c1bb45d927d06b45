package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/graphsql/internal/connection"
	"github.com/roach88/graphsql/internal/ir"
	"github.com/roach88/graphsql/internal/querysql"
	"github.com/roach88/graphsql/internal/schema"
)

// ExplainResult describes how a scan is translated.
type ExplainResult struct {
	Table       string           `json:"table"`
	Columns     []string         `json:"columns"`
	SQL         string           `json:"sql"`
	Params      []any            `json:"params,omitempty"`
	Commands    []map[string]any `json:"commands,omitempty"`
	Fingerprint string           `json:"fingerprint,omitempty"`
	BlobInputs  int              `json:"blob_inputs,omitempty"`

	// Empty is set when the predicates cannot match and no request is sent.
	Empty bool `json:"empty,omitempty"`

	FullyPushed bool     `json:"fully_pushed"`
	Residual    []string `json:"residual,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`

	Case        string `json:"case,omitempty"`
	OriginIsSrc *bool  `json:"origin_is_src,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	var flags requestFlags
	cmd := &cobra.Command{
		Use:   "explain <table>",
		Short: "Show the native commands a scan compiles to",
		Long: `Compile a scan without running it and print the first page of native
commands, which predicates are left to the host, and for connection tables
the chosen query shape.

Example:
  graphsql explain entity.Person --columns name --where "age > 30"
  graphsql explain connection.Owns --where "_src = '0001.0.0'" --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			cat, err := s.catalog(cmd.Context())
			if err != nil {
				return err
			}
			res, err := explain(s, cat, args[0], &flags)
			if err != nil {
				return err
			}
			if s.out.Format == "json" {
				return s.out.SuccessFor(cat.SnapshotID, res)
			}
			return writeExplain(s.out, res)
		},
	}
	flags.register(cmd)
	return cmd
}

func explain(s *session, cat *schema.Catalog, table string, flags *requestFlags) (*ExplainResult, error) {
	if err := s.lookup(cat, table); err != nil {
		return nil, err
	}
	t, _ := cat.Lookup(table)
	req, _, err := flags.build(t)
	if err != nil {
		return nil, s.out.Fail(ExitCommandError, ErrCodeRequest, "invalid request", err)
	}
	sql, params, err := querysql.NewSQLCompiler().Compile(req)
	if err != nil {
		return nil, s.out.Fail(ExitCommandError, ErrCodeRequest, "invalid request", err)
	}
	p, err := s.executor(nil).Prepare(cat, req)
	if err != nil {
		return nil, s.out.Fail(ExitCommandError, ErrCodeRequest, "failed to compile request", err)
	}

	res := &ExplainResult{
		Table:       t.QualifiedName(),
		Columns:     req.Columns,
		SQL:         sql,
		Params:      params,
		Empty:       p.Plan.Empty,
		BlobInputs:  len(p.Plan.Blobs),
		FullyPushed: p.Validation.FullyPushed,
		Warnings:    p.Validation.Warnings,
	}
	for _, r := range p.Plan.Residual {
		res.Residual = append(res.Residual, formatPredicate(r))
	}
	if d := p.Decision; d != nil {
		res.Case = d.Case.String()
		res.Reason = d.Reason
		if d.Case == connection.CaseTraversal {
			origin := d.OriginIsSrc
			res.OriginIsSrc = &origin
		}
	}
	if p.Plan.Empty {
		return res, nil
	}
	if res.Commands, err = p.Commands(); err != nil {
		return nil, s.out.Fail(ExitFailure, ErrCodeRequest, "failed to resolve commands", err)
	}
	if res.Fingerprint, err = p.Fingerprint(); err != nil {
		return nil, s.out.Fail(ExitFailure, ErrCodeRequest, "failed to fingerprint commands", err)
	}
	return res, nil
}

func writeExplain(out *OutputFormatter, res *ExplainResult) error {
	w := out.Writer
	fmt.Fprintf(w, "Table:    %s\n", res.Table)
	fmt.Fprintf(w, "Columns:  %v\n", res.Columns)
	fmt.Fprintf(w, "SQL:      %s\n", res.SQL)
	if len(res.Params) > 0 {
		fmt.Fprintf(w, "Params:   %v\n", res.Params)
	}
	if res.Case != "" {
		fmt.Fprintf(w, "Shape:    %s", res.Case)
		if res.OriginIsSrc != nil {
			origin := "dst"
			if *res.OriginIsSrc {
				origin = "src"
			}
			fmt.Fprintf(w, " (origin %s)", origin)
		}
		fmt.Fprintln(w)
		if res.Reason != "" {
			fmt.Fprintf(w, "Reason:   %s\n", res.Reason)
		}
	}
	if res.Empty {
		fmt.Fprintln(w, "Commands: none (predicates cannot match)")
	} else {
		data, err := ir.MarshalCanonical(res.Commands)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Commands: %s\n", data)
		fmt.Fprintf(w, "Fingerprint: %s\n", res.Fingerprint)
		if res.BlobInputs > 0 {
			fmt.Fprintf(w, "Input blobs: %d\n", res.BlobInputs)
		}
	}
	for _, r := range res.Residual {
		fmt.Fprintf(w, "Host filter: %s\n", r)
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "Warning: %s\n", warn)
	}
	return nil
}
