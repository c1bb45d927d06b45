package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/graphsql/internal/ir"
	"github.com/roach88/graphsql/internal/options"
)

// TableSummary is one line of the tables listing.
type TableSummary struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Class   string `json:"class,omitempty"`
	Command string `json:"command"`
	Count   int64  `json:"count"`
	Columns int    `json:"columns"`
}

// NewTablesCommand creates the tables command.
func NewTablesCommand(rootOpts *RootOptions) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the virtual tables of the current catalog",
		Long: `List the virtual tables of the most recently stored catalog. When no
catalog is stored the backend is introspected first.

Example:
  graphsql tables
  graphsql tables --kind connection --format json`,
		Args:          cobra.NoArgs,
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
			var summaries []TableSummary
			for _, t := range cat.Tables() {
				if kind != "" && string(t.Kind) != kind {
					continue
				}
				summaries = append(summaries, TableSummary{
					Name:    t.QualifiedName(),
					Kind:    string(t.Kind),
					Class:   t.Class,
					Command: t.Command,
					Count:   t.Count,
					Columns: len(t.Columns),
				})
			}
			if s.out.Format == "json" {
				return s.out.SuccessFor(cat.SnapshotID, summaries)
			}
			rows := make([][]any, len(summaries))
			for i, t := range summaries {
				rows[i] = []any{t.Name, t.Command, t.Count, t.Columns}
			}
			return s.out.Table([]string{"TABLE", "COMMAND", "COUNT", "COLUMNS"}, rows)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "only list tables of this kind (entity|connection|descriptor|system)")
	return cmd
}

// TableDescription is the describe output.
type TableDescription struct {
	Name    string            `json:"name"`
	Options map[string]string `json:"options"`
	Columns []ColumnInfo      `json:"columns"`
}

// ColumnInfo is one column of a described table.
type ColumnInfo struct {
	Name    string            `json:"name"`
	SQLType string            `json:"sql_type"`
	Options map[string]string `json:"options"`
}

// NewDescribeCommand creates the describe command.
func NewDescribeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <table>",
		Short: "Show the columns and options of a table",
		Long: `Show a table's option model as the host stores it: table options and,
per column, the SQL type and column options.

Example:
  graphsql describe entity.Person
  graphsql describe Owns --format json`,
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
			if err := s.lookup(cat, args[0]); err != nil {
				return err
			}
			t, _ := cat.Lookup(args[0])
			desc, err := describeTable(t)
			if err != nil {
				return s.out.Fail(ExitFailure, ErrCodeCatalog, "failed to encode table options", err)
			}
			if s.out.Format == "json" {
				return s.out.SuccessFor(cat.SnapshotID, desc)
			}
			return writeDescription(s.out, desc)
		},
	}
}

func describeTable(t *options.Table) (TableDescription, error) {
	tableOpts, err := options.EncodeTable(t)
	if err != nil {
		return TableDescription{}, err
	}
	desc := TableDescription{Name: t.QualifiedName(), Options: tableOpts}
	for _, c := range t.Columns {
		colOpts, err := options.EncodeColumn(c)
		if err != nil {
			return TableDescription{}, fmt.Errorf("column %s: %w", c.Name, err)
		}
		desc.Columns = append(desc.Columns, ColumnInfo{
			Name:    c.Name,
			SQLType: c.Type.SQLType(),
			Options: colOpts,
		})
	}
	return desc, nil
}

func writeDescription(out *OutputFormatter, desc TableDescription) error {
	fmt.Fprintf(out.Writer, "Table %s\n", desc.Name)
	for _, k := range ir.SortedKeys(desc.Options) {
		fmt.Fprintf(out.Writer, "  %s = %s\n", k, desc.Options[k])
	}
	fmt.Fprintln(out.Writer)

	rows := make([][]any, len(desc.Columns))
	for i, c := range desc.Columns {
		var parts []string
		for _, k := range ir.SortedKeys(c.Options) {
			parts = append(parts, k+"="+c.Options[k])
		}
		rows[i] = []any{c.Name, c.SQLType, strings.Join(parts, " ")}
	}
	return out.Table([]string{"COLUMN", "TYPE", "OPTIONS"}, rows)
}
