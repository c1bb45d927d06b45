package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/graphsql/internal/planner"
)

// NewPathKeysCommand creates the pathkeys command.
func NewPathKeysCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pathkeys <table>",
		Short: "List the access paths a planner may use for a table",
		Long: `List the column sets whose equality predicates the backend answers
efficiently, with the expected row count for each. Unique columns yield one
row; other indexed columns use planner.indexed_estimate.

Example:
  graphsql pathkeys entity.Person
  graphsql pathkeys connection.Owns --format json`,
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
			keys := planner.PathKeys(t, s.cfg.Planner.IndexedEstimate)
			if keys == nil {
				keys = []planner.PathKey{}
			}
			if s.out.Format == "json" {
				return s.out.SuccessFor(cat.SnapshotID, keys)
			}
			if len(keys) == 0 {
				return s.out.Success("No indexed access paths")
			}
			rows := make([][]any, len(keys))
			for i, k := range keys {
				rows[i] = []any{strings.Join(k.Columns, ", "), k.Rows}
			}
			return s.out.Table([]string{"COLUMNS", "ROWS"}, rows)
		},
	}
}
