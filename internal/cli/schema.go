package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/graphsql/internal/store"
)

// NewSchemaCommand creates the schema command group.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Introspect the backend schema and inspect stored catalogs",
	}
	cmd.AddCommand(newSchemaRefreshCommand(rootOpts))
	cmd.AddCommand(newSchemaHistoryCommand(rootOpts))
	cmd.AddCommand(newSchemaShowCommand(rootOpts))
	return cmd
}

// RefreshResult is the output of schema refresh.
type RefreshResult struct {
	SnapshotID string    `json:"snapshot_id"`
	BuiltAt    time.Time `json:"built_at"`
	Tables     int       `json:"tables"`
	Changed    bool      `json:"changed"`
}

func newSchemaRefreshCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Introspect the backend and store the resulting catalog",
		Long: `Fetch the schema and descriptor sets from the backend, build the table
catalog and store it. A catalog whose snapshot is already stored is not
rewritten; every refresh is recorded in the history.

Example:
  graphsql schema refresh --socket /tmp/aperturedb-proxy.sock
  graphsql schema refresh --db ./catalog.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			cat, changed, err := s.refresh(cmd.Context())
			if err != nil {
				return err
			}
			res := RefreshResult{
				SnapshotID: cat.SnapshotID,
				BuiltAt:    cat.BuiltAt,
				Tables:     len(cat.Tables()),
				Changed:    changed,
			}
			if s.out.Format == "json" {
				return s.out.SuccessFor(cat.SnapshotID, res)
			}
			state := "unchanged"
			if changed {
				state = "updated"
			}
			return s.out.Success(fmt.Sprintf("✓ Catalog %s: %d table(s), snapshot %s", state, res.Tables, res.SnapshotID))
		},
	}
}

func newSchemaHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:           "history",
		Short:         "List recorded schema refreshes, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			history, err := s.store.History(cmd.Context(), limit)
			if err != nil {
				return s.out.Fail(ExitCommandError, ErrCodeStore, "failed to read history", err)
			}
			if s.out.Format == "json" {
				return s.out.Success(history)
			}
			return writeHistory(s.out, history)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum entries (0 for all)")
	return cmd
}

func writeHistory(out *OutputFormatter, history []store.Refresh) error {
	if len(history) == 0 {
		return out.Success("No refreshes recorded")
	}
	rows := make([][]any, len(history))
	for i, r := range history {
		rows[i] = []any{r.Seq, r.RefreshedAt, r.SnapshotID, r.Changed}
	}
	return out.Table([]string{"SEQ", "REFRESHED", "SNAPSHOT", "CHANGED"}, rows)
}

func newSchemaShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show [snapshot-id]",
		Short: "Print a stored schema snapshot",
		Long: `Print the raw schema snapshot a catalog was built from. Without an
argument the snapshot of the latest refresh is shown.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			var id string
			if len(args) == 1 {
				id = args[0]
			} else if id, err = s.store.LatestSnapshotID(ctx); err != nil {
				return s.out.Fail(ExitCommandError, ErrCodeStore, "no stored snapshot", err)
			}
			snap, err := s.store.Snapshot(ctx, id)
			if err != nil {
				return s.out.Fail(ExitCommandError, ErrCodeStore, "failed to load snapshot", err)
			}
			if s.out.Format == "json" {
				return s.out.SuccessFor(id, snap)
			}
			data, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return s.out.Fail(ExitFailure, ErrCodeStore, "failed to encode snapshot", err)
			}
			return s.out.Success(string(data))
		},
	}
}
