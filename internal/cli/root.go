package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/graphsql/internal/config"
	"github.com/roach88/graphsql/internal/connector"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Config   string
	Database string
	Socket   string
	Endpoint string

	// Dial overrides how backend connectors are created (for testing).
	// If nil, connectors are unix-socket proxy clients built from config.
	Dial func(cfg *config.Config) (connector.Connector, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the graphsql CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graphsql",
		Short: "graphsql - relational tables over a graph database",
		Long: `graphsql exposes the classes, connections and descriptor sets of an
ApertureDB-style graph database as virtual tables, and translates scans
with predicates into native graph commands.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				msg := fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", msg)
				return NewExitError(ExitCommandError, msg)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to a CUE config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "catalog database path (overrides catalog.path)")
	cmd.PersistentFlags().StringVar(&opts.Socket, "socket", "", "proxy unix socket (overrides connector.socket)")
	cmd.PersistentFlags().StringVar(&opts.Endpoint, "endpoint", "", "proxy URL (overrides connector.endpoint)")

	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewTablesCommand(opts))
	cmd.AddCommand(NewDescribeCommand(opts))
	cmd.AddCommand(NewExplainCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewPathKeysCommand(opts))

	return cmd
}
