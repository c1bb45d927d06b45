package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/graphsql/internal/options"
	"github.com/roach88/graphsql/internal/queryir"
)

// requestFlags are the scan flags shared by explain and query.
type requestFlags struct {
	columns []string
	where   string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.columns, "columns", nil, "columns to return (default: all property columns)")
	cmd.Flags().StringVarP(&f.where, "where", "w", "", `conjunction of predicates, e.g. "age > 30 and name in ('a','b')"`)
}

// build turns the flags into a request against t. The request also fetches
// the columns of predicates the backend will not evaluate, so the host can
// post-filter them. output lists only the columns to print.
func (f *requestFlags) build(t *options.Table) (queryir.Request, []string, error) {
	preds, err := queryir.ParseWhere(f.where)
	if err != nil {
		return queryir.Request{}, nil, fmt.Errorf("invalid --where: %w", err)
	}

	output := f.columns
	if len(output) == 0 {
		output = t.ScanColumns()
	}
	fetch := slices.Clone(output)
	for _, c := range queryir.HostColumns(t, preds) {
		if !slices.Contains(fetch, c) {
			fetch = append(fetch, c)
		}
	}
	return queryir.Request{Table: t.QualifiedName(), Columns: fetch, Where: preds}, output, nil
}

// formatPredicate renders a predicate in where-clause syntax.
func formatPredicate(p queryir.Predicate) string {
	switch x := p.(type) {
	case queryir.Compare:
		return fmt.Sprintf("%s %s %s", x.Field, x.Op, formatLiteral(x.Value))
	case queryir.In:
		items := make([]string, len(x.Values))
		for i, v := range x.Values {
			items[i] = formatLiteral(v)
		}
		return fmt.Sprintf("%s %s (%s)", x.Field, x.Op(), strings.Join(items, ", "))
	case queryir.IsNull:
		if x.Negated {
			return x.Field + " is not null"
		}
		return x.Field + " is null"
	}
	return fmt.Sprint(p)
}

func formatLiteral(v any) string {
	if s, ok := v.(string); ok {
		return "'" + s + "'"
	}
	return fmt.Sprint(v)
}
