// Package querysql renders scan requests as the parameterized SQL a
// relational host would issue against the foreign table.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/graphsql/internal/queryir"
)

// SQLCompiler renders requests in PostgreSQL style: double-quoted
// identifiers and $n placeholders. Values are never interpolated.
type SQLCompiler struct {
	// Placeholder formats the n-th parameter, starting at 1.
	Placeholder func(n int) string
}

// NewSQLCompiler creates a compiler with $n placeholders.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{
		Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	}
}

// Compile converts a request to (sql, params).
//
// An empty column list selects nothing, as a host does for count(*).
func (c *SQLCompiler) Compile(req queryir.Request) (string, []any, error) {
	if req.Table == "" {
		return "", nil, fmt.Errorf("cannot compile request without a table")
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if len(req.Columns) == 0 {
		b.WriteString("NULL")
	} else {
		for i, col := range req.Columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(quoteIdent(col))
		}
	}
	b.WriteString(" FROM ")
	b.WriteString(quoteTable(req.Table))

	var params []any
	for i, pred := range req.Where {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		frag, err := c.compilePredicate(pred, &params)
		if err != nil {
			return "", nil, fmt.Errorf("compile predicate %d: %w", i, err)
		}
		b.WriteString(frag)
	}
	return b.String(), params, nil
}

// compilePredicate appends values to params and returns the fragment.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate, params *[]any) (string, error) {
	bind := func(v any) string {
		*params = append(*params, v)
		return c.Placeholder(len(*params))
	}

	switch pred := p.(type) {
	case queryir.Compare:
		op, err := sqlOperator(pred.Op)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", quoteIdent(pred.Field), op, bind(pred.Value)), nil

	case queryir.In:
		// IN () is not valid SQL; an empty list matches nothing.
		if len(pred.Values) == 0 {
			if pred.Negated {
				return "TRUE", nil
			}
			return "FALSE", nil
		}
		holders := make([]string, len(pred.Values))
		for i, v := range pred.Values {
			holders[i] = bind(v)
		}
		kw := "IN"
		if pred.Negated {
			kw = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", quoteIdent(pred.Field), kw, strings.Join(holders, ", ")), nil

	case queryir.IsNull:
		if pred.Negated {
			return quoteIdent(pred.Field) + " IS NOT NULL", nil
		}
		return quoteIdent(pred.Field) + " IS NULL", nil

	case nil:
		return "", fmt.Errorf("nil predicate")

	default:
		return "", fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func sqlOperator(op queryir.Operator) (string, error) {
	switch op {
	case queryir.OpEq:
		return "=", nil
	case queryir.OpNe:
		return "<>", nil
	case queryir.OpLt, queryir.OpLe, queryir.OpGt, queryir.OpGe:
		return string(op), nil
	}
	return "", fmt.Errorf("operator %q is not a comparison", op)
}

// quoteTable splits a qualified name at the first dot into schema and
// table.
func quoteTable(name string) string {
	if kind, bare, ok := strings.Cut(name, "."); ok {
		return quoteIdent(kind) + "." + quoteIdent(bare)
	}
	return quoteIdent(name)
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
