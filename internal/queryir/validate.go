package queryir

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/roach88/graphsql/internal/options"
)

// pushable lists the operators the backend evaluates exactly, per type.
var pushable = map[options.ValueType][]Operator{
	options.TypeNumber:   {OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpIn, OpNotIn},
	options.TypeDatetime: {OpEq, OpNe, OpLt, OpLe, OpGt, OpGe},
	options.TypeString:   {OpEq, OpNe, OpIn, OpNotIn},
	options.TypeBoolean:  {OpEq, OpNe},
	options.TypeUniqueID: {OpEq, OpIn},
}

// Pushdown reports whether pred can be evaluated by the backend for a
// column of type typ, and why not when it cannot.
func Pushdown(pred Predicate, typ options.ValueType) (bool, string) {
	switch p := pred.(type) {
	case Compare:
		if !slices.Contains(pushable[typ], p.Op) {
			return false, fmt.Sprintf("operator %s not pushed for %s columns", p.Op, typ)
		}
		if !literalMatches(p.Value, typ) {
			return false, fmt.Sprintf("literal %T does not match %s column", p.Value, typ)
		}
		return true, ""
	case In:
		if !slices.Contains(pushable[typ], p.Op()) {
			return false, fmt.Sprintf("operator %s not pushed for %s columns", p.Op(), typ)
		}
		if len(p.Values) == 0 {
			return false, "empty IN list"
		}
		for _, v := range p.Values {
			if !literalMatches(v, typ) {
				return false, fmt.Sprintf("literal %T does not match %s column", v, typ)
			}
		}
		return true, ""
	case IsNull:
		return false, "null tests are not pushed"
	}
	return false, fmt.Sprintf("unknown predicate type %T", pred)
}

func literalMatches(v any, typ options.ValueType) bool {
	switch typ {
	case options.TypeNumber:
		switch v.(type) {
		case int, int32, int64, float32, float64, json.Number:
			return true
		}
	case options.TypeString, options.TypeUniqueID:
		_, ok := v.(string)
		return ok
	case options.TypeBoolean:
		_, ok := v.(bool)
		return ok
	case options.TypeDatetime:
		switch t := v.(type) {
		case time.Time:
			return true
		case string:
			_, err := time.Parse(time.RFC3339Nano, t)
			return err == nil
		}
	}
	return false
}

// ValidationResult describes how a request will be translated.
type ValidationResult struct {
	// FullyPushed is true when the backend evaluates every predicate.
	FullyPushed bool

	// Warnings lists predicates left to the host's post-filter.
	Warnings []string
}

// Validate checks a request against a table.
//
// Unknown columns and non-equality predicates on pseudo columns are
// errors. Predicates that will not be pushed are reported as warnings.
func Validate(req Request, table *options.Table) (ValidationResult, error) {
	for _, name := range req.Columns {
		if _, ok := table.Column(name); !ok {
			return ValidationResult{}, fmt.Errorf("table %s has no column %q", table.QualifiedName(), name)
		}
	}

	var warnings []string
	for _, pred := range req.Where {
		col, ok := table.Column(pred.Column())
		if !ok {
			return ValidationResult{}, fmt.Errorf("table %s has no column %q", table.QualifiedName(), pred.Column())
		}
		if col.IsPseudo() {
			if c, ok := pred.(Compare); !ok || c.Op != OpEq {
				return ValidationResult{}, fmt.Errorf("column %q only supports equality", col.Name)
			}
			continue
		}
		if ok, reason := Pushdown(pred, col.Type); !ok {
			warnings = append(warnings, fmt.Sprintf("%s: %s", col.Name, reason))
		}
	}
	return ValidationResult{FullyPushed: len(warnings) == 0, Warnings: warnings}, nil
}

// HostColumns returns the columns of preds the backend will not evaluate,
// in predicate order and without duplicates. A host post-filter needs them
// fetched even when they are not projected.
func HostColumns(t *options.Table, preds []Predicate) []string {
	var cols []string
	for _, p := range preds {
		col, ok := t.Column(p.Column())
		if !ok || col.IsPseudo() || slices.Contains(cols, col.Name) {
			continue
		}
		if pushed, _ := Pushdown(p, col.Type); !pushed {
			cols = append(cols, col.Name)
		}
	}
	return cols
}
