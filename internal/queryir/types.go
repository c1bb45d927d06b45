package queryir

import (
	"fmt"
	"strings"
)

// Operator is a comparison operator in wire spelling.
type Operator string

const (
	OpEq        Operator = "=="
	OpNe        Operator = "!="
	OpLt        Operator = "<"
	OpLe        Operator = "<="
	OpGt        Operator = ">"
	OpGe        Operator = ">="
	OpIn        Operator = "in"
	OpNotIn     Operator = "not in"
	OpIsNull    Operator = "is null"
	OpIsNotNull Operator = "is not null"
)

var operatorSpellings = map[string]Operator{
	"=": OpEq, "==": OpEq,
	"!=": OpNe, "<>": OpNe,
	"<": OpLt, "<=": OpLe, ">": OpGt, ">=": OpGe,
	"in": OpIn, "= any": OpIn,
	"not in": OpNotIn, "not-in": OpNotIn, "<> all": OpNotIn,
	"is null": OpIsNull, "is": OpIsNull,
	"is not null": OpIsNotNull, "is not": OpIsNotNull,
}

// ParseOperator accepts wire and SQL spellings, case-insensitively.
func ParseOperator(s string) (Operator, error) {
	key := strings.Join(strings.Fields(strings.ToLower(s)), " ")
	if op, ok := operatorSpellings[key]; ok {
		return op, nil
	}
	return "", fmt.Errorf("unknown operator %q", s)
}

// Predicate is a single column condition. Requests hold a conjunction of
// predicates.
//
// This is a sealed interface - only types in this package implement it.
type Predicate interface {
	predicateNode()

	// Column returns the column the predicate tests.
	Column() string
}

// Compare is <field> <op> <value> for ==, !=, <, <=, > and >=.
type Compare struct {
	Field string
	Op    Operator
	Value any
}

func (Compare) predicateNode()   {}
func (c Compare) Column() string { return c.Field }

// In is <field> IN (<values>), or NOT IN when Negated.
type In struct {
	Field   string
	Values  []any
	Negated bool
}

func (In) predicateNode()   {}
func (i In) Column() string { return i.Field }

// Op returns the wire operator.
func (i In) Op() Operator {
	if i.Negated {
		return OpNotIn
	}
	return OpIn
}

// IsNull is <field> IS NULL, or IS NOT NULL when Negated. Never pushed.
type IsNull struct {
	Field   string
	Negated bool
}

func (IsNull) predicateNode()   {}
func (n IsNull) Column() string { return n.Field }

// NewPredicate builds a predicate from an operator spelling and value.
// IN operators take a slice value.
func NewPredicate(field, op string, value any) (Predicate, error) {
	if field == "" {
		return nil, fmt.Errorf("predicate field is required")
	}
	o, err := ParseOperator(op)
	if err != nil {
		return nil, err
	}
	switch o {
	case OpIn, OpNotIn:
		values, err := toList(value)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", field, o, err)
		}
		return In{Field: field, Values: values, Negated: o == OpNotIn}, nil
	case OpIsNull, OpIsNotNull:
		return IsNull{Field: field, Negated: o == OpIsNotNull}, nil
	}
	return Compare{Field: field, Op: o, Value: value}, nil
}

func toList(v any) ([]any, error) {
	switch l := v.(type) {
	case []any:
		return l, nil
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, nil
	case []float64:
		out := make([]any, len(l))
		for i, f := range l {
			out[i] = f
		}
		return out, nil
	case []int:
		out := make([]any, len(l))
		for i, n := range l {
			out[i] = n
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a list, got %T", v)
}

// Request is one scan of a virtual table.
//
// Semantics:
//
//	SELECT <columns> FROM <table> WHERE <where[0]> AND <where[1]> ...
type Request struct {
	// Table is a qualified ("entity.Person") or unambiguous bare name.
	Table string

	// Columns lists the columns the host needs, in any order.
	Columns []string

	// Where is a conjunction. Empty means all rows.
	Where []Predicate
}
