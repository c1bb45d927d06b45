package harness

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/graphsql/internal/connector"
	"github.com/roach88/graphsql/internal/schema"
)

// AssertionError is a failed assertion, with the commands it looked at.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Commands []map[string]any
}

func (e *AssertionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "assertion %s failed\n  expected: %s\n  actual:   %s", e.Type, e.Expected, e.Actual)
	if len(e.Commands) > 0 {
		b.WriteString("\n  commands:")
		for i, cmd := range e.Commands {
			data, err := canonical(cmd)
			if err != nil {
				data = []byte(fmt.Sprint(cmd))
			}
			fmt.Fprintf(&b, "\n    [%d] %s", i, data)
		}
	}
	return b.String()
}

// EvaluateAssertions checks every assertion against result and returns the
// first failure.
func EvaluateAssertions(result *Result, assertions []Assertion) error {
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertRequestContains:
			err = assertRequestContains(result.Commands(a.Step), a)
		case AssertRequestOrder:
			err = assertRequestOrder(result.Commands(a.Step), a)
		case AssertRequestCount:
			err = assertRequestCount(result.Commands(a.Step), a)
		case AssertCatalogTable:
			err = assertCatalogTable(result.Catalog, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

// assertRequestContains passes if some command has the verb and a body
// that contains a.Body.
func assertRequestContains(commands []map[string]any, a Assertion) error {
	for _, cmd := range commands {
		body, ok := commandBody(cmd, a.Verb)
		if ok && containsSubset(body, a.Body) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertRequestContains,
		Expected: fmt.Sprintf("%s containing %v", a.Verb, a.Body),
		Actual:   "no matching command",
		Commands: commands,
	}
}

// assertRequestOrder passes if a.Verbs is a subsequence of the command
// verbs.
func assertRequestOrder(commands []map[string]any, a Assertion) error {
	verbs := commandVerbs(commands)
	next := 0
	for _, v := range verbs {
		if next < len(a.Verbs) && v == a.Verbs[next] {
			next++
		}
	}
	if next < len(a.Verbs) {
		return &AssertionError{
			Type:     AssertRequestOrder,
			Expected: strings.Join(a.Verbs, " -> "),
			Actual:   strings.Join(verbs, " -> "),
			Commands: commands,
		}
	}
	return nil
}

func assertRequestCount(commands []map[string]any, a Assertion) error {
	count := 0
	for _, v := range commandVerbs(commands) {
		if v == a.Verb {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertRequestCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Verb),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Commands: commands,
		}
	}
	return nil
}

// assertCatalogTable checks the persisted catalog. Columns must appear in
// the given relative order; other columns may be interleaved.
func assertCatalogTable(cat *schema.Catalog, a Assertion) error {
	if cat == nil {
		return fmt.Errorf("catalog_table: no persisted catalog")
	}
	t, err := cat.Lookup(a.Table)
	if err != nil {
		return &AssertionError{
			Type:     AssertCatalogTable,
			Expected: fmt.Sprintf("table %s", a.Table),
			Actual:   err.Error(),
		}
	}
	names := t.ColumnNames()
	next := 0
	for _, n := range names {
		if next < len(a.Columns) && n == a.Columns[next] {
			next++
		}
	}
	if next < len(a.Columns) {
		return &AssertionError{
			Type:     AssertCatalogTable,
			Expected: fmt.Sprintf("%s columns %v", a.Table, a.Columns),
			Actual:   fmt.Sprintf("columns %v", names),
		}
	}
	return nil
}

func commandVerbs(commands []map[string]any) []string {
	verbs := make([]string, 0, len(commands))
	for _, cmd := range commands {
		v, err := connector.Verb(cmd)
		if err != nil {
			v = "?"
		}
		verbs = append(verbs, v)
	}
	return verbs
}

func commandBody(cmd map[string]any, verb string) (map[string]any, bool) {
	v, err := connector.Verb(cmd)
	if err != nil || v != verb {
		return nil, false
	}
	body, ok := cmd[verb].(map[string]any)
	return body, ok
}

// containsSubset reports whether every key of want is in got with an equal
// value. Nested objects are compared by subset too.
func containsSubset(got, want map[string]any) bool {
	for k, w := range want {
		g, ok := got[k]
		if !ok {
			return false
		}
		wm, wIsMap := w.(map[string]any)
		gm, gIsMap := g.(map[string]any)
		if wIsMap && gIsMap {
			if !containsSubset(gm, wm) {
				return false
			}
			continue
		}
		if !valuesEqual(w, g) {
			return false
		}
	}
	return true
}

// valuesEqual compares by canonical JSON, so 30 equals 30.0 and
// json.Number("30").
func valuesEqual(a, b any) bool {
	ca, err := canonical(a)
	if err != nil {
		return false
	}
	cb, err := canonical(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}

// checkExpect compares a step trace with its expect clause and returns one
// message per mismatch.
func checkExpect(trace StepTrace, want *ExpectClause) []string {
	var msgs []string
	if want.Error != "" {
		if trace.Error == "" {
			msgs = append(msgs, fmt.Sprintf("expected error %q, got none", want.Error))
		} else if trace.Error != want.Error && !strings.Contains(trace.Error, want.Error) {
			msgs = append(msgs, fmt.Sprintf("expected error %q, got %q", want.Error, trace.Error))
		}
	} else if trace.Error != "" {
		msgs = append(msgs, fmt.Sprintf("unexpected error: %s", trace.Error))
	}

	if want.Case != "" && trace.Case != want.Case {
		msgs = append(msgs, fmt.Sprintf("expected %s, got %q", want.Case, trace.Case))
	}
	if want.Empty && !trace.Empty {
		msgs = append(msgs, "expected contradictory predicates to short-circuit")
	}
	if want.Requests != nil && len(trace.Requests) != *want.Requests {
		msgs = append(msgs, fmt.Sprintf("expected %d request(s), got %d", *want.Requests, len(trace.Requests)))
	}
	if want.Count != nil && len(trace.Rows) != *want.Count {
		msgs = append(msgs, fmt.Sprintf("expected %d row(s), got %d", *want.Count, len(trace.Rows)))
	}
	if want.Filtered != nil && trace.Filtered != *want.Filtered {
		msgs = append(msgs, fmt.Sprintf("expected %d filtered row(s), got %d", *want.Filtered, trace.Filtered))
	}
	if want.Rows != nil {
		if msg := compareRows(want.Rows, trace.Rows, want.Unordered); msg != "" {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

func compareRows(want, got []map[string]any, unordered bool) string {
	encode := func(rows []map[string]any) ([]string, error) {
		out := make([]string, len(rows))
		for i, r := range rows {
			data, err := canonical(r)
			if err != nil {
				return nil, err
			}
			out[i] = string(data)
		}
		if unordered {
			slices.Sort(out)
		}
		return out, nil
	}
	w, err := encode(want)
	if err != nil {
		return fmt.Sprintf("expected rows: %v", err)
	}
	g, err := encode(got)
	if err != nil {
		return fmt.Sprintf("actual rows: %v", err)
	}
	if !slices.Equal(w, g) {
		return fmt.Sprintf("rows differ\n  expected: %s\n  actual:   %s", strings.Join(w, " "), strings.Join(g, " "))
	}
	return ""
}
