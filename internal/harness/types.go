package harness

import "github.com/roach88/graphsql/internal/schema"

// StepTrace records what one step sent and received.
type StepTrace struct {
	Step  string `json:"step"`
	Table string `json:"table"`

	// Requests holds the wire commands of each round trip.
	Requests [][]map[string]any `json:"requests"`

	// Rows are projected to the requested columns and rendered to JSON
	// values: times as RFC 3339 strings, payloads as text.
	Rows []map[string]any `json:"rows"`

	Filtered int    `json:"filtered,omitempty"`
	Case     string `json:"case,omitempty"`
	Empty    bool   `json:"empty,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true if every expect clause held.
	Pass bool `json:"pass"`

	Steps []StepTrace `json:"steps"`

	Errors []string `json:"errors,omitempty"`

	// Catalog is the catalog as persisted after the last refresh.
	Catalog *schema.Catalog `json:"-"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepTrace{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Step returns the trace of the named step.
func (r *Result) Step(name string) (StepTrace, bool) {
	for _, s := range r.Steps {
		if s.Step == name {
			return s, true
		}
	}
	return StepTrace{}, false
}

// Commands flattens the requests of the named step, or of every step when
// name is empty, in send order.
func (r *Result) Commands(name string) []map[string]any {
	var out []map[string]any
	for _, s := range r.Steps {
		if name != "" && s.Step != name {
			continue
		}
		for _, req := range s.Requests {
			out = append(out, req...)
		}
	}
	return out
}
