package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is a seeded graph plus a sequence of scans and the expectations
// on them.
type Scenario struct {
	// Name uniquely identifies this scenario and its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Config overrides compiler and executor settings.
	Config Config `yaml:"config,omitempty"`

	Graph GraphSeed `yaml:"graph"`

	Steps []Step `yaml:"steps"`

	// Assertions run over the recorded trace after all steps.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Config mirrors the query and schema sections of the CLI configuration.
type Config struct {
	BatchSize     int `yaml:"batch_size,omitempty"`
	BlobBatchSize int `yaml:"blob_batch_size,omitempty"`

	// PopulationMaxAge is a Go duration string. Empty disables the check.
	PopulationMaxAge string `yaml:"population_max_age,omitempty"`
}

// GraphSeed lists what to put in the graph, in insertion order.
type GraphSeed struct {
	Entities       []ObjectSeed        `yaml:"entities,omitempty"`
	Objects        []ObjectSeed        `yaml:"objects,omitempty"`
	Connections    []ConnectionSeed    `yaml:"connections,omitempty"`
	DescriptorSets []DescriptorSetSeed `yaml:"descriptor_sets,omitempty"`
	Descriptors    []DescriptorSeed    `yaml:"descriptors,omitempty"`
	Indexes        []IndexSeed         `yaml:"indexes,omitempty"`
}

// ObjectSeed is an entity or, under objects, a system object with a
// payload such as an _Image.
type ObjectSeed struct {
	Ref   string         `yaml:"ref,omitempty"`
	Class string         `yaml:"class"`
	Props map[string]any `yaml:"props,omitempty"`
	Blob  string         `yaml:"blob,omitempty"`
}

// ConnectionSeed connects two seeded refs.
type ConnectionSeed struct {
	Ref   string         `yaml:"ref,omitempty"`
	Class string         `yaml:"class"`
	Src   string         `yaml:"src"`
	Dst   string         `yaml:"dst"`
	Props map[string]any `yaml:"props,omitempty"`
}

type DescriptorSetSeed struct {
	Name       string         `yaml:"name"`
	Dimensions int            `yaml:"dimensions"`
	Props      map[string]any `yaml:"props,omitempty"`
}

type DescriptorSeed struct {
	Ref    string         `yaml:"ref,omitempty"`
	Set    string         `yaml:"set"`
	Vector []float32      `yaml:"vector"`
	Props  map[string]any `yaml:"props,omitempty"`
}

type IndexSeed struct {
	Class    string `yaml:"class"`
	Property string `yaml:"property"`
}

// Step is one scan.
type Step struct {
	Name string `yaml:"name"`

	// Advance moves the clock forward before the scan, as a Go duration.
	Advance string `yaml:"advance,omitempty"`

	// Refresh re-introspects the graph before the scan.
	Refresh bool `yaml:"refresh,omitempty"`

	Query Query `yaml:"query"`

	// Expect is optional; without it the step only contributes to the trace.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// Query is a scan request in CLI terms.
type Query struct {
	Table string `yaml:"table"`

	// Columns defaults to the table's scan columns.
	Columns []string `yaml:"columns,omitempty"`

	Where string `yaml:"where,omitempty"`

	// Limit stops the scan after this many rows. Zero means all.
	Limit int `yaml:"limit,omitempty"`
}

// ExpectClause specifies the outcome of a step. Unset fields are not
// checked.
type ExpectClause struct {
	// Rows are compared in order unless Unordered is set.
	Rows      []map[string]any `yaml:"rows,omitempty"`
	Unordered bool             `yaml:"unordered,omitempty"`

	// Count is the number of rows returned after host filtering.
	Count *int `yaml:"count,omitempty"`

	// Requests is the number of round trips.
	Requests *int `yaml:"requests,omitempty"`

	// Filtered is the number of rows dropped on the host.
	Filtered *int `yaml:"filtered,omitempty"`

	// Case is the connection query shape, e.g. "case4".
	Case string `yaml:"case,omitempty"`

	// Empty expects contradictory identity predicates and no round trip.
	Empty bool `yaml:"empty,omitempty"`

	// Error is an execution error code such as SHAPE_INVALID, or a
	// substring of any other error.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the trace or the persisted catalog.
type Assertion struct {
	Type string `yaml:"type"`

	// Step restricts request assertions to one step. Empty means all.
	Step string `yaml:"step,omitempty"`

	// Verb is the command name (request_contains, request_count).
	Verb string `yaml:"verb,omitempty"`

	// Body is a subset of the command body (request_contains).
	Body map[string]any `yaml:"body,omitempty"`

	// Verbs is the expected order (request_order).
	Verbs []string `yaml:"verbs,omitempty"`

	// Count is the expected number of commands (request_count).
	Count int `yaml:"count,omitempty"`

	// Table and Columns are checked against the persisted catalog
	// (catalog_table). Columns must appear in order.
	Table   string   `yaml:"table,omitempty"`
	Columns []string `yaml:"columns,omitempty"`
}

// Assertion type constants.
const (
	AssertRequestContains = "request_contains"
	AssertRequestOrder    = "request_order"
	AssertRequestCount    = "request_count"
	AssertCatalogTable    = "catalog_table"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps must have at least one step")
	}
	if s.Config.PopulationMaxAge != "" {
		if _, err := time.ParseDuration(s.Config.PopulationMaxAge); err != nil {
			return fmt.Errorf("config.population_max_age: %w", err)
		}
	}

	refs := make(map[string]bool)
	addRef := func(where, ref string) error {
		if ref == "" {
			return nil
		}
		if refs[ref] {
			return fmt.Errorf("%s: duplicate ref %q", where, ref)
		}
		refs[ref] = true
		return nil
	}
	for i, o := range slices.Concat(s.Graph.Entities, s.Graph.Objects) {
		if o.Class == "" {
			return fmt.Errorf("graph object %d: class is required", i)
		}
		if err := addRef(fmt.Sprintf("graph object %d", i), o.Ref); err != nil {
			return err
		}
	}
	for i, d := range s.Graph.Descriptors {
		if d.Set == "" {
			return fmt.Errorf("graph.descriptors[%d]: set is required", i)
		}
		if err := addRef(fmt.Sprintf("graph.descriptors[%d]", i), d.Ref); err != nil {
			return err
		}
	}
	for i, c := range s.Graph.Connections {
		if c.Class == "" {
			return fmt.Errorf("graph.connections[%d]: class is required", i)
		}
		for _, end := range []string{c.Src, c.Dst} {
			if !refs[end] {
				return fmt.Errorf("graph.connections[%d]: unknown ref %q", i, end)
			}
		}
		if err := addRef(fmt.Sprintf("graph.connections[%d]", i), c.Ref); err != nil {
			return err
		}
	}

	names := make(map[string]bool)
	for i, step := range s.Steps {
		if step.Name == "" {
			return fmt.Errorf("steps[%d]: name is required", i)
		}
		if names[step.Name] {
			return fmt.Errorf("steps[%d]: duplicate step name %q", i, step.Name)
		}
		names[step.Name] = true
		if step.Query.Table == "" {
			return fmt.Errorf("steps[%d] (%s): query.table is required", i, step.Name)
		}
		if step.Advance != "" {
			if _, err := time.ParseDuration(step.Advance); err != nil {
				return fmt.Errorf("steps[%d] (%s): advance: %w", i, step.Name, err)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a, names); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateAssertion(a Assertion, steps map[string]bool) error {
	if a.Step != "" && !steps[a.Step] {
		return fmt.Errorf("unknown step %q", a.Step)
	}
	switch a.Type {
	case AssertRequestContains:
		if a.Verb == "" {
			return fmt.Errorf("request_contains requires verb")
		}
	case AssertRequestOrder:
		if len(a.Verbs) == 0 {
			return fmt.Errorf("request_order requires verbs")
		}
	case AssertRequestCount:
		if a.Verb == "" {
			return fmt.Errorf("request_count requires verb")
		}
		if a.Count < 0 {
			return fmt.Errorf("request_count requires a non-negative count")
		}
	case AssertCatalogTable:
		if a.Table == "" {
			return fmt.Errorf("catalog_table requires table")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
