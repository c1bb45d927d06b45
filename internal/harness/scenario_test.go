package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/person_age.yaml")
	require.NoError(t, err)

	assert.Equal(t, "person_age", s.Name)
	require.Len(t, s.Graph.Entities, 4)
	assert.Equal(t, "ann", s.Graph.Entities[0].Ref)
	assert.Equal(t, 31, s.Graph.Entities[0].Props["age"])
	require.Len(t, s.Steps, 2)
	assert.Equal(t, "age > 30", s.Steps[0].Query.Where)
	require.NotNil(t, s.Steps[0].Expect.Requests)
	assert.Equal(t, 1, *s.Steps[0].Expect.Requests)
	require.Len(t, s.Assertions, 3)
	assert.Equal(t, AssertRequestContains, s.Assertions[0].Type)
}

func TestLoadScenario_AllFixturesParse(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	for _, path := range paths {
		_, err := LoadScenario(path)
		assert.NoError(t, err, path)
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
step:
  - name: a
    query: {table: T}
`))
	assert.ErrorContains(t, err, "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: "steps: [{name: a, query: {table: T}}]",
			want: "name is required",
		},
		{
			name: "no steps",
			yaml: "name: s",
			want: "at least one step",
		},
		{
			name: "missing table",
			yaml: "name: s\nsteps: [{name: a, query: {}}]",
			want: "query.table is required",
		},
		{
			name: "duplicate step",
			yaml: "name: s\nsteps: [{name: a, query: {table: T}}, {name: a, query: {table: T}}]",
			want: "duplicate step name",
		},
		{
			name: "bad advance",
			yaml: "name: s\nsteps: [{name: a, advance: soon, query: {table: T}}]",
			want: "advance",
		},
		{
			name: "bad max age",
			yaml: "name: s\nconfig: {population_max_age: forever}\nsteps: [{name: a, query: {table: T}}]",
			want: "population_max_age",
		},
		{
			name: "unknown connection ref",
			yaml: "name: s\ngraph: {connections: [{class: Owns, src: a, dst: b}]}\nsteps: [{name: a, query: {table: T}}]",
			want: `unknown ref "a"`,
		},
		{
			name: "duplicate ref",
			yaml: "name: s\ngraph: {entities: [{ref: a, class: P}, {ref: a, class: P}]}\nsteps: [{name: a, query: {table: T}}]",
			want: `duplicate ref "a"`,
		},
		{
			name: "unknown assertion",
			yaml: "name: s\nsteps: [{name: a, query: {table: T}}]\nassertions: [{type: trace_contains}]",
			want: "unknown assertion type",
		},
		{
			name: "assertion on unknown step",
			yaml: "name: s\nsteps: [{name: a, query: {table: T}}]\nassertions: [{type: request_count, verb: FindEntity, step: b}]",
			want: `unknown step "b"`,
		},
		{
			name: "request_order without verbs",
			yaml: "name: s\nsteps: [{name: a, query: {table: T}}]\nassertions: [{type: request_order}]",
			want: "requires verbs",
		},
		{
			name: "catalog_table without table",
			yaml: "name: s\nsteps: [{name: a, query: {table: T}}]\nassertions: [{type: catalog_table}]",
			want: "requires table",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_FromTempFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: tmp
graph:
  descriptor_sets: [{name: docs, dimensions: 2}]
  descriptors: [{ref: d0, set: docs, vector: [0.5, 1]}]
steps:
  - name: scan
    query: {table: descriptor.docs, limit: 1}
`), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 1}, s.Graph.Descriptors[0].Vector)
	assert.Equal(t, 1, s.Steps[0].Query.Limit)
	assert.Nil(t, s.Steps[0].Expect)
}
