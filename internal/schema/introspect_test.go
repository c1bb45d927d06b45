package schema

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphsql/internal/connector"
	"github.com/roach88/graphsql/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func seedGraph() *testutil.Graph {
	g := testutil.NewGraph()
	ann := g.AddEntity("Person", map[string]any{"name": "ann", "age": 31})
	g.AddEntity("Person", map[string]any{"name": "bob"})
	rex := g.AddEntity("Pet", map[string]any{"name": "rex"})
	g.Connect("Owns", ann, rex, map[string]any{"since": 2020})
	g.Index("Person", "name")

	g.AddDescriptorSet("docs", 2, map[string]any{
		"embeddings_provider":   "clip",
		"embeddings_model":      "ViT-B/32",
		"embeddings_pretrained": "openai",
	})
	g.AddDescriptor("docs", []float32{0, 1}, map[string]any{"text": "hello"})
	g.AddDescriptor("docs", []float32{1, 0}, map[string]any{"text": "world"})
	g.AddDescriptorSet("raw", 4, nil)
	return g
}

func TestIntrospector_Snapshot(t *testing.T) {
	g := seedGraph()
	snap, err := NewIntrospector(g, WithIntrospectorLogger(quietLogger())).Snapshot(context.Background())
	require.NoError(t, err)

	person := snap.Entities.Classes["Person"]
	assert.Equal(t, int64(2), person.Matched)
	assert.Equal(t, Property{Count: 2, Indexed: true, Type: "String"}, person.Properties["name"])
	assert.Equal(t, Property{Count: 1, Indexed: false, Type: "Number"}, person.Properties["age"])
	assert.NotContains(t, snap.Entities.Classes, "_Descriptor")

	owns := snap.Connections.Classes["Owns"]
	assert.Equal(t, "Person", owns.Src)
	assert.Equal(t, "Pet", owns.Dst)

	require.Len(t, snap.DescriptorSets, 2)
	docs := snap.DescriptorSets[0]
	assert.Equal(t, "docs", docs.Name)
	assert.Equal(t, int64(2), docs.Count)
	assert.Equal(t, 2, docs.Dimensions)
	assert.Equal(t, []string{"L2"}, docs.Metrics)
	assert.True(t, docs.SupportsFindSimilar())
	assert.Equal(t, "String", docs.Descriptor.Properties["text"].Type)

	raw := snap.DescriptorSets[1]
	assert.Equal(t, "raw", raw.Name)
	assert.Empty(t, raw.Descriptor.Properties)
}

func TestIntrospector_SnapshotBuildsCatalog(t *testing.T) {
	snap, err := NewIntrospector(seedGraph(), WithIntrospectorLogger(quietLogger())).Snapshot(context.Background())
	require.NoError(t, err)

	cat, err := Build(snap, builtAt, WithBuildLogger(quietLogger()))
	require.NoError(t, err)

	docs, err := cat.Lookup("docs")
	require.NoError(t, err)
	_, ok := docs.Column("_find_similar")
	assert.True(t, ok)

	raw, err := cat.Lookup("raw")
	require.NoError(t, err)
	_, ok = raw.Column("_find_similar")
	assert.False(t, ok)
}

func TestIntrospector_ShapeErrors(t *testing.T) {
	tests := []struct {
		name      string
		intercept func([]map[string]any, *connector.Response) (*connector.Response, error)
		want      string
	}{
		{
			name: "missing result",
			intercept: func(_ []map[string]any, r *connector.Response) (*connector.Response, error) {
				r.JSON = nil
				return r, nil
			},
			want: "returned 0 results",
		},
		{
			name: "failed status",
			intercept: func(_ []map[string]any, r *connector.Response) (*connector.Response, error) {
				r.Status = 2
				return r, nil
			},
			want: "status 2",
		},
		{
			name: "transport error",
			intercept: func([]map[string]any, *connector.Response) (*connector.Response, error) {
				return nil, assert.AnError
			},
			want: assert.AnError.Error(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := seedGraph()
			g.Intercept(tt.intercept)

			_, err := NewIntrospector(g, WithIntrospectorLogger(quietLogger())).Snapshot(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestIntrospector_ConcurrentDescriptorFetches(t *testing.T) {
	g := testutil.NewGraph()
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		g.AddDescriptorSet(name, 2, nil)
		g.AddDescriptor(name, []float32{1, 1}, map[string]any{"tag": name})
	}

	snap, err := NewIntrospector(g, WithConcurrency(3), WithIntrospectorLogger(quietLogger())).Snapshot(context.Background())
	require.NoError(t, err)

	require.Len(t, snap.DescriptorSets, 6)
	for i, name := range []string{"a", "b", "c", "d", "e", "f"} {
		assert.Equal(t, name, snap.DescriptorSets[i].Name)
		assert.Contains(t, snap.DescriptorSets[i].Descriptor.Properties, "tag")
	}
	// GetSchema, FindDescriptorSet, then one request per set.
	assert.Len(t, g.Requests(), 8)
}
