package rows

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphsql/internal/options"
)

func imageTable() *options.Table {
	cols := []options.Column{
		options.PropertyColumn("label", options.TypeString, 1, false),
		options.PropertyColumn("taken", options.TypeDatetime, 1, false),
		options.PropertyColumn("exif", options.TypeJSON, 1, false),
		options.PropertyColumn("public", options.TypeBoolean, 1, false),
		options.UniqueIDColumn(1),
	}
	cols = append(cols, options.BlobColumns(options.ColImage)...)
	return &options.Table{Name: "Image", Kind: options.KindSystem, Command: "FindImage", ResultField: "entities", Columns: cols}
}

func TestNormalize_Types(t *testing.T) {
	n := &Normalizer{
		Table:   imageTable(),
		Columns: []string{"label", "taken", "exif", "public"},
	}
	row, err := n.Normalize(map[string]any{
		"label":     "cat",
		"taken":     map[string]any{"_date": "2024-05-06T07:08:09Z"},
		"exif":      map[string]any{"b": 1.0, "a": []any{"x"}},
		"public":    "true",
		"_uniqueid": "1.1.1",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "cat", row["label"])
	assert.Equal(t, time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC), row["taken"])
	assert.Equal(t, `{"a":["x"],"b":1}`, row["exif"])
	assert.Equal(t, true, row["public"])
	_, extra := row["_uniqueid"]
	assert.False(t, extra, "only requested columns are kept")
}

func TestNormalize_MissingAndNull(t *testing.T) {
	n := &Normalizer{Table: imageTable(), Columns: []string{"label", "taken"}}
	row, err := n.Normalize(map[string]any{"taken": nil}, nil)
	require.NoError(t, err)
	assert.Empty(t, row)
}

func TestNormalize_Errors(t *testing.T) {
	n := &Normalizer{Table: imageTable(), Columns: []string{"taken", "public"}}

	_, err := n.Normalize(map[string]any{"taken": 12.0}, nil)
	assert.ErrorContains(t, err, `column "taken"`)

	_, err = n.Normalize(map[string]any{"public": "maybe"}, nil)
	assert.ErrorContains(t, err, "invalid boolean")
}

func TestNormalize_BlobIsolation(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G'}

	attached := &Normalizer{
		Table:      imageTable(),
		Columns:    []string{"label", options.ColImage, options.ColBlobs},
		Echo:       map[string]any{options.ColBlobs: true},
		AttachBlob: options.ColImage,
	}
	row, err := attached.Normalize(map[string]any{"label": "cat"}, payload)
	require.NoError(t, err)
	assert.Equal(t, payload, row[options.ColImage])
	assert.Equal(t, true, row[options.ColBlobs])

	// Toggle off: the payload column stays empty even if a payload arrives.
	detached := &Normalizer{
		Table:   imageTable(),
		Columns: []string{"label", options.ColImage, options.ColBlobs},
		Echo:    map[string]any{options.ColBlobs: false},
	}
	row, err = detached.Normalize(map[string]any{"label": "cat"}, payload)
	require.NoError(t, err)
	_, has := row[options.ColImage]
	assert.False(t, has)
	assert.Equal(t, false, row[options.ColBlobs])
}

func TestFlat(t *testing.T) {
	objs, err := Flat("entities", true)(map[string]any{
		"entities": []any{map[string]any{"a": 1.0}, map[string]any{"a": 2.0}},
	})
	require.NoError(t, err)
	assert.Len(t, objs, 2)

	objs, err = Flat("entities", true)(map[string]any{"returned": 0.0})
	require.NoError(t, err)
	assert.Empty(t, objs)

	_, err = Flat("entities", true)(map[string]any{"returned": 3.0})
	assert.ErrorContains(t, err, `no "entities" field`)

	_, err = Flat("entities", true)(map[string]any{"entities": "nope"})
	assert.ErrorContains(t, err, "want list")

	_, err = Flat("entities", true)(map[string]any{"entities": []any{"nope"}})
	assert.ErrorContains(t, err, "want object")
}

func TestFlat_Unlisted(t *testing.T) {
	objs, err := Flat("entities", false)(map[string]any{"returned": 3.0})
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{}, {}, {}}, objs)

	objs, err = Flat("entities", false)(map[string]any{"returned": 0.0})
	require.NoError(t, err)
	assert.Empty(t, objs)

	_, err = Flat("entities", false)(map[string]any{"status": 0.0})
	assert.ErrorContains(t, err, `no "returned" count`)
}

func TestGroupedPairs(t *testing.T) {
	body := map[string]any{"entities": map[string]any{
		"s2": []any{map[string]any{"_uniqueid": "d1"}},
		"s1": []any{map[string]any{"_uniqueid": "d1"}, map[string]any{"_uniqueid": "d2"}},
		"s3": []any{},
	}}

	pairs, err := GroupedPairs("entities", true)(body)
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{
		{"_src": "s1", "_dst": "d1"},
		{"_src": "s1", "_dst": "d2"},
		{"_src": "s2", "_dst": "d1"},
	}, pairs)

	pairs, err = GroupedPairs("entities", false)(body)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"_dst": "s1", "_src": "d1"}, pairs[0])
}

func TestGroupedPairs_Errors(t *testing.T) {
	_, err := GroupedPairs("entities", true)(map[string]any{"entities": []any{}})
	assert.ErrorContains(t, err, "want object")

	_, err = GroupedPairs("entities", true)(map[string]any{"entities": map[string]any{"k": []any{map[string]any{}}}})
	assert.ErrorContains(t, err, "has no _uniqueid")

	pairs, err := GroupedPairs("entities", true)(map[string]any{"returned": 0.0})
	require.NoError(t, err)
	assert.Empty(t, pairs)

	_, err = GroupedPairs("entities", true)(map[string]any{"status": 0.0, "returned": 3.0})
	assert.ErrorContains(t, err, `no "entities" field`)

	_, err = GroupedPairs("entities", true)(map[string]any{"status": 0.0})
	assert.ErrorContains(t, err, `no "entities" field`)
}
