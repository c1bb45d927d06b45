package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphsql/internal/options"
)

func TestCatalog_LookupAmbiguous(t *testing.T) {
	// "Tag" exists both as an entity class and a connection class.
	cat := mustBuild(t, `{
	  "entities": {"classes": {"Tag": {"matched": 1}}},
	  "connections": {"classes": {"Tag": {"matched": 1}}}
	}`)

	_, err := cat.Lookup("Tag")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")

	entity, err := cat.Lookup("entity.Tag")
	require.NoError(t, err)
	assert.Equal(t, options.KindEntity, entity.Kind)

	conn, err := cat.Lookup("connection.Tag")
	require.NoError(t, err)
	assert.Equal(t, options.KindConnection, conn.Kind)
}

func TestCatalog_LookupNotFound(t *testing.T) {
	cat := mustBuild(t, personSnapshot)

	for _, name := range []string{"Nope", "entity.Nope", "descriptor.Person"} {
		_, err := cat.Lookup(name)
		assert.ErrorIs(t, err, ErrTableNotFound, name)
	}
}

func TestCatalog_Populations(t *testing.T) {
	cat := mustBuild(t, personSnapshot)

	n, ok := cat.Population("Person")
	require.True(t, ok)
	assert.Equal(t, int64(3), n)

	n, ok = cat.Population("_Image")
	require.True(t, ok)
	assert.Equal(t, int64(2), n)

	_, ok = cat.Population("Owns")
	assert.False(t, ok, "connection classes have no population")
}

func TestCatalog_TablesSortedByKind(t *testing.T) {
	cat := mustBuild(t, personSnapshot)

	var names []string
	for _, tbl := range cat.Tables() {
		names = append(names, tbl.QualifiedName())
	}
	assert.Equal(t, []string{
		"connection.Owns",
		"entity.Person",
		"entity.Pet",
		"system.Connection",
		"system.Entity",
		"system.Image",
	}, names)
}

func TestCatalog_Age(t *testing.T) {
	cat := mustBuild(t, personSnapshot)
	assert.Equal(t, 90*time.Minute, cat.Age(builtAt.Add(90*time.Minute)))
}

func TestNewCatalog_RejectsInvalidTable(t *testing.T) {
	_, err := NewCatalog("id", builtAt, []*options.Table{{Name: "x", Kind: options.KindEntity}})

	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeInvalidSnapshot, ce.Code)
}
