package schema

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphsql/internal/testutil"
)

type snapshotFunc func(ctx context.Context) (*Snapshot, error)

func (f snapshotFunc) Snapshot(ctx context.Context) (*Snapshot, error) { return f(ctx) }

func TestRegistry_EmptyUntilRefreshed(t *testing.T) {
	r := NewRegistry(NewIntrospector(seedGraph()), WithRegistryLogger(quietLogger()))

	_, err := r.Current()
	assert.ErrorIs(t, err, ErrNoCatalog)
}

func TestRegistry_RefreshInstallsCatalog(t *testing.T) {
	clock := testutil.NewManualClock()
	g := seedGraph()
	r := NewRegistry(
		NewIntrospector(g, WithIntrospectorLogger(quietLogger())),
		WithClock(clock.Now),
		WithRegistryLogger(quietLogger()),
	)

	cat, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testutil.Epoch, cat.BuiltAt)

	current, err := r.Current()
	require.NoError(t, err)
	assert.Same(t, cat, current)

	_, err = current.Lookup("entity.Person")
	assert.NoError(t, err)
}

func TestRegistry_OnChangeOnlyForNewSnapshots(t *testing.T) {
	g := seedGraph()
	var changes []string
	r := NewRegistry(
		NewIntrospector(g, WithIntrospectorLogger(quietLogger())),
		WithRegistryLogger(quietLogger()),
		OnChange(func(_ *Snapshot, c *Catalog) { changes = append(changes, c.SnapshotID) }),
	)

	first, err := r.Refresh(context.Background())
	require.NoError(t, err)
	_, err = r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, changes, 1)

	g.AddEntity("Person", map[string]any{"name": "cy"})
	third, err := r.Refresh(context.Background())
	require.NoError(t, err)

	require.Len(t, changes, 2)
	assert.NotEqual(t, first.SnapshotID, third.SnapshotID)
}

func TestRegistry_FailedRefreshKeepsPrevious(t *testing.T) {
	fail := false
	good := &Snapshot{Entities: ClassSet{Classes: map[string]Class{"Person": {Matched: 1}}}}
	r := NewRegistry(snapshotFunc(func(context.Context) (*Snapshot, error) {
		if fail {
			return nil, errors.New("backend down")
		}
		return good, nil
	}), WithRegistryLogger(quietLogger()))

	before, err := r.Refresh(context.Background())
	require.NoError(t, err)

	fail = true
	_, err = r.Refresh(context.Background())
	require.Error(t, err)

	after, err := r.Current()
	require.NoError(t, err)
	assert.Same(t, before, after)
}

func TestRegistry_ConfigErrorKeepsPrevious(t *testing.T) {
	snap := &Snapshot{Entities: ClassSet{Classes: map[string]Class{"Person": {Matched: 1}}}}
	r := NewRegistry(snapshotFunc(func(context.Context) (*Snapshot, error) { return snap, nil }),
		WithRegistryLogger(quietLogger()))

	before, err := r.Refresh(context.Background())
	require.NoError(t, err)

	snap = &Snapshot{Entities: ClassSet{Classes: map[string]Class{"A'B": {Matched: 1}}}}
	_, err = r.Refresh(context.Background())
	assert.True(t, IsConfigError(err))

	after, _ := r.Current()
	assert.Same(t, before, after)
}

func TestRegistry_Install(t *testing.T) {
	r := NewRegistry(nil, WithRegistryLogger(quietLogger()))
	cat, err := NewCatalog("abc", time.Unix(0, 0), nil)
	require.NoError(t, err)

	r.Install(cat)
	got, err := r.Current()
	require.NoError(t, err)
	assert.Equal(t, "abc", got.SnapshotID)
}
