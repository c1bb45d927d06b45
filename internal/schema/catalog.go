package schema

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/graphsql/internal/options"
)

// Catalog is the immutable set of virtual tables derived from one snapshot.
type Catalog struct {
	// SnapshotID identifies the snapshot the catalog was built from.
	SnapshotID string

	// BuiltAt is when the snapshot was taken. Populations are considered
	// stale once the catalog is older than the configured maximum age.
	BuiltAt time.Time

	tables      []*options.Table
	byQualified map[string]*options.Table
	byName      map[string][]*options.Table
	populations map[string]int64
}

// NewCatalog validates tables and indexes them. Tables are not copied and
// must not be modified afterwards.
func NewCatalog(snapshotID string, builtAt time.Time, tables []*options.Table) (*Catalog, error) {
	c := &Catalog{
		SnapshotID:  snapshotID,
		BuiltAt:     builtAt,
		tables:      append([]*options.Table(nil), tables...),
		byQualified: make(map[string]*options.Table, len(tables)),
		byName:      make(map[string][]*options.Table, len(tables)),
		populations: make(map[string]int64),
	}
	options.SortTables(c.tables)

	for _, t := range c.tables {
		if err := t.Validate(); err != nil {
			return nil, &ConfigError{Code: ErrCodeInvalidSnapshot, Identifier: t.QualifiedName(), Message: err.Error()}
		}
		q := t.QualifiedName()
		if _, dup := c.byQualified[q]; dup {
			return nil, &ConfigError{Code: ErrCodeDuplicateTable, Identifier: q, Message: "two classes map to the same table"}
		}
		c.byQualified[q] = t
		c.byName[t.Name] = append(c.byName[t.Name], t)

		if t.Class != "" && !t.IsConnection() && t.Kind != options.KindDescriptor {
			c.populations[t.Class] = t.Count
		}
	}
	return c, nil
}

// Tables returns all tables ordered by kind then name.
func (c *Catalog) Tables() []*options.Table {
	return append([]*options.Table(nil), c.tables...)
}

// Lookup finds a table by qualified name ("entity.Person") or by bare name
// when the bare name is unambiguous.
func (c *Catalog) Lookup(name string) (*options.Table, error) {
	if t, ok := c.byQualified[name]; ok {
		return t, nil
	}
	if kind, _, ok := strings.Cut(name, "."); ok && options.TableKind(kind).Valid() {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	matches := c.byName[name]
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	case 1:
		return matches[0], nil
	}
	names := make([]string, len(matches))
	for i, t := range matches {
		names[i] = t.QualifiedName()
	}
	return nil, fmt.Errorf("table name %q is ambiguous: %s", name, strings.Join(names, ", "))
}

// Population returns the number of objects of an entity class at snapshot
// time.
func (c *Catalog) Population(class string) (int64, bool) {
	n, ok := c.populations[class]
	return n, ok
}

// Age returns how old the snapshot is at now.
func (c *Catalog) Age(now time.Time) time.Duration {
	return now.Sub(c.BuiltAt)
}
