package schema

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/roach88/graphsql/internal/ir"
	"github.com/roach88/graphsql/internal/options"
)

// Catch-all table names.
const (
	CatchAllEntity     = "Entity"
	CatchAllConnection = "Connection"
)

// Image operation types accepted by the _operations column.
var imageOperations = []string{"threshold", "resize", "crop", "rotate", "flip"}

// BuildOption configures Build.
type BuildOption func(*builder)

// WithBuildLogger sets the logger used for warnings about dropped properties.
func WithBuildLogger(l *slog.Logger) BuildOption {
	return func(b *builder) { b.logger = l }
}

type builder struct {
	logger *slog.Logger
	tables []*options.Table
}

// Build derives the catalog of virtual tables from a snapshot.
//
// Malformed class names and unknown property types on class tables are
// returned as *ConfigError. Conflicting property types on the catch-all
// tables are dropped with a warning.
func Build(snap *Snapshot, builtAt time.Time, opts ...BuildOption) (*Catalog, error) {
	b := &builder{logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}

	id, err := snap.ID()
	if err != nil {
		return nil, err
	}

	if err := b.entityTables(snap.Entities.Classes); err != nil {
		return nil, err
	}
	if err := b.connectionTables(snap.Connections.Classes); err != nil {
		return nil, err
	}
	if err := b.descriptorTables(snap.DescriptorSets); err != nil {
		return nil, err
	}
	b.tables = append(b.tables,
		b.catchAllEntity(snap.Entities.Classes),
		b.catchAllConnection(snap.Connections.Classes),
	)

	cat, err := NewCatalog(id, builtAt, b.tables)
	if err != nil {
		return nil, err
	}
	b.logger.Info("schema catalog built",
		"snapshot", id[:12],
		"tables", len(cat.tables),
	)
	return cat, nil
}

func (b *builder) entityTables(classes map[string]Class) error {
	for _, name := range ir.SortedKeys(classes) {
		if err := validateClassName(name); err != nil {
			return err
		}
		class := classes[name]
		cols, err := propertyColumns(name, class)
		if err != nil {
			return err
		}

		if strings.HasPrefix(name, "_") {
			bare := name[1:]
			cols = append(cols, systemExtraColumns(name)...)
			b.tables = append(b.tables, &options.Table{
				Name:        bare,
				Kind:        options.KindSystem,
				Class:       name,
				Count:       class.Matched,
				Command:     "Find" + bare,
				ResultField: options.FieldEntities,
				SystemClass: true,
				Columns:     cols,
			})
			continue
		}

		b.tables = append(b.tables, &options.Table{
			Name:        name,
			Kind:        options.KindEntity,
			Class:       name,
			Count:       class.Matched,
			Command:     options.VerbFindEntity,
			ResultField: options.FieldEntities,
			Extra:       map[string]any{"with_class": name},
			Columns:     cols,
		})
	}
	return nil
}

func (b *builder) connectionTables(classes map[string]Class) error {
	for _, name := range ir.SortedKeys(classes) {
		if err := validateClassName(name); err != nil {
			return err
		}
		class := classes[name]
		cols, err := propertyColumns(name, class)
		if err != nil {
			return err
		}
		cols = append(cols, options.EndpointColumns(class.Matched)...)

		t := &options.Table{
			Name:        name,
			Kind:        options.KindConnection,
			Class:       name,
			Count:       class.Matched,
			Command:     options.VerbFindConnection,
			ResultField: options.FieldConnections,
			Extra:       map[string]any{"with_class": name},
			SrcClass:    class.Src,
			DstClass:    class.Dst,
			Columns:     cols,
		}
		if strings.HasPrefix(name, "_") {
			t.Name = name[1:]
			t.Kind = options.KindSystem
			t.SystemClass = true
		}
		b.tables = append(b.tables, t)
	}
	return nil
}

func (b *builder) descriptorTables(sets []DescriptorSet) error {
	for _, set := range sets {
		if err := validateClassName(set.Name); err != nil {
			return err
		}
		desc := set.Descriptor
		desc.Matched = set.Count
		cols, err := propertyColumns(set.Name, desc)
		if err != nil {
			return err
		}

		if set.SupportsFindSimilar() {
			if set.Dimensions <= 0 {
				return &ConfigError{
					Code:       ErrCodeInvalidSnapshot,
					Identifier: set.Name,
					Message:    "descriptor set supports find-similar but reports no dimensions",
				}
			}
			cols = append(cols,
				options.Column{Name: options.ColFindSimilar, ColumnOptions: options.ColumnOptions{
					Type: options.TypeJSON,
					Hook: options.FindSimilar(set.Dimensions),
				}},
				options.Column{Name: options.ColDistance, ColumnOptions: options.ColumnOptions{
					Type:     options.TypeNumber,
					Listable: true,
				}},
			)
		}
		cols = append(cols, options.BlobColumns(options.ColVector)...)

		b.tables = append(b.tables, &options.Table{
			Name:        set.Name,
			Kind:        options.KindDescriptor,
			Class:       set.Name,
			Count:       set.Count,
			Command:     options.VerbFindDescriptor,
			ResultField: options.FieldEntities,
			Extra:       map[string]any{"set": set.Name, "distances": true},
			Columns:     cols,
		})
	}
	return nil
}

func (b *builder) catchAllEntity(classes map[string]Class) *options.Table {
	user := make(map[string]Class, len(classes))
	var count int64
	for name, class := range classes {
		if strings.HasPrefix(name, "_") {
			continue
		}
		user[name] = class
		count += class.Matched
	}
	cols := []options.Column{options.UniqueIDColumn(count)}
	cols = append(cols, b.consistentColumns(CatchAllEntity, user)...)
	return &options.Table{
		Name:        CatchAllEntity,
		Kind:        options.KindSystem,
		Count:       count,
		Command:     options.VerbFindEntity,
		ResultField: options.FieldEntities,
		Columns:     cols,
	}
}

func (b *builder) catchAllConnection(classes map[string]Class) *options.Table {
	var count int64
	for _, class := range classes {
		count += class.Matched
	}
	cols := []options.Column{options.UniqueIDColumn(count)}
	cols = append(cols, b.consistentColumns(CatchAllConnection, classes)...)
	cols = append(cols, options.EndpointColumns(count)...)
	return &options.Table{
		Name:        CatchAllConnection,
		Kind:        options.KindSystem,
		Count:       count,
		Command:     options.VerbFindConnection,
		ResultField: options.FieldConnections,
		Columns:     cols,
	}
}

// consistentColumns returns a column for every property whose type is the
// same in every class that has it.
func (b *builder) consistentColumns(table string, classes map[string]Class) []options.Column {
	types := make(map[string]map[string]bool)
	for _, class := range classes {
		for prop, p := range class.Properties {
			if types[prop] == nil {
				types[prop] = make(map[string]bool)
			}
			types[prop][strings.ToLower(p.Type)] = true
		}
	}

	var cols []options.Column
	for _, prop := range ir.SortedKeys(types) {
		if isReserved(prop) {
			continue
		}
		seen := types[prop]
		if len(seen) != 1 {
			b.logger.Warn("property has conflicting types, skipping",
				"table", table,
				"property", prop,
				"types", ir.SortedKeys(seen),
			)
			continue
		}
		typ, err := options.ParseValueType(ir.SortedKeys(seen)[0])
		if err != nil || typ == options.TypeUniqueID {
			b.logger.Warn("property has unknown type, skipping",
				"table", table,
				"property", prop,
				"type", ir.SortedKeys(seen)[0],
			)
			continue
		}
		cols = append(cols, options.PropertyColumn(prop, typ, 0, false))
	}
	return cols
}

// propertyColumns returns the property columns of a class followed by
// _uniqueid.
func propertyColumns(class string, c Class) ([]options.Column, error) {
	cols := make([]options.Column, 0, len(c.Properties)+1)
	for _, prop := range ir.SortedKeys(c.Properties) {
		if isReserved(prop) {
			continue
		}
		p := c.Properties[prop]
		typ, err := options.ParseValueType(p.Type)
		if err != nil || typ == options.TypeUniqueID {
			return nil, &ConfigError{
				Code:       ErrCodeUnknownType,
				Identifier: class + "." + prop,
				Message:    fmt.Sprintf("unknown property type %q", p.Type),
			}
		}
		cols = append(cols, options.PropertyColumn(prop, typ, p.Count, p.Indexed))
	}
	cols = append(cols, options.UniqueIDColumn(c.Matched))
	return cols, nil
}

func systemExtraColumns(class string) []options.Column {
	switch class {
	case "_Blob":
		return options.BlobColumns(options.ColBlob)
	case "_Image":
		cols := options.BlobColumns(options.ColImage)
		return append(cols,
			options.Column{Name: options.ColAsFormat, ColumnOptions: options.ColumnOptions{
				Type: options.TypeString,
				Hook: options.Passthrough("as_format"),
			}},
			options.Column{Name: options.ColOperations, ColumnOptions: options.ColumnOptions{
				Type: options.TypeJSON,
				Hook: options.Operations(imageOperations...),
			}},
		)
	}
	return nil
}

// isReserved reports whether a backend property collides with a synthesized
// column. The backend reports _uniqueid as a property on some classes.
func isReserved(prop string) bool {
	switch prop {
	case options.ColUniqueID, options.ColSrc, options.ColDst:
		return true
	}
	return false
}

func validateClassName(name string) error {
	if name == "" || name == "_" {
		return &ConfigError{Code: ErrCodeInvalidName, Identifier: name, Message: "class name is empty"}
	}
	for _, r := range name {
		if r == '"' || r == '\'' || r == '`' || unicode.IsControl(r) {
			return &ConfigError{Code: ErrCodeInvalidName, Identifier: name, Message: "class name contains a quote or control character"}
		}
	}
	return nil
}
