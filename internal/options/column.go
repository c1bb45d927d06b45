package options

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ColumnOptions is the per-column metadata produced by schema introspection.
type ColumnOptions struct {
	// Count is the number of objects carrying this property, if known.
	Count int64 `json:"count,omitempty"`

	// Indexed reports whether the backend indexes this property.
	Indexed bool `json:"indexed,omitempty"`

	// Type is the semantic type. Required for listable columns.
	Type ValueType `json:"type,omitempty"`

	// Listable reports whether the column may appear in results.list.
	// Pseudo columns and blob payloads are not listable.
	Listable bool `json:"listable"`

	// Unique reports whether each value identifies at most one object.
	Unique bool `json:"unique,omitempty"`

	// Hook is set for pseudo columns that modify the native command.
	Hook *Hook `json:"hook,omitempty"`
}

// Column is a named virtual column.
type Column struct {
	Name string `json:"name"`
	ColumnOptions
}

// Validate checks column invariants.
func (c Column) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("column name is required")
	}
	if c.Listable && c.Type == "" {
		return fmt.Errorf("column %q: listable columns must have a type", c.Name)
	}
	if c.Type != "" && !c.Type.Valid() {
		return fmt.Errorf("column %q: unknown type %q", c.Name, c.Type)
	}
	if c.Listable && c.Type == TypeBlob {
		return fmt.Errorf("column %q: blob columns cannot be listable", c.Name)
	}
	if c.Hook != nil {
		if c.Listable {
			return fmt.Errorf("column %q: hooked columns cannot be listable", c.Name)
		}
		if err := c.Hook.Validate(); err != nil {
			return fmt.Errorf("column %q: %w", c.Name, err)
		}
	}
	return nil
}

// IsPseudo reports whether the column only modifies the query body.
func (c Column) IsPseudo() bool {
	return c.Hook != nil
}

// PropertyColumn builds a listable column for a backend property.
func PropertyColumn(name string, typ ValueType, count int64, indexed bool) Column {
	return Column{
		Name: name,
		ColumnOptions: ColumnOptions{
			Count:    count,
			Indexed:  indexed,
			Type:     typ,
			Listable: true,
		},
	}
}

// UniqueIDColumn builds the _uniqueid column.
func UniqueIDColumn(count int64) Column {
	return Column{
		Name: ColUniqueID,
		ColumnOptions: ColumnOptions{
			Count:    count,
			Indexed:  true,
			Unique:   true,
			Type:     TypeUniqueID,
			Listable: true,
		},
	}
}

// EndpointColumns builds the _src and _dst columns of a connection table.
func EndpointColumns(count int64) []Column {
	return []Column{
		{Name: ColSrc, ColumnOptions: ColumnOptions{Count: count, Indexed: true, Type: TypeUniqueID, Listable: true}},
		{Name: ColDst, ColumnOptions: ColumnOptions{Count: count, Indexed: true, Type: TypeUniqueID, Listable: true}},
	}
}

// BlobColumns builds the blob toggle and payload column pair. The boolean
// toggle keeps "SELECT *" from fetching payloads unless asked for.
func BlobColumns(payload string) []Column {
	return []Column{
		{Name: ColBlobs, ColumnOptions: ColumnOptions{Type: TypeBoolean, Hook: BlobToggle(payload)}},
		{Name: payload, ColumnOptions: ColumnOptions{Type: TypeBlob}},
	}
}

// EncodeColumn serializes column options to the string map a host catalog
// stores alongside the column definition.
func EncodeColumn(c Column) (map[string]string, error) {
	data, err := json.Marshal(c.ColumnOptions)
	if err != nil {
		return nil, fmt.Errorf("encode column %q: %w", c.Name, err)
	}
	return map[string]string{"column_options": string(data)}, nil
}

// DecodeColumn is the inverse of EncodeColumn. Unknown fields are rejected.
func DecodeColumn(name string, opts map[string]string) (Column, error) {
	raw, ok := opts["column_options"]
	if !ok {
		return Column{}, fmt.Errorf("column %q: missing column_options", name)
	}
	c := Column{Name: name}
	if err := decodeStrict(raw, &c.ColumnOptions); err != nil {
		return Column{}, fmt.Errorf("column %q: %w", name, err)
	}
	if err := c.Validate(); err != nil {
		return Column{}, err
	}
	return c, nil
}

func decodeStrict(raw string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	return dec.Decode(v)
}
