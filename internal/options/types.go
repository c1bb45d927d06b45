package options

import (
	"fmt"
	"strings"
)

// ValueType is the semantic type of a virtual column.
type ValueType string

const (
	TypeString   ValueType = "string"
	TypeNumber   ValueType = "number"
	TypeBoolean  ValueType = "boolean"
	TypeJSON     ValueType = "json"
	TypeBlob     ValueType = "blob"
	TypeDatetime ValueType = "datetime"
	// TypeUniqueID is not a backend property type. It marks _uniqueid, _src
	// and _dst, which accept a restricted operator set.
	TypeUniqueID ValueType = "uniqueid"
)

// sqlTypes maps graph property types to the relational type a host exposes.
var sqlTypes = map[ValueType]string{
	TypeNumber:   "double precision",
	TypeString:   "text",
	TypeBoolean:  "boolean",
	TypeDatetime: "timestamptz",
	TypeJSON:     "jsonb",
	TypeBlob:     "bytea",
	TypeUniqueID: "text",
}

// ParseValueType converts a backend type name (case-insensitive) to a
// ValueType.
func ParseValueType(s string) (ValueType, error) {
	t := ValueType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := sqlTypes[t]; !ok {
		return "", fmt.Errorf("unknown property type %q", s)
	}
	return t, nil
}

// Valid reports whether t is a known type.
func (t ValueType) Valid() bool {
	_, ok := sqlTypes[t]
	return ok
}

// SQLType returns the relational type name used for columns of this type.
func (t ValueType) SQLType() string {
	return sqlTypes[t]
}

// TableKind is the namespace a virtual table is published under.
type TableKind string

const (
	KindEntity     TableKind = "entity"
	KindConnection TableKind = "connection"
	KindDescriptor TableKind = "descriptor"
	KindSystem     TableKind = "system"
)

// Valid reports whether k is a known kind.
func (k TableKind) Valid() bool {
	switch k {
	case KindEntity, KindConnection, KindDescriptor, KindSystem:
		return true
	}
	return false
}

// Native command verbs and response fields.
const (
	VerbFindEntity     = "FindEntity"
	VerbFindConnection = "FindConnection"
	VerbFindDescriptor = "FindDescriptor"

	FieldEntities    = "entities"
	FieldConnections = "connections"
)

// Reserved column names.
const (
	ColUniqueID    = "_uniqueid"
	ColSrc         = "_src"
	ColDst         = "_dst"
	ColBlobs       = "_blobs"
	ColBlob        = "_blob"
	ColImage       = "_image"
	ColVector      = "_vector"
	ColAsFormat    = "_as_format"
	ColOperations  = "_operations"
	ColFindSimilar = "_find_similar"
	ColDistance    = "_distance"
)
