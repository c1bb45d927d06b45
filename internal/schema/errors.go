package schema

import (
	"errors"
	"fmt"
)

// ConfigErrorCode categorizes configuration errors.
type ConfigErrorCode string

const (
	// ErrCodeInvalidName indicates an empty or malformed class name.
	ErrCodeInvalidName ConfigErrorCode = "INVALID_NAME"

	// ErrCodeUnknownType indicates a property type outside the known set.
	ErrCodeUnknownType ConfigErrorCode = "UNKNOWN_TYPE"

	// ErrCodeDuplicateTable indicates two classes map to the same table.
	ErrCodeDuplicateTable ConfigErrorCode = "DUPLICATE_TABLE"

	// ErrCodeInvalidSnapshot indicates a snapshot that does not have the
	// expected shape.
	ErrCodeInvalidSnapshot ConfigErrorCode = "INVALID_SNAPSHOT"
)

// ConfigError is a schema problem that cannot be fixed by retrying. Callers
// log it and abort the refresh.
type ConfigError struct {
	Code ConfigErrorCode

	// Identifier names the offending class, property or table.
	Identifier string

	Message string
}

func (e *ConfigError) Error() string {
	if e.Identifier != "" {
		return fmt.Sprintf("%s: %s (%q)", e.Code, e.Message, e.Identifier)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsConfigError reports whether err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// ErrTableNotFound is returned by Catalog.Lookup for unknown names.
var ErrTableNotFound = errors.New("table not found")

// ErrNoCatalog is returned by Registry.Current before the first refresh.
var ErrNoCatalog = errors.New("schema catalog has not been loaded")
