package connector

import (
	"strings"

	"github.com/google/uuid"
)

// BoundaryGenerator produces multipart boundaries for proxy requests.
type BoundaryGenerator interface {
	Generate() string
}

// UUIDBoundary generates "----apdb-<hex>" boundaries from random UUIDs.
//
// Thread-safety: UUIDBoundary is stateless and safe for concurrent use.
type UUIDBoundary struct{}

// Generate returns a new boundary.
func (UUIDBoundary) Generate() string {
	return "----apdb-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// FixedBoundary returns the same boundary every time, for byte-exact tests.
//
// Thread-safety: FixedBoundary is stateless and safe for concurrent use.
type FixedBoundary string

// Generate returns the fixed boundary, or "----apdb-test" when empty.
func (b FixedBoundary) Generate() string {
	if b == "" {
		return "----apdb-test"
	}
	return string(b)
}
