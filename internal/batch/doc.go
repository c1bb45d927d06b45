// Package batch holds native command batches between compilation and
// execution.
//
// Commands name each other through symbolic references (Ref). A command
// that others must find sets "_ref" to a symbol; consumers use the same
// symbol under "ref" (inside is_connected_to), "src" or "dst". Resolve
// assigns integers to symbols in command order and rewrites every use in a
// single pass, producing the wire commands. A numeric reference in the
// input, or a use of a symbol that no earlier command defines, is an error.
//
// Pagination mutates only the result command's batch clause.
package batch
