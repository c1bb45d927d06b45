// Package queryaql compiles a queryir.Request against a virtual table into
// a native command body.
//
// The body is the table's fixed extra parameters, plus a constraints object
// for pushed predicates, plus results.list for the listable requested
// columns (omitted when there are none), plus any fields set by
// pseudo-column hooks. Batch carries the result command with its batch
// clause: 10 elements per page when payloads may be returned, 100 otherwise.
//
// Pseudo-column predicates are lifted before predicate translation and
// must be equalities. Their values are echoed into every row so the host's
// post-filter keeps the row.
package queryaql
