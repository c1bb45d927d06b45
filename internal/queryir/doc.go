// Package queryir is the relational request model the translator consumes:
// a table, the requested columns, and a conjunction of column predicates.
//
// Predicate is a sealed interface. Only Compare, In and IsNull implement
// it, so compilers can switch over predicates exhaustively:
//
//	switch p := pred.(type) {
//	case Compare:
//	case In:
//	case IsNull:
//	}
//
// PUSHDOWN:
//
// A predicate is pushed into the native command only when the backend
// evaluates it exactly as the host would. Everything else stays with the
// host's own post-filter, so a pushed-down query may return extra rows but
// never drops one. Pushdown reports the decision for one predicate and
// column type; Validate reports it for a whole request.
//
//	type      | pushed operators
//	----------+-------------------------
//	number    | == != < <= > >= in not-in
//	datetime  | == != < <= > >=
//	string    | == != in not-in
//	boolean   | == !=
//	uniqueid  | == in
//	json/blob | none
//
// String range operators are never pushed because the backend's collation
// can differ from the host's.
package queryir
