// Package options defines the option model for graphsql virtual tables.
//
// A virtual table is a relational view over one class of graph objects
// (an entity class, a connection class, a descriptor set, or a system
// class). Its Table value records everything the query builder needs to
// address that class natively: the command verb, the response field that
// holds result objects, the fixed parameters every command carries, and the
// ordered column list.
//
// Tables and columns are plain values. They are produced once per schema
// snapshot by package schema, serialized to string maps so a host catalog can
// store them as text, and never mutated afterwards.
//
// HOOKS:
//
// Some columns are not data at all but query-body modifiers ("pseudo
// columns"): an equality predicate on them changes the native command rather
// than filtering rows. The behaviour is a closed tagged variant (Hook) with
// four kinds:
//
//	passthrough   copy the value into the body under Param
//	operations    validate an image operation pipeline, copy to "operations"
//	blob_toggle   copy the flag to "blobs"; attach payloads when true
//	find_similar  copy k_neighbors/knn_first; supply the query vector blob
//
// Every consumer switches over HookKind exhaustively; there is no callable
// registry.
package options
