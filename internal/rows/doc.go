// Package rows turns raw result objects into uniform rows.
//
// A Reshape extracts the raw objects from the result command's body.
// Flat results are a list under the result field; grouped results
// (group_by_source) are an object of source id -> member list and are
// flattened into (_src, _dst) pairs. The Normalizer then converts each
// object to a Row holding only the requested columns.
package rows
