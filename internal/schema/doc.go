// Package schema turns a live graph schema snapshot into the catalog of
// virtual tables.
//
// The Introspector fetches a Snapshot through a Connector: the GetSchema
// response for entity and connection classes, the FindDescriptorSet listing,
// and one FindDescriptor+GetSchema pair per descriptor set, fetched
// concurrently. Build derives the option model from a Snapshot:
//
//   - entity classes become entity tables (FindEntity with_class)
//   - connection classes become connection tables (FindConnection with_class)
//   - "_"-prefixed classes become system tables named without the underscore
//   - descriptor sets become descriptor tables (FindDescriptor set)
//   - the catch-all Entity and Connection system tables expose properties
//     whose type agrees across every class of that kind
//
// A Catalog is immutable. Registry swaps catalogs atomically on refresh.
package schema
