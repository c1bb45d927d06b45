// Package harness runs translation scenarios against an in-memory graph.
//
// A scenario seeds a testutil.Graph, introspects it into a catalog, then
// runs scans through the executor exactly as the CLI does: predicates are
// parsed from where strings, pushable ones become constraints, and the rest
// are applied on the host. Every wire request is recorded.
//
// # Scenario Format
//
//	name: person_age
//	description: "Numeric predicates become constraints"
//	config:
//	  batch_size: 2
//	graph:
//	  entities:
//	    - {ref: ann, class: Person, props: {name: ann, age: 31}}
//	  connections:
//	    - {class: Owns, src: ann, dst: rex}
//	  indexes:
//	    - {class: Person, property: name}
//	steps:
//	  - name: adults
//	    query:
//	      table: entity.Person
//	      columns: [name]
//	      where: "age > 30"
//	    expect:
//	      rows: [{name: ann}]
//	      requests: 1
//	assertions:
//	  - type: request_contains
//	    step: adults
//	    verb: FindEntity
//	    body: {with_class: Person}
//
// Where strings may name seeded objects as ${ref}; they expand to the
// object's _uniqueid.
//
// # Assertion Types
//
//   - request_contains: a command with verb whose body contains body
//   - request_order: verbs appear in order across the recorded commands
//   - request_count: verb appears exactly count times
//   - catalog_table: the persisted catalog has table with columns
//
// # Determinism
//
// Object ids are assigned in seed order and the clock is a
// testutil.ManualClock, so traces are stable enough for golden files in
// testdata/golden.
package harness
