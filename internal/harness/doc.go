// Package harness runs permission scenarios against a real service.
//
// A scenario is a YAML file that sets up entities as named actors, runs a
// flow of operations with expected outcomes, and finally asserts on the
// trace and the stored state.
//
// # Scenario Format
//
//	name: public_create_read
//	description: "Anyone may read and create under a public grant"
//	super_users: [99]
//	setup:
//	  - op: write
//	    as: 99
//	    bind: root
//	    entity: { type: category, name: root, permissions: { "0": cr } }
//	flow:
//	  - op: write
//	    as: 1
//	    bind: x
//	    entity: { type: content.page, name: X, parent: $root }
//	  - op: get
//	    as: 2
//	    id: $x
//	    expect:
//	      case: NOT_FOUND
//	assertions:
//	  - type: trace_count
//	    op: get
//	    case: NOT_FOUND
//	    count: 1
//	  - type: final_state
//	    entity: $x
//	    expect: { creator: 1 }
//
// Ids are written literally or as $name, where name was bound by an
// earlier step. Expected cases are "ok" or an apperr code.
//
// # Operations
//
//   - write, get, delete, search: entity surface
//   - comment, edit_comment, delete_comment, vote, votes, watch: relations
//   - listen, listeners: long-poll and presence
//   - chain: chained lookup, results reduced to ids per endpoint
//   - advance: moves the scenario clock forward
//
// # Assertion Types
//
//   - trace_contains: an op ran as an actor with a case
//   - trace_order: ops appear in order
//   - trace_count: an op (optionally with a case) ran exactly N times
//   - final_state: stored entity fields, read without permission checks
//
// # Deterministic Testing
//
// Every scenario gets a fresh in-memory database, a manual clock starting
// at testutil.Epoch and a fixed listen waiter id, so ids, dates and traces
// are identical across runs and can be compared with golden files.
package harness
