// Package queryir provides the declarative query and predicate tree used for
// searches and permission checks.
//
// A predicate is written once and consumed twice:
//
//	[permission / search builders] → [queryir tree] → Eval         (in-memory, over ir rows)
//	                                                → querysql     (parameterized SQLite)
//
// Both consumers implement the same semantics, including SQL three-valued
// logic for NULL, so a permission decision made on a materialized package
// always agrees with the row filter the store applies. The equivalence is
// property-tested in internal/permission against a real database.
//
// SEALED INTERFACES:
//
// Query and Predicate are sealed with marker methods. Only types in this
// package implement them, so backends can switch exhaustively.
//
// FIELDS:
//
// Fields are qualified by source alias: "entity.name", "relation.from_id".
// Validate rejects any field not in the known column set, which is also what
// keeps field names safe to emit verbatim in SQL.
package queryir
