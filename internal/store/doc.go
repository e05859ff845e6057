// Package store provides the SQLite-backed EntityStore.
//
// Three record kinds share one id space:
//   - Entities: typed nodes with a status bitset
//   - Relations: typed directed edges, also used for ownership, parentage,
//     permission grants and the listen stream
//   - Values: keyed attributes attached to an entity
//
// Plus the revision log, keyed by (subject_id, seq), which keeps the
// superseded state of every updated entity and edited relation.
//
// # Ordering
//
// Ids come from a single counter that is advanced inside the writing
// transaction. The pool is limited to one connection, so ids increase in
// commit order and "relation id > watermark" is a complete definition of
// "new since watermark".
//
// # Atomicity
//
// WritePackage, WriteRelations and MarkDeleted each run in one transaction.
// A failure at any step, including a missing parent, rolls back every
// record of the operation.
//
// # Notifications
//
// Observers registered with Observe receive every committed relation batch
// after the transaction commits, never before.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
