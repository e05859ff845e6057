// Package permission decides whether an actor may create, read, update or
// delete an entity package.
//
// The decision is one queryir predicate over joined (entity, relation)
// rows. CanDo interprets it against a materialized package; the store
// compiles the same tree into the WHERE clause of a grouped search. A
// package is allowed when any of its live relations passes.
//
// The predicate is the disjunction of:
//   - super-user, for every action except read
//   - creator relation from the actor
//   - a grant relation of the action's type from 0 or the actor
//   - a parent relation from a category whose inherited supers contain the
//     actor, for every action except read
//
// Inherited supers come from a closure map that is rebuilt explicitly with
// Rebuild whenever the category hierarchy changes.
package permission
