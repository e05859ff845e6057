// Package listen implements the long-poll change listener.
//
// A Listen call moves through these states:
//
//	Armed        registered with the hub; writes from here on are signalled
//	BacklogCheck query for existing matches above the watermark
//	Waiting      block on the signal, the deadline or cancellation
//	Completed    matches found, re-checked for read permission at wake time
//	TimedOut     deadline passed with no match (apperr.ErrTimeout)
//	Cancelled    caller gone or hub closed (apperr.ErrCancelled)
//
// Registration happens before the backlog check, so a write that commits
// between the check and the wait still wakes the waiter. Signals carry no
// data: a woken waiter re-runs the same permission-scoped query, so a
// relation whose parent the caller cannot read never completes a wait and
// never reveals that it exists.
package listen
