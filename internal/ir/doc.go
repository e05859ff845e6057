// Package ir defines the record types shared by every contentgraph package.
//
// This package contains type definitions and small pure helpers only. All
// other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Entities, relations and values share one id space; id 0 means "not yet written"
//   - Relation ids are the only ordering primitive for "new since" queries
//   - Polarity and history are explicit fields (Kind, SubjectID), never id signs
//   - Predicate literals use IRValue (no floats)
package ir
