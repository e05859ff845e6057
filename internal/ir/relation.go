package ir

import "time"

// Structural relation types. Per-action permission grants use the Action
// constants as their type.
const (
	RelCreator = "creator"
	RelParent  = "parent"
	RelSuper   = "super"
	RelComment = "comment"
	RelVote    = "vote"
	RelWatch   = "watch"

	// RelTombstoneEntity is the type of the tombstone appended when an
	// entity is deleted. ToID is the deleted entity's parent so that
	// listeners scoped to the parent observe the deletion.
	RelTombstoneEntity = "entity"
)

// Action is one of the four permission-checked operations.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Actions lists every action in canonical c, r, u, d order.
var Actions = []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}

// Valid reports whether a is one of the four known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// RelationKind tags what a relation row means in the append-only stream.
type RelationKind string

const (
	// KindLive is an ordinary relation. SubjectID is 0.
	KindLive RelationKind = "live"
	// KindEdit supersedes the relation named by SubjectID with new Value.
	KindEdit RelationKind = "edit"
	// KindTombstone records deletion of the relation or entity named by
	// SubjectID so that listeners observe the deletion.
	KindTombstone RelationKind = "tombstone"
)

// Relation is a typed, directed edge. For every relation attached to an
// entity package, ToID is the entity's id.
type Relation struct {
	ID         int64        `json:"id" yaml:"id"`
	Type       string       `json:"type" yaml:"type"`
	FromID     int64        `json:"fromId" yaml:"fromId"`
	ToID       int64        `json:"toId" yaml:"toId"`
	Value      string       `json:"value" yaml:"value"`
	Kind       RelationKind `json:"kind" yaml:"kind"`
	SubjectID  int64        `json:"subjectId,omitempty" yaml:"subjectId,omitempty"`
	CreateDate time.Time    `json:"createDate" yaml:"createDate"`
}

// Target returns the id of the relation this row is about: its own id for
// live relations, SubjectID for edits and tombstones.
func (r Relation) Target() int64 {
	if r.Kind == KindLive || r.Kind == "" || r.SubjectID == 0 {
		return r.ID
	}
	return r.SubjectID
}

// Revision is one entry of the append-only revision log, keyed by
// (SubjectID, Seq). Snapshot holds the state that was superseded.
type Revision struct {
	SubjectID  int64     `json:"subjectId"`
	Seq        int64     `json:"seq"`
	EditorID   int64     `json:"editorId"`
	Snapshot   IRObject  `json:"snapshot"`
	Hash       string    `json:"hash"`
	CreateDate time.Time `json:"createDate"`
}
