package ir

import (
	"strings"
	"time"
)

// Entity type prefixes. Types are prefix-encoded: "content.page" is a
// content entity, and TypeLike "content%" matches every content subtype.
const (
	TypeUser     = "user"
	TypeCategory = "category"
	TypeContent  = "content"
)

// EntityFlags is the status bitset stored on every entity.
type EntityFlags int64

const (
	// FlagDeleted marks an entity as deleted. Deleted entities are never
	// returned by searches and cannot be written to.
	FlagDeleted EntityFlags = 1 << iota
	// FlagLocked marks an entity whose content may only be changed by a
	// super-user.
	FlagLocked
)

// Has reports whether all bits of f are set.
func (fl EntityFlags) Has(f EntityFlags) bool {
	return fl&f == f
}

// Entity is a node in the content graph.
type Entity struct {
	ID         int64       `json:"id" yaml:"id"`
	Type       string      `json:"type" yaml:"type"`
	Name       string      `json:"name" yaml:"name"`
	Content    string      `json:"content" yaml:"content"`
	CreateDate time.Time   `json:"createDate" yaml:"createDate"`
	Flags      EntityFlags `json:"flags" yaml:"flags"`
}

// IsType reports whether the entity's prefix-encoded type falls under base.
func (e Entity) IsType(base string) bool {
	return e.Type == base || strings.HasPrefix(e.Type, base+".")
}

// Deleted reports whether the entity carries FlagDeleted.
func (e Entity) Deleted() bool {
	return e.Flags.Has(FlagDeleted)
}

// Value is a keyed attribute attached to an entity.
type Value struct {
	ID         int64     `json:"id" yaml:"id"`
	EntityID   int64     `json:"entityId" yaml:"entityId"`
	Key        string    `json:"key" yaml:"key"`
	Value      string    `json:"value" yaml:"value"`
	CreateDate time.Time `json:"createDate" yaml:"createDate"`
}

// Category is one node of the category hierarchy, the input to the
// permission closure map.
type Category struct {
	ID       int64
	ParentID int64
	Supers   []int64
}
