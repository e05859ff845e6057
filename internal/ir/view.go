package ir

import "time"

// EntityView is the caller-facing shape of an entity package.
// ID 0 creates a new entity; any other id updates the stored one.
// CreateUserID and CreateDate are output only and ignored on write.
type EntityView struct {
	ID           int64             `json:"id" yaml:"id"`
	Type         string            `json:"type" yaml:"type"`
	Name         string            `json:"name" yaml:"name"`
	Content      string            `json:"content" yaml:"content"`
	ParentID     int64             `json:"parentId" yaml:"parentId"`
	Permissions  map[string]string `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	Supers       []int64           `json:"supers,omitempty" yaml:"supers,omitempty"`
	Values       map[string]string `json:"values,omitempty" yaml:"values,omitempty"`
	Locked       bool              `json:"locked,omitempty" yaml:"locked,omitempty"`
	CreateUserID int64             `json:"createUserId,omitempty" yaml:"-"`
	CreateDate   time.Time         `json:"createDate,omitzero" yaml:"-"`
}

// CommentView is a comment relation with its latest edit applied.
type CommentView struct {
	ID           int64     `json:"id"`
	ParentID     int64     `json:"parentId"`
	CreateUserID int64     `json:"createUserId"`
	Content      string    `json:"content"`
	CreateDate   time.Time `json:"createDate"`
	// EditUserID and EditDate describe the latest edit, if any.
	EditUserID int64     `json:"editUserId,omitempty"`
	EditDate   time.Time `json:"editDate,omitzero"`
}

// Edited reports whether the comment has been edited.
func (c CommentView) Edited() bool {
	return !c.EditDate.IsZero()
}
