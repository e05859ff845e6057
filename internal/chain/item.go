package chain

import (
	"maps"
	"slices"
	"strconv"

	"github.com/roach88/contentgraph/internal/ir"
)

// Item is one search result as the resolver sees it.
type Item interface {
	ItemID() int64
	// IDField returns the ids held by the named field. A field may hold a
	// single id, a list of ids, or a map keyed by ids. ok is false when
	// the field does not carry ids.
	IDField(name string) (ids []int64, ok bool)
	// Project copies the named fields; nil copies every field.
	Project(fields []string) map[string]any
}

// Field sets per item kind. Names are lowercase to match chain syntax.
var (
	entityFields   = []string{"id", "type", "name", "content", "parentid", "createuserid", "createdate", "permissions", "supers", "values", "locked"}
	entityIDFields = []string{"id", "parentid", "createuserid", "permissions", "supers"}

	commentFields   = []string{"id", "parentid", "createuserid", "content", "createdate", "edituserid", "editdate"}
	commentIDFields = []string{"id", "parentid", "createuserid", "edituserid"}
)

type entityItem struct{ v ir.EntityView }

func (e entityItem) ItemID() int64 { return e.v.ID }

func (e entityItem) IDField(name string) ([]int64, bool) {
	switch name {
	case "id":
		return []int64{e.v.ID}, true
	case "parentid":
		return nonZero(e.v.ParentID), true
	case "createuserid":
		return nonZero(e.v.CreateUserID), true
	case "supers":
		return slices.Clone(e.v.Supers), true
	case "permissions":
		var ids []int64
		for _, k := range slices.Sorted(maps.Keys(e.v.Permissions)) {
			// 0 is the public grant, not an entity.
			if id, err := strconv.ParseInt(k, 10, 64); err == nil && id > 0 {
				ids = append(ids, id)
			}
		}
		return ids, true
	}
	return nil, false
}

func (e entityItem) Project(fields []string) map[string]any {
	if fields == nil {
		fields = entityFields
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		switch f {
		case "id":
			out[f] = e.v.ID
		case "type":
			out[f] = e.v.Type
		case "name":
			out[f] = e.v.Name
		case "content":
			out[f] = e.v.Content
		case "parentid":
			out[f] = e.v.ParentID
		case "createuserid":
			out[f] = e.v.CreateUserID
		case "createdate":
			out[f] = e.v.CreateDate
		case "permissions":
			out[f] = e.v.Permissions
		case "supers":
			out[f] = e.v.Supers
		case "values":
			out[f] = e.v.Values
		case "locked":
			out[f] = e.v.Locked
		}
	}
	return out
}

type commentItem struct{ c ir.CommentView }

func (c commentItem) ItemID() int64 { return c.c.ID }

func (c commentItem) IDField(name string) ([]int64, bool) {
	switch name {
	case "id":
		return []int64{c.c.ID}, true
	case "parentid":
		return nonZero(c.c.ParentID), true
	case "createuserid":
		return nonZero(c.c.CreateUserID), true
	case "edituserid":
		return nonZero(c.c.EditUserID), true
	}
	return nil, false
}

func (c commentItem) Project(fields []string) map[string]any {
	if fields == nil {
		fields = commentFields
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		switch f {
		case "id":
			out[f] = c.c.ID
		case "parentid":
			out[f] = c.c.ParentID
		case "createuserid":
			out[f] = c.c.CreateUserID
		case "content":
			out[f] = c.c.Content
		case "createdate":
			out[f] = c.c.CreateDate
		case "edituserid":
			out[f] = c.c.EditUserID
		case "editdate":
			out[f] = c.c.EditDate
		}
	}
	return out
}

func nonZero(id int64) []int64 {
	if id == 0 {
		return nil
	}
	return []int64{id}
}
