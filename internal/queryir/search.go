package queryir

import (
	"github.com/roach88/contentgraph/internal/ir"
)

// RelationColumns is the column list SearchRelations scans, in order.
var RelationColumns = []string{
	"relation.id",
	"relation.type",
	"relation.from_id",
	"relation.to_id",
	"relation.value",
	"relation.kind",
	"relation.subject_id",
	"relation.create_date",
}

var sortFields = map[string]string{
	"":                "entity.id",
	ir.SortID:         "entity.id",
	ir.SortName:       "entity.name",
	ir.SortType:       "entity.type",
	ir.SortCreateDate: "entity.create_date",
}

// EntitySearch translates a search descriptor into a Select over entities.
//
// When permission is non-nil the entities are inner joined with their
// relations, filtered by permission row by row, and grouped by entity id so
// each entity appears once no matter how many of its relations pass.
// Deleted entities never match. limit must already be clamped.
func EntitySearch(s ir.Search, permission Predicate, limit int) Select {
	filters := []Predicate{BitClear{Field: "entity.flags", Mask: int64(ir.FlagDeleted)}}
	if len(s.IDs) > 0 {
		filters = append(filters, In{Field: "entity.id", Values: ir.Ints(s.IDs...)})
	}
	if s.TypeLike != "" {
		filters = append(filters, Like{Field: "entity.type", Pattern: s.TypeLike})
	}
	if s.NameLike != "" {
		filters = append(filters, Like{Field: "entity.name", Pattern: s.NameLike})
	}
	if len(s.ParentIDs) > 0 {
		filters = append(filters, HasRelation{Type: ir.RelParent, FromIDs: s.ParentIDs})
	}
	if !s.CreateStart.IsZero() {
		filters = append(filters, Compare{Field: "entity.create_date", Op: OpGTE, Value: ir.IRInt(s.CreateStart.UnixNano())})
	}
	if !s.CreateEnd.IsZero() {
		filters = append(filters, Compare{Field: "entity.create_date", Op: OpLT, Value: ir.IRInt(s.CreateEnd.UnixNano())})
	}

	sel := Select{
		From:    Entities,
		Columns: []string{"entity.id"},
		OrderBy: []Order{{Field: sortFields[s.Sort], Desc: s.Reverse}},
		Limit:   limit,
		Offset:  s.Skip,
	}
	if permission != nil {
		filters = append(filters, permission)
		sel.Join = &Join{Right: Relations, LeftField: "entity.id", RightField: "relation.to_id"}
		sel.GroupBy = "entity.id"
	}
	sel.Filter = AllOf(filters...)
	return sel
}

// RelationQuery translates a relation search descriptor into a Select over
// relations, ordered by id. MinID is exclusive.
func RelationQuery(s ir.RelationSearch, limit int) Select {
	var filters []Predicate
	if len(s.IDs) > 0 {
		filters = append(filters, In{Field: "relation.id", Values: ir.Ints(s.IDs...)})
	}
	if len(s.Types) > 0 {
		filters = append(filters, In{Field: "relation.type", Values: ir.Strings(s.Types...)})
	}
	if len(s.FromIDs) > 0 {
		filters = append(filters, In{Field: "relation.from_id", Values: ir.Ints(s.FromIDs...)})
	}
	if len(s.ToIDs) > 0 {
		filters = append(filters, In{Field: "relation.to_id", Values: ir.Ints(s.ToIDs...)})
	}
	if len(s.SubjectIDs) > 0 {
		filters = append(filters, In{Field: "relation.subject_id", Values: ir.Ints(s.SubjectIDs...)})
	}
	if len(s.Kinds) > 0 {
		kinds := make([]string, len(s.Kinds))
		for i, k := range s.Kinds {
			kinds[i] = string(k)
		}
		filters = append(filters, In{Field: "relation.kind", Values: ir.Strings(kinds...)})
	}
	if s.MinID > 0 {
		filters = append(filters, Compare{Field: "relation.id", Op: OpGT, Value: ir.IRInt(s.MinID)})
	}
	return Select{
		From:    Relations,
		Columns: RelationColumns,
		Filter:  AllOf(filters...),
		OrderBy: []Order{{Field: "relation.id", Desc: s.Reverse}},
		Limit:   limit,
		Offset:  s.Skip,
	}
}
