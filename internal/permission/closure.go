package permission

import (
	"slices"

	"github.com/roach88/contentgraph/internal/ir"
)

// Closure maps a category id to its inherited supers: its own local supers
// plus those of every ancestor, sorted and de-duplicated.
type Closure map[int64][]int64

// BuildClosure computes the closure for every category. Parents outside
// the given set end the chain. A cycle in the hierarchy ends at the first
// repeated category.
func BuildClosure(cats []ir.Category) Closure {
	byID := make(map[int64]ir.Category, len(cats))
	for _, c := range cats {
		byID[c.ID] = c
	}

	closure := make(Closure, len(cats))
	for _, c := range cats {
		if _, done := closure[c.ID]; done {
			continue
		}
		closure[c.ID] = inherited(c.ID, byID, map[int64]bool{})
	}
	return closure
}

func inherited(id int64, byID map[int64]ir.Category, visiting map[int64]bool) []int64 {
	var supers []int64
	for cur, ok := byID[id]; ok && !visiting[cur.ID]; cur, ok = byID[cur.ParentID] {
		visiting[cur.ID] = true
		supers = append(supers, cur.Supers...)
		if cur.ParentID == 0 {
			break
		}
	}
	slices.Sort(supers)
	return slices.Compact(supers)
}
