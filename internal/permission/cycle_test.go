package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/contentgraph/internal/ir"
)

func TestFindCycles_NoCycles(t *testing.T) {
	cats := []ir.Category{
		{ID: 1},
		{ID: 2, ParentID: 1},
		{ID: 3, ParentID: 2},
		{ID: 4, ParentID: 1},
	}
	assert.Empty(t, FindCycles(cats))
}

func TestFindCycles_ParentOutsideSetIsNotACycle(t *testing.T) {
	assert.Empty(t, FindCycles([]ir.Category{{ID: 2, ParentID: 99}}))
}

func TestFindCycles_SelfParent(t *testing.T) {
	warnings := FindCycles([]ir.Category{{ID: 1}, {ID: 5, ParentID: 5}})

	require.Len(t, warnings, 1)
	assert.Equal(t, []int64{5, 5}, warnings[0].Path)
	assert.Contains(t, warnings[0].Message, "own parent")
}

func TestFindCycles_Loop(t *testing.T) {
	cats := []ir.Category{
		{ID: 9, ParentID: 7},
		{ID: 7, ParentID: 8},
		{ID: 8, ParentID: 9},
		{ID: 10, ParentID: 9}, // hangs off the loop, not part of it
	}
	warnings := FindCycles(cats)

	require.Len(t, warnings, 1)
	assert.Equal(t, []int64{7, 8, 9, 7}, warnings[0].Path)
	assert.Equal(t, "category hierarchy loop: 7 → 8 → 9 → 7", warnings[0].Message)
}

func TestFindCycles_TwoLoopsOrdered(t *testing.T) {
	cats := []ir.Category{
		{ID: 20, ParentID: 21},
		{ID: 21, ParentID: 20},
		{ID: 3, ParentID: 4},
		{ID: 4, ParentID: 3},
	}
	warnings := FindCycles(cats)

	require.Len(t, warnings, 2)
	assert.Equal(t, []int64{3, 4, 3}, warnings[0].Path)
	assert.Equal(t, []int64{20, 21, 20}, warnings[1].Path)
}
