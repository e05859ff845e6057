package compiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/contentgraph/internal/ir"
)

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateSearch_Valid(t *testing.T) {
	assert.Empty(t, ValidateSearch(ir.Search{}))
	assert.Empty(t, ValidateSearch(ir.Search{
		IDs:       []int64{1},
		ParentIDs: []int64{0},
		Sort:      ir.SortName,
		Limit:     5000, // clamped later, not rejected
	}))
	assert.Empty(t, ValidateSearch(ir.Search{IDs: []int64{-1}}), "match-nothing sentinel")
}

func TestValidateSearch_CollectsAll(t *testing.T) {
	errs := ValidateSearch(ir.Search{
		Limit:     -1,
		Skip:      -2,
		Sort:      "votes",
		IDs:       []int64{4, -1},
		ParentIDs: []int64{-3},
		NameLike:  "a\x00b",
	})

	assert.Equal(t, []string{
		ErrNegativePaging,
		ErrNegativePaging,
		ErrUnknownSort,
		ErrControlInFilter,
	}, codes(errs))
	assert.Equal(t, "name", errs[3].Field)
}

func TestValidateSearch_DateRange(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Empty(t, ValidateSearch(ir.Search{CreateStart: start}))
	assert.Empty(t, ValidateSearch(ir.Search{CreateStart: start, CreateEnd: start.Add(time.Nanosecond)}))

	errs := ValidateSearch(ir.Search{CreateStart: start, CreateEnd: start})
	require.Len(t, errs, 1)
	assert.Equal(t, ErrInvertedRange, errs[0].Code)
}

func TestValidateSearch_TooManyIDs(t *testing.T) {
	ids := make([]int64, ir.MaxLimit+1)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	errs := ValidateSearch(ir.Search{IDs: ids, ParentIDs: ids})

	assert.Equal(t, []string{ErrTooManyIDs, ErrTooManyParents}, codes(errs))
}

func TestValidationError_Error(t *testing.T) {
	e := ValidationError{Field: "sort", Message: "unknown sort \"x\"", Code: ErrUnknownSort}
	assert.Equal(t, "[E102] sort: unknown sort \"x\"", e.Error())
}
