package compiler

import (
	"fmt"

	"github.com/roach88/contentgraph/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrNegativePaging  = "E101" // limit or skip below zero
	ErrUnknownSort     = "E102" // sort is not a known field
	ErrInvertedRange   = "E103" // createEnd not after createStart
	ErrTooManyIDs      = "E104" // ids longer than ir.MaxLimit
	ErrTooManyParents  = "E105" // parentIds longer than ir.MaxLimit
	ErrControlInFilter = "E106" // control character in a LIKE pattern
)

// ValidationError is one violated search rule.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidateSearch checks s against the search rules.
// Returns all errors found (does not fail-fast).
//
// Id signs are not checked here: bodies are held to positive ids by the
// schema, and chained searches use a negative id to match nothing.
func ValidateSearch(s ir.Search) []ValidationError {
	var errs []ValidationError

	if s.Limit < 0 {
		errs = append(errs, ValidationError{Field: "limit", Message: "must not be negative", Code: ErrNegativePaging})
	}
	if s.Skip < 0 {
		errs = append(errs, ValidationError{Field: "skip", Message: "must not be negative", Code: ErrNegativePaging})
	}
	if !ir.ValidSorts[s.Sort] {
		errs = append(errs, ValidationError{
			Field:   "sort",
			Message: fmt.Sprintf("unknown sort %q", s.Sort),
			Code:    ErrUnknownSort,
		})
	}
	if !s.CreateStart.IsZero() && !s.CreateEnd.IsZero() && !s.CreateEnd.After(s.CreateStart) {
		errs = append(errs, ValidationError{
			Field:   "createEnd",
			Message: "must be after createStart",
			Code:    ErrInvertedRange,
		})
	}

	if len(s.IDs) > ir.MaxLimit {
		errs = append(errs, ValidationError{
			Field:   "ids",
			Message: fmt.Sprintf("at most %d ids", ir.MaxLimit),
			Code:    ErrTooManyIDs,
		})
	}

	if len(s.ParentIDs) > ir.MaxLimit {
		errs = append(errs, ValidationError{
			Field:   "parentIds",
			Message: fmt.Sprintf("at most %d parent ids", ir.MaxLimit),
			Code:    ErrTooManyParents,
		})
	}

	for _, f := range []struct{ field, pattern string }{{"type", s.TypeLike}, {"name", s.NameLike}} {
		for _, r := range f.pattern {
			if r < 0x20 || r == 0x7f {
				errs = append(errs, ValidationError{
					Field:   f.field,
					Message: "control character in pattern",
					Code:    ErrControlInFilter,
				})
				break
			}
		}
	}

	return errs
}
