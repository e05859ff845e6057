package compiler

import (
	"fmt"
	"sync"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/roach88/contentgraph/internal/apperr"
	"github.com/roach88/contentgraph/internal/ir"
)

const searchSchema = `
import "time"

#Search: close({
	ids?:         [...int & >0]
	type?:        string & =~"^[A-Za-z0-9._%-]*$"
	name?:        string
	parentIds?:   [...int & >=0]
	createStart?: time.Time
	createEnd?:   time.Time
	limit?:       int & >=0
	skip?:        int & >=0
	sort?:        "id" | "name" | "type" | "createdate"
	reverse?:     bool
})
`

// searchBody mirrors #Search for decoding.
type searchBody struct {
	IDs         []int64 `json:"ids"`
	Type        string  `json:"type"`
	Name        string  `json:"name"`
	ParentIDs   []int64 `json:"parentIds"`
	CreateStart string  `json:"createStart"`
	CreateEnd   string  `json:"createEnd"`
	Limit       int     `json:"limit"`
	Skip        int     `json:"skip"`
	Sort        string  `json:"sort"`
	Reverse     bool    `json:"reverse"`
}

// Compiler holds the compiled #Search definition. A cue.Context is not
// safe for concurrent use, so calls are serialized.
type Compiler struct {
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
}

// New compiles the search schema.
func New() (*Compiler, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(searchSchema, cue.Filename("search.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile search schema: %w", formatCUEError(err))
	}
	return &Compiler{ctx: ctx, schema: v.LookupPath(cue.ParsePath("#Search"))}, nil
}

// CompileSearch parses a JSON search body. Every failure is a BadRequest
// wrapping a *CompileError that carries the offending position.
func (c *Compiler) CompileSearch(name string, body []byte) (ir.Search, error) {
	expr, err := cuejson.Extract(name, body)
	if err != nil {
		return ir.Search{}, apperr.Wrap(apperr.CodeBadRequest, formatCUEError(err), "search body")
	}

	c.mu.Lock()
	v := c.schema.Unify(c.ctx.BuildExpr(expr, cue.Filename(name)))
	err = v.Validate(cue.Concrete(true))
	var raw searchBody
	if err == nil {
		err = v.Decode(&raw)
	}
	c.mu.Unlock()
	if err != nil {
		return ir.Search{}, apperr.Wrap(apperr.CodeBadRequest, formatCUEError(err), "search body")
	}

	s := ir.Search{
		IDs:       raw.IDs,
		TypeLike:  raw.Type,
		NameLike:  raw.Name,
		ParentIDs: raw.ParentIDs,
		Limit:     raw.Limit,
		Skip:      raw.Skip,
		Sort:      raw.Sort,
		Reverse:   raw.Reverse,
	}
	if s.CreateStart, err = parseTime("createStart", raw.CreateStart); err != nil {
		return ir.Search{}, err
	}
	if s.CreateEnd, err = parseTime("createEnd", raw.CreateEnd); err != nil {
		return ir.Search{}, err
	}

	if errs := ValidateSearch(s); len(errs) > 0 {
		return ir.Search{}, apperr.Wrap(apperr.CodeBadRequest, errs[0], "search body")
	}
	return s, nil
}

func parseTime(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, apperr.Wrap(apperr.CodeBadRequest, &CompileError{Field: field, Message: err.Error()}, "search body")
	}
	return t, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// First error with a position wins.
	first := errs[0]
	field := "cue"
	if path := first.Path(); len(path) > 0 {
		field = path[len(path)-1]
	}
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: field, Message: first.Error(), Pos: positions[0]}
	}
	return &CompileError{Field: field, Message: first.Error()}
}
