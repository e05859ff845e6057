package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/contentgraph/internal/apperr"
	"github.com/roach88/contentgraph/internal/ir"
)

// ValidationResult lists the problems found in a query.
type ValidationResult struct {
	// Valid is true when Problems is empty.
	Valid bool

	// Problems describes each rejected construct.
	Problems []string
}

// Err returns nil for a valid query, or a bad-request error joining every
// problem.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return apperr.BadRequest("invalid query: %s", strings.Join(r.Problems, "; "))
}

// Validate checks that a query only references known fields of the sources
// it reads, uses known operators and carries no nil predicate leaves.
//
// Validate is a pure function with no side effects.
func Validate(query Query) ValidationResult {
	v := &validator{problems: []string{}}
	v.validateQuery(query)
	return ValidationResult{
		Valid:    len(v.problems) == 0,
		Problems: v.problems,
	}
}

// ValidatePredicate checks a predicate in isolation against the given
// source aliases.
func ValidatePredicate(p Predicate, aliases ...string) ValidationResult {
	v := &validator{problems: []string{}, aliases: map[string]bool{}}
	for _, a := range aliases {
		v.aliases[a] = true
	}
	v.validatePredicate(p)
	return ValidationResult{
		Valid:    len(v.problems) == 0,
		Problems: v.problems,
	}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
	aliases  map[string]bool
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case Select:
		v.validateSelect(query)
	case *Select:
		if query == nil {
			v.addProblem("nil query")
			return
		}
		v.validateSelect(*query)
	default:
		v.addProblem("unknown query type: %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	v.aliases = map[string]bool{sel.From.Alias: true}
	if sel.From.Table == "" || sel.From.Alias == "" {
		v.addProblem("select source must name a table and alias")
	}
	if sel.Join != nil {
		v.aliases[sel.Join.Right.Alias] = true
		v.validateField(sel.Join.LeftField)
		v.validateField(sel.Join.RightField)
	}
	if len(sel.Columns) == 0 {
		v.addProblem("select must name at least one column")
	}
	for _, c := range sel.Columns {
		v.validateField(c)
	}
	if sel.GroupBy != "" {
		v.validateField(sel.GroupBy)
	}
	for _, o := range sel.OrderBy {
		v.validateField(o.Field)
	}
	if sel.Limit < 0 || sel.Offset < 0 {
		v.addProblem("limit and offset must be non-negative")
	}
	if sel.Filter != nil {
		v.validatePredicate(sel.Filter)
	}
}

func (v *validator) validateField(field string) {
	if !KnownField(field) {
		v.addProblem("unknown field %q", field)
		return
	}
	alias, _, _ := strings.Cut(field, ".")
	if !v.aliases[alias] {
		v.addProblem("field %q is not in scope", field)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
		v.addProblem("nil predicate")
	case Equals:
		v.validateField(pred.Field)
		v.validateScalar(pred.Field, pred.Value)
	case BoundEquals:
		v.validateField(pred.Field)
		if !strings.HasPrefix(pred.BoundVar, "bound.") {
			v.addProblem("bound variable %q must use the bound. prefix", pred.BoundVar)
		}
	case In:
		v.validateField(pred.Field)
		for _, val := range pred.Values {
			v.validateScalar(pred.Field, val)
		}
	case Like:
		v.validateField(pred.Field)
		if KindOf(pred.Field) == KindInt {
			v.addProblem("LIKE on integer field %q", pred.Field)
		}
	case Compare:
		v.validateField(pred.Field)
		v.validateScalar(pred.Field, pred.Value)
		switch pred.Op {
		case OpGT, OpGTE, OpLT, OpLTE, OpNE:
		default:
			v.addProblem("unknown comparison operator %q", pred.Op)
		}
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case Or:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case Not:
		v.validatePredicate(pred.Predicate)
	case BitClear:
		v.validateField(pred.Field)
		if KindOf(pred.Field) != KindInt {
			v.addProblem("bit test on non-integer field %q", pred.Field)
		}
	case HasRelation:
		if !v.aliases[Entities.Alias] {
			v.addProblem("relation existence test needs the %s source", Entities.Table)
		}
		if pred.Type == "" {
			v.addProblem("relation existence test needs a type")
		}
	case Const:
	default:
		v.addProblem("unknown predicate type: %T", p)
	}
}

// validateScalar rejects values whose type differs from the column's, since
// the store would coerce them where the evaluator does not.
func (v *validator) validateScalar(field string, val ir.IRValue) {
	switch val.(type) {
	case ir.IRNull:
	case ir.IRInt:
		if k := KindOf(field); k != 0 && k != KindInt {
			v.addProblem("field %q compared to integer", field)
		}
	case ir.IRString:
		if k := KindOf(field); k != 0 && k != KindText {
			v.addProblem("field %q compared to string", field)
		}
	default:
		v.addProblem("field %q compared to %T", field, val)
	}
}
