package queryir

import (
	"fmt"
	"unicode/utf8"

	"github.com/roach88/contentgraph/internal/ir"
)

// Row is anything that can resolve qualified field names to values.
// ir.PackageRow and ir.RelationRow implement it.
type Row interface {
	Lookup(field string) (ir.IRValue, bool)
}

// RelationSource is implemented by rows that can answer HasRelation.
type RelationSource interface {
	LiveRelations(relType string) []ir.Relation
}

// truth is a SQL three-valued logic result.
type truth int8

const (
	tFalse truth = iota
	tTrue
	tUnknown
)

func fromBool(b bool) truth {
	if b {
		return tTrue
	}
	return tFalse
}

// Eval evaluates p against a single row. A NULL (unknown) result is
// reported as false, which is how a WHERE clause treats it.
//
// bound supplies values for BoundEquals, keyed by the full variable name
// ("bound.actor").
func Eval(p Predicate, row Row, bound map[string]ir.IRValue) (bool, error) {
	t, err := eval(p, row, bound)
	if err != nil {
		return false, err
	}
	return t == tTrue, nil
}

// Exists reports whether p holds for at least one row. This is the
// in-memory counterpart of an inner join followed by GROUP BY: the group
// survives when any of its joined rows passes the filter.
func Exists(p Predicate, rows []Row, bound map[string]ir.IRValue) (bool, error) {
	for _, row := range rows {
		ok, err := Eval(p, row, bound)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func eval(p Predicate, row Row, bound map[string]ir.IRValue) (truth, error) {
	switch pred := p.(type) {
	case nil:
		return tTrue, nil
	case Const:
		return fromBool(pred.Value), nil
	case Equals:
		left, err := lookup(row, pred.Field)
		if err != nil {
			return tFalse, err
		}
		return compare(left, OpNE, pred.Value, true), nil
	case BoundEquals:
		left, err := lookup(row, pred.Field)
		if err != nil {
			return tFalse, err
		}
		right, ok := bound[pred.BoundVar]
		if !ok {
			return tFalse, fmt.Errorf("no value bound for %q", pred.BoundVar)
		}
		return compare(left, OpNE, right, true), nil
	case In:
		left, err := lookup(row, pred.Field)
		if err != nil {
			return tFalse, err
		}
		if isNull(left) {
			if len(pred.Values) == 0 {
				return tFalse, nil
			}
			return tUnknown, nil
		}
		result := tFalse
		for _, v := range pred.Values {
			switch compare(left, OpNE, v, true) {
			case tTrue:
				return tTrue, nil
			case tUnknown:
				result = tUnknown
			}
		}
		return result, nil
	case Like:
		left, err := lookup(row, pred.Field)
		if err != nil {
			return tFalse, err
		}
		s, ok := left.(ir.IRString)
		if !ok {
			if isNull(left) {
				return tUnknown, nil
			}
			return tFalse, nil
		}
		return fromBool(likeMatch(string(s), pred.Pattern)), nil
	case Compare:
		left, err := lookup(row, pred.Field)
		if err != nil {
			return tFalse, err
		}
		return compare(left, pred.Op, pred.Value, false), nil
	case BitClear:
		left, err := lookup(row, pred.Field)
		if err != nil {
			return tFalse, err
		}
		n, ok := left.(ir.IRInt)
		if !ok {
			return tUnknown, nil
		}
		return fromBool(int64(n)&pred.Mask == 0), nil
	case HasRelation:
		src, ok := row.(RelationSource)
		if !ok {
			return tFalse, fmt.Errorf("row %T cannot resolve relation existence", row)
		}
		for _, r := range src.LiveRelations(pred.Type) {
			for _, id := range pred.FromIDs {
				if r.FromID == id {
					return tTrue, nil
				}
			}
		}
		return tFalse, nil
	case And:
		result := tTrue
		for _, sub := range pred.Predicates {
			t, err := eval(sub, row, bound)
			if err != nil {
				return tFalse, err
			}
			if t == tFalse {
				return tFalse, nil
			}
			if t == tUnknown {
				result = tUnknown
			}
		}
		return result, nil
	case Or:
		result := tFalse
		for _, sub := range pred.Predicates {
			t, err := eval(sub, row, bound)
			if err != nil {
				return tFalse, err
			}
			if t == tTrue {
				return tTrue, nil
			}
			if t == tUnknown {
				result = tUnknown
			}
		}
		return result, nil
	case Not:
		t, err := eval(pred.Predicate, row, bound)
		if err != nil {
			return tFalse, err
		}
		switch t {
		case tTrue:
			return tFalse, nil
		case tFalse:
			return tTrue, nil
		}
		return tUnknown, nil
	default:
		return tFalse, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func lookup(row Row, field string) (ir.IRValue, error) {
	v, ok := row.Lookup(field)
	if !ok {
		return nil, fmt.Errorf("row has no field %q", field)
	}
	return v, nil
}

func isNull(v ir.IRValue) bool {
	switch v.(type) {
	case nil, ir.IRNull:
		return true
	}
	return false
}

// compare applies op to left and right. When equality is true the test is
// "=" and op is ignored. Values of different types never compare equal and
// never order, matching how the store's typed columns behave.
func compare(left ir.IRValue, op CompareOp, right ir.IRValue, equality bool) truth {
	if isNull(left) || isNull(right) {
		return tUnknown
	}
	c, ok := order(left, right)
	if !ok {
		if equality {
			return tFalse
		}
		return fromBool(op == OpNE)
	}
	if equality {
		return fromBool(c == 0)
	}
	switch op {
	case OpGT:
		return fromBool(c > 0)
	case OpGTE:
		return fromBool(c >= 0)
	case OpLT:
		return fromBool(c < 0)
	case OpLTE:
		return fromBool(c <= 0)
	case OpNE:
		return fromBool(c != 0)
	}
	return tFalse
}

// order returns -1, 0 or 1 for same-typed scalars.
func order(left, right ir.IRValue) (int, bool) {
	switch l := left.(type) {
	case ir.IRInt:
		r, ok := right.(ir.IRInt)
		if !ok {
			return 0, false
		}
		return cmp3(int64(l) < int64(r), int64(l) > int64(r)), true
	case ir.IRString:
		r, ok := right.(ir.IRString)
		if !ok {
			return 0, false
		}
		return cmp3(l < r, l > r), true
	case ir.IRBool:
		r, ok := right.(ir.IRBool)
		if !ok {
			return 0, false
		}
		return cmp3(!bool(l) && bool(r), bool(l) && !bool(r)), true
	}
	return 0, false
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

// likeMatch implements SQLite's default LIKE: % and _ wildcards, no escape
// character, case folding for ASCII letters only.
func likeMatch(s, pattern string) bool {
	if pattern == "" {
		return s == ""
	}
	p, pw := utf8.DecodeRuneInString(pattern)
	switch p {
	case '%':
		rest := pattern[pw:]
		for i := 0; ; {
			if likeMatch(s[i:], rest) {
				return true
			}
			if i >= len(s) {
				return false
			}
			_, w := utf8.DecodeRuneInString(s[i:])
			i += w
		}
	case '_':
		if s == "" {
			return false
		}
		_, w := utf8.DecodeRuneInString(s)
		return likeMatch(s[w:], pattern[pw:])
	}
	if s == "" {
		return false
	}
	c, w := utf8.DecodeRuneInString(s)
	if foldASCII(c) != foldASCII(p) {
		return false
	}
	return likeMatch(s[w:], pattern[pw:])
}

func foldASCII(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}
