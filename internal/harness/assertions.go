package harness

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/contentgraph/internal/ir"
	"github.com/roach88/contentgraph/internal/permission"
	"github.com/roach88/contentgraph/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s as %d id=%d -> %s\n", ev.Seq, ev.Op, ev.As, ev.ID, ev.Case)
		}
	}
	return buf.String()
}

// eventMatches reports whether ev satisfies the op, actor and case filters
// of an assertion. Empty filters match anything.
func eventMatches(ev TraceEvent, a Assertion) bool {
	if ev.Op != a.Op {
		return false
	}
	if a.As != nil && ev.As != *a.As {
		return false
	}
	return a.Case == "" || ev.Case == a.Case
}

func describe(a Assertion) string {
	s := a.Op
	if a.As != nil {
		s += fmt.Sprintf(" as %d", *a.As)
	}
	if a.Case != "" {
		s += " -> " + a.Case
	}
	return s
}

// assertTraceContains checks that some event matches the assertion.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if eventMatches(ev, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describe(a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that ops first appear in the given order.
// Intervening events are allowed.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range trace {
		if _, seen := positions[ev.Op]; !seen {
			positions[ev.Op] = i + 1
		}
	}

	for _, op := range a.Ops {
		if positions[op] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all ops present: %v", a.Ops),
				Actual:   fmt.Sprintf("missing op: %s", op),
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(a.Ops); i++ {
		prev, curr := a.Ops[i-1], a.Ops[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", a.Ops),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks the exact number of matching events.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if eventMatches(ev, a) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, describe(a)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// entityState renders a stored package for final_state checks. It reads
// below the permission layer, so deleted entities are visible too.
func entityState(pkg ir.EntityPackage) map[string]any {
	return map[string]any{
		"type":        pkg.Entity.Type,
		"name":        pkg.Entity.Name,
		"content":     pkg.Entity.Content,
		"parent":      pkg.ParentID(),
		"creator":     pkg.CreatorID(),
		"deleted":     pkg.Entity.Deleted(),
		"locked":      pkg.Entity.Flags.Has(ir.FlagLocked),
		"supers":      pkg.Supers(),
		"permissions": permission.FromRelations(pkg.Relations).Strings(),
		"values":      pkg.ValueMap(),
	}
}

// assertFinalState compares stored entity fields with the expected
// subset.
func assertFinalState(actx *AssertionContext, a Assertion) error {
	id, err := actx.resolve(a.Entity)
	if err != nil {
		return err
	}
	pkg, err := actx.Store.ReadPackage(actx.Ctx, id)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("entity %s (%d)", a.Entity, id),
			Actual:   fmt.Sprintf("read error: %v", err),
		}
	}

	actual, err := toJSONValue(entityState(pkg))
	if err != nil {
		return err
	}
	want, err := actx.values(a.Expect)
	if err != nil {
		return err
	}
	if field, ok := matchSubset(actual, want); !ok {
		got := actual.(map[string]any)
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("entity %s field %q = %v", a.Entity, field, want[field]),
			Actual:   fmt.Sprintf("%v", got[field]),
		}
	}
	return nil
}

// matchSubset checks that actual is an object holding every expected key
// with an equal value. Extra keys are ignored. On mismatch it returns the
// first offending key in sorted order.
func matchSubset(actual any, expected map[string]any) (string, bool) {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	actualMap, ok := actual.(map[string]any)
	if !ok {
		if len(keys) == 0 {
			return "", true
		}
		return keys[0], false
	}
	for _, k := range keys {
		v, exists := actualMap[k]
		if !exists || !reflect.DeepEqual(v, expected[k]) {
			return k, false
		}
	}
	return "", true
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context

	resolve func(Ref) (int64, error)
	values  func(map[string]any) (map[string]any, error)
}

// EvaluateAssertions evaluates all assertions against the result and
// returns a message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			if actx == nil || actx.Store == nil || actx.resolve == nil || actx.values == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
