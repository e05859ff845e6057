package harness

import (
	"fmt"

	"github.com/roach88/contentgraph/internal/ir"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq int64  `json:"seq"`
	Op  string `json:"op"`
	As  int64  `json:"as"`
	// ID is the resolved target id, or the id a create produced.
	ID     int64  `json:"id,omitempty"`
	Case   string `json:"case"`
	Result any    `json:"result,omitempty"`
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// Bindings maps $names to the ids they resolved to.
	Bindings map[string]int64 `json:"bindings,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Bindings: map[string]int64{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

func (r *Result) addTrace(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}

// Snapshot renders the golden form of the trace as canonical JSON. Results
// are left out; each event keeps its op, actor, target id and case.
func (r *Result) Snapshot(name string) ([]byte, error) {
	events := make(ir.IRArray, len(r.Trace))
	for i, ev := range r.Trace {
		obj := ir.IRObject{
			"seq":  ir.IRInt(ev.Seq),
			"op":   ir.IRString(ev.Op),
			"as":   ir.IRInt(ev.As),
			"case": ir.IRString(ev.Case),
		}
		if ev.ID != 0 {
			obj["id"] = ir.IRInt(ev.ID)
		}
		events[i] = obj
	}
	return ir.MarshalCanonical(ir.IRObject{
		"scenario": ir.IRString(name),
		"trace":    events,
	})
}
