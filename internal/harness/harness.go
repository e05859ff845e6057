package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/contentgraph/internal/apperr"
	"github.com/roach88/contentgraph/internal/chain"
	"github.com/roach88/contentgraph/internal/compiler"
	"github.com/roach88/contentgraph/internal/ir"
	"github.com/roach88/contentgraph/internal/listen"
	"github.com/roach88/contentgraph/internal/metrics"
	"github.com/roach88/contentgraph/internal/permission"
	"github.com/roach88/contentgraph/internal/presence"
	"github.com/roach88/contentgraph/internal/service"
	"github.com/roach88/contentgraph/internal/store"
	"github.com/roach88/contentgraph/internal/testutil"
)

// Harness executes scenario steps against one service instance.
type Harness struct {
	svc   *service.Service
	clock *testutil.ManualClock
	vars  map[string]int64
}

// Run executes a scenario in a fresh in-memory database and returns the
// result. Failed expectations and assertions are reported in the result;
// an error means the scenario itself could not run.
func Run(scenario *Scenario) (*Result, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewManualClock(testutil.Epoch)

	st, err := store.Open(":memory:", store.WithClock(clock.Now), store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	engine := permission.NewEngine(scenario.SuperUsers, logger)
	hub := listen.NewHub(st, engine, listen.Config{},
		listen.WithLogger(logger),
		listen.WithIDGenerator(testutil.NewFixedIDGenerator("")))
	defer hub.Close()
	st.Observe(hub)

	comp, err := compiler.New()
	if err != nil {
		return nil, err
	}
	svc := service.New(st, engine, hub, presence.NewRegistry(presence.WithClock(clock.Now)), comp,
		service.Config{},
		service.WithLogger(logger),
		service.WithMetrics(metrics.New(prometheus.NewRegistry())))

	ctx := context.Background()
	if err := svc.Rebuild(ctx); err != nil {
		return nil, err
	}

	h := &Harness{
		svc:   svc,
		clock: clock,
		vars:  map[string]int64{},
	}
	result := NewResult()

	if err := h.apply(ctx, "setup", scenario.Setup); err != nil {
		return nil, err
	}

	for i, step := range scenario.Flow {
		ev, ids, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("flow[%d] %s: %w", i, step.Op, err)
		}
		result.addTrace(ev)
		h.checkExpect(i, step, ev, ids, result)
	}

	maps.Copy(result.Bindings, h.vars)
	actx := &AssertionContext{Store: st, Ctx: ctx, resolve: h.resolve, values: h.resolveValues}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError("%s", msg)
	}
	return result, nil
}

// apply runs steps that must all succeed.
func (h *Harness) apply(ctx context.Context, label string, steps []Step) error {
	for i, step := range steps {
		ev, _, err := h.execute(ctx, step)
		if err != nil {
			return fmt.Errorf("%s[%d] %s: %w", label, i, step.Op, err)
		}
		if ev.Case != CaseOK {
			return fmt.Errorf("%s[%d] %s: got %s", label, i, step.Op, ev.Case)
		}
	}
	return nil
}

// resolve turns a Ref into an id. The empty ref is 0.
func (h *Harness) resolve(r Ref) (int64, error) {
	if r == "" {
		return 0, nil
	}
	if name, ok := r.Binding(); ok {
		id, found := h.vars[name]
		if !found {
			return 0, fmt.Errorf("unbound name $%s", name)
		}
		return id, nil
	}
	return strconv.ParseInt(string(r), 10, 64)
}

func (h *Harness) resolveAll(refs []Ref) ([]int64, error) {
	out := make([]int64, 0, len(refs))
	for _, r := range refs {
		id, err := h.resolve(r)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// execute runs one step. Service errors become the event's case; the
// returned error is reserved for malformed steps and internal failures.
// ids is the id list of list-shaped results.
func (h *Harness) execute(ctx context.Context, step Step) (TraceEvent, []int64, error) {
	actor := ir.Actor{ID: step.As, Super: step.Super}
	ev := TraceEvent{Op: step.Op, As: step.As}

	target, err := h.resolve(step.ID)
	if err != nil {
		return ev, nil, err
	}
	ev.ID = target

	var (
		result any
		ids    []int64
		opErr  error
	)
	switch step.Op {
	case "write":
		view, err := h.entityView(step.Entity)
		if err != nil {
			return ev, nil, err
		}
		target, ev.ID = view.ID, view.ID
		var out ir.EntityView
		out, opErr = h.svc.Write(ctx, actor, view)
		if opErr == nil {
			ev.ID = out.ID
			result = out
		}
	case "get":
		var out ir.EntityView
		out, opErr = h.svc.Get(ctx, actor, target)
		result = out
	case "delete":
		opErr = h.svc.Delete(ctx, actor, target)
	case "search":
		search, err := h.search(step.Search)
		if err != nil {
			return ev, nil, err
		}
		var views []ir.EntityView
		views, opErr = h.svc.Search(ctx, actor, search)
		for _, v := range views {
			ids = append(ids, v.ID)
		}
	case "comment":
		var c ir.CommentView
		c, opErr = h.svc.Comment(ctx, actor, target, step.Text)
		if opErr == nil {
			ev.ID = c.ID
			result = c
		}
	case "edit_comment":
		var c ir.CommentView
		c, opErr = h.svc.EditComment(ctx, actor, target, step.Text)
		result = c
	case "delete_comment":
		opErr = h.svc.DeleteComment(ctx, actor, target)
	case "vote":
		opErr = h.svc.Vote(ctx, actor, target, step.Text)
	case "votes":
		result, opErr = h.svc.Votes(ctx, actor, target)
	case "watch":
		opErr = h.svc.Watch(ctx, actor, target)
	case "listen":
		after, err := h.resolve(step.After)
		if err != nil {
			return ev, nil, err
		}
		req := listen.Request{Watermark: after, Types: step.Types, Timeout: step.Timeout}
		if target != 0 {
			req.ScopeIDs = []int64{target}
		}
		var res listen.Result
		res, opErr = h.svc.Listen(ctx, actor, req)
		for _, r := range res.Relations {
			ids = append(ids, r.ID)
		}
	case "listeners":
		var counts map[int64]int
		counts, opErr = h.svc.Listeners(ctx, actor, target)
		byUser := make(map[string]any, len(counts))
		for u, n := range counts {
			byUser[strconv.FormatInt(u, 10)] = n
		}
		result = byUser
	case "chain":
		var res chain.Result
		res, opErr = h.svc.Chain(ctx, actor, chain.Request{Chains: step.Chains})
		byEndpoint := make(map[string]any, len(res))
		for endpoint, items := range res {
			found := make([]any, len(items))
			for i, item := range items {
				found[i] = item["id"]
			}
			byEndpoint[endpoint] = found
		}
		result = byEndpoint
	case "advance":
		if h.clock == nil {
			return ev, nil, fmt.Errorf("advance needs a scenario clock")
		}
		h.clock.Advance(step.Advance)
	default:
		return ev, nil, fmt.Errorf("unknown op %q", step.Op)
	}

	ev.Case = CaseOK
	if opErr != nil {
		code := apperr.CodeOf(opErr)
		if code == "" {
			return ev, nil, opErr
		}
		ev.Case = string(code)
		ev.ID = target
		result = nil
	}
	if result != nil {
		if ev.Result, err = toJSONValue(result); err != nil {
			return ev, nil, err
		}
	}
	if step.Bind != "" && ev.Case == CaseOK {
		h.vars[step.Bind] = ev.ID
	}
	return ev, ids, nil
}

func (h *Harness) entityView(spec *EntitySpec) (ir.EntityView, error) {
	id, err := h.resolve(spec.ID)
	if err != nil {
		return ir.EntityView{}, err
	}
	parent, err := h.resolve(spec.Parent)
	if err != nil {
		return ir.EntityView{}, err
	}
	supers, err := h.resolveAll(spec.Supers)
	if err != nil {
		return ir.EntityView{}, err
	}
	return ir.EntityView{
		ID:          id,
		Type:        spec.Type,
		Name:        spec.Name,
		Content:     spec.Content,
		ParentID:    parent,
		Permissions: spec.Permissions,
		Supers:      supers,
		Values:      spec.Values,
	}, nil
}

func (h *Harness) search(spec *SearchSpec) (ir.Search, error) {
	if spec == nil {
		return ir.Search{}, nil
	}
	parents, err := h.resolveAll(spec.Parents)
	if err != nil {
		return ir.Search{}, err
	}
	return ir.Search{
		TypeLike:  spec.Type,
		NameLike:  spec.Name,
		ParentIDs: parents,
		Limit:     spec.Limit,
		Skip:      spec.Skip,
		Sort:      spec.Sort,
		Reverse:   spec.Reverse,
	}, nil
}

// checkExpect compares an event with the step's expect clause. A step
// without one must succeed.
func (h *Harness) checkExpect(i int, step Step, ev TraceEvent, ids []int64, result *Result) {
	want := step.Expect
	if want == nil {
		want = &Expect{Case: CaseOK}
	}
	if ev.Case != want.Case {
		result.AddError("flow[%d] %s as %d: expected case %s, got %s", i, step.Op, step.As, want.Case, ev.Case)
		return
	}

	if want.IDs != nil {
		wantIDs, err := h.resolveAll(want.IDs)
		if err != nil {
			result.AddError("flow[%d] %s: %v", i, step.Op, err)
			return
		}
		if !slices.Equal(wantIDs, ids) {
			result.AddError("flow[%d] %s as %d: expected ids %v, got %v", i, step.Op, step.As, wantIDs, ids)
		}
	}

	if len(want.Result) > 0 {
		expected, err := h.resolveValues(want.Result)
		if err != nil {
			result.AddError("flow[%d] %s: %v", i, step.Op, err)
			return
		}
		if field, ok := matchSubset(ev.Result, expected); !ok {
			result.AddError("flow[%d] %s as %d: result field %q: expected %v in %v", i, step.Op, step.As, field, expected[field], ev.Result)
		}
	}
}

// resolveValues replaces "$name" strings in expected values with ids and
// normalizes numbers the way JSON results carry them.
func (h *Harness) resolveValues(in map[string]any) (map[string]any, error) {
	var walk func(v any) (any, error)
	walk = func(v any) (any, error) {
		switch val := v.(type) {
		case string:
			if _, ok := Ref(val).Binding(); !ok {
				return val, nil
			}
			id, err := h.resolve(Ref(val))
			if err != nil {
				return nil, err
			}
			return id, nil
		case []any:
			out := make([]any, len(val))
			for i, e := range val {
				r, err := walk(e)
				if err != nil {
					return nil, err
				}
				out[i] = r
			}
			return out, nil
		case map[string]any:
			out := make(map[string]any, len(val))
			for k, e := range val {
				r, err := walk(e)
				if err != nil {
					return nil, err
				}
				out[k] = r
			}
			return out, nil
		}
		return v, nil
	}

	resolved, err := walk(in)
	if err != nil {
		return nil, err
	}
	norm, err := toJSONValue(resolved)
	if err != nil {
		return nil, err
	}
	return norm.(map[string]any), nil
}

// toJSONValue round-trips v through encoding/json so that results and
// expectations compare as plain maps, slices, strings and float64s.
func toJSONValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return out, nil
}
