package chain

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/contentgraph/internal/apperr"
	"github.com/roach88/contentgraph/internal/compiler"
	"github.com/roach88/contentgraph/internal/ir"
	"github.com/roach88/contentgraph/internal/metrics"
)

// Endpoint names accepted in chains.
const (
	EndpointUser     = "user"
	EndpointCategory = "category"
	EndpointContent  = "content"
	EndpointComment  = "comment"
)

// DefaultMaxDepth caps the number of steps in one request.
const DefaultMaxDepth = 5

// noMatch is injected when a step's references produced no ids. No row
// has a negative id, so the step runs and returns nothing.
const noMatch int64 = -1

type endpoint struct {
	fields   []string
	idFields []string
	// typePattern is the LIKE pattern entity searches are held to; empty
	// for relation-backed endpoints.
	typePattern string
}

var endpoints = map[string]endpoint{
	EndpointUser:     {fields: entityFields, idFields: entityIDFields, typePattern: ir.TypeUser},
	EndpointCategory: {fields: entityFields, idFields: entityIDFields, typePattern: ir.TypeCategory},
	EndpointContent:  {fields: entityFields, idFields: entityIDFields, typePattern: ir.TypeContent + "%"},
	EndpointComment:  {fields: commentFields, idFields: commentIDFields},
}

// Source runs permission-scoped searches for the resolver.
type Source interface {
	SearchViews(ctx context.Context, actor ir.Actor, s ir.Search) ([]ir.EntityView, error)
	SearchComments(ctx context.Context, actor ir.Actor, s ir.RelationSearch) ([]ir.CommentView, error)
}

// Request is a list of chain elements plus the fields to return per
// endpoint. An endpoint missing from Fields returns every field.
type Request struct {
	Chains []string            `json:"chains"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// Result maps endpoint name to its merged, id-ordered items.
type Result map[string][]map[string]any

// Resolver executes chain requests.
type Resolver struct {
	src      Source
	compiler *compiler.Compiler
	maxDepth int
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxDepth = n
		}
	}
}

// WithLogger sets the resolver's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithMetrics sets the resolver's metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a resolver over src.
func NewResolver(src Source, comp *compiler.Compiler, opts ...Option) *Resolver {
	r := &Resolver{
		src:      src,
		compiler: comp,
		maxDepth: DefaultMaxDepth,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type plan struct {
	step   Step
	search ir.Search
}

// Resolve runs every step of req as actor. Steps wait only for the steps
// they reference, so independent steps run concurrently. The request is
// validated completely before the first search runs.
func (r *Resolver) Resolve(ctx context.Context, actor ir.Actor, req Request) (Result, error) {
	plans, err := r.prepare(req)
	if err != nil {
		return nil, err
	}

	out := newMerger(req.Fields)
	for _, p := range plans {
		out.touch(p.step.Endpoint)
	}

	var (
		results = make([][]Item, len(plans))
		ok      = make([]bool, len(plans))
		done    = make([]chan struct{}, len(plans))
	)
	for i := range plans {
		done[i] = make(chan struct{})
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range plans {
		g.Go(func() error {
			defer close(done[i])
			for _, ref := range p.step.Refs {
				select {
				case <-done[ref.Index]:
				case <-gctx.Done():
					return gctx.Err()
				}
				if !ok[ref.Index] {
					// The failed dependency reports its own error.
					return nil
				}
			}

			items, err := r.run(gctx, actor, p, results)
			if err != nil {
				return fmt.Errorf("chain step %d (%s): %w", i, p.step.Endpoint, err)
			}
			results[i] = items
			ok[i] = true
			out.add(p.step.Endpoint, items)

			r.metrics.ChainStep()
			r.logger.Debug("chain step resolved",
				"step", i,
				"endpoint", p.step.Endpoint,
				"items", len(items))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out.result(), nil
}

// prepare parses and validates every step, reference and field.
func (r *Resolver) prepare(req Request) ([]plan, error) {
	if len(req.Chains) == 0 {
		return nil, apperr.BadRequest("chain: no steps")
	}
	if len(req.Chains) > r.maxDepth {
		return nil, apperr.BadRequest("chain: %d steps exceeds the limit of %d", len(req.Chains), r.maxDepth)
	}

	for name, fields := range req.Fields {
		ep, known := endpoints[name]
		if !known {
			return nil, apperr.BadRequest("chain: unknown endpoint %q in fields", name)
		}
		for _, f := range fields {
			if !slices.Contains(ep.fields, f) {
				return nil, apperr.BadRequest("chain: %s has no field %q", name, f)
			}
		}
	}

	plans := make([]plan, len(req.Chains))
	for i, raw := range req.Chains {
		step, err := Parse(raw)
		if err != nil {
			return nil, err
		}
		ep, known := endpoints[step.Endpoint]
		if !known {
			return nil, apperr.BadRequest("chain step %d: unknown endpoint %q", i, step.Endpoint)
		}
		for _, ref := range step.Refs {
			if ref.Index >= i {
				return nil, apperr.BadRequest("chain step %d: reference %s must point to an earlier step", i, ref)
			}
			prior := plans[ref.Index].step.Endpoint
			if !slices.Contains(endpoints[prior].idFields, ref.Field) {
				return nil, apperr.BadRequest("chain step %d: %s field %q holds no ids", i, prior, ref.Field)
			}
		}

		var s ir.Search
		if step.Body != nil {
			s, err = r.compiler.CompileSearch(fmt.Sprintf("chain[%d]", i), step.Body)
			if err != nil {
				return nil, err
			}
		}
		if err := scopeSearch(&s, ep, step.Endpoint); err != nil {
			return nil, apperr.BadRequest("chain step %d: %v", i, err)
		}
		plans[i] = plan{step: step, search: s}
	}
	return plans, nil
}

// scopeSearch holds s to the endpoint's entity type, or rejects filters a
// relation-backed endpoint cannot apply.
func scopeSearch(s *ir.Search, ep endpoint, name string) error {
	if ep.typePattern == "" {
		if s.TypeLike != "" || s.NameLike != "" || !s.CreateStart.IsZero() || !s.CreateEnd.IsZero() {
			return fmt.Errorf("%s accepts only ids, parentIds, limit, skip and reverse", name)
		}
		if s.Sort != "" && s.Sort != ir.SortID {
			return fmt.Errorf("%s sorts by id only", name)
		}
		return nil
	}
	if s.TypeLike == "" {
		s.TypeLike = ep.typePattern
		return nil
	}
	if !strings.HasPrefix(s.TypeLike, strings.TrimSuffix(ep.typePattern, "%")) {
		return fmt.Errorf("type %q is outside endpoint %s", s.TypeLike, name)
	}
	return nil
}

// run executes one step. Reference ids feed the ids filter of entity
// endpoints and the parent filter of comments.
func (r *Resolver) run(ctx context.Context, actor ir.Actor, p plan, results [][]Item) ([]Item, error) {
	s := p.search
	if len(p.step.Refs) > 0 {
		var ids []int64
		for _, ref := range p.step.Refs {
			for _, item := range results[ref.Index] {
				got, _ := item.IDField(ref.Field)
				ids = append(ids, got...)
			}
		}
		slices.Sort(ids)
		ids = slices.Compact(ids)

		if p.step.Endpoint == EndpointComment {
			s.ParentIDs = restrict(s.ParentIDs, ids)
		} else {
			s.IDs = restrict(s.IDs, ids)
		}
	}

	if p.step.Endpoint == EndpointComment {
		comments, err := r.src.SearchComments(ctx, actor, ir.RelationSearch{
			IDs:     s.IDs,
			ToIDs:   s.ParentIDs,
			Limit:   s.Limit,
			Skip:    s.Skip,
			Reverse: s.Reverse,
		})
		if err != nil {
			return nil, err
		}
		items := make([]Item, len(comments))
		for i, c := range comments {
			items[i] = commentItem{c}
		}
		return items, nil
	}

	views, err := r.src.SearchViews(ctx, actor, s)
	if err != nil {
		return nil, err
	}
	items := make([]Item, len(views))
	for i, v := range views {
		items[i] = entityItem{v}
	}
	return items, nil
}

// restrict narrows an explicit filter to the referenced ids. An empty
// outcome becomes the match-nothing sentinel, never an absent filter.
// Only the lowest ir.MaxLimit ids are kept.
func restrict(explicit, referenced []int64) []int64 {
	ids := referenced
	if len(explicit) > 0 {
		ids = nil
		for _, id := range referenced {
			if slices.Contains(explicit, id) {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return []int64{noMatch}
	}
	return ids[:min(len(ids), ir.MaxLimit)]
}

// merger collects items per endpoint, deduplicated by id. Steps call add
// concurrently.
type merger struct {
	fields map[string][]string

	mu    sync.Mutex
	items map[string]map[int64]Item
}

func newMerger(fields map[string][]string) *merger {
	return &merger{fields: fields, items: make(map[string]map[int64]Item)}
}

func (m *merger) touch(endpoint string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items[endpoint] == nil {
		m.items[endpoint] = make(map[int64]Item)
	}
}

func (m *merger) add(endpoint string, items []Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID := m.items[endpoint]
	for _, it := range items {
		if _, seen := byID[it.ItemID()]; !seen {
			byID[it.ItemID()] = it
		}
	}
}

func (m *merger) result() Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(Result, len(m.items))
	for endpoint, byID := range m.items {
		ids := make([]int64, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		slices.Sort(ids)

		fields := m.fields[endpoint]
		list := make([]map[string]any, len(ids))
		for i, id := range ids {
			list[i] = byID[id].Project(fields)
		}
		out[endpoint] = list
	}
	return out
}
