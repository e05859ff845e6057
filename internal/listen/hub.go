package listen

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/contentgraph/internal/apperr"
	"github.com/roach88/contentgraph/internal/ir"
	"github.com/roach88/contentgraph/internal/metrics"
	"github.com/roach88/contentgraph/internal/queryir"
)

// Source is the read side of the store the hub queries.
type Source interface {
	SearchRelations(ctx context.Context, sel queryir.Select, bound map[string]ir.IRValue) ([]ir.Relation, error)
	SearchEntities(ctx context.Context, sel queryir.Select, bound map[string]ir.IRValue) ([]int64, error)
}

// Permissions supplies the read predicate for scoping results.
type Permissions interface {
	Predicate(actor ir.Actor, action ir.Action) queryir.Predicate
}

// Request describes what to wait for.
type Request struct {
	// Watermark is the last relation id the caller has seen. Only
	// relations with a strictly greater id match.
	Watermark int64
	// Types restricts relation types. Empty matches every type. Watch and
	// vote rows only ever reach the user who wrote them.
	Types []string
	// ScopeIDs restricts the parent (to_id) of matching relations. Empty
	// matches any parent the caller can read.
	ScopeIDs []int64
	// Timeout is the caller's preferred wait. Zero or anything above the
	// hub's maximum is clamped to the maximum.
	Timeout time.Duration
}

// Result is a completed wait.
type Result struct {
	Relations []ir.Relation
	// Watermark is the highest id in Relations, the value to send next.
	Watermark int64
}

// Config bounds the hub.
type Config struct {
	MaxTimeout   time.Duration
	BacklogLimit int
}

var (
	errTimedOut  = errors.New("listen timeout elapsed")
	errHubClosed = errors.New("listen hub closed")
)

// waiter is one registered Listen call. The id only labels logs.
type waiter struct {
	id     string
	req    Request
	signal chan struct{} // buffered, size 1
}

// matches is the cheap pre-filter applied on write. It does not check
// permissions; the woken waiter does that in its query.
func (w *waiter) matches(r ir.Relation) bool {
	if r.ID <= w.req.Watermark {
		return false
	}
	if len(w.req.Types) > 0 && !slices.Contains(w.req.Types, r.Type) {
		return false
	}
	if len(w.req.ScopeIDs) > 0 && !slices.Contains(w.req.ScopeIDs, r.ToID) {
		return false
	}
	return true
}

// Hub is the process-lifetime registry of listen waiters. Construct one
// per store and register it as the store's write observer.
type Hub struct {
	src     Source
	perms   Permissions
	cfg     Config
	ids     IDGenerator
	logger  *slog.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	waiters map[*waiter]struct{}

	// afterBacklog runs between an empty backlog check and the wait.
	// Tests use it to write inside that window.
	afterBacklog func()
}

// Option configures a Hub.
type Option func(*Hub)

// WithIDGenerator sets the waiter id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(h *Hub) { h.ids = g }
}

// WithLogger sets the hub's logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// WithMetrics sets the hub's metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// NewHub creates a hub. Non-positive config values fall back to 60s and
// ir.MaxLimit.
func NewHub(src Source, perms Permissions, cfg Config, opts ...Option) *Hub {
	if cfg.MaxTimeout <= 0 {
		cfg.MaxTimeout = 60 * time.Second
	}
	cfg.BacklogLimit = ir.ClampLimit(cfg.BacklogLimit, ir.MaxLimit, ir.MaxLimit)

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		src:     src,
		perms:   perms,
		cfg:     cfg,
		ids:     UUIDv7Generator{},
		logger:  slog.Default(),
		ctx:     ctx,
		cancel:  cancel,
		waiters: make(map[*waiter]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// MaxTimeout is the longest a single Listen call may wait.
func (h *Hub) MaxTimeout() time.Duration {
	return h.cfg.MaxTimeout
}

// RelationsWritten wakes every waiter that a committed relation may
// satisfy. Never blocks: a pending signal absorbs further ones.
func (h *Hub) RelationsWritten(rels []ir.Relation) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for w := range h.waiters {
		for _, r := range rels {
			if w.matches(r) {
				select {
				case w.signal <- struct{}{}:
				default:
				}
				break
			}
		}
	}
}

// Waiting returns the number of registered waiters.
func (h *Hub) Waiting() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.waiters)
}

// Close cancels every current and future Listen call with ErrCancelled.
func (h *Hub) Close() {
	h.cancel()
}

// Listen blocks until a relation above the watermark matching the request
// and readable by actor exists, the timeout elapses, or the wait is
// cancelled by ctx or Close.
func (h *Hub) Listen(ctx context.Context, actor ir.Actor, req Request) (Result, error) {
	if h.ctx.Err() != nil {
		h.metrics.ListenFinished(metrics.OutcomeCancelled)
		return Result{}, apperr.Cancelled(errHubClosed, "listen")
	}

	// Armed.
	w := &waiter{id: h.ids.Generate(), req: req, signal: make(chan struct{}, 1)}
	h.register(w)
	defer h.unregister(w)

	log := h.logger.With("waiter_id", w.id, "actor_id", actor.ID, "watermark", req.Watermark)

	// One linked context: caller cancellation, hub shutdown and the
	// server-enforced deadline.
	linked, cancelLinked := context.WithCancelCause(ctx)
	defer cancelLinked(nil)
	stop := context.AfterFunc(h.ctx, func() { cancelLinked(errHubClosed) })
	defer stop()
	waitCtx, cancelWait := context.WithTimeoutCause(linked, h.timeout(req.Timeout), errTimedOut)
	defer cancelWait()

	// BacklogCheck.
	res, err := h.collect(waitCtx, actor, req)
	if err != nil {
		return Result{}, h.finish(waitCtx, log, req, err)
	}
	if len(res.Relations) > 0 {
		log.Debug("listen completed from backlog", "relations", len(res.Relations))
		h.metrics.ListenFinished(metrics.OutcomeInstant)
		return res, nil
	}
	if h.afterBacklog != nil {
		h.afterBacklog()
	}

	// Waiting.
	for {
		select {
		case <-w.signal:
			res, err := h.collect(waitCtx, actor, req)
			if err != nil {
				return Result{}, h.finish(waitCtx, log, req, err)
			}
			if len(res.Relations) > 0 {
				log.Debug("listen completed", "relations", len(res.Relations))
				h.metrics.ListenFinished(metrics.OutcomeCompleted)
				return res, nil
			}
			// Woken by a relation the caller cannot see: keep waiting.
		case <-waitCtx.Done():
			return Result{}, h.finish(waitCtx, log, req, waitCtx.Err())
		}
	}
}

// finish classifies a terminating error. Deadline and cancellation are
// reported through context.Cause so the two never mix.
func (h *Hub) finish(waitCtx context.Context, log *slog.Logger, req Request, err error) error {
	if waitCtx.Err() == nil {
		log.Error("listen query failed", "error", err)
		h.metrics.ListenFinished(metrics.OutcomeError)
		return err
	}
	cause := context.Cause(waitCtx)
	if errors.Is(cause, errTimedOut) {
		log.Debug("listen timed out")
		h.metrics.ListenFinished(metrics.OutcomeTimeout)
		return apperr.Timeout("no new relations after %d", req.Watermark)
	}
	log.Debug("listen cancelled", "cause", cause)
	h.metrics.ListenFinished(metrics.OutcomeCancelled)
	return apperr.Cancelled(cause, "listen")
}

func (h *Hub) timeout(requested time.Duration) time.Duration {
	if requested <= 0 || requested > h.cfg.MaxTimeout {
		return h.cfg.MaxTimeout
	}
	return requested
}

func (h *Hub) register(w *waiter) {
	h.mu.Lock()
	h.waiters[w] = struct{}{}
	h.mu.Unlock()
	h.metrics.ListenWaitingDelta(1)
}

func (h *Hub) unregister(w *waiter) {
	h.mu.Lock()
	delete(h.waiters, w)
	h.mu.Unlock()
	h.metrics.ListenWaitingDelta(-1)
}

// collect returns the matching relations above the watermark whose parent
// the actor can read at this moment. Pages past relations the actor cannot
// see until a readable one turns up or the stream is exhausted.
func (h *Hub) collect(ctx context.Context, actor ir.Actor, req Request) (Result, error) {
	minID := req.Watermark
	for {
		rels, err := h.src.SearchRelations(ctx, queryir.RelationQuery(ir.RelationSearch{
			Types: req.Types,
			ToIDs: req.ScopeIDs,
			MinID: minID,
		}, h.cfg.BacklogLimit), nil)
		if err != nil {
			return Result{}, err
		}
		if len(rels) == 0 {
			return Result{}, nil
		}

		visible, err := h.readable(ctx, actor, rels)
		if err != nil {
			return Result{}, err
		}
		if len(visible) > 0 {
			return Result{Relations: visible, Watermark: visible[len(visible)-1].ID}, nil
		}
		if len(rels) < h.cfg.BacklogLimit {
			return Result{}, nil
		}
		minID = rels[len(rels)-1].ID
	}
}

// ownerOnly are relation types private to the user in FromID. Vote
// tallies are public; who voted is not.
var ownerOnly = map[string]bool{
	ir.RelWatch: true,
	ir.RelVote:  true,
}

// readable keeps the relations whose parent passes the read predicate,
// dropping other users' private relations.
func (h *Hub) readable(ctx context.Context, actor ir.Actor, rels []ir.Relation) ([]ir.Relation, error) {
	var parents []int64
	for _, r := range rels {
		if ownerOnly[r.Type] && r.FromID != actor.ID {
			continue
		}
		if !slices.Contains(parents, r.ToID) {
			parents = append(parents, r.ToID)
		}
	}
	if len(parents) == 0 {
		return nil, nil
	}

	sel := queryir.EntitySearch(ir.Search{IDs: parents}, h.perms.Predicate(actor, ir.ActionRead), len(parents))
	ids, err := h.src.SearchEntities(ctx, sel, nil)
	if err != nil {
		return nil, err
	}

	ok := make(map[int64]bool, len(ids))
	for _, id := range ids {
		ok[id] = true
	}
	var out []ir.Relation
	for _, r := range rels {
		if ok[r.ToID] && (!ownerOnly[r.Type] || r.FromID == actor.ID) {
			out = append(out, r)
		}
	}
	return out, nil
}
