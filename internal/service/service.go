// Package service is the permission-checked surface over the store: entity
// search and writes, comments, votes, watches, long-poll listening with
// presence, chained lookups and the data contract offered to extension
// modules.
//
// Every mutation re-verifies permission against the stored state inside
// the store's write transaction, never against the caller's view. An
// entity the actor cannot read is reported as NotFound, exactly like one
// that does not exist.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/contentgraph/internal/apperr"
	"github.com/roach88/contentgraph/internal/chain"
	"github.com/roach88/contentgraph/internal/compiler"
	"github.com/roach88/contentgraph/internal/ir"
	"github.com/roach88/contentgraph/internal/listen"
	"github.com/roach88/contentgraph/internal/metrics"
	"github.com/roach88/contentgraph/internal/permission"
	"github.com/roach88/contentgraph/internal/presence"
	"github.com/roach88/contentgraph/internal/store"
)

// Config holds the service limits.
type Config struct {
	DefaultLimit  int
	MaxLimit      int
	ListenGrace   time.Duration
	ChainMaxDepth int
}

// Service wires the store, permission engine, listen hub and presence
// registry together. Safe for concurrent use.
type Service struct {
	store    *store.Store
	perms    *permission.Engine
	hub      *listen.Hub
	presence *presence.Registry
	chain    *chain.Resolver
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics sets the service metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a service. The hub should already observe st.
func New(st *store.Store, perms *permission.Engine, hub *listen.Hub, reg *presence.Registry, comp *compiler.Compiler, cfg Config, opts ...Option) *Service {
	if cfg.MaxLimit <= 0 || cfg.MaxLimit > ir.MaxLimit {
		cfg.MaxLimit = ir.MaxLimit
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 100
	}
	if cfg.ListenGrace <= 0 {
		cfg.ListenGrace = 10 * time.Second
	}

	s := &Service{
		store:    st,
		perms:    perms,
		hub:      hub,
		presence: reg,
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.chain = chain.NewResolver(chainSource{s}, comp,
		chain.WithMaxDepth(cfg.ChainMaxDepth),
		chain.WithLogger(s.logger),
		chain.WithMetrics(s.metrics))
	return s
}

// Rebuild reloads the category hierarchy into the permission closure map.
// Call once at startup; category writes call it again.
func (s *Service) Rebuild(ctx context.Context) error {
	cats, err := s.store.Categories(ctx)
	if err != nil {
		return fmt.Errorf("rebuild permissions: %w", err)
	}
	s.perms.Rebuild(cats)
	return nil
}

// require returns nil if actor may perform action on pkg. Otherwise the
// error is Forbidden when the actor can see the entity and NotFound when
// it cannot.
func (s *Service) require(actor ir.Actor, action ir.Action, pkg ir.EntityPackage) error {
	if pkg.Entity.Deleted() {
		return apperr.NotFound("entity %d not found", pkg.Entity.ID)
	}
	if s.perms.CanDo(actor, action, pkg) {
		return nil
	}
	s.metrics.Denied(string(action))
	if action != ir.ActionRead && s.perms.CanDo(actor, ir.ActionRead, pkg) {
		return apperr.Forbidden("actor %d may not %s entity %d", actor.ID, action, pkg.Entity.ID)
	}
	return apperr.NotFound("entity %d not found", pkg.Entity.ID)
}

// check adapts require into a store.Check.
func (s *Service) check(actor ir.Actor, action ir.Action) store.Check {
	return func(current ir.EntityPackage) error {
		return s.require(actor, action, current)
	}
}

// readable loads an entity the actor can read.
func (s *Service) readable(ctx context.Context, actor ir.Actor, id int64) (ir.EntityPackage, error) {
	pkg, err := s.store.ReadPackage(ctx, id)
	if err != nil {
		return ir.EntityPackage{}, err
	}
	if err := s.require(actor, ir.ActionRead, pkg); err != nil {
		return ir.EntityPackage{}, err
	}
	return pkg, nil
}

func (s *Service) requestLogger(op string, actor ir.Actor) *slog.Logger {
	return s.logger.With(
		"request_id", uuid.NewString(),
		"op", op,
		"actor_id", actor.ID)
}

// modulePrefix marks values owned by extension modules. They are hidden
// from entity views and cannot be written through them.
const modulePrefix = "mod:"

// toView renders a stored package for callers.
func toView(pkg ir.EntityPackage) ir.EntityView {
	values := pkg.ValueMap()
	maps.DeleteFunc(values, func(k, _ string) bool { return strings.HasPrefix(k, modulePrefix) })
	if len(values) == 0 {
		values = nil
	}
	perms := permission.FromRelations(pkg.Relations).Strings()
	if len(perms) == 0 {
		perms = nil
	}

	return ir.EntityView{
		ID:           pkg.Entity.ID,
		Type:         pkg.Entity.Type,
		Name:         pkg.Entity.Name,
		Content:      pkg.Entity.Content,
		ParentID:     pkg.ParentID(),
		Permissions:  perms,
		Supers:       pkg.Supers(),
		Values:       values,
		Locked:       pkg.Entity.Flags.Has(ir.FlagLocked),
		CreateUserID: pkg.CreatorID(),
		CreateDate:   pkg.Entity.CreateDate,
	}
}
