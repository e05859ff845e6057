package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/roach88/contentgraph/internal/apperr"
	"github.com/roach88/contentgraph/internal/compiler"
	"github.com/roach88/contentgraph/internal/ir"
	"github.com/roach88/contentgraph/internal/permission"
	"github.com/roach88/contentgraph/internal/queryir"
)

// validType matches prefix-encoded entity types such as "content.page".
var validType = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z0-9_]+)*$`)

// Search returns the entities matching s that actor can read. The limit
// is clamped to the configured ceiling.
func (s *Service) Search(ctx context.Context, actor ir.Actor, search ir.Search) ([]ir.EntityView, error) {
	if errs := compiler.ValidateSearch(search); len(errs) > 0 {
		return nil, apperr.Wrap(apperr.CodeBadRequest, errs[0], "search")
	}
	defer s.metrics.ObserveSearch("entity", time.Now())

	limit := ir.ClampLimit(search.Limit, s.cfg.DefaultLimit, s.cfg.MaxLimit)
	sel := queryir.EntitySearch(search, s.perms.Predicate(actor, ir.ActionRead), limit)
	ids, err := s.store.SearchEntities(ctx, sel, nil)
	if err != nil {
		return nil, err
	}
	pkgs, err := s.store.ReadPackages(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]ir.EntityView, len(pkgs))
	for i, pkg := range pkgs {
		views[i] = toView(pkg)
	}
	return views, nil
}

// Get returns one entity. Missing, deleted and unreadable entities are all
// NotFound.
func (s *Service) Get(ctx context.Context, actor ir.Actor, id int64) (ir.EntityView, error) {
	pkg, err := s.readable(ctx, actor, id)
	if err != nil {
		return ir.EntityView{}, err
	}
	return toView(pkg), nil
}

// Write creates (ID 0) or updates an entity from a caller view.
//
// Creating under a parent requires create on the parent; creating at the
// root requires a super-user. The creator relation is the actor and never
// changes afterwards. Updating requires update on the stored entity, and
// moving it requires create on the new parent.
func (s *Service) Write(ctx context.Context, actor ir.Actor, view ir.EntityView) (ir.EntityView, error) {
	log := s.requestLogger("write", actor)
	if actor.Anonymous() {
		return ir.EntityView{}, apperr.Forbidden("anonymous actors cannot write")
	}
	pkg, err := s.packageFromView(view)
	if err != nil {
		return ir.EntityView{}, err
	}

	var current ir.EntityPackage
	if view.ID != 0 {
		if current, err = s.store.ReadPackage(ctx, view.ID); err != nil {
			return ir.EntityView{}, err
		}
		if err := s.requireUnlocked(actor, current, pkg); err != nil {
			return ir.EntityView{}, err
		}
		if current.Entity.Type != pkg.Entity.Type {
			return ir.EntityView{}, apperr.BadRequest("entity %d: type %q cannot change to %q", view.ID, current.Entity.Type, pkg.Entity.Type)
		}
	}

	if view.ID == 0 && view.Locked && !s.perms.IsSuper(actor) {
		s.metrics.Denied(string(ir.ActionUpdate))
		return ir.EntityView{}, apperr.Forbidden("only super-users lock entities")
	}
	if view.ID == 0 || view.ParentID != current.ParentID() {
		if err := s.requireCreateUnder(ctx, actor, view.ParentID); err != nil {
			return ir.EntityView{}, err
		}
	}

	op := "update"
	var out ir.EntityPackage
	if view.ID == 0 {
		op = "create"
		pkg.Relations = append(pkg.Relations, ir.Relation{Type: ir.RelCreator, FromID: actor.ID})
		out, err = s.store.WritePackage(ctx, pkg, actor.ID)
	} else {
		out, err = s.store.WritePackage(ctx, pkg, actor.ID, func(stored ir.EntityPackage) error {
			return s.requireUnlocked(actor, stored, pkg)
		})
	}
	if err != nil {
		return ir.EntityView{}, err
	}
	s.metrics.Wrote(op)
	log.Info("entity written", "entity_id", out.Entity.ID, "type", out.Entity.Type, "write", op)

	if out.Entity.IsType(ir.TypeCategory) {
		if err := s.Rebuild(ctx); err != nil {
			return ir.EntityView{}, err
		}
	}
	return toView(out), nil
}

// requireUnlocked checks update on the stored package. A locked entity
// is only writable by super-users, and only they may change the lock.
func (s *Service) requireUnlocked(actor ir.Actor, stored, next ir.EntityPackage) error {
	if err := s.require(actor, ir.ActionUpdate, stored); err != nil {
		return err
	}
	if s.perms.IsSuper(actor) {
		return nil
	}
	locked := stored.Entity.Flags.Has(ir.FlagLocked)
	if locked || next.Entity.Flags.Has(ir.FlagLocked) != locked {
		s.metrics.Denied(string(ir.ActionUpdate))
		return apperr.Forbidden("entity %d is locked", stored.Entity.ID)
	}
	return nil
}

func (s *Service) requireCreateUnder(ctx context.Context, actor ir.Actor, parentID int64) error {
	if parentID == 0 {
		if !s.perms.IsSuper(actor) {
			s.metrics.Denied(string(ir.ActionCreate))
			return apperr.Forbidden("only super-users create root entities")
		}
		return nil
	}
	parent, err := s.store.ReadPackage(ctx, parentID)
	if err != nil {
		return err
	}
	return s.require(actor, ir.ActionCreate, parent)
}

// packageFromView validates a caller view and converts it into a package
// without a creator relation.
func (s *Service) packageFromView(view ir.EntityView) (ir.EntityPackage, error) {
	if !validType.MatchString(view.Type) {
		return ir.EntityPackage{}, apperr.BadRequest("invalid entity type %q", view.Type)
	}
	name := ir.NormalizeText(strings.TrimSpace(view.Name))
	if name == "" {
		return ir.EntityPackage{}, apperr.BadRequest("entity name is required")
	}
	if view.ParentID < 0 || view.ID < 0 {
		return ir.EntityPackage{}, apperr.BadRequest("ids must not be negative")
	}
	if view.ID != 0 && view.ParentID == view.ID {
		return ir.EntityPackage{}, apperr.BadRequest("entity %d cannot be its own parent", view.ID)
	}
	isCategory := view.Type == ir.TypeCategory || strings.HasPrefix(view.Type, ir.TypeCategory+".")
	if len(view.Supers) > 0 && !isCategory {
		return ir.EntityPackage{}, apperr.BadRequest("only categories have supers")
	}
	perms, err := permission.ParsePermissions(view.Permissions)
	if err != nil {
		return ir.EntityPackage{}, err
	}

	pkg := ir.EntityPackage{
		Entity: ir.Entity{
			ID:      view.ID,
			Type:    view.Type,
			Name:    name,
			Content: ir.NormalizeText(view.Content),
		},
		Relations: perms.Relations(view.ID),
	}
	if view.Locked {
		pkg.Entity.Flags |= ir.FlagLocked
	}
	if view.ParentID != 0 {
		pkg.Relations = append(pkg.Relations, ir.Relation{Type: ir.RelParent, FromID: view.ParentID})
	}
	for _, id := range view.Supers {
		if id <= 0 {
			return ir.EntityPackage{}, apperr.BadRequest("super %d is not a user id", id)
		}
		pkg.Relations = append(pkg.Relations, ir.Relation{Type: ir.RelSuper, FromID: id})
	}
	for k, v := range view.Values {
		if k == "" || strings.HasPrefix(k, modulePrefix) {
			return ir.EntityPackage{}, apperr.BadRequest("value key %q is reserved", k)
		}
		pkg.Values = append(pkg.Values, ir.Value{Key: k, Value: v})
	}
	return pkg, nil
}

// Delete flags an entity deleted and appends a tombstone relation under
// its parent. Delete permission is checked against the stored entity in
// the deleting transaction.
func (s *Service) Delete(ctx context.Context, actor ir.Actor, id int64) error {
	log := s.requestLogger("delete", actor)
	pkg, err := s.store.ReadPackage(ctx, id)
	if err != nil {
		return err
	}
	if err := s.require(actor, ir.ActionDelete, pkg); err != nil {
		return err
	}

	tomb, err := s.store.MarkDeleted(ctx, id, ir.Relation{
		Type:   ir.RelTombstoneEntity,
		FromID: actor.ID,
		ToID:   pkg.ParentID(),
	}, s.check(actor, ir.ActionDelete))
	if err != nil {
		return err
	}
	s.metrics.Wrote("delete")
	log.Info("entity deleted", "entity_id", id, "relation_id", tomb.ID)

	if pkg.Entity.IsType(ir.TypeCategory) {
		return s.Rebuild(ctx)
	}
	return nil
}

// Revisions returns the superseded states of a readable entity, oldest
// first.
func (s *Service) Revisions(ctx context.Context, actor ir.Actor, id int64) ([]ir.Revision, error) {
	if _, err := s.readable(ctx, actor, id); err != nil {
		return nil, err
	}
	revs, err := s.store.ReadRevisions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("revisions of %d: %w", id, err)
	}
	return revs, nil
}
