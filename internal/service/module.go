package service

import (
	"context"
	"regexp"

	"github.com/roach88/contentgraph/internal/apperr"
	"github.com/roach88/contentgraph/internal/ir"
)

// Extension modules run outside this process. They read and write keyed
// data and emit relations through these calls, always on behalf of an
// actor and always permission-checked.

var validModule = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)

func moduleKey(module, key string) (string, error) {
	if !validModule.MatchString(module) {
		return "", apperr.BadRequest("invalid module name %q", module)
	}
	if key == "" {
		return "", apperr.BadRequest("module %s: empty key", module)
	}
	return modulePrefix + module + ":" + key, nil
}

// ModuleValue reads a module's value on a readable entity.
func (s *Service) ModuleValue(ctx context.Context, actor ir.Actor, entityID int64, module, key string) (string, error) {
	k, err := moduleKey(module, key)
	if err != nil {
		return "", err
	}
	if _, err := s.readable(ctx, actor, entityID); err != nil {
		return "", err
	}
	return s.store.ReadValue(ctx, entityID, k)
}

// SetModuleValue writes a module's value on an entity the actor may update.
func (s *Service) SetModuleValue(ctx context.Context, actor ir.Actor, entityID int64, module, key, value string) error {
	k, err := moduleKey(module, key)
	if err != nil {
		return err
	}
	pkg, err := s.store.ReadPackage(ctx, entityID)
	if err != nil {
		return err
	}
	if err := s.require(actor, ir.ActionUpdate, pkg); err != nil {
		return err
	}
	if err := s.store.WriteValue(ctx, entityID, k, value); err != nil {
		return err
	}
	s.metrics.Wrote("module_value")
	return nil
}

// ModuleRelation appends a relation of type "mod:<module>" from the actor
// to a readable entity. Listeners scoped to the entity see it.
func (s *Service) ModuleRelation(ctx context.Context, actor ir.Actor, module string, toID int64, value string) (ir.Relation, error) {
	if actor.Anonymous() {
		return ir.Relation{}, apperr.Forbidden("anonymous actors cannot write")
	}
	if !validModule.MatchString(module) {
		return ir.Relation{}, apperr.BadRequest("invalid module name %q", module)
	}
	if _, err := s.readable(ctx, actor, toID); err != nil {
		return ir.Relation{}, err
	}
	rels, err := s.store.WriteRelations(ctx, []ir.Relation{{
		Type:   modulePrefix + module,
		FromID: actor.ID,
		ToID:   toID,
		Value:  value,
	}}, nil)
	if err != nil {
		return ir.Relation{}, err
	}
	s.metrics.Wrote("module_relation")
	return rels[0], nil
}
