package permission

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/contentgraph/internal/ir"
	"github.com/roach88/contentgraph/internal/queryir"
)

// Engine evaluates permissions. Safe for concurrent use; Rebuild swaps the
// closure map under a write lock.
type Engine struct {
	logger     *slog.Logger
	superUsers map[int64]bool

	mu      sync.RWMutex
	closure Closure
	// superOf maps a user to the categories whose inherited supers
	// contain them.
	superOf map[int64][]int64
}

// NewEngine creates an engine with a fixed set of configured super-users.
// Actors flagged Super by the token service are super-users as well.
func NewEngine(superUsers []int64, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		logger:     logger,
		superUsers: make(map[int64]bool, len(superUsers)),
		closure:    Closure{},
		superOf:    map[int64][]int64{},
	}
	for _, id := range superUsers {
		e.superUsers[id] = true
	}
	return e
}

// IsSuper reports whether the actor is a super-user.
func (e *Engine) IsSuper(actor ir.Actor) bool {
	return actor.Super || (!actor.Anonymous() && e.superUsers[actor.ID])
}

// Rebuild replaces the closure map from the current category hierarchy.
// This is the only way the map changes.
func (e *Engine) Rebuild(cats []ir.Category) {
	closure := BuildClosure(cats)
	superOf := make(map[int64][]int64)
	for catID, supers := range closure {
		for _, u := range supers {
			superOf[u] = append(superOf[u], catID)
		}
	}
	for u := range superOf {
		slices.Sort(superOf[u])
	}

	e.mu.Lock()
	e.closure = closure
	e.superOf = superOf
	e.mu.Unlock()

	for _, w := range FindCycles(cats) {
		e.logger.Warn(w.Message, "path", w.Path)
	}
	e.logger.Debug("permission closure rebuilt",
		"categories", len(cats),
		"super_users", len(superOf))
}

// Supers returns the inherited supers of a category.
func (e *Engine) Supers(categoryID int64) []int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.closure[categoryID])
}

// SuperCategories returns the categories whose inherited supers contain
// the user.
func (e *Engine) SuperCategories(userID int64) []int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.superOf[userID])
}

// Predicate returns the permission test for actor and action as a row
// predicate over entity and relation fields.
func (e *Engine) Predicate(actor ir.Actor, action ir.Action) queryir.Predicate {
	notRead := action != ir.ActionRead

	grantees := []int64{0}
	if !actor.Anonymous() {
		grantees = append(grantees, actor.ID)
	}

	terms := []queryir.Predicate{
		queryir.Const{Value: notRead && e.IsSuper(actor)},
		queryir.AllOf(
			relType(string(action)),
			queryir.In{Field: "relation.from_id", Values: ir.Ints(grantees...)},
		),
	}
	if !actor.Anonymous() {
		terms = append(terms, queryir.AllOf(
			relType(ir.RelCreator),
			queryir.Equals{Field: "relation.from_id", Value: ir.IRInt(actor.ID)},
		))
		if cats := e.SuperCategories(actor.ID); notRead && len(cats) > 0 {
			terms = append(terms, queryir.AllOf(
				relType(ir.RelParent),
				queryir.In{Field: "relation.from_id", Values: ir.Ints(cats...)},
			))
		}
	}

	return queryir.AllOf(
		queryir.Equals{Field: "relation.kind", Value: ir.IRString(string(ir.KindLive))},
		queryir.AnyOf(terms...),
	)
}

func relType(t string) queryir.Predicate {
	return queryir.Equals{Field: "relation.type", Value: ir.IRString(t)}
}

// CanDo evaluates Predicate against the package's joined rows. A package
// without relations is never allowed.
func (e *Engine) CanDo(actor ir.Actor, action ir.Action, pkg ir.EntityPackage) bool {
	if !action.Valid() {
		return false
	}
	pkgRows := pkg.Rows()
	rows := make([]queryir.Row, len(pkgRows))
	for i, r := range pkgRows {
		rows[i] = r
	}
	ok, err := queryir.Exists(e.Predicate(actor, action), rows, nil)
	if err != nil {
		e.logger.Error("permission evaluation failed",
			"actor_id", actor.ID,
			"action", string(action),
			"entity_id", pkg.Entity.ID,
			"error", err)
		return false
	}
	return ok
}
