package permission

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/contentgraph/internal/ir"
	"github.com/roach88/contentgraph/internal/queryir"
	"github.com/roach88/contentgraph/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pkgWith(id int64, rels ...ir.Relation) ir.EntityPackage {
	for i := range rels {
		rels[i].ID = id + int64(i) + 1
		rels[i].ToID = id
		rels[i].Kind = ir.KindLive
	}
	return ir.EntityPackage{Entity: ir.Entity{ID: id, Type: "content"}, Relations: rels}
}

func rel(typ string, from int64) ir.Relation {
	return ir.Relation{Type: typ, FromID: from}
}

func TestCanDo_Rules(t *testing.T) {
	e := NewEngine([]int64{100}, discardLogger())
	e.Rebuild([]ir.Category{{ID: 50, Supers: []int64{30}}, {ID: 51, ParentID: 50}})

	owned := pkgWith(1000, rel(ir.RelCreator, 1))
	public := pkgWith(2000, rel(ir.RelCreator, 1), rel("read", 0), rel("create", 0))
	private := pkgWith(3000, rel(ir.RelCreator, 1), rel("update", 2))
	inCategory := pkgWith(4000, rel(ir.RelCreator, 1), rel(ir.RelParent, 51))

	tests := []struct {
		name   string
		actor  ir.Actor
		action ir.Action
		pkg    ir.EntityPackage
		want   bool
	}{
		{"creator reads", ir.Actor{ID: 1}, ir.ActionRead, owned, true},
		{"creator deletes", ir.Actor{ID: 1}, ir.ActionDelete, owned, true},
		{"stranger reads owned", ir.Actor{ID: 2}, ir.ActionRead, owned, false},
		{"public read", ir.Actor{ID: 2}, ir.ActionRead, public, true},
		{"anonymous public read", ir.Actor{}, ir.ActionRead, public, true},
		{"public create is not update", ir.Actor{ID: 2}, ir.ActionUpdate, public, false},
		{"per-user grant", ir.Actor{ID: 2}, ir.ActionUpdate, private, true},
		{"per-user grant is per action", ir.Actor{ID: 2}, ir.ActionRead, private, false},
		{"configured super updates", ir.Actor{ID: 100}, ir.ActionUpdate, owned, true},
		{"flagged super deletes", ir.Actor{ID: 7, Super: true}, ir.ActionDelete, owned, true},
		{"super cannot read blind", ir.Actor{ID: 100}, ir.ActionRead, owned, false},
		{"super reads with grant", ir.Actor{ID: 100}, ir.ActionRead, public, true},
		{"category super updates", ir.Actor{ID: 30}, ir.ActionUpdate, inCategory, true},
		{"category super cannot read", ir.Actor{ID: 30}, ir.ActionRead, inCategory, false},
		{"category super elsewhere", ir.Actor{ID: 30}, ir.ActionUpdate, owned, false},
		{"invalid action", ir.Actor{ID: 1}, ir.Action("own"), owned, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.CanDo(tt.actor, tt.action, tt.pkg))
		})
	}
}

func TestCanDo_SuperNeedsARelation(t *testing.T) {
	e := NewEngine(nil, discardLogger())
	super := ir.Actor{ID: 9, Super: true}

	assert.False(t, e.CanDo(super, ir.ActionUpdate, ir.EntityPackage{Entity: ir.Entity{ID: 1}}))
	assert.True(t, e.CanDo(super, ir.ActionUpdate, pkgWith(1, rel(ir.RelCreator, 2))))
}

func TestCanDo_IgnoresNonLiveRelations(t *testing.T) {
	e := NewEngine(nil, discardLogger())
	pkg := pkgWith(1, rel(ir.RelCreator, 2), rel("read", 0))
	pkg.Relations[1].Kind = ir.KindTombstone

	assert.False(t, e.CanDo(ir.Actor{ID: 3}, ir.ActionRead, pkg))
}

func TestCanDo_SuperMonotonicityProperty(t *testing.T) {
	e := NewEngine([]int64{1}, discardLogger())
	super := ir.Actor{ID: 1}
	rng := rand.New(rand.NewPCG(3, 5))

	for i := 0; i < 200; i++ {
		pkg := randomPackage(rng, int64(i+1)*100)
		if len(pkg.Relations) == 0 {
			continue
		}
		for _, a := range []ir.Action{ir.ActionCreate, ir.ActionUpdate, ir.ActionDelete} {
			assert.True(t, e.CanDo(super, a, pkg))
		}
	}
}

func TestScenario_SuperReadCarveOut(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	e := NewEngine([]int64{99}, discardLogger())

	userA, userB := int64(1), int64(2)
	perms, err := ParsePermissions(map[string]string{"0": "cr"})
	require.NoError(t, err)

	x, err := s.WritePackage(ctx, ir.EntityPackage{
		Entity:    ir.Entity{Type: "content", Name: "X"},
		Relations: append([]ir.Relation{{Type: ir.RelCreator, FromID: userA}}, perms.Relations(0)...),
	}, userA)
	require.NoError(t, err)

	assert.True(t, e.CanDo(ir.Actor{ID: userB}, ir.ActionRead, x))
	assert.False(t, e.CanDo(ir.Actor{ID: userB}, ir.ActionUpdate, x))

	private, err := s.WritePackage(ctx, ir.EntityPackage{
		Entity:    ir.Entity{Type: "content", Name: "private"},
		Relations: []ir.Relation{{Type: ir.RelCreator, FromID: userA}},
	}, userA)
	require.NoError(t, err)
	assert.False(t, e.CanDo(ir.Actor{ID: 99}, ir.ActionRead, private))
	assert.True(t, e.CanDo(ir.Actor{ID: 99}, ir.ActionUpdate, private))
}

// TestPredicate_EvalMatchesSQL checks that the in-memory evaluation and the
// compiled SQL agree on random packages for random actors and actions.
func TestPredicate_EvalMatchesSQL(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(42, 1))

	var cats []ir.Category
	for i := 0; i < 3; i++ {
		pkg := ir.EntityPackage{
			Entity:    ir.Entity{Type: "category"},
			Relations: []ir.Relation{{Type: ir.RelCreator, FromID: 1}, {Type: ir.RelSuper, FromID: int64(rng.IntN(6))}},
		}
		if len(cats) > 0 {
			pkg.Relations = append(pkg.Relations, ir.Relation{Type: ir.RelParent, FromID: cats[len(cats)-1].ID})
		}
		out, err := s.WritePackage(ctx, pkg, 1)
		require.NoError(t, err)
		cats = append(cats, ir.Category{ID: out.Entity.ID})
	}
	catIDs := make([]int64, len(cats))
	for i, c := range cats {
		catIDs[i] = c.ID
	}

	for i := 0; i < 60; i++ {
		pkg := randomPackage(rng, 0)
		if rng.IntN(2) == 0 {
			pkg.Relations = append(pkg.Relations, ir.Relation{Type: ir.RelParent, FromID: catIDs[rng.IntN(len(catIDs))]})
		}
		_, err := s.WritePackage(ctx, pkg, 0)
		require.NoError(t, err)
	}

	stored, err := s.Categories(ctx)
	require.NoError(t, err)
	e := NewEngine([]int64{5}, discardLogger())
	e.Rebuild(stored)

	all, err := s.SearchEntities(ctx, queryir.EntitySearch(ir.Search{}, nil, ir.MaxLimit), nil)
	require.NoError(t, err)
	pkgs, err := s.ReadPackages(ctx, all)
	require.NoError(t, err)

	for actorID := int64(0); actorID < 7; actorID++ {
		for _, super := range []bool{false, true} {
			actor := ir.Actor{ID: actorID, Super: super}
			for _, action := range ir.Actions {
				var want []int64
				for _, pkg := range pkgs {
					if e.CanDo(actor, action, pkg) {
						want = append(want, pkg.Entity.ID)
					}
				}

				sel := queryir.EntitySearch(ir.Search{}, e.Predicate(actor, action), ir.MaxLimit)
				got, err := s.SearchEntities(ctx, sel, nil)
				require.NoError(t, err)

				slices.Sort(want)
				slices.Sort(got)
				if want == nil {
					want = []int64{}
				}
				assert.Equal(t, want, got, "actor %+v action %s", actor, action)
			}
		}
	}
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "perm.db"), store.WithLogger(discardLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// randomPackage builds a content package with a random creator and random
// grants drawn from a small user pool, so collisions with actors are likely.
func randomPackage(rng *rand.Rand, id int64) ir.EntityPackage {
	rels := []ir.Relation{{Type: ir.RelCreator, FromID: int64(rng.IntN(7))}}
	for n := rng.IntN(4); n > 0; n-- {
		rels = append(rels, ir.Relation{
			Type:   string(ir.Actions[rng.IntN(len(ir.Actions))]),
			FromID: int64(rng.IntN(7)),
		})
	}
	if id != 0 {
		return pkgWith(id, rels...)
	}
	return ir.EntityPackage{Entity: ir.Entity{Type: "content"}, Relations: rels}
}
