package service

import (
	"context"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/contentgraph/internal/apperr"
	"github.com/roach88/contentgraph/internal/ir"
)

func TestComment_EditAndRevision(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	x := e.content(t, alice, "X", map[string]string{"0": "cr"})

	c, err := e.svc.Comment(ctx, bob, x.ID, "first!")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, c.CreateUserID)
	assert.Equal(t, x.ID, c.ParentID)
	assert.False(t, c.Edited())

	edited, err := e.svc.EditComment(ctx, bob, c.ID, "second")
	require.NoError(t, err)
	assert.Equal(t, "second", edited.Content)
	assert.True(t, edited.Edited())

	_, err = e.svc.EditComment(ctx, alice, c.ID, "hijack")
	assert.True(t, apperr.IsForbidden(err), "even the parent's creator")

	got, err := e.svc.SearchComments(ctx, alice, ir.RelationSearch{ToIDs: []int64{x.ID}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, c.ID, got[0].ID, "edits keep the comment id")
	assert.Equal(t, "second", got[0].Content)
	assert.Equal(t, bob.ID, got[0].EditUserID)

	revs, err := e.store.ReadRevisions(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, revs, 1)
	assert.Equal(t, ir.IRString("first!"), revs[0].Snapshot["content"])
}

func TestComment_RequiresCreateOnParent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	readOnly := e.content(t, alice, "read only", map[string]string{"0": "r"})
	hidden := e.content(t, alice, "hidden", nil)

	_, err := e.svc.Comment(ctx, bob, readOnly.ID, "hi")
	assert.True(t, apperr.IsForbidden(err))

	_, err = e.svc.Comment(ctx, bob, hidden.ID, "hi")
	assert.True(t, apperr.IsNotFound(err))

	_, err = e.svc.Comment(ctx, alice, hidden.ID, "   ")
	assert.True(t, apperr.IsBadRequest(err))

	_, err = e.svc.Comment(ctx, anon, readOnly.ID, "hi")
	assert.True(t, apperr.IsForbidden(err))
}

func TestComment_HiddenUnderUnreadableParent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	hidden := e.content(t, alice, "hidden", nil)
	c, err := e.svc.Comment(ctx, alice, hidden.ID, "note to self")
	require.NoError(t, err)

	got, err := e.svc.SearchComments(ctx, bob, ir.RelationSearch{IDs: []int64{c.ID}})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = e.svc.EditComment(ctx, bob, c.ID, "x")
	assert.True(t, apperr.IsNotFound(err))
}

func TestDeleteComment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	x := e.content(t, alice, "X", map[string]string{"0": "cr"})
	moderated := e.content(t, alice, "moderated", map[string]string{"0": "cr", "3": "d"})

	c1, err := e.svc.Comment(ctx, bob, x.ID, "mine")
	require.NoError(t, err)
	c2, err := e.svc.Comment(ctx, bob, moderated.ID, "spam")
	require.NoError(t, err)

	assert.True(t, apperr.IsForbidden(e.svc.DeleteComment(ctx, ir.Actor{ID: 4}, c1.ID)))
	require.NoError(t, e.svc.DeleteComment(ctx, bob, c1.ID))
	require.NoError(t, e.svc.DeleteComment(ctx, ir.Actor{ID: 3}, c2.ID), "delete on the parent")

	got, err := e.svc.SearchComments(ctx, bob, ir.RelationSearch{ToIDs: []int64{x.ID, moderated.ID}})
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.True(t, apperr.IsNotFound(e.svc.DeleteComment(ctx, bob, c1.ID)), "twice")
}

func TestVote_ReplacesPriorVote(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	x := e.content(t, alice, "X", map[string]string{"0": "r"})

	require.NoError(t, e.svc.Vote(ctx, bob, x.ID, VoteUp))
	require.NoError(t, e.svc.Vote(ctx, bob, x.ID, VoteDown))
	require.NoError(t, e.svc.Vote(ctx, alice, x.ID, VoteUp))

	tally, err := e.svc.Votes(ctx, bob, x.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{VoteUp: 1, VoteDown: 1}, tally)

	require.NoError(t, e.svc.Vote(ctx, bob, x.ID, ""))
	tally, err = e.svc.Votes(ctx, bob, x.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{VoteUp: 1}, tally)

	assert.True(t, apperr.IsBadRequest(e.svc.Vote(ctx, bob, x.ID, "++")))
	assert.True(t, apperr.IsForbidden(e.svc.Vote(ctx, anon, x.ID, VoteUp)))

	hidden := e.content(t, alice, "hidden", nil)
	assert.True(t, apperr.IsNotFound(e.svc.Vote(ctx, bob, hidden.ID, VoteUp)))
}

func TestWatch_IsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	x := e.content(t, alice, "X", map[string]string{"0": "r"})
	watches := func() float64 { return promtest.ToFloat64(e.metrics.Writes.WithLabelValues("watch")) }

	require.NoError(t, e.svc.Watch(ctx, bob, x.ID))
	require.NoError(t, e.svc.Watch(ctx, bob, x.ID))
	assert.Equal(t, 1.0, watches())

	require.NoError(t, e.svc.ClearWatch(ctx, bob, x.ID))
	require.NoError(t, e.svc.ClearWatch(ctx, bob, x.ID))
	require.NoError(t, e.svc.Watch(ctx, bob, x.ID))
	assert.Equal(t, 2.0, watches())
	assert.Equal(t, 1.0, promtest.ToFloat64(e.metrics.Writes.WithLabelValues("clear_watch")))
}
