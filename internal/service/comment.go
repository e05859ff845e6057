package service

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/roach88/contentgraph/internal/apperr"
	"github.com/roach88/contentgraph/internal/ir"
	"github.com/roach88/contentgraph/internal/queryir"
)

// Vote values. An empty vote clears the actor's vote.
const (
	VoteUp   = "+"
	VoteDown = "-"
)

// Comment posts a comment under parentID. Requires create on the parent.
func (s *Service) Comment(ctx context.Context, actor ir.Actor, parentID int64, content string) (ir.CommentView, error) {
	log := s.requestLogger("comment", actor)
	if actor.Anonymous() {
		return ir.CommentView{}, apperr.Forbidden("anonymous actors cannot comment")
	}
	content = ir.NormalizeText(content)
	if strings.TrimSpace(content) == "" {
		return ir.CommentView{}, apperr.BadRequest("comment is empty")
	}
	parent, err := s.store.ReadPackage(ctx, parentID)
	if err != nil {
		return ir.CommentView{}, err
	}
	if err := s.require(actor, ir.ActionCreate, parent); err != nil {
		return ir.CommentView{}, err
	}

	rels, err := s.store.WriteRelations(ctx, []ir.Relation{{
		Type:   ir.RelComment,
		FromID: actor.ID,
		ToID:   parentID,
		Value:  content,
	}}, nil)
	if err != nil {
		return ir.CommentView{}, err
	}
	s.metrics.Wrote("comment")
	log.Info("comment written", "relation_id", rels[0].ID, "parent_id", parentID)
	return commentView(rels[0], nil), nil
}

// EditComment replaces the text of a comment. The author and super-users
// may edit. The previous text goes to the revision log and the edit is
// appended as an edit relation, so listeners see it.
func (s *Service) EditComment(ctx context.Context, actor ir.Actor, commentID int64, content string) (ir.CommentView, error) {
	log := s.requestLogger("edit_comment", actor)
	content = ir.NormalizeText(content)
	if strings.TrimSpace(content) == "" {
		return ir.CommentView{}, apperr.BadRequest("comment is empty")
	}
	current, err := s.ownComment(ctx, actor, commentID, false)
	if err != nil {
		return ir.CommentView{}, err
	}

	rels, err := s.store.WriteRelations(ctx, []ir.Relation{{
		Type:      ir.RelComment,
		FromID:    actor.ID,
		ToID:      current.ParentID,
		Value:     content,
		Kind:      ir.KindEdit,
		SubjectID: commentID,
	}}, []ir.Revision{{
		SubjectID: commentID,
		EditorID:  actor.ID,
		Snapshot:  commentSnapshot(current),
	}})
	if err != nil {
		return ir.CommentView{}, err
	}
	s.metrics.Wrote("edit_comment")
	log.Info("comment edited", "relation_id", rels[0].ID, "comment_id", commentID)

	current.Content = content
	current.EditUserID = actor.ID
	current.EditDate = rels[0].CreateDate
	return current, nil
}

// DeleteComment tombstones a comment. The author, super-users and anyone
// with delete on the parent may delete.
func (s *Service) DeleteComment(ctx context.Context, actor ir.Actor, commentID int64) error {
	log := s.requestLogger("delete_comment", actor)
	current, err := s.ownComment(ctx, actor, commentID, true)
	if err != nil {
		return err
	}
	rels, err := s.store.WriteRelations(ctx, []ir.Relation{{
		Type:      ir.RelComment,
		FromID:    actor.ID,
		ToID:      current.ParentID,
		Kind:      ir.KindTombstone,
		SubjectID: commentID,
	}}, []ir.Revision{{
		SubjectID: commentID,
		EditorID:  actor.ID,
		Snapshot:  commentSnapshot(current),
	}})
	if err != nil {
		return err
	}
	s.metrics.Wrote("delete_comment")
	log.Info("comment deleted", "relation_id", rels[0].ID, "comment_id", commentID)
	return nil
}

// ownComment loads a live comment the actor may modify.
func (s *Service) ownComment(ctx context.Context, actor ir.Actor, commentID int64, deleting bool) (ir.CommentView, error) {
	if actor.Anonymous() {
		return ir.CommentView{}, apperr.Forbidden("anonymous actors cannot modify comments")
	}
	views, err := s.commentsByID(ctx, actor, []int64{commentID})
	if err != nil {
		return ir.CommentView{}, err
	}
	if len(views) == 0 {
		return ir.CommentView{}, apperr.NotFound("comment %d not found", commentID)
	}
	c := views[0]
	if c.CreateUserID == actor.ID || s.perms.IsSuper(actor) {
		return c, nil
	}
	if deleting {
		parent, err := s.store.ReadPackage(ctx, c.ParentID)
		if err != nil {
			return ir.CommentView{}, err
		}
		if s.perms.CanDo(actor, ir.ActionDelete, parent) {
			return c, nil
		}
	}
	s.metrics.Denied("comment")
	return ir.CommentView{}, apperr.Forbidden("comment %d belongs to another user", commentID)
}

func (s *Service) commentsByID(ctx context.Context, actor ir.Actor, ids []int64) ([]ir.CommentView, error) {
	return s.SearchComments(ctx, actor, ir.RelationSearch{IDs: ids, Limit: len(ids)})
}

// SearchComments returns comments whose parent the actor can read, with
// their latest edit applied and deleted comments removed. Only IDs, ToIDs,
// FromIDs, MinID, Limit, Skip and Reverse of rs are honored.
func (s *Service) SearchComments(ctx context.Context, actor ir.Actor, rs ir.RelationSearch) ([]ir.CommentView, error) {
	defer s.metrics.ObserveSearch("comment", time.Now())

	rs.Types = []string{ir.RelComment}
	rs.Kinds = []ir.RelationKind{ir.KindLive}
	rs.SubjectIDs = nil
	limit := ir.ClampLimit(rs.Limit, s.cfg.DefaultLimit, s.cfg.MaxLimit)

	rels, err := s.store.SearchRelations(ctx, queryir.RelationQuery(rs, limit), nil)
	if err != nil {
		return nil, err
	}
	rels, err = s.underReadable(ctx, actor, rels)
	if err != nil || len(rels) == 0 {
		return nil, err
	}

	ids := make([]int64, len(rels))
	for i, r := range rels {
		ids[i] = r.ID
	}
	history, err := s.allRelations(ctx, ir.RelationSearch{
		Types:      []string{ir.RelComment},
		SubjectIDs: ids,
		Kinds:      []ir.RelationKind{ir.KindEdit, ir.KindTombstone},
	})
	if err != nil {
		return nil, err
	}
	bySubject := make(map[int64][]ir.Relation)
	for _, h := range history {
		bySubject[h.SubjectID] = append(bySubject[h.SubjectID], h)
	}

	views := make([]ir.CommentView, 0, len(rels))
	for _, r := range rels {
		h := bySubject[r.ID]
		if slices.ContainsFunc(h, func(x ir.Relation) bool { return x.Kind == ir.KindTombstone }) {
			continue
		}
		views = append(views, commentView(r, h))
	}
	return views, nil
}

// underReadable keeps relations whose parent (to_id) the actor can read.
// Parents are checked with the read predicate in one query.
func (s *Service) underReadable(ctx context.Context, actor ir.Actor, rels []ir.Relation) ([]ir.Relation, error) {
	var parents []int64
	for _, r := range rels {
		if !slices.Contains(parents, r.ToID) {
			parents = append(parents, r.ToID)
		}
	}
	if len(parents) == 0 {
		return nil, nil
	}
	sel := queryir.EntitySearch(ir.Search{IDs: parents}, s.perms.Predicate(actor, ir.ActionRead), len(parents))
	ok, err := s.store.SearchEntities(ctx, sel, nil)
	if err != nil {
		return nil, err
	}

	out := rels[:0:0]
	for _, r := range rels {
		if slices.Contains(ok, r.ToID) {
			out = append(out, r)
		}
	}
	return out, nil
}

// allRelations pages through every relation matching rs in id order.
func (s *Service) allRelations(ctx context.Context, rs ir.RelationSearch) ([]ir.Relation, error) {
	var out []ir.Relation
	for {
		page, err := s.store.SearchRelations(ctx, queryir.RelationQuery(rs, ir.MaxLimit), nil)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < ir.MaxLimit {
			return out, nil
		}
		rs.MinID = page[len(page)-1].ID
	}
}

// active returns the live relations of relType from fromID to toID that
// no tombstone has retired.
func (s *Service) active(ctx context.Context, relType string, fromID, toID int64) ([]ir.Relation, error) {
	rels, err := s.allRelations(ctx, ir.RelationSearch{
		Types:   []string{relType},
		FromIDs: []int64{fromID},
		ToIDs:   []int64{toID},
	})
	if err != nil {
		return nil, err
	}
	retired := make(map[int64]bool)
	for _, r := range rels {
		if r.Kind == ir.KindTombstone {
			retired[r.SubjectID] = true
		}
	}
	var live []ir.Relation
	for _, r := range rels {
		if r.Kind == ir.KindLive && !retired[r.ID] {
			live = append(live, r)
		}
	}
	return live, nil
}

// retire builds tombstones for rels, written by actor.
func retire(actor ir.Actor, rels []ir.Relation) []ir.Relation {
	out := make([]ir.Relation, len(rels))
	for i, r := range rels {
		out[i] = ir.Relation{
			Type:      r.Type,
			FromID:    actor.ID,
			ToID:      r.ToID,
			Kind:      ir.KindTombstone,
			SubjectID: r.ID,
		}
	}
	return out
}

// Vote sets the actor's vote on a readable entity, replacing any earlier
// vote. An empty value only clears.
func (s *Service) Vote(ctx context.Context, actor ir.Actor, entityID int64, value string) error {
	if actor.Anonymous() {
		return apperr.Forbidden("anonymous actors cannot vote")
	}
	if value != VoteUp && value != VoteDown && value != "" {
		return apperr.BadRequest("vote must be %q, %q or empty", VoteUp, VoteDown)
	}
	if _, err := s.readable(ctx, actor, entityID); err != nil {
		return err
	}
	prior, err := s.active(ctx, ir.RelVote, actor.ID, entityID)
	if err != nil {
		return err
	}
	if len(prior) == 1 && prior[0].Value == value {
		return nil
	}

	writes := retire(actor, prior)
	if value != "" {
		writes = append(writes, ir.Relation{Type: ir.RelVote, FromID: actor.ID, ToID: entityID, Value: value})
	}
	if len(writes) == 0 {
		return nil
	}
	if _, err := s.store.WriteRelations(ctx, writes, nil); err != nil {
		return err
	}
	s.metrics.Wrote("vote")
	return nil
}

// Votes tallies the current votes on a readable entity by value.
func (s *Service) Votes(ctx context.Context, actor ir.Actor, entityID int64) (map[string]int, error) {
	if _, err := s.readable(ctx, actor, entityID); err != nil {
		return nil, err
	}
	rels, err := s.allRelations(ctx, ir.RelationSearch{Types: []string{ir.RelVote}, ToIDs: []int64{entityID}})
	if err != nil {
		return nil, err
	}
	retired := make(map[int64]bool)
	for _, r := range rels {
		if r.Kind == ir.KindTombstone {
			retired[r.SubjectID] = true
		}
	}
	tally := make(map[string]int)
	for _, r := range rels {
		if r.Kind == ir.KindLive && !retired[r.ID] {
			tally[r.Value]++
		}
	}
	return tally, nil
}

// Watch subscribes the actor to a readable entity. Watching twice is a
// no-op.
func (s *Service) Watch(ctx context.Context, actor ir.Actor, entityID int64) error {
	if actor.Anonymous() {
		return apperr.Forbidden("anonymous actors cannot watch")
	}
	if _, err := s.readable(ctx, actor, entityID); err != nil {
		return err
	}
	prior, err := s.active(ctx, ir.RelWatch, actor.ID, entityID)
	if err != nil || len(prior) > 0 {
		return err
	}
	if _, err := s.store.WriteRelations(ctx, []ir.Relation{{Type: ir.RelWatch, FromID: actor.ID, ToID: entityID}}, nil); err != nil {
		return err
	}
	s.metrics.Wrote("watch")
	return nil
}

// ClearWatch removes the actor's watch on an entity, if any.
func (s *Service) ClearWatch(ctx context.Context, actor ir.Actor, entityID int64) error {
	if actor.Anonymous() {
		return apperr.Forbidden("anonymous actors cannot watch")
	}
	prior, err := s.active(ctx, ir.RelWatch, actor.ID, entityID)
	if err != nil || len(prior) == 0 {
		return err
	}
	if _, err := s.store.WriteRelations(ctx, retire(actor, prior), nil); err != nil {
		return err
	}
	s.metrics.Wrote("clear_watch")
	return nil
}

func commentView(r ir.Relation, history []ir.Relation) ir.CommentView {
	v := ir.CommentView{
		ID:           r.ID,
		ParentID:     r.ToID,
		CreateUserID: r.FromID,
		Content:      r.Value,
		CreateDate:   r.CreateDate,
	}
	// history is in id order; the last edit wins.
	for _, h := range history {
		if h.Kind == ir.KindEdit {
			v.Content = h.Value
			v.EditUserID = h.FromID
			v.EditDate = h.CreateDate
		}
	}
	return v
}

func commentSnapshot(c ir.CommentView) ir.IRObject {
	return ir.IRObject{
		"type":    ir.IRString(ir.RelComment),
		"parent":  ir.IRInt(c.ParentID),
		"author":  ir.IRInt(c.CreateUserID),
		"content": ir.IRString(c.Content),
	}
}
