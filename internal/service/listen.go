package service

import (
	"context"
	"strconv"
	"time"

	"github.com/roach88/contentgraph/internal/ir"
	"github.com/roach88/contentgraph/internal/listen"
	"github.com/roach88/contentgraph/internal/presence"
)

func presenceGroup(parentID int64) string {
	return "parent:" + strconv.FormatInt(parentID, 10)
}

// Listen waits for new relations as listen.Hub.Listen does. Every call is
// also a presence heartbeat for each scope id, so a client polling in a
// loop stays listed without ever announcing itself.
func (s *Service) Listen(ctx context.Context, actor ir.Actor, req listen.Request) (listen.Result, error) {
	if !actor.Anonymous() && len(req.ScopeIDs) > 0 {
		key := presence.NewKey(actor.ID, req.ScopeIDs)
		for _, id := range req.ScopeIDs {
			s.presence.Update(presenceGroup(id), key)
		}
	}
	return s.hub.Listen(ctx, actor, req)
}

// Listeners returns, for a readable parent, how many live listen scopes
// each user holds on it.
func (s *Service) Listeners(ctx context.Context, actor ir.Actor, parentID int64) (map[int64]int, error) {
	if _, err := s.readable(ctx, actor, parentID); err != nil {
		return nil, err
	}
	return s.presence.Counts(presenceGroup(parentID), s.presenceWindow()), nil
}

// presenceWindow is how long one heartbeat keeps a listener listed: the
// longest wait plus the grace period for the client to poll again.
func (s *Service) presenceWindow() time.Duration {
	return s.hub.MaxTimeout() + s.cfg.ListenGrace
}
