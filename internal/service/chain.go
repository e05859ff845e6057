package service

import (
	"context"

	"github.com/roach88/contentgraph/internal/chain"
	"github.com/roach88/contentgraph/internal/ir"
)

// Chain resolves a chained lookup. Every step is permission-scoped.
func (s *Service) Chain(ctx context.Context, actor ir.Actor, req chain.Request) (chain.Result, error) {
	return s.chain.Resolve(ctx, actor, req)
}

// chainSource feeds the resolver from the service's own searches.
type chainSource struct{ s *Service }

func (c chainSource) SearchViews(ctx context.Context, actor ir.Actor, search ir.Search) ([]ir.EntityView, error) {
	return c.s.Search(ctx, actor, search)
}

func (c chainSource) SearchComments(ctx context.Context, actor ir.Actor, rs ir.RelationSearch) ([]ir.CommentView, error) {
	return c.s.SearchComments(ctx, actor, rs)
}
