package chain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/contentgraph/internal/apperr"
	"github.com/roach88/contentgraph/internal/compiler"
	"github.com/roach88/contentgraph/internal/ir"
	"github.com/roach88/contentgraph/internal/metrics"
)

// fakeSource filters fixed slices the way the store would, and records
// every search it receives.
type fakeSource struct {
	views    []ir.EntityView
	comments []ir.CommentView

	// beforeSearch, if set, runs at the start of every search.
	beforeSearch func(ctx context.Context) error

	mu       sync.Mutex
	searches []ir.Search
	relSrch  []ir.RelationSearch
}

func (f *fakeSource) SearchViews(ctx context.Context, _ ir.Actor, s ir.Search) ([]ir.EntityView, error) {
	f.mu.Lock()
	f.searches = append(f.searches, s)
	f.mu.Unlock()
	if f.beforeSearch != nil {
		if err := f.beforeSearch(ctx); err != nil {
			return nil, err
		}
	}

	var out []ir.EntityView
	for _, v := range f.views {
		if len(s.IDs) > 0 && !slices.Contains(s.IDs, v.ID) {
			continue
		}
		if !strings.HasPrefix(v.Type, strings.TrimSuffix(s.TypeLike, "%")) {
			continue
		}
		if s.NameLike != "" && v.Name != s.NameLike {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeSource) SearchComments(ctx context.Context, _ ir.Actor, s ir.RelationSearch) ([]ir.CommentView, error) {
	f.mu.Lock()
	f.relSrch = append(f.relSrch, s)
	f.mu.Unlock()
	if f.beforeSearch != nil {
		if err := f.beforeSearch(ctx); err != nil {
			return nil, err
		}
	}

	var out []ir.CommentView
	for _, c := range f.comments {
		if len(s.ToIDs) > 0 && !slices.Contains(s.ToIDs, c.ParentID) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searches) + len(f.relSrch)
}

func graph() *fakeSource {
	return &fakeSource{
		views: []ir.EntityView{
			{ID: 1, Type: "user", Name: "alice"},
			{ID: 2, Type: "user", Name: "bob"},
			{ID: 3, Type: "category", Name: "news", Supers: []int64{1}},
			{ID: 10, Type: "content.page", Name: "welcome", ParentID: 3, CreateUserID: 1,
				Permissions: map[string]string{"0": "r", "2": "cru"}},
			{ID: 11, Type: "content.page", Name: "rules", ParentID: 3, CreateUserID: 2},
		},
		comments: []ir.CommentView{
			{ID: 20, ParentID: 10, CreateUserID: 2, Content: "hi"},
			{ID: 21, ParentID: 11, CreateUserID: 1, Content: "ok"},
		},
	}
}

func newResolver(t *testing.T, src Source, opts ...Option) *Resolver {
	t.Helper()
	comp, err := compiler.New()
	require.NoError(t, err)
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewResolver(src, comp, opts...)
}

func ids(items []map[string]any) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it["id"].(int64)
	}
	return out
}

func TestResolve_FollowsReferences(t *testing.T) {
	src := graph()
	r := newResolver(t, src)

	res, err := r.Resolve(context.Background(), ir.Actor{ID: 1}, Request{
		Chains: []string{
			`content-{"name":"welcome"}`,
			"user.0createuserid.0permissions",
			"category.0parentid",
			"comment.0id",
		},
		Fields: map[string][]string{
			"user":    {"id", "name"},
			"comment": {"id", "content"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{10}, ids(res["content"]))
	assert.Equal(t, []map[string]any{
		{"id": int64(1), "name": "alice"},
		{"id": int64(2), "name": "bob"},
	}, res["user"])
	assert.Equal(t, []int64{3}, ids(res["category"]))
	assert.Equal(t, []map[string]any{{"id": int64(20), "content": "hi"}}, res["comment"])

	// Unprojected endpoints carry every field.
	assert.Len(t, res["content"][0], len(entityFields))
}

func TestResolve_EmptyBranchMatchesNothing(t *testing.T) {
	src := graph()
	r := newResolver(t, src)

	res, err := r.Resolve(context.Background(), ir.Actor{ID: 1}, Request{
		Chains: []string{`content-{"name":"missing"}`, "user.0createuserid", "comment.0id"},
	})
	require.NoError(t, err)

	assert.Empty(t, res["content"])
	assert.Empty(t, res["user"], "not every user")
	assert.Empty(t, res["comment"], "not every comment")
	require.Contains(t, res, "user")

	require.Len(t, src.searches, 2)
	assert.Equal(t, []int64{noMatch}, src.searches[1].IDs)
	require.Len(t, src.relSrch, 1)
	assert.Equal(t, []int64{noMatch}, src.relSrch[0].ToIDs)
}

func TestResolve_ReferenceIntersectsExplicitIDs(t *testing.T) {
	src := graph()
	r := newResolver(t, src)

	res, err := r.Resolve(context.Background(), ir.Actor{ID: 1}, Request{
		Chains: []string{"content", `user.0createuserid-{"ids":[2,5]}`},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids(res["user"]))

	res, err = r.Resolve(context.Background(), ir.Actor{ID: 1}, Request{
		Chains: []string{"content", `user.0createuserid-{"ids":[5]}`},
	})
	require.NoError(t, err)
	assert.Empty(t, res["user"])
}

func TestResolve_WideReferencesAreCapped(t *testing.T) {
	src := &fakeSource{}
	for i := int64(1); i <= ir.MaxLimit+200; i++ {
		src.views = append(src.views, ir.EntityView{ID: 5000 + i, Type: "content", CreateUserID: i})
	}
	r := newResolver(t, src)

	_, err := r.Resolve(context.Background(), ir.Actor{ID: 1}, Request{
		Chains: []string{"content", "user.0createuserid"},
	})
	require.NoError(t, err)

	require.Len(t, src.searches, 2)
	got := src.searches[1].IDs
	require.Len(t, got, ir.MaxLimit)
	assert.Equal(t, int64(1), got[0])
	assert.Equal(t, int64(ir.MaxLimit), got[len(got)-1])
}

func TestResolve_MergesSameEndpoint(t *testing.T) {
	src := graph()
	r := newResolver(t, src)

	res, err := r.Resolve(context.Background(), ir.Actor{ID: 1}, Request{
		Chains: []string{`content-{"name":"welcome"}`, "content", `content-{"ids":[11]}`},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11}, ids(res["content"]))
}

func TestResolve_EndpointTypeScope(t *testing.T) {
	src := graph()
	r := newResolver(t, src)

	res, err := r.Resolve(context.Background(), ir.Actor{ID: 1}, Request{Chains: []string{"user"}})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids(res["user"]))
	assert.Equal(t, ir.TypeUser, src.searches[0].TypeLike)

	_, err = r.Resolve(context.Background(), ir.Actor{ID: 1}, Request{Chains: []string{`user-{"type":"content"}`}})
	assert.True(t, apperr.IsBadRequest(err))
}

func TestResolve_ValidatesBeforeSearching(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"no steps", Request{}},
		{"too deep", Request{Chains: []string{"user", "user", "user", "user", "user", "user"}}},
		{"unknown endpoint", Request{Chains: []string{"user", "vote"}}},
		{"forward reference", Request{Chains: []string{"user.1id", "user"}}},
		{"self reference", Request{Chains: []string{"user", "user.1id"}}},
		{"non-id reference field", Request{Chains: []string{"content", "user.0name"}}},
		{"comment reference field", Request{Chains: []string{"comment", "user.0supers"}}},
		{"unknown projected field", Request{Chains: []string{"user"}, Fields: map[string][]string{"user": {"password"}}}},
		{"unknown projected endpoint", Request{Chains: []string{"user"}, Fields: map[string][]string{"vote": {"id"}}}},
		{"bad body", Request{Chains: []string{"user", `content-{"owner":1}`}}},
		{"comment name filter", Request{Chains: []string{`comment-{"name":"x"}`}}},
		{"comment sort", Request{Chains: []string{`comment-{"sort":"name"}`}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := graph()
			_, err := newResolver(t, src).Resolve(context.Background(), ir.Actor{ID: 1}, tt.req)

			assert.True(t, apperr.IsBadRequest(err), "got %v", err)
			assert.Zero(t, src.calls(), "no search runs for an invalid request")
		})
	}
}

func TestResolve_DepthIsConfigurable(t *testing.T) {
	r := newResolver(t, graph(), WithMaxDepth(2))

	_, err := r.Resolve(context.Background(), ir.Actor{}, Request{Chains: []string{"user", "user", "user"}})
	assert.True(t, apperr.IsBadRequest(err))
}

func TestResolve_IndependentStepsRunConcurrently(t *testing.T) {
	src := graph()
	var arrived sync.WaitGroup
	arrived.Add(2)
	both := make(chan struct{})
	go func() {
		arrived.Wait()
		close(both)
	}()
	src.beforeSearch = func(ctx context.Context) error {
		arrived.Done()
		select {
		case <-both:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("steps ran one at a time")
		}
	}

	_, err := newResolver(t, src).Resolve(context.Background(), ir.Actor{ID: 1}, Request{
		Chains: []string{"user", "category"},
	})
	require.NoError(t, err)
}

func TestResolve_StepErrorStopsDependents(t *testing.T) {
	src := graph()
	boom := errors.New("disk on fire")
	src.beforeSearch = func(context.Context) error { return boom }

	_, err := newResolver(t, src).Resolve(context.Background(), ir.Actor{ID: 1}, Request{
		Chains: []string{"content", "user.0createuserid"},
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "chain step 0 (content)")
	assert.Equal(t, 1, src.calls(), "dependent step never searched")
}

func TestResolve_CountsSteps(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	r := newResolver(t, graph(), WithMetrics(m))

	_, err := r.Resolve(context.Background(), ir.Actor{ID: 1}, Request{Chains: []string{"content", "user.0createuserid"}})
	require.NoError(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ChainSteps))
}

func TestEntityItem_IDField(t *testing.T) {
	it := entityItem{ir.EntityView{
		ID:          7,
		ParentID:    3,
		Supers:      []int64{4, 5},
		Permissions: map[string]string{"0": "r", "9": "u", "2": "c", "x": "r"},
	}}

	got, ok := it.IDField("permissions")
	require.True(t, ok)
	assert.Equal(t, []int64{2, 9}, got, "sorted, public grant and junk keys dropped")

	got, ok = it.IDField("createuserid")
	assert.True(t, ok)
	assert.Empty(t, got)

	_, ok = it.IDField("name")
	assert.False(t, ok)
}
