package service

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/roach88/contentgraph/internal/compiler"
	"github.com/roach88/contentgraph/internal/ir"
	"github.com/roach88/contentgraph/internal/listen"
	"github.com/roach88/contentgraph/internal/metrics"
	"github.com/roach88/contentgraph/internal/permission"
	"github.com/roach88/contentgraph/internal/presence"
	"github.com/roach88/contentgraph/internal/store"
	"github.com/roach88/contentgraph/internal/testutil"
)

var (
	super = ir.Actor{ID: 99}
	alice = ir.Actor{ID: 1}
	bob   = ir.Actor{ID: 2}
	anon  = ir.Actor{}
)

type env struct {
	svc     *Service
	store   *store.Store
	clock   *testutil.ManualClock
	metrics *metrics.Metrics
	root    ir.EntityView // public category, anyone may create under it
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewManualClock(testutil.Epoch)

	st, err := store.Open(filepath.Join(t.TempDir(), "service.db"),
		store.WithClock(clock.Now),
		store.WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	m := metrics.New(prometheus.NewRegistry())
	engine := permission.NewEngine([]int64{super.ID}, logger)
	hub := listen.NewHub(st, engine, listen.Config{MaxTimeout: time.Second},
		listen.WithLogger(logger),
		listen.WithMetrics(m),
		listen.WithIDGenerator(testutil.NewFixedIDGenerator("")))
	t.Cleanup(hub.Close)
	st.Observe(hub)

	comp, err := compiler.New()
	require.NoError(t, err)

	svc := New(st, engine, hub, presence.NewRegistry(presence.WithClock(clock.Now)), comp,
		Config{ListenGrace: 10 * time.Second},
		WithLogger(logger),
		WithMetrics(m))
	require.NoError(t, svc.Rebuild(context.Background()))

	e := &env{svc: svc, store: st, clock: clock, metrics: m}
	e.root = e.write(t, super, ir.EntityView{
		Type:        ir.TypeCategory,
		Name:        "root",
		Permissions: map[string]string{"0": "cr"},
	})
	return e
}

func (e *env) write(t *testing.T, actor ir.Actor, view ir.EntityView) ir.EntityView {
	t.Helper()
	out, err := e.svc.Write(context.Background(), actor, view)
	require.NoError(t, err)
	return out
}

// content creates a content entity under root owned by actor.
func (e *env) content(t *testing.T, actor ir.Actor, name string, perms map[string]string) ir.EntityView {
	t.Helper()
	return e.write(t, actor, ir.EntityView{
		Type:        "content.page",
		Name:        name,
		ParentID:    e.root.ID,
		Permissions: perms,
	})
}

func viewIDs(views []ir.EntityView) []int64 {
	out := make([]int64, len(views))
	for i, v := range views {
		out[i] = v.ID
	}
	return out
}
