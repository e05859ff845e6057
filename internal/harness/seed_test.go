package harness

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/contentgraph/internal/compiler"
	"github.com/roach88/contentgraph/internal/ir"
	"github.com/roach88/contentgraph/internal/listen"
	"github.com/roach88/contentgraph/internal/permission"
	"github.com/roach88/contentgraph/internal/presence"
	"github.com/roach88/contentgraph/internal/service"
	"github.com/roach88/contentgraph/internal/store"
)

func newSeedService(t *testing.T) *service.Service {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open(filepath.Join(t.TempDir(), "seed.db"), store.WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	engine := permission.NewEngine([]int64{99}, logger)
	hub := listen.NewHub(st, engine, listen.Config{}, listen.WithLogger(logger))
	t.Cleanup(hub.Close)
	st.Observe(hub)

	comp, err := compiler.New()
	require.NoError(t, err)
	return service.New(st, engine, hub, presence.NewRegistry(), comp, service.Config{}, service.WithLogger(logger))
}

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestSeed_BindsAndWrites(t *testing.T) {
	seed, err := LoadSeed(writeSeed(t, `
steps:
  - op: write
    as: 99
    bind: root
    entity: { type: category, name: root, permissions: { "0": cr } }
  - op: write
    as: 1
    bind: welcome
    entity: { type: content.page, name: Welcome, parent: $root, permissions: { "0": r } }
  - op: comment
    as: 1
    bind: first
    id: $welcome
    text: hello
`))
	require.NoError(t, err)

	svc := newSeedService(t)
	vars, err := Seed(context.Background(), svc, seed.Steps)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"root": 1, "welcome": 5, "first": 9}, vars)

	got, err := svc.Get(context.Background(), ir.Actor{ID: 2}, vars["welcome"])
	require.NoError(t, err)
	assert.Equal(t, "Welcome", got.Name)
}

func TestSeed_StopsAtFailure(t *testing.T) {
	svc := newSeedService(t)
	vars, err := Seed(context.Background(), svc, []Step{
		{Op: "write", As: 99, Bind: "root", Entity: &EntitySpec{Type: "category", Name: "root"}},
		{Op: "write", As: 1, Entity: &EntitySpec{Type: "content", Name: "x", Parent: "$root"}},
		{Op: "write", As: 99, Bind: "never", Entity: &EntitySpec{Type: "category", Name: "late"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps[1] write: got NOT_FOUND")
	assert.Equal(t, map[string]int64{"root": 1}, vars)
}

func TestLoadSeed_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty", "steps: []", "steps list is required"},
		{"expect", "steps: [{op: get, id: 1, expect: {case: ok}}]", "cannot have expect"},
		{"advance", "steps: [{op: advance, advance: 1s}]", "only available in scenarios"},
		{"unknown field", "steps: [{op: get, idd: 1}]", "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSeed(writeSeed(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
