package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contentgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "contentgraph.db", cfg.Database.Path)
	assert.Equal(t, 100, cfg.Search.DefaultLimit)
	assert.Equal(t, 1000, cfg.Search.MaxLimit)
	assert.Equal(t, DefaultListenTimeout, cfg.Listen.Timeout)
	assert.Equal(t, DefaultListenGrace, cfg.Listen.Grace)
	assert.Equal(t, 5, cfg.Chain.MaxDepth)
	assert.Empty(t, cfg.Permission.SuperUsers)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /var/lib/cg.db
listen:
  timeout: 30s
  grace: 5s
permission:
  super_users: [1, 7]
logging:
  format: json
`)
	t.Setenv("CONTENTGRAPH_SEARCH_DEFAULT_LIMIT", "25")
	t.Setenv("CONTENTGRAPH_DATABASE_PATH", "/tmp/override.db")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/override.db", cfg.Database.Path, "environment wins over the file")
	assert.Equal(t, 25, cfg.Search.DefaultLimit)
	assert.Equal(t, 30*time.Second, cfg.Listen.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Listen.Grace)
	assert.Equal(t, []int64{1, 7}, cfg.Permission.SuperUsers)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_MissingNamedFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"max limit above ceiling", "search: {max_limit: 5000}", "search.max_limit"},
		{"default above max", "search: {max_limit: 10, default_limit: 50}", "search.default_limit"},
		{"listen timeout too long", "listen: {timeout: 1h}", "listen.timeout"},
		{"zero grace", "listen: {grace: 0s}", "listen.grace"},
		{"zero depth", "chain: {max_depth: 0}", "chain.max_depth"},
		{"bad super", "permission: {super_users: [0]}", "permission.super_users"},
		{"bad format", "logging: {format: xml}", "logging.format"},
		{"bad level", "logging: {level: loud}", "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
