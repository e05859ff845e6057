// Package config loads contentgraph settings from defaults, an optional
// YAML file and CONTENTGRAPH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/roach88/contentgraph/internal/ir"
)

const (
	// DefaultListenTimeout is the server-side cap on one long-poll.
	DefaultListenTimeout = 60 * time.Second

	// MaxListenTimeout bounds listen.timeout itself.
	MaxListenTimeout = 5 * time.Minute

	// DefaultListenGrace is how long a listener stays listed without
	// polling again.
	DefaultListenGrace = 10 * time.Second
)

// Config holds all configuration for contentgraph.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Search     SearchConfig     `mapstructure:"search"`
	Listen     ListenConfig     `mapstructure:"listen"`
	Chain      ChainConfig      `mapstructure:"chain"`
	Permission PermissionConfig `mapstructure:"permission"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SearchConfig bounds result pages.
type SearchConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

// ListenConfig bounds long-polls and presence.
type ListenConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	Grace        time.Duration `mapstructure:"grace"`
	BacklogLimit int           `mapstructure:"backlog_limit"`
}

// ChainConfig bounds chained lookups.
type ChainConfig struct {
	MaxDepth int `mapstructure:"max_depth"`
}

// PermissionConfig lists the configured super-users.
type PermissionConfig struct {
	SuperUsers []int64 `mapstructure:"super_users"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration. An empty path searches ./contentgraph.yaml;
// a named file that does not exist is an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("database.path", "contentgraph.db")
	v.SetDefault("search.default_limit", 100)
	v.SetDefault("search.max_limit", ir.MaxLimit)
	v.SetDefault("listen.timeout", DefaultListenTimeout)
	v.SetDefault("listen.grace", DefaultListenGrace)
	v.SetDefault("listen.backlog_limit", 1000)
	v.SetDefault("chain.max_depth", 5)
	v.SetDefault("permission.super_users", []int64{})
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("contentgraph")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CONTENTGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that fields are set and consistent.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Search.MaxLimit <= 0 || c.Search.MaxLimit > ir.MaxLimit {
		return fmt.Errorf("search.max_limit must be between 1 and %d", ir.MaxLimit)
	}
	if c.Search.DefaultLimit <= 0 || c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit (%d) must be between 1 and search.max_limit (%d)", c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if c.Listen.Timeout <= 0 || c.Listen.Timeout > MaxListenTimeout {
		return fmt.Errorf("listen.timeout must be between 0 and %s", MaxListenTimeout)
	}
	if c.Listen.Grace <= 0 {
		return fmt.Errorf("listen.grace must be greater than 0")
	}
	if c.Listen.BacklogLimit <= 0 {
		return fmt.Errorf("listen.backlog_limit must be greater than 0")
	}
	if c.Chain.MaxDepth <= 0 {
		return fmt.Errorf("chain.max_depth must be greater than 0")
	}
	for _, id := range c.Permission.SuperUsers {
		if id <= 0 {
			return fmt.Errorf("permission.super_users: %d is not a user id", id)
		}
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not a level", c.Logging.Level)
	}
	return nil
}
