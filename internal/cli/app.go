package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/contentgraph/internal/compiler"
	"github.com/roach88/contentgraph/internal/config"
	"github.com/roach88/contentgraph/internal/ir"
	"github.com/roach88/contentgraph/internal/listen"
	"github.com/roach88/contentgraph/internal/metrics"
	"github.com/roach88/contentgraph/internal/permission"
	"github.com/roach88/contentgraph/internal/presence"
	"github.com/roach88/contentgraph/internal/service"
	"github.com/roach88/contentgraph/internal/store"
)

// app is one opened database with its service stack.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	hub     *listen.Hub
	service *service.Service
}

// openApp loads configuration and opens the database. Callers must Close.
func openApp(ctx context.Context, opts *RootOptions, diag io.Writer) (*app, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database.Path = opts.Database
	}

	logger := newLogger(diag, cfg.Logging, opts.Verbose)
	logger.Debug("opening database", "path", cfg.Database.Path)

	st, err := store.Open(cfg.Database.Path, store.WithLogger(logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	m := metrics.New(prometheus.NewRegistry())
	engine := permission.NewEngine(cfg.Permission.SuperUsers, logger)
	hub := listen.NewHub(st, engine, listen.Config{
		MaxTimeout:   cfg.Listen.Timeout,
		BacklogLimit: cfg.Listen.BacklogLimit,
	}, listen.WithLogger(logger), listen.WithMetrics(m))
	st.Observe(hub)

	comp, err := compiler.New()
	if err != nil {
		hub.Close()
		_ = st.Close()
		return nil, err
	}

	reg := presence.NewRegistry(presence.WithRetention(hub.MaxTimeout() + cfg.Listen.Grace))
	svc := service.New(st, engine, hub, reg, comp, service.Config{
		DefaultLimit:  cfg.Search.DefaultLimit,
		MaxLimit:      cfg.Search.MaxLimit,
		ListenGrace:   cfg.Listen.Grace,
		ChainMaxDepth: cfg.Chain.MaxDepth,
	}, service.WithLogger(logger), service.WithMetrics(m))

	a := &app{cfg: cfg, logger: logger, store: st, hub: hub, service: svc}
	if err := svc.Rebuild(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close stops pending listens and closes the database.
func (a *app) Close() {
	a.hub.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

// newLogger builds the process logger. --verbose forces debug level.
func newLogger(w io.Writer, cfg config.LoggingConfig, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	hopts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

func (o *RootOptions) actor() ir.Actor {
	return ir.Actor{ID: o.As, Super: o.Super}
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// parseIDs parses positive id arguments.
func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid id %q", a))
		}
		ids = append(ids, id)
	}
	return ids, nil
}
