package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/contentgraph/internal/apperr"
	"github.com/roach88/contentgraph/internal/ir"
	"github.com/roach88/contentgraph/internal/listen"
)

// ListenOptions holds flags for the listen command.
type ListenOptions struct {
	*RootOptions
	After   int64
	Scope   []int64
	Types   []string
	Timeout time.Duration
	Follow  bool
}

// listenOutput is one completed wait.
type listenOutput struct {
	Relations []ir.Relation `json:"relations"`
	Watermark int64         `json:"watermark"`
}

func (l listenOutput) renderText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range l.Relations {
		fmt.Fprintf(tw, "%d\t%s\t%d -> %d\t%s\t%s\n", r.ID, r.Type, r.FromID, r.ToID, r.Kind, r.Value)
	}
	fmt.Fprintf(tw, "watermark\t%d\n", l.Watermark)
	return tw.Flush()
}

// NewListenCommand creates the listen command.
func NewListenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Wait for relation changes",
		Long: `Wait until relations newer than --after exist, then print them with the
new watermark. Relations under parents the acting user cannot read are
never returned.

A single wait exits with a timeout status when nothing arrives. With
--follow the command keeps listening from each new watermark until
interrupted.

Example:
  contentgraph listen --scope 5 --type comment --as 1
  contentgraph listen --after 120 --follow --timeout 30s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.Int64Var(&opts.After, "after", 0, "last relation id already seen")
	f.Int64SliceVar(&opts.Scope, "scope", nil, "parent ids to listen under")
	f.StringSliceVar(&opts.Types, "type", nil, "relation types (default all)")
	f.DurationVar(&opts.Timeout, "timeout", 0, "wait per poll (0 uses the configured cap)")
	f.BoolVar(&opts.Follow, "follow", false, "keep listening until interrupted")

	return cmd
}

func runListen(cmd *cobra.Command, opts *ListenOptions) error {
	if opts.After < 0 {
		return NewExitError(ExitCommandError, "--after must not be negative")
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	a, err := openApp(ctx, opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	go func() {
		select {
		case sig := <-sigChan:
			a.logger.Info("received signal, stopping", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	out := opts.formatter(cmd)
	watermark := opts.After
	for {
		res, err := a.service.Listen(ctx, opts.actor(), listen.Request{
			Watermark: watermark,
			Types:     opts.Types,
			ScopeIDs:  opts.Scope,
			Timeout:   opts.Timeout,
		})
		switch {
		case err == nil:
			watermark = res.Watermark
			if err := out.Success(listenOutput{Relations: res.Relations, Watermark: res.Watermark}); err != nil {
				return err
			}
		case opts.Follow && apperr.IsTimeout(err):
			a.logger.Debug("listen timed out, polling again", slog.Int64("watermark", watermark))
		case opts.Follow && apperr.IsCancelled(err) && ctx.Err() != nil:
			return nil
		default:
			return err
		}
		if !opts.Follow {
			return nil
		}
	}
}
