package cli

import (
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/contentgraph/internal/harness"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	File string
}

// seedOutput lists the names a seed bound.
type seedOutput struct {
	Bindings map[string]int64 `json:"bindings"`
}

func (s seedOutput) renderText(w io.Writer) error {
	names := make([]string, 0, len(s.Bindings))
	for n := range s.Bindings {
		names = append(names, n)
	}
	slices.Sort(names)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Seeded %d entities\n", len(names))
	for _, n := range names {
		fmt.Fprintf(tw, "  %s\t%d\n", n, s.Bindings[n])
	}
	return tw.Flush()
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Apply a seed file to the database",
		Long: `Apply the steps of a seed file in order. Seed files use the scenario
step format and usually create the root, the category tree and its
grants. Steps run as the actor each one names; the command stops at the
first step that fails.

Example:
  contentgraph seed -f ./seed.yaml --db ./contentgraph.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := harness.LoadSeed(opts.File)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load seed", err)
			}

			a, err := openApp(cmd.Context(), rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			bindings, err := harness.Seed(cmd.Context(), a.service, seed.Steps)
			if err != nil {
				return err
			}
			a.logger.Info("seed applied", "steps", len(seed.Steps), "bindings", len(bindings))
			return rootOpts.formatter(cmd).Success(seedOutput{Bindings: bindings})
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "seed file (required)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
