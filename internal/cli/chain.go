package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/contentgraph/internal/chain"
)

// ChainOptions holds flags for the chain command.
type ChainOptions struct {
	*RootOptions
	Fields []string
}

// chainOutput renders as YAML in text mode; results nest too deeply for
// a table.
type chainOutput chain.Result

func (c chainOutput) renderText(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string][]map[string]any(c)); err != nil {
		return err
	}
	return enc.Close()
}

// NewChainCommand creates the chain command.
func NewChainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ChainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "chain <element>...",
		Short: "Resolve a chained lookup",
		Long: `Resolve chain elements of the form endpoint(.indexFIELD)*(-json)?

Each element searches one endpoint (user, category, content, comment).
A reference .indexFIELD restricts the step to ids taken from FIELD of
the results of an earlier step. Every step is filtered by what the
acting user can read.

Example:
  contentgraph chain 'content-{"type":"content.page"}' user.0createuserid
  contentgraph chain content comment.0id --fields comment=id,content`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseFields(opts.Fields)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.service.Chain(cmd.Context(), rootOpts.actor(), chain.Request{
				Chains: args,
				Fields: fields,
			})
			if err != nil {
				return err
			}
			return rootOpts.formatter(cmd).Success(chainOutput(result))
		},
	}

	cmd.Flags().StringArrayVar(&opts.Fields, "fields", nil, "fields per endpoint, endpoint=a,b (repeatable)")

	return cmd
}

// parseFields reads endpoint=a,b pairs.
func parseFields(specs []string) (map[string][]string, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	fields := make(map[string][]string, len(specs))
	for _, s := range specs {
		endpoint, list, ok := strings.Cut(s, "=")
		if !ok || endpoint == "" || list == "" {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid --fields %q: expected endpoint=a,b", s))
		}
		fields[endpoint] = append(fields[endpoint], strings.Split(list, ",")...)
	}
	return fields, nil
}
