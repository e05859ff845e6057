package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/contentgraph/internal/permission"
)

// permsOutput is a normalized wire permission map.
type permsOutput map[string]string

func (p permsOutput) renderText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%s\n", k, p[k])
	}
	return tw.Flush()
}

// NewPermsCommand creates the perms command group.
func NewPermsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "perms",
		Short: "Work with permission maps",
	}
	cmd.AddCommand(newPermsNormalizeCommand(rootOpts))
	return cmd
}

func newPermsNormalizeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <json>",
		Short: "Validate and normalize a permission map",
		Long: `Parse a permission map of user id to action characters and print it in
canonical form. Key 0 grants anonymous and every user. Action characters
are r (read), c (create), u (update) and d (delete).

Example:
  contentgraph perms normalize '{"0":"r","12":"ucr"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw map[string]string
			if err := json.Unmarshal([]byte(args[0]), &raw); err != nil {
				return WrapExitError(ExitCommandError, "invalid permission JSON", err)
			}
			norm, err := permission.Normalize(raw)
			if err != nil {
				return err
			}
			return rootOpts.formatter(cmd).Success(permsOutput(norm))
		},
	}
}
