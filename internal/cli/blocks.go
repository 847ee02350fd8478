package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/blockstep/blockstep/internal/blocks"
)

// NewBlocksCommand creates the blocks command, which lists the block
// types a model file can reference.
func NewBlocksCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "blocks",
		Short:         "List available block types",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{
				Format:    rootOpts.Format,
				Writer:    cmd.OutOrStdout(),
				ErrWriter: cmd.ErrOrStderr(),
				Verbose:   rootOpts.Verbose,
			}
			types := blocks.Types()
			if rootOpts.Format == "json" {
				return out.Success(types)
			}
			return out.Success(strings.Join(types, "\n"))
		},
	}
	return cmd
}
