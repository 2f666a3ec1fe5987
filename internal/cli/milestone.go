package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewMilestoneCommand creates `scrivener milestone <run>`. Milestone runs are
// exempt from retention archiving.
func NewMilestoneCommand(opts *RootOptions) *cobra.Command {
	var unset bool

	cmd := &cobra.Command{
		Use:   "milestone <run>",
		Short: "Mark a run as a milestone, protecting it from archiving",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := opts.openRun(args[0])
			if err != nil {
				return err
			}
			if err := r.MarkMilestone(!unset); err != nil {
				return err
			}
			if unset {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is no longer a milestone\n", r.Name())
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s marked as milestone\n", r.Name())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&unset, "unset", false, "clear the milestone flag")
	return cmd
}
