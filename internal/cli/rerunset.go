package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRerunSetCommand creates `scrivener rerun-set <run>`.
func NewRerunSetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rerun-set <run>",
		Short: "List the stages that must rerun, in execution order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := opts.openSession(args[0])
			if err != nil {
				return err
			}
			defer sess.Close()

			res, _, err := sess.resolver()
			if err != nil {
				return err
			}
			set, err := res.RerunSet()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(set) == 0 {
				fmt.Fprintln(out, "up to date: nothing to rerun")
				return nil
			}
			for _, decision := range set {
				fmt.Fprintf(out, "%s\t%s\n", decision.Stage, decision.Reason)
			}
			return nil
		},
	}
}
