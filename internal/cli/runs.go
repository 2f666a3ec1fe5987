package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewRunsCommand creates `scrivener runs [target]`.
func NewRunsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "runs [target]",
		Short: "List runs, newest version last",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) == 1 {
				target = args[0]
			}
			runs, err := opts.manager().List(target)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs found")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tID\tCREATED\tJOURNAL\tMILESTONE")
			for _, r := range runs {
				milestone := ""
				if r.Meta.Milestone {
					milestone = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					r.Name(), r.Meta.RunID,
					r.Meta.CreatedAt.Format("2006-01-02 15:04"),
					r.Meta.Journal, milestone)
			}
			return w.Flush()
		},
	}
}
