package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kmreade/scrivener/internal/pipeline"
)

// NewNewCommand creates `scrivener new <target>`.
func NewNewCommand(opts *RootOptions) *cobra.Command {
	var journal string

	cmd := &cobra.Command{
		Use:   "new <target>",
		Short: "Create the next versioned run directory for a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := opts.manager().Create(args[0], journal)
			if err != nil {
				return err
			}
			// Seed the state file so status works before the first stage.
			state := pipeline.NewState(r.Meta.RunID, pipeline.Default())
			if err := pipeline.NewStore(r.Layout.StatePath()).Save(state); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (run %s)\n", r.Name(), r.Meta.RunID)
			return nil
		},
	}

	cmd.Flags().StringVar(&journal, "journal", "", "target journal recorded in run metadata")
	return cmd
}
