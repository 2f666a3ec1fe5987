package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewBeginCommand creates `scrivener begin <run> <stage>`.
func NewBeginCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "begin <run> <stage>",
		Short: "Mark a stage in progress",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := opts.openSession(args[0])
			if err != nil {
				return err
			}
			defer sess.Close()
			release, err := sess.lock()
			if err != nil {
				return err
			}
			defer release()

			if err := sess.engine.Begin(cmd.Context(), args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s in progress\n", sess.run.Name(), args[1])
			return nil
		},
	}
}

// NewCompleteCommand creates `scrivener complete <run> <stage>`.
func NewCompleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <run> <stage>",
		Short: "Verify a stage's outputs and record its completion",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := opts.openSession(args[0])
			if err != nil {
				return err
			}
			defer sess.Close()
			release, err := sess.lock()
			if err != nil {
				return err
			}
			defer release()

			if err := sess.engine.Complete(cmd.Context(), args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s completed\n", sess.run.Name(), args[1])
			return nil
		},
	}
}
