package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kmreade/scrivener/internal/config"
)

// NewArchiveCommand creates `scrivener archive <target>`. Retention settings
// come from the latest run's config; flags override them for one invocation.
func NewArchiveCommand(opts *RootOptions) *cobra.Command {
	var keepLast, maxAgeDays int

	cmd := &cobra.Command{
		Use:   "archive <target>",
		Short: "Apply the retention policy, packing expired runs into archive/",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := splitTarget(args[0])
			policy := config.RetentionConfig{KeepLast: 3}
			if r, err := opts.openRun(target); err == nil {
				if cfg, err := config.Load(r.Layout.ConfigPath()); err == nil {
					policy = cfg.Retention
				}
			}
			if cmd.Flags().Changed("keep-last") {
				policy.KeepLast = keepLast
			}
			if cmd.Flags().Changed("max-age-days") {
				policy.MaxAgeDays = maxAgeDays
			}

			results, err := opts.manager().ApplyRetention(target, policy)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "nothing to archive")
				return nil
			}
			for _, result := range results {
				fmt.Fprintf(out, "archived %s -> %s (%s)\n", result.Run, result.Archive, result.Reason)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&keepLast, "keep-last", 0, "override retention.keep_last")
	cmd.Flags().IntVar(&maxAgeDays, "max-age-days", 0, "override retention.max_age_days")
	return cmd
}
