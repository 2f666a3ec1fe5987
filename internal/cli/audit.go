package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kmreade/scrivener/internal/audit"
)

// NewAuditCommand creates `scrivener audit <run>`.
func NewAuditCommand(opts *RootOptions) *cobra.Command {
	var key string
	var tail int

	cmd := &cobra.Command{
		Use:   "audit <run>",
		Short: "Show the run's audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := opts.openRun(args[0])
			if err != nil {
				return err
			}
			log, err := audit.New(r.Layout.AuditPath())
			if err != nil {
				return err
			}

			var events []audit.Event
			if key != "" {
				events, err = log.History(key)
			} else {
				events, err = log.Tail(tail)
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(out, "no audit events")
				return nil
			}
			w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tKIND\tSTAGE\tSECTION\tKEY\tSTATUS\tDETAIL")
			for _, event := range events {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					event.Timestamp.Format("2006-01-02 15:04:05"),
					event.Kind, event.Stage, event.Section,
					event.CitationKey, event.Status, event.Detail)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "show the full history of one citation key")
	cmd.Flags().IntVar(&tail, "tail", 20, "number of recent events to show")
	return cmd
}
