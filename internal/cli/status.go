package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kmreade/scrivener/internal/tui"
)

// NewStatusCommand creates `scrivener status <run>`.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status <run>",
		Short: "Show stage status and staleness for a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := opts.openSession(args[0])
			if err != nil {
				return err
			}
			defer sess.Close()

			fetch := func() (tui.Snapshot, error) {
				return buildSnapshot(sess)
			}
			if watch {
				layout := sess.run.Layout
				model, err := tui.New(fetch, sess.run.Dir, layout.SectionsDir())
				if err != nil {
					return err
				}
				defer model.Close()
				_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
				return err
			}

			snap, err := fetch()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  run %s  citations: %s\n\n",
				snap.RunName, snap.RunID, snap.CitationStatus)
			w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STAGE\tSTATUS\tRERUNS\tCOMPLETED\tREASON")
			for _, row := range snap.Stages {
				completed := "-"
				if row.CompletedAt != nil {
					completed = row.CompletedAt.Format("2006-01-02 15:04")
				}
				reason := row.Reason
				if reason == "up_to_date" {
					reason = ""
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					row.Name, row.Status, row.RerunCount, completed, reason)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "live status board, refreshed on artifact changes")
	return cmd
}

// buildSnapshot assembles the status view data from state plus resolver
// decisions.
func buildSnapshot(sess *session) (tui.Snapshot, error) {
	res, state, err := sess.resolver()
	if err != nil {
		return tui.Snapshot{}, err
	}
	decisions, err := res.Plan()
	if err != nil {
		return tui.Snapshot{}, err
	}
	reasons := make(map[string]string, len(decisions))
	for _, decision := range decisions {
		reasons[decision.Stage] = decision.Reason.String()
	}

	snap := tui.Snapshot{
		RunName:        sess.run.Name(),
		RunID:          sess.run.Meta.RunID,
		Journal:        sess.run.Meta.Journal,
		CitationStatus: state.CitationStatus,
		UpdatedAt:      time.Now(),
	}
	for _, name := range sess.def.StageNames() {
		record := state.Stage(name)
		snap.Stages = append(snap.Stages, tui.StageRow{
			Name:        name,
			Status:      string(record.Status),
			Reason:      reasons[name],
			RerunCount:  record.RerunCount,
			CompletedAt: record.CompletedAt,
		})
	}
	return snap, nil
}
