package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kmreade/scrivener/internal/citation"
	"github.com/kmreade/scrivener/internal/manuscript"
)

// NewValidateCommand creates `scrivener validate <run>`. It runs the citation
// layers over whatever artifacts exist: sections get layers 1 and 2, the
// assembled manuscript gets layer 3. Useful between gates, before committing
// to a completion.
func NewValidateCommand(opts *RootOptions) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "validate <run>",
		Short: "Run citation validation over the current artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := opts.openSession(args[0])
			if err != nil {
				return err
			}
			defer sess.Close()

			layout := sess.run.Layout
			store, err := citation.LoadStore(layout.EvidencePath())
			if err != nil {
				return err
			}
			validator := citation.NewValidator(store,
				citation.PoliciesFromConfig(sess.cfg), sess.engine.Audit())
			out := cmd.OutOrStdout()

			if key != "" {
				if err := validator.ValidateEntry("validate", "", key, ""); err != nil {
					return err
				}
				fmt.Fprintf(out, "[%s] backed by evidence\n", key)
				return nil
			}

			failed := false
			var sections []citation.SectionText
			for _, section := range manuscript.DefaultSections {
				body, err := os.ReadFile(layout.SectionPath(section))
				if err != nil {
					continue
				}
				sections = append(sections, citation.SectionText{Name: section, Body: string(body)})
				violations, err := validator.ValidateSection("validate", section, string(body))
				if err != nil {
					failed = true
					fmt.Fprintf(out, "%s: %v\n", section, err)
					continue
				}
				for _, violation := range violations {
					fmt.Fprintf(out, "%s: warning: %s\n", section, violation.Message)
				}
			}
			if bibKeys, err := citation.BibKeys(layout.BibPath()); err == nil {
				for _, record := range citation.Collect(sections, bibKeys) {
					if !record.Orphaned() {
						continue
					}
					if !record.Resolved {
						fmt.Fprintf(out, "[%s]: cited in %v but missing from the bibliography\n",
							record.Key, record.SectionsUsed)
					} else {
						fmt.Fprintf(out, "[%s]: in the bibliography but never cited\n", record.Key)
					}
				}
			}
			if _, err := os.Stat(layout.ManuscriptPath()); err == nil {
				if err := validator.ValidateCompleteness(layout.ManuscriptPath(), layout.BibPath()); err != nil {
					failed = true
					fmt.Fprintf(out, "manuscript: %v\n", err)
				} else {
					fmt.Fprintln(out, "manuscript: citations and bibliography agree")
				}
			}
			if failed {
				return fmt.Errorf("cli: citation validation failed")
			}
			fmt.Fprintln(out, "validation passed")
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "validate a single citation key against the evidence store")
	return cmd
}
