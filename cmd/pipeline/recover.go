package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRecoverCmd(app *AppContext) *cobra.Command {
	var autoResume bool

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Detect interrupted runs, optionally resuming each",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !autoResume {
				interrupted, err := app.Recovery.DetectInterrupted(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d interrupted run(s) detected\n", len(interrupted))
				return nil
			}

			summary, err := app.Recovery.RecoverInterruptedRuns(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "detected=%d recovered=%d failed=%d\n", summary.Detected, summary.Recovered, summary.Failed)
			for _, runErr := range summary.Errors {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", runErr.RunID, runErr.Error)
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d run(s) failed to recover", summary.Failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&autoResume, "auto-resume", false, "resume every detected run instead of only listing them")
	return cmd
}
