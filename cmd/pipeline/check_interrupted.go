package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckInterruptedCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check-interrupted",
		Short: "List runs interrupted by a crashed worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			interrupted, err := app.Recovery.DetectInterrupted(cmd.Context())
			if err != nil {
				return err
			}
			if len(interrupted) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no interrupted runs")
				return nil
			}
			for _, run := range interrupted {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tpipeline=%s\tstartedAt=%s\tnextStep=%s\n",
					run.RunID, run.PipelineName, run.StartedAt.Format("2006-01-02T15:04:05Z07:00"), run.NextStepToExecute)
			}
			return nil
		},
	}
}
