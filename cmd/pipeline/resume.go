package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newResumeCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <runId>",
		Short: "Attempt to finish an interrupted run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := app.Recovery.ResumeRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !result.Success {
				fmt.Fprintf(cmd.OutOrStdout(), "resume refused: %s\n", result.Error)
				return errors.New(result.Error)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resumed, %d step(s) executed\n", result.StepsExecuted)
			return nil
		},
	}
}
