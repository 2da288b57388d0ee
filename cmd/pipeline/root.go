package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd(app *AppContext, flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pipeline",
		Short:         "Durable pipeline execution engine CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configured := app.Config != nil && app.Config.AutoRecover
			if !flags.autoRecover && !configured {
				return nil
			}
			summary, err := app.Recovery.RecoverInterruptedRuns(cmd.Context())
			if err != nil {
				return err
			}
			app.Logger.Info("startup recovery complete", "detected", summary.Detected, "recovered", summary.Recovered, "failed", summary.Failed)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVar(&flags.autoRecover, "auto-recover", false, "run recovery at startup before any subcommand")

	cmd.AddCommand(newListCmd(app))
	cmd.AddCommand(newRunCmd(app))
	cmd.AddCommand(newCheckInterruptedCmd(app))
	cmd.AddCommand(newResumeCmd(app))
	cmd.AddCommand(newRecoverCmd(app))
	cmd.AddCommand(newWorkerCmd(app))

	return cmd
}
