package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run <name>",
		Short: "Synchronously execute the named pipeline once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			def, err := app.Registry.Get(name)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "available pipelines:")
				for _, n := range app.Registry.List() {
					fmt.Fprintln(cmd.ErrOrStderr(), " -", n)
				}
				return err
			}

			result, err := app.RunExecutor.Execute(cmd.Context(), def, nil)
			if err != nil {
				return err
			}
			if !result.Success {
				fmt.Fprintf(cmd.OutOrStdout(), "run %s failed: %v\n", result.RunID, result.Err)
				return result.Err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s succeeded in %dms\n", result.RunID, result.DurationMs)
			return nil
		},
	}
}
