package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print registered pipelines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := app.Registry.List()
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no pipelines registered")
				return nil
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
