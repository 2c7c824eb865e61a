package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AvishaiDotan/mongodb-functions/internal/app"
)

func queryCmd(e *env) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "query [operation]",
		Short: "Run a single operation once and print its result",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if list || len(args) == 0 {
				for _, name := range app.Operations() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}

			a, ctx, cancel, err := e.app(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			_, err = a.RunQuery(ctx, args[0])
			return err
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "List the available operations")

	return cmd
}
