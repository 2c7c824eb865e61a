package cmd

import (
	"github.com/spf13/cobra"
)

func fillCmd(e *env) *cobra.Command {
	var total, batchSize, interval int

	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Generate users and persist them with their workbooks, tables, fields and items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("total") {
				e.cfg.Fill.Total = total
			}
			if cmd.Flags().Changed("batch-size") {
				e.cfg.Fill.BatchSize = batchSize
			}
			if cmd.Flags().Changed("progress-interval") {
				e.cfg.Fill.ProgressInterval = interval
			}

			a, ctx, cancel, err := e.app(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			_, err = a.RunFill(ctx)
			return err
		},
	}

	cmd.Flags().IntVar(&total, "total", 0, "Number of users to generate")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Users generated per batch")
	cmd.Flags().IntVar(&interval, "progress-interval", 0, "Users between progress reports")

	return cmd
}
