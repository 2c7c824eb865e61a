package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func benchCmd(e *env) *cobra.Command {
	var (
		operations []string
		maxTime    time.Duration
		maxSamples int
	)

	cmd := &cobra.Command{
		Use:   "bench [samples]",
		Short: "Benchmark the configured operations",
		Long: `Benchmark the configured operations one after another.

samples is the minimum number of samples per operation (default 100). The
connection test always runs first with a single sample.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			samples := e.cfg.Bench.Samples
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("samples must be a positive integer, got %q", args[0])
				}
				samples = n
			}
			e.cfg.Bench.Samples = samples
			if len(operations) > 0 {
				e.cfg.Bench.Operations = operations
			}
			if cmd.Flags().Changed("max-time") {
				e.cfg.Bench.MaxTime = maxTime
			}
			if cmd.Flags().Changed("max-samples") {
				e.cfg.Bench.MaxSamples = maxSamples
			}

			a, ctx, cancel, err := e.app(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			_, err = a.RunBench(ctx, samples)
			return err
		},
	}

	cmd.Flags().StringArrayVar(&operations, "op", nil, "Operation to run, by name (repeatable)")
	cmd.Flags().DurationVar(&maxTime, "max-time", 0, "Time budget per operation once the sample floor is met")
	cmd.Flags().IntVar(&maxSamples, "max-samples", 0, "Cap on samples per operation (0 means no cap)")

	return cmd
}
