package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AvishaiDotan/mongodb-functions/internal/archive"
)

func reportsCmd(e *env) *cobra.Command {
	var (
		show bool
		last int
	)

	cmd := &cobra.Command{
		Use:       "reports [bench|fill]",
		Short:     "List archived run reports",
		ValidArgs: []string{archive.KindBench, archive.KindFill},
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.MaximumNArgs(1)(cmd, args); err != nil {
				return err
			}
			return cobra.OnlyValidArgs(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := archive.KindBench
			if len(args) == 1 {
				kind = args[0]
			}
			e.cfg.Archive.Enabled = true

			a, ctx, cancel, err := e.app(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			ar := a.Archiver()
			keys, err := ar.List(ctx, kind)
			if err != nil {
				return err
			}
			if last > 0 && len(keys) > last {
				keys = keys[len(keys)-last:]
			}

			out := cmd.OutOrStdout()
			if !show {
				for _, k := range keys {
					fmt.Fprintln(out, k)
				}
				return nil
			}

			fetched, err := ar.LoadAll(ctx, keys)
			if err != nil {
				return err
			}
			for _, f := range fetched {
				if f.Err != nil {
					fmt.Fprintf(out, "%s: %v\n", f.Key, f.Err)
					continue
				}
				fmt.Fprintf(out, "# %s\n%s\n", f.Key, f.Data)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&show, "show", false, "Print report contents")
	cmd.Flags().IntVar(&last, "last", 0, "Only the most recent N reports")

	return cmd
}
