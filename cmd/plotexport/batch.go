package main

import (
	"context"
	"fmt"

	"github.com/goliatone/go-static-export/command"
	"github.com/spf13/cobra"
)

func getCmdBatch(gs *globalState) *cobra.Command {
	var (
		from     string
		maxItems int
	)

	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Render a JSON array of plots to files",
		Long: `Render a JSON array of plots to files.

  Each item has the shape {"format","width","height","scale","plot","out"}.
  Rendering stops at the first failure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := command.LoadBatchFile(from)
			if err != nil {
				return err
			}

			exp, _, release, err := gs.newExporter(cmd)
			if err != nil {
				return err
			}
			defer release()

			loader := func(ctx context.Context) ([]command.BatchItem, error) { return items, nil }
			batch := command.NewBatchCommand(exp, loader, command.WithBatchLimits(command.BatchLimits{MaxItems: maxItems}))
			count, err := batch.Run(cmd.Context(), "")
			fmt.Fprintf(cmd.OutOrStdout(), "rendered %d of %d plots\n", count, len(items))
			return err
		},
	}

	flags := batchCmd.Flags()
	flags.StringVar(&from, "from", "", "path to the batch JSON file")
	flags.IntVar(&maxItems, "max", 0, "render at most this many items, 0 for all")
	_ = batchCmd.MarkFlagRequired("from")
	return batchCmd
}
