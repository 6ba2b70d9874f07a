package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/goliatone/go-static-export/export"
	"github.com/goliatone/go-static-export/query"
	"github.com/spf13/cobra"
)

func getCmdHistory(gs *globalState) *cobra.Command {
	var (
		format string
		state  string
		since  time.Duration
		limit  int
	)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded renders",
		Long: `List recorded renders, newest first.

  Requires --history-db pointing at the database used by render, batch or serve.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if gs.flags.historyDB == "" {
				return export.NewError(export.KindValidation, "history requires --history-db", nil)
			}

			msg := query.RenderHistory{Filter: export.RenderFilter{
				Format: export.Format(format),
				State:  export.RenderState(state),
				Limit:  limit,
			}}
			if since > 0 {
				msg.Filter.Since = time.Now().Add(-since)
			}
			if err := msg.Validate(); err != nil {
				return err
			}

			tracker, release, err := gs.openTracker(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			records, err := query.NewRenderHistoryHandler(tracker).Query(cmd.Context(), msg)
			if err != nil {
				return err
			}
			return printRecords(cmd, records)
		},
	}

	flags := historyCmd.Flags()
	flags.StringVar(&format, "format", "", "only show this format")
	flags.StringVar(&state, "state", "", "only show completed or failed renders")
	flags.DurationVar(&since, "since", 0, "only show renders newer than this")
	flags.IntVar(&limit, "limit", 20, "maximum number of records")
	return historyCmd
}

func printRecords(cmd *cobra.Command, records []export.RenderRecord) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tFORMAT\tSIZE\tBYTES\tDURATION\tSTATE\tERROR")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%dx%d@%g\t%d\t%s\t%s\t%s\n",
			r.ID,
			r.CreatedAt.Format(time.RFC3339),
			r.Format,
			r.Width, r.Height, r.Scale,
			r.Bytes,
			r.Duration.Round(time.Millisecond),
			r.State,
			r.ErrorKind,
		)
	}
	return w.Flush()
}
