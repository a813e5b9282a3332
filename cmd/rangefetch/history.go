package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCmd(cfgPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent download runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appCtx, cleanup, err := bootstrap(cmd.Context(), *cfgPath, cmd.Flags())
			if err != nil {
				return err
			}
			defer cleanup()

			if appCtx.Store == nil {
				return errors.New("run history is disabled (store.enabled=false)")
			}

			runs, err := appCtx.Store.ListRuns(limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tENDPOINT\tBYTES\tSEGMENTS\tSTARTED\tDIGEST")
			for _, r := range runs {
				digest := r.Digest
				if digest == "" {
					digest = r.Error
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
					r.ID, r.Status, r.Endpoint, r.TotalLength, r.WindowCount, formatTime(r.StartedAt), digest)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
