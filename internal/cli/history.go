package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent pipeline events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, cleanup, err := newOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		limit, _ := cmd.Flags().GetInt("limit")
		events, err := orch.History(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return writeJSON(cmd, events)
		}
		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No events recorded.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tEVENT\tSTAGE\tDETAIL")
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Timestamp.Format(time.DateTime), e.Event, e.Stage, e.Detail)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Maximum number of events (0 for all)")
	historyCmd.Flags().String("format", "text", "Output format: text or json")
}
