package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Show stage durations, rework, deviations and gate pass rates",
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, cleanup, err := newOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		report, err := orch.Analytics(cmd.Context())
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return writeJSON(cmd, report)
		}

		out := cmd.OutOrStdout()
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		if len(report.Durations) > 0 {
			fmt.Fprintln(w, "STAGE\tRUNS\tAVG (min)\tP50\tP95")
			for _, d := range report.Durations {
				fmt.Fprintf(w, "%s\t%d\t%.1f\t%.1f\t%.1f\n", d.Stage, d.Count, d.Avg, d.P50, d.P95)
			}
			fmt.Fprintln(w)
		}
		if len(report.Rework) > 0 {
			fmt.Fprintln(w, "STAGE\tSTARTS\tDONE\tFAILED\tREVALIDATE\tINTERRUPTED\tRESETS")
			for _, r := range report.Rework {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
					r.Stage, r.Starts, r.Completions, r.Failures, r.Revalidations, r.Interruptions, r.Resets)
			}
			fmt.Fprintln(w)
		}
		if len(report.Gates) > 0 {
			fmt.Fprintln(w, "CHECKPOINT\tTOTAL\tPASS\tCONCERNS\tFAIL\tWAIVED\tPASS %")
			for _, g := range report.Gates {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%.1f\n",
					g.Checkpoint, g.Total, g.Pass, g.Concerns, g.Fail, g.Waived, g.PassPct)
			}
			fmt.Fprintln(w)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		for _, d := range report.Deviations {
			fmt.Fprintf(out, "deviations %s: %d\n", d.Type, d.Count)
		}
		fmt.Fprintf(out, "phase changes: %d (%d backwards)\n", report.PhaseChanges, report.PhaseResets)
		return nil
	},
}

func init() {
	analyticsCmd.Flags().String("format", "text", "Output format: text or json")
}
