package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var routeCmd = &cobra.Command{
	Use:   "route <request...>",
	Short: "Classify a request and pick the agent that should handle it",
	Long: `Classifies free text into an intent, checks it for a course correction,
and selects the next agent for the current pipeline position. Nothing is
written; use "deviate" to apply a detected deviation.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, cleanup, err := newOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := orch.Route(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return writeJSON(cmd, res)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Intent:     %s (confidence %.2f)\n", res.Intent.Intent, res.Intent.Confidence)
		if len(res.Intent.MatchedKeywords) > 0 {
			fmt.Fprintf(out, "Matched:    %s\n", strings.Join(res.Intent.MatchedKeywords, ", "))
		}
		if res.Selection.Agent != "" {
			fmt.Fprintf(out, "Agent:      %s\n", res.Selection.Agent)
		} else {
			fmt.Fprintln(out, "Agent:      (none)")
		}
		if len(res.Selection.ParallelGroup) > 1 {
			fmt.Fprintf(out, "Parallel:   %s\n", strings.Join(res.Selection.ParallelGroup, ", "))
		}
		fmt.Fprintf(out, "Reason:     %s\n", res.Selection.Reason)
		if res.Deviation != nil {
			fmt.Fprintf(out, "Deviation:  %s", res.Deviation.Type)
			if res.Deviation.TargetStage != "" {
				fmt.Fprintf(out, " -> %s", res.Deviation.TargetStage)
			}
			fmt.Fprintf(out, " (confidence %.2f)\n", res.Deviation.Confidence)
			if res.Impact != nil {
				fmt.Fprintf(out, "Impact:     %s, %s\n", res.Impact.Impact, res.Impact.Reason)
			}
		}
		return nil
	},
}

func init() {
	routeCmd.Flags().String("format", "text", "Output format: text or json")
}
