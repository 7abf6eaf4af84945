package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var handoffCmd = &cobra.Command{
	Use:   "handoff",
	Short: "Inspect handoffs and stage memory",
}

var handoffContextCmd = &cobra.Command{
	Use:   "context <stage>",
	Short: "Show the latest handoff and notes for a stage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, cleanup, err := newOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		hc, err := orch.HandoffContext(args[0])
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return writeJSON(cmd, hc)
		}

		out := cmd.OutOrStdout()
		if hc.Empty() {
			fmt.Fprintf(out, "No context recorded for %s.\n", args[0])
			return nil
		}
		if h := hc.Handoff; h != nil {
			fmt.Fprintf(out, "Handoff #%d from %s at %s\n", h.Seq, h.FromStage, h.CreatedAt)
			fmt.Fprintf(out, "Summary: %s\n", h.Summary)
			if h.Score != nil {
				fmt.Fprintf(out, "Score:   %.0f\n", *h.Score)
			}
			if len(h.Outputs) > 0 {
				fmt.Fprintf(out, "Outputs: %s\n", strings.Join(h.Outputs, ", "))
			}
			for _, d := range h.Decisions {
				fmt.Fprintf(out, "  decision: %s\n", d)
			}
			for _, b := range h.Blockers {
				fmt.Fprintf(out, "  blocker [%s]: %s\n", b.Severity, b.Description)
			}
		}
		if len(hc.Notes) > 0 {
			fmt.Fprintln(out, "Notes:")
			for _, n := range hc.Notes {
				fmt.Fprintf(out, "  - %s (%s)\n", n.Text, n.Source)
			}
		}
		return nil
	},
}

var handoffRollbackCheckCmd = &cobra.Command{
	Use:   "rollback-check <stage>",
	Short: "Show which stages a rollback to <stage> would discard",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, cleanup, err := newOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		f, err := orch.RollbackCheck(args[0])
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return writeJSON(cmd, f)
		}
		out := cmd.OutOrStdout()
		if !f.Possible {
			fmt.Fprintf(out, "Rollback to %s not needed: %s\n", f.TargetStage, f.Reason)
			return nil
		}
		fmt.Fprintf(out, "Rollback to %s discards: %s\n", f.TargetStage, strings.Join(f.AffectedAgents, ", "))
		return nil
	},
}

var handoffNoteCmd = &cobra.Command{
	Use:   "note <stage> <text...>",
	Short: "Add a durable note to a stage's memory",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, cleanup, err := newOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := orch.AddNote(args[0], strings.Join(args[1:], " ")); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Note added to %s.\n", args[0])
		return nil
	},
}

func init() {
	handoffContextCmd.Flags().String("format", "text", "Output format: text or json")
	handoffRollbackCheckCmd.Flags().String("format", "text", "Output format: text or json")
	handoffCmd.AddCommand(handoffContextCmd)
	handoffCmd.AddCommand(handoffRollbackCheckCmd)
	handoffCmd.AddCommand(handoffNoteCmd)
}
