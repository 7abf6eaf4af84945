package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/agentline/internal/gates"
)

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Evaluate quality gates",
}

var gateRunCmd = &cobra.Command{
	Use:   "run <checkpoint>",
	Short: "Evaluate a quality gate from recorded handoffs",
	Long: `Evaluates the gate at a checkpoint (pre-build, post-qa-planning, post-dev,
post-qa-impl, pre-deploy). Repeated FAIL verdicts open the checkpoint's
circuit breaker, which rejects evaluations until its reset timeout passes.

Exits non-zero on FAIL.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cp, err := gates.ParseCheckpoint(args[0])
		if err != nil {
			return err
		}
		orch, cleanup, err := newOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		waiver, _ := cmd.Flags().GetString("waive")
		res, err := orch.EvaluateGate(cmd.Context(), cp, waiver)
		if err != nil {
			var open *gates.CircuitOpenError
			if errors.As(err, &open) {
				return fmt.Errorf("gate %s is failing repeatedly; %w", cp, err)
			}
			return err
		}
		if wantJSON(cmd) {
			if err := writeJSON(cmd, res); err != nil {
				return err
			}
		} else {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Gate %s (%s): %s, score %d\n", res.Checkpoint, res.Stage, res.Verdict, res.Score)
			if res.Reason != "" {
				fmt.Fprintf(out, "Reason: %s\n", res.Reason)
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CRITERION\tMET\tDETAIL")
			for _, c := range res.Criteria {
				fmt.Fprintf(w, "%s\t%v\t%s\n", c.Name, c.Met, c.Detail)
			}
			w.Flush()
		}
		if !res.Passed() {
			return fmt.Errorf("gate %s failed", cp)
		}
		return nil
	},
}

var gateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List checkpoints and the stage each one guards",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		cfg, err := loadProjectConfig(store)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CHECKPOINT\tSTAGE\tCHECKS")
		for _, cp := range gates.Checkpoints {
			stage, err := gates.BoundStage(cp)
			if err != nil {
				return err
			}
			var names []string
			for _, c := range cfg.ChecksFor(string(cp)) {
				names = append(names, c.Name)
			}
			checks := "-"
			if len(names) > 0 {
				checks = strings.Join(names, ", ")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", cp, stage, checks)
		}
		return w.Flush()
	},
}

func init() {
	gateRunCmd.Flags().String("waive", "", "Waive the gate with this justification (critical blockers still fail)")
	gateRunCmd.Flags().String("format", "text", "Output format: text or json")
	gateCmd.AddCommand(gateRunCmd)
	gateCmd.AddCommand(gateListCmd)
}
