package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/agentline/internal/deviation"
	"github.com/lucasnoah/agentline/internal/orchestrator"
	"github.com/lucasnoah/agentline/internal/pipeline"
)

var deviateCmd = &cobra.Command{
	Use:   "deviate [request...]",
	Short: "Detect and apply a course correction",
	Long: `Detects a deviation (rollback, skip, restart, scope or priority change) in
the request text and applies it. Pass --type to skip detection.

Rollbacks, restarts and skips, and scope or priority changes that touch
many stages, need --yes before they are applied.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := deviateRequest(cmd, strings.Join(args, " "))
		if err != nil {
			return err
		}

		orch, cleanup, err := newOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := orch.Deviate(cmd.Context(), req)
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return writeJSON(cmd, res)
		}

		out := cmd.OutOrStdout()
		if res.Detection != nil && !res.Detection.IsDeviation {
			fmt.Fprintln(out, "No deviation detected.")
			return nil
		}
		if res.Impact != nil {
			fmt.Fprintf(out, "Deviation: %s (%s impact)\n", res.Impact.Type, res.Impact.Impact)
			fmt.Fprintf(out, "Reason:    %s\n", res.Impact.Reason)
			if len(res.Impact.AffectedStages) > 0 {
				fmt.Fprintf(out, "Affects:   %s\n", strings.Join(res.Impact.AffectedStages, ", "))
			}
		}
		if res.Feasibility != nil && !res.Feasibility.Possible {
			fmt.Fprintf(out, "Handoffs:  %s\n", res.Feasibility.Reason)
		}
		if res.NeedsConfirmation {
			fmt.Fprintln(out, "Not applied: re-run with --yes to confirm.")
			return nil
		}
		for _, c := range res.Record.Changes {
			fmt.Fprintf(out, "  - %s\n", c)
		}
		return nil
	},
}

func deviateRequest(cmd *cobra.Command, text string) (orchestrator.DeviateRequest, error) {
	f := cmd.Flags()
	yes, _ := f.GetBool("yes")
	req := orchestrator.DeviateRequest{Text: text, Confirmed: yes}

	rawType, _ := f.GetString("type")
	if rawType == "" {
		if strings.TrimSpace(text) == "" {
			return req, fmt.Errorf("give request text or --type")
		}
		return req, nil
	}

	t, err := deviation.ParseType(rawType)
	if err != nil {
		return req, err
	}
	target, _ := f.GetString("target")
	adds, _ := f.GetStringArray("add")
	removes, _ := f.GetStringArray("remove")
	rawPrio, _ := f.GetStringToInt("priority")

	req.Type = t
	req.Details = pipeline.DeviationDetails{
		TargetStage: target,
		Reason:      text,
		Additions:   adds,
		Removals:    removes,
		Text:        text,
	}
	if len(rawPrio) > 0 {
		req.Details.Priorities = rawPrio
	}
	return req, nil
}

func init() {
	f := deviateCmd.Flags()
	f.String("type", "", "Deviation type: SCOPE_CHANGE, ROLLBACK, SKIP, PRIORITY_CHANGE or RESTART")
	f.String("target", "", "Target stage for ROLLBACK and SKIP")
	f.StringArray("add", nil, "Backlog addition for SCOPE_CHANGE (repeatable)")
	f.StringArray("remove", nil, "Backlog removal for SCOPE_CHANGE (repeatable)")
	f.StringToInt("priority", nil, "Backlog priority for PRIORITY_CHANGE, title=priority")
	f.BoolP("yes", "y", false, "Confirm high and medium impact deviations")
	f.String("format", "text", "Output format: text or json")
}
