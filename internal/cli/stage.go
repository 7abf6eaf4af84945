package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/agentline/internal/handoff"
	"github.com/lucasnoah/agentline/internal/orchestrator"
	"github.com/lucasnoah/agentline/internal/pipeline"
)

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Start, complete and fail pipeline stages",
}

var stageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the pipeline stage definition",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STAGE\tPHASE\tGROUP\tFLAVOR\tNOTES")
		for _, s := range pipeline.Definition() {
			var notes []string
			if s.Parallel {
				notes = append(notes, "parallel")
			}
			if s.QA {
				notes = append(notes, "qa")
			}
			flavor := string(s.Flavor)
			if flavor == "" {
				flavor = "all"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.Name, s.Phase, s.Group, flavor, strings.Join(notes, ","))
		}
		return w.Flush()
	},
}

var stageStartCmd = &cobra.Command{
	Use:   "start <stage>",
	Short: "Mark a stage in progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, cleanup, err := newOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		sess, err := orch.StartStage(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Started %s (%s phase).\n", args[0], sess.Phase)
		return nil
	},
}

var stageCompleteCmd = &cobra.Command{
	Use:   "complete <stage>",
	Short: "Record a stage handoff and advance the pipeline",
	Long: `Writes a handoff for the stage and advances the pipeline. The handoff is
rejected, and nothing is recorded, when --valid is not given, when the
summary is empty, or when a critical blocker is reported.

Blockers take the form severity:description, for example
--blocker "major:flaky integration tests". Severity defaults to major.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := handoffParams(cmd)
		if err != nil {
			return err
		}

		orch, cleanup, err := newOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := orch.CompleteStage(cmd.Context(), orchestrator.CompleteRequest{Stage: args[0], Handoff: p})
		if err != nil {
			var vf *handoff.ValidationFailure
			if errors.As(err, &vf) {
				for _, issue := range vf.Issues {
					fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", issue)
				}
			}
			return err
		}
		if wantJSON(cmd) {
			return writeJSON(cmd, res)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Completed %s. Handoff #%d written to %s\n", args[0], res.Handoff.Seq, res.HandoffPath)
		fmt.Fprintf(out, "Next action: %s", res.Advance.NextAction)
		if res.Advance.NextAgent != "" {
			fmt.Fprintf(out, " -> %s", res.Advance.NextAgent)
		}
		fmt.Fprintln(out)
		if res.Advance.Reason != "" {
			fmt.Fprintf(out, "Reason: %s\n", res.Advance.Reason)
		}
		return nil
	},
}

var stageFailCmd = &cobra.Command{
	Use:   "fail <stage>",
	Short: "Mark a stage failed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, cleanup, err := newOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		reason, _ := cmd.Flags().GetString("reason")
		if _, err := orch.FailStage(cmd.Context(), args[0], reason); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stage %s marked failed.\n", args[0])
		return nil
	},
}

// handoffParams builds handoff parameters from stage complete flags.
func handoffParams(cmd *cobra.Command) (handoff.Params, error) {
	f := cmd.Flags()
	summary, _ := f.GetString("summary")
	to, _ := f.GetString("to")
	status, _ := f.GetString("status")
	outputs, _ := f.GetStringSlice("output")
	met, _ := f.GetStringSlice("criteria-met")
	unmet, _ := f.GetStringSlice("criteria-unmet")
	decisions, _ := f.GetStringArray("decision")
	reports, _ := f.GetStringSlice("report")
	rawBlockers, _ := f.GetStringArray("blocker")
	valid, _ := f.GetBool("valid")
	issues, _ := f.GetStringArray("issue")

	var blockers []handoff.Blocker
	for _, raw := range rawBlockers {
		b, err := parseBlocker(raw)
		if err != nil {
			return handoff.Params{}, err
		}
		blockers = append(blockers, b)
	}

	p := handoff.Params{
		ToStage:       to,
		Score:         scorePtr(cmd, "score"),
		Status:        status,
		Summary:       summary,
		Outputs:       outputs,
		CriteriaMet:   met,
		CriteriaUnmet: unmet,
		Blockers:      blockers,
		Decisions:     decisions,
		Reports:       reports,
	}
	if valid || len(issues) > 0 {
		p.Validation = &handoff.ValidationResult{Valid: valid && len(issues) == 0, Issues: issues}
	}
	return p, nil
}

func parseBlocker(raw string) (handoff.Blocker, error) {
	sev, desc, ok := strings.Cut(raw, ":")
	if !ok {
		return handoff.Blocker{Description: strings.TrimSpace(raw), Severity: handoff.SeverityMajor}, nil
	}
	switch s := handoff.Severity(strings.ToLower(strings.TrimSpace(sev))); s {
	case handoff.SeverityCritical, handoff.SeverityMajor, handoff.SeverityMinor:
		desc = strings.TrimSpace(desc)
		if desc == "" {
			return handoff.Blocker{}, fmt.Errorf("blocker %q has no description", raw)
		}
		return handoff.Blocker{Description: desc, Severity: s}, nil
	}
	return handoff.Blocker{Description: strings.TrimSpace(raw), Severity: handoff.SeverityMajor}, nil
}

func init() {
	f := stageCompleteCmd.Flags()
	f.Float64("score", 0, "Stage score (0-100); QA stages gate phase transitions on it")
	f.String("summary", "", "What the stage produced (required)")
	f.String("to", "", "Stage the handoff is addressed to")
	f.String("status", "", "Free-form completion status")
	f.StringSlice("output", nil, "Produced artifact (repeatable)")
	f.StringSlice("criteria-met", nil, "Acceptance criterion met (repeatable)")
	f.StringSlice("criteria-unmet", nil, "Acceptance criterion not met (repeatable)")
	f.StringArray("decision", nil, "Decision taken (repeatable)")
	f.StringSlice("report", nil, "Attached report kind, e.g. security (repeatable)")
	f.StringArray("blocker", nil, "Open blocker as severity:description (repeatable)")
	f.Bool("valid", false, "The stage's own validation passed")
	f.StringArray("issue", nil, "Validation issue (repeatable; implies invalid)")
	f.String("format", "text", "Output format: text or json")

	stageFailCmd.Flags().String("reason", "", "Why the stage failed")

	stageCmd.AddCommand(stageListCmd)
	stageCmd.AddCommand(stageStartCmd)
	stageCmd.AddCommand(stageCompleteCmd)
	stageCmd.AddCommand(stageFailCmd)
}
