package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	appctx "github.com/lucasnoah/agentline/internal/context"
	"github.com/lucasnoah/agentline/internal/orchestrator"
)

var briefCmd = &cobra.Command{
	Use:   "brief [stage]",
	Short: "Render the agent briefing for a stage (default: the next stage)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")
		if mode != "" && !appctx.IsValidMode(mode) {
			valid := make([]string, len(appctx.ValidModes))
			for i, m := range appctx.ValidModes {
				valid[i] = string(m)
			}
			return fmt.Errorf("invalid --mode %q (valid: %s)", mode, strings.Join(valid, ", "))
		}
		request, _ := cmd.Flags().GetString("request")

		orch, cleanup, err := newOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		req := orchestrator.BriefRequest{Mode: appctx.FidelityMode(mode), Request: request}
		if len(args) == 1 {
			req.Stage = args[0]
		}
		res, err := orch.Brief(cmd.Context(), req)
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return writeJSON(cmd, res)
		}
		fmt.Fprint(cmd.OutOrStdout(), res.Prompt)
		fmt.Fprintf(cmd.ErrOrStderr(), "briefing for %s (%s) saved to %s\n", res.Stage, res.Mode, res.Path)
		return nil
	},
}

func init() {
	briefCmd.Flags().String("mode", "", "Context fidelity: full, code_only, findings_only or minimal")
	briefCmd.Flags().String("request", "", "User request to include in the briefing")
	briefCmd.Flags().String("format", "text", "Output format: text or json")
}
