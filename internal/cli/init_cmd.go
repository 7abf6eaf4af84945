package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/agentline/internal/pipeline"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a pipeline session for the project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, cleanup, err := newOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		brownfield, _ := cmd.Flags().GetBool("brownfield")
		sess, err := orch.Init(cmd.Context(), pipeline.FlavorFor(!brownfield))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Initialised %s pipeline in %s phase.\n", sess.ProjectType, sess.Phase)
		return nil
	},
}

func init() {
	initCmd.Flags().Bool("brownfield", false, "Existing codebase: start with discovery instead of brief")
}
