package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var projectDir string

var rootCmd = &cobra.Command{
	Use:   "agentline",
	Short: "agentline: phase-aware routing for multi-agent delivery pipelines",
	Long: `agentline tracks a project through planning, build and deploy, decides
which agent runs next, records handoffs between agents, and handles
course corrections such as rollbacks, skips and scope changes.

All state lives in <project>/.agentline/ (JSON session, YAML handoffs).
Set database.url in config.yaml to mirror events into Postgres.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project", "C", ".", "project directory")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(stageCmd)
	rootCmd.AddCommand(deviateCmd)
	rootCmd.AddCommand(gateCmd)
	rootCmd.AddCommand(handoffCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(briefCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(analyticsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
}
