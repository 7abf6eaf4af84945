package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/agentline/internal/config"
	"github.com/lucasnoah/agentline/internal/pipeline"
)

var configFile string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create, validate and inspect project configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented config.yaml with the default settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFile
		if path == "" {
			store, err := openStore()
			if err != nil {
				return err
			}
			path = filepath.Join(store.StateDir(), config.FileName)
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := pipeline.WriteAtomic(path, []byte(config.Template)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the project configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		errs := config.Validate(cfg)
		if len(errs) == 0 {
			cmd.Println("Configuration is valid.")
			return nil
		}

		cmd.Println("Validation errors:")
		for _, e := range errs {
			cmd.Printf("  - %s\n", e)
		}
		return fmt.Errorf("config has %d validation error(s)", len(errs))
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration with defaults and environment merged",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshalling config: %w", err)
		}

		cmd.Print(string(data))
		return nil
	},
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadFile(configFile)
	}
	store, err := openStore()
	if err != nil {
		return nil, err
	}
	return config.Load(store.StateDir())
}

func init() {
	configCmd.PersistentFlags().StringVarP(&configFile, "file", "f", "", "path to config file (default <project>/.agentline/config.yaml)")
	configInitCmd.Flags().Bool("force", false, "overwrite an existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}
