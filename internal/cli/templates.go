package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/agentline/internal/prompt"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage briefing templates",
}

var templatesInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Copy the builtin templates into the project for editing",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		written, err := prompt.InstallBuiltinTemplates(store.StateDir())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(written) == 0 {
			fmt.Fprintln(out, "All builtin templates already present.")
			return nil
		}
		for _, name := range written {
			fmt.Fprintf(out, "installed %s\n", filepath.Join(prompt.TemplateDir(store.StateDir()), name))
		}
		return nil
	},
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List builtin templates and project overrides",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		dir := prompt.TemplateDir(store.StateDir())
		for _, name := range prompt.BuiltinNames() {
			source := "builtin"
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				source = "project"
			}
			fmt.Fprintf(out, "%-20s %s\n", name, source)
		}

		entries, err := os.ReadDir(dir)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("read template dir: %w", err)
		}
		builtin := make(map[string]bool)
		for _, name := range prompt.BuiltinNames() {
			builtin[name] = true
		}
		for _, e := range entries {
			if e.IsDir() || builtin[e.Name()] || filepath.Ext(e.Name()) != ".md" {
				continue
			}
			fmt.Fprintf(out, "%-20s %s\n", e.Name(), "project")
		}
		return nil
	},
}

func init() {
	templatesCmd.AddCommand(templatesInstallCmd)
	templatesCmd.AddCommand(templatesListCmd)
}
