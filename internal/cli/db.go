package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the Postgres event mirror",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		cfg, err := loadProjectConfig(store)
		if err != nil {
			return err
		}
		d, err := openDB(cmd, cfg)
		if err != nil {
			return err
		}
		d.Close()
		fmt.Fprintln(cmd.OutOrStdout(), "Database schema is up to date.")
		return nil
	},
}

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop and recreate the event tables (destructive!)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("refusing to reset without --yes")
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		cfg, err := loadProjectConfig(store)
		if err != nil {
			return err
		}
		d, err := openDB(cmd, cfg)
		if err != nil {
			return err
		}
		defer d.Close()
		if err := d.Reset(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Database reset.")
		return nil
	},
}

func init() {
	dbResetCmd.Flags().Bool("yes", false, "Confirm the reset")
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbResetCmd)
}
