package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lucasnoah/agentline/internal/config"
	"github.com/lucasnoah/agentline/internal/db"
	"github.com/lucasnoah/agentline/internal/logging"
	"github.com/lucasnoah/agentline/internal/metrics"
	"github.com/lucasnoah/agentline/internal/orchestrator"
	"github.com/lucasnoah/agentline/internal/pipeline"
)

// openStore returns the store for the --project directory.
func openStore() (*pipeline.Store, error) {
	dir, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir: %w", err)
	}
	return pipeline.NewStore(dir), nil
}

// loadProjectConfig loads and validates the project's config.yaml.
func loadProjectConfig(store *pipeline.Store) (*config.Config, error) {
	cfg, err := config.Load(store.StateDir())
	if err != nil {
		return nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %s", errs[0])
	}
	return cfg, nil
}

// newOrchestrator wires config, logging, the optional Postgres event mirror
// and metrics, returning the Orchestrator with a cleanup func.
func newOrchestrator(cmd *cobra.Command) (*orchestrator.Orchestrator, func(), error) {
	store, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loadProjectConfig(store)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewWithWriter(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() { _ = logger.Sync() }
	var events orchestrator.EventLogger = orchestrator.NopEventLogger{}
	if cfg.Database.URL != "" {
		d, err := openDB(cmd, cfg)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		events = d
		cleanup = func() {
			d.Close()
			_ = logger.Sync()
		}
		logger.Debug("event mirror enabled")
	}

	orch := orchestrator.New(store, orchestrator.Options{
		Config:  cfg,
		Events:  events,
		Metrics: metrics.New(),
		Logger:  logger.With(zap.String("project", filepath.Base(store.ProjectDir()))),
	})
	return orch, cleanup, nil
}

// openDB opens and migrates the configured Postgres database.
func openDB(cmd *cobra.Command, cfg *config.Config) (*db.DB, error) {
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database.url is not configured")
	}
	d, err := db.Open(cmd.Context(), cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := d.Migrate(cmd.Context()); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func wantJSON(cmd *cobra.Command) bool {
	format, _ := cmd.Flags().GetString("format")
	return format == "json"
}

func writeJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func scorePtr(cmd *cobra.Command, name string) *float64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetFloat64(name)
	return &v
}
