package config

import (
	"fmt"
	"strings"

	"github.com/lucasnoah/agentline/internal/checks"
	"github.com/lucasnoah/agentline/internal/gates"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var (
	validLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats = map[string]bool{"console": true, "json": true}
)

// Validate checks a Config for out-of-range or inconsistent values.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError

	score := func(field string, v float64) {
		if v <= 0 || v > 100 {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("must be in (0, 100], got %g", v)})
		}
	}
	score("thresholds.planning_score", cfg.Thresholds.PlanningScore)
	score("thresholds.build_score", cfg.Thresholds.BuildScore)
	score("gates.pass_score", cfg.Gates.PassScore)
	score("gates.concerns_score", cfg.Gates.ConcernsScore)
	if cfg.Gates.ConcernsScore > cfg.Gates.PassScore {
		errs = append(errs, ValidationError{
			Field:   "gates.concerns_score",
			Message: fmt.Sprintf("must not exceed gates.pass_score (%g)", cfg.Gates.PassScore),
		})
	}

	if cfg.Breaker.FailureThreshold < 1 {
		errs = append(errs, ValidationError{Field: "breaker.failure_threshold", Message: "must be at least 1"})
	}
	if cfg.Breaker.ResetTimeout <= 0 {
		errs = append(errs, ValidationError{Field: "breaker.reset_timeout", Message: "must be positive"})
	}

	if !validLevels[cfg.Log.Level] {
		errs = append(errs, ValidationError{Field: "log.level", Message: fmt.Sprintf("unrecognized level %q", cfg.Log.Level)})
	}
	if !validFormats[cfg.Log.Format] {
		errs = append(errs, ValidationError{Field: "log.format", Message: fmt.Sprintf("unrecognized format %q", cfg.Log.Format)})
	}

	if u := cfg.Database.URL; u != "" && !strings.HasPrefix(u, "postgres://") && !strings.HasPrefix(u, "postgresql://") {
		errs = append(errs, ValidationError{Field: "database.url", Message: "must be a postgres:// URL"})
	}

	if n := cfg.Deviation.LargeImpactStages; n < 1 || n > 11 {
		errs = append(errs, ValidationError{Field: "deviation.large_impact_stages", Message: fmt.Sprintf("must be between 1 and 11, got %d", n)})
	}

	seen := make(map[string]bool)
	for i, c := range cfg.Checks {
		field := fmt.Sprintf("checks[%d]", i)
		switch {
		case c.Name == "":
			errs = append(errs, ValidationError{Field: field + ".name", Message: "is required"})
		case seen[c.Name]:
			errs = append(errs, ValidationError{Field: field + ".name", Message: fmt.Sprintf("duplicate check %q", c.Name)})
		}
		seen[c.Name] = true
		if strings.TrimSpace(c.Command) == "" {
			errs = append(errs, ValidationError{Field: field + ".command", Message: "is required"})
		}
		if !checks.IsKnownParser(c.Parser) {
			errs = append(errs, ValidationError{
				Field:   field + ".parser",
				Message: fmt.Sprintf("unknown parser %q (known: %s)", c.Parser, strings.Join(checks.ParserNames(), ", ")),
			})
		}
		if c.Timeout < 0 {
			errs = append(errs, ValidationError{Field: field + ".timeout", Message: "must not be negative"})
		}
		for _, cp := range c.Checkpoints {
			if _, err := gates.ParseCheckpoint(cp); err != nil {
				errs = append(errs, ValidationError{Field: field + ".checkpoints", Message: err.Error()})
			}
		}
	}

	return errs
}
