// Package config loads per-project agentline settings.
package config

import "time"

// Config is the full set of tunables for one project.
type Config struct {
	Thresholds Thresholds `koanf:"thresholds" yaml:"thresholds"`
	Gates      Gates      `koanf:"gates" yaml:"gates"`
	Breaker    Breaker    `koanf:"breaker" yaml:"breaker"`
	Log        Log        `koanf:"log" yaml:"log"`
	Database   Database   `koanf:"database" yaml:"database"`
	Metrics    Metrics    `koanf:"metrics" yaml:"metrics"`
	Deviation  Deviation  `koanf:"deviation" yaml:"deviation"`
	Checks     []Check    `koanf:"checks" yaml:"checks,omitempty"`
}

// Thresholds are the minimum QA scores at phase boundaries.
type Thresholds struct {
	PlanningScore float64 `koanf:"planning_score" yaml:"planning_score"`
	BuildScore    float64 `koanf:"build_score" yaml:"build_score"`
}

// Gates holds verdict cut-offs.
type Gates struct {
	PassScore     float64 `koanf:"pass_score" yaml:"pass_score"`
	ConcernsScore float64 `koanf:"concerns_score" yaml:"concerns_score"`
}

// Breaker configures the per-checkpoint circuit breaker.
type Breaker struct {
	FailureThreshold int           `koanf:"failure_threshold" yaml:"failure_threshold"`
	ResetTimeout     time.Duration `koanf:"reset_timeout" yaml:"reset_timeout"`
}

// Log selects logger level and encoding.
type Log struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

// Database enables the Postgres event mirror when URL is set.
type Database struct {
	URL string `koanf:"url" yaml:"url"`
}

// Metrics enables textfile export when Textfile is set.
type Metrics struct {
	Textfile string `koanf:"textfile" yaml:"textfile"`
}

// Deviation tunes impact analysis.
type Deviation struct {
	LargeImpactStages int `koanf:"large_impact_stages" yaml:"large_impact_stages"`
}

// Check is a project command run as gate evidence. Empty Checkpoints
// means every checkpoint.
type Check struct {
	Name        string        `koanf:"name" yaml:"name"`
	Command     string        `koanf:"command" yaml:"command"`
	Parser      string        `koanf:"parser" yaml:"parser,omitempty"`
	Timeout     time.Duration `koanf:"timeout" yaml:"timeout,omitempty"`
	FixCommand  string        `koanf:"fix_command" yaml:"fix_command,omitempty"`
	Checkpoints []string      `koanf:"checkpoints" yaml:"checkpoints,omitempty"`
}

// ChecksFor returns the checks that run at checkpoint, in config order.
func (c *Config) ChecksFor(checkpoint string) []Check {
	var out []Check
	for _, chk := range c.Checks {
		if len(chk.Checkpoints) == 0 {
			out = append(out, chk)
			continue
		}
		for _, cp := range chk.Checkpoints {
			if cp == checkpoint {
				out = append(out, chk)
				break
			}
		}
	}
	return out
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Thresholds.PlanningScore == 0 {
		cfg.Thresholds.PlanningScore = 95
	}
	if cfg.Thresholds.BuildScore == 0 {
		cfg.Thresholds.BuildScore = 90
	}
	if cfg.Gates.PassScore == 0 {
		cfg.Gates.PassScore = 95
	}
	if cfg.Gates.ConcernsScore == 0 {
		cfg.Gates.ConcernsScore = 90
	}
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = 3
	}
	if cfg.Breaker.ResetTimeout == 0 {
		cfg.Breaker.ResetTimeout = 60 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Deviation.LargeImpactStages == 0 {
		cfg.Deviation.LargeImpactStages = 4
	}
}
