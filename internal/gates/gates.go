// Package gates scores evidence at fixed pipeline checkpoints and decides
// whether work may cross them.
package gates

import (
	"fmt"
	"math"
	"strings"

	"github.com/lucasnoah/agentline/internal/checks"
	"github.com/lucasnoah/agentline/internal/handoff"
	"github.com/lucasnoah/agentline/internal/pipeline"
)

// Checkpoint names a fixed point in the pipeline where a gate runs.
type Checkpoint string

const (
	PreBuild       Checkpoint = "pre-build"
	PostQAPlanning Checkpoint = "post-qa-planning"
	PostDev        Checkpoint = "post-dev"
	PostQAImpl     Checkpoint = "post-qa-impl"
	PreDeploy      Checkpoint = "pre-deploy"
)

// Checkpoints lists every gate in pipeline order.
var Checkpoints = []Checkpoint{PreBuild, PostQAPlanning, PostDev, PostQAImpl, PreDeploy}

// ParseCheckpoint validates a checkpoint name.
func ParseCheckpoint(s string) (Checkpoint, error) {
	for _, c := range Checkpoints {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown checkpoint %q", s)
}

// Verdict is the outcome of a gate.
type Verdict string

const (
	Pass     Verdict = "PASS"
	Concerns Verdict = "CONCERNS"
	Fail     Verdict = "FAIL"
	Waived   Verdict = "WAIVED"
)

// Config holds verdict and score thresholds.
type Config struct {
	PassScore     float64 `koanf:"pass_score"`
	ConcernsScore float64 `koanf:"concerns_score"`
	PlanningScore float64 `koanf:"-"`
	BuildScore    float64 `koanf:"-"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{PassScore: 95, ConcernsScore: 90, PlanningScore: 95, BuildScore: 90}
}

// Evidence is everything a gate may look at.
type Evidence struct {
	Session  pipeline.Session
	Handoffs map[string]handoff.Handoff // latest handoff per stage
	Checks   []checks.Result            // project checks run for this gate
}

// CollectEvidence reads the latest handoff of every stage from log.
func CollectEvidence(sess pipeline.Session, log *handoff.Log) (Evidence, error) {
	all, err := log.List()
	if err != nil {
		return Evidence{}, fmt.Errorf("collect evidence: %w", err)
	}
	ev := Evidence{Session: sess, Handoffs: make(map[string]handoff.Handoff)}
	for _, h := range all {
		ev.Handoffs[h.FromStage] = h
	}
	return ev, nil
}

func (ev Evidence) handoff(stage string) (handoff.Handoff, bool) {
	h, ok := ev.Handoffs[stage]
	return h, ok
}

// Criterion is one line of a gate checklist.
type Criterion struct {
	Name   string `json:"name"`
	Met    bool   `json:"met"`
	Detail string `json:"detail,omitempty"`
}

// Result is a gate verdict with its supporting checklist.
type Result struct {
	Checkpoint       Checkpoint  `json:"checkpoint"`
	Stage            string      `json:"stage"`
	Verdict          Verdict     `json:"verdict"`
	Score            int         `json:"score"`
	Criteria         []Criterion `json:"criteria"`
	CriticalBlockers []string    `json:"critical_blockers,omitempty"`
	Waiver           string      `json:"waiver,omitempty"`
	Reason           string      `json:"reason"`
}

// Unmet returns the names of failed criteria.
func (r Result) Unmet() []string {
	var out []string
	for _, c := range r.Criteria {
		if !c.Met {
			out = append(out, c.Name)
		}
	}
	return out
}

// Passed reports whether the gate lets work through.
func (r Result) Passed() bool {
	return r.Verdict != Fail
}

// Gates evaluates checkpoints against configured thresholds.
type Gates struct {
	cfg Config
}

// New creates a gate evaluator.
func New(cfg Config) *Gates {
	return &Gates{cfg: cfg}
}

// BoundStage returns the stage whose output a checkpoint judges.
func BoundStage(cp Checkpoint) (string, error) {
	def, ok := definitions[cp]
	if !ok {
		return "", fmt.Errorf("unknown checkpoint %q", cp)
	}
	return def.stage, nil
}

// Evaluate scores ev at cp. A non-empty waiver turns any verdict other than a
// critical-blocker FAIL into WAIVED. Evaluate has no side effects.
func (g *Gates) Evaluate(cp Checkpoint, ev Evidence, waiver string) (Result, error) {
	def, ok := definitions[cp]
	if !ok {
		return Result{}, fmt.Errorf("unknown checkpoint %q", cp)
	}
	res := Result{Checkpoint: cp, Stage: def.stage, Waiver: strings.TrimSpace(waiver)}

	primary, ok := ev.handoff(def.stage)
	if !ok {
		res.Verdict = Fail
		res.Criteria = []Criterion{{Name: "handoff present", Detail: "no handoff from " + def.stage}}
		res.Reason = fmt.Sprintf("missing evidence: no handoff from %s", def.stage)
		return res, nil
	}

	for _, c := range def.criteria {
		met, detail := c.check(ev, primary, g.cfg)
		res.Criteria = append(res.Criteria, Criterion{Name: c.name, Met: met, Detail: detail})
	}
	for _, c := range ev.Checks {
		res.Criteria = append(res.Criteria, Criterion{Name: "check " + c.Name, Met: c.Passed, Detail: c.Summary})
	}
	for _, stage := range def.blockerStages {
		if h, ok := ev.handoff(stage); ok {
			for _, b := range h.CriticalBlockers() {
				res.CriticalBlockers = append(res.CriticalBlockers, fmt.Sprintf("%s: %s", stage, b.Description))
			}
		}
	}

	met := 0
	for _, c := range res.Criteria {
		if c.Met {
			met++
		}
	}
	res.Score = int(math.Round(float64(met) / float64(len(res.Criteria)) * 100))
	res.Verdict, res.Reason = g.verdict(res, openMinorBlockers(ev, def.blockerStages))
	return res, nil
}

func (g *Gates) verdict(res Result, minor int) (Verdict, string) {
	unmet := res.Unmet()
	switch {
	case len(res.CriticalBlockers) > 0:
		return Fail, "critical blocker: " + strings.Join(res.CriticalBlockers, "; ")
	case res.Waiver != "":
		return Waived, "waived: " + res.Waiver
	case float64(res.Score) >= g.cfg.PassScore && len(unmet) == 0 && minor == 0:
		return Pass, fmt.Sprintf("all %d criteria met", len(res.Criteria))
	case float64(res.Score) >= g.cfg.ConcernsScore:
		if len(unmet) == 0 {
			return Concerns, fmt.Sprintf("%d non-critical blocker(s) open", minor)
		}
		return Concerns, "unmet: " + strings.Join(unmet, ", ")
	default:
		return Fail, fmt.Sprintf("score %d below %.0f; unmet: %s", res.Score, g.cfg.ConcernsScore, strings.Join(unmet, ", "))
	}
}

func openMinorBlockers(ev Evidence, stages []string) int {
	n := 0
	for _, stage := range stages {
		if h, ok := ev.handoff(stage); ok {
			for _, b := range h.Blockers {
				if b.Severity != handoff.SeverityCritical {
					n++
				}
			}
		}
	}
	return n
}
