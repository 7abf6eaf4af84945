// Package handoff records stage completions as an append-only YAML log.
package handoff

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lucasnoah/agentline/internal/pipeline"
)

// Severity of a blocker reported by a stage.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
)

// Blocker is an unresolved problem carried forward by a handoff.
type Blocker struct {
	Description string   `yaml:"description" json:"description"`
	Severity    Severity `yaml:"severity" json:"severity"`
}

// ValidationResult is the outcome of the stage's own output validation.
type ValidationResult struct {
	Valid  bool     `yaml:"valid" json:"valid"`
	Issues []string `yaml:"issues,omitempty" json:"issues,omitempty"`
}

// Params describes a handoff about to be written.
type Params struct {
	FromStage     string
	ToStage       string
	Score         *float64
	Status        string
	Summary       string
	Outputs       []string
	CriteriaMet   []string
	CriteriaUnmet []string
	Blockers      []Blocker
	Decisions     []string
	Reports       []string
	Validation    *ValidationResult
}

// Handoff is a persisted stage completion. Written once, never edited.
type Handoff struct {
	ID            string    `yaml:"id" json:"id"`
	Seq           int       `yaml:"seq" json:"seq"`
	FromStage     string    `yaml:"from_stage" json:"from_stage"`
	ToStage       string    `yaml:"to_stage,omitempty" json:"to_stage,omitempty"`
	Score         *float64  `yaml:"score,omitempty" json:"score,omitempty"`
	Status        string    `yaml:"status,omitempty" json:"status,omitempty"`
	Summary       string    `yaml:"summary" json:"summary"`
	Outputs       []string  `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	CriteriaMet   []string  `yaml:"criteria_met,omitempty" json:"criteria_met,omitempty"`
	CriteriaUnmet []string  `yaml:"criteria_unmet,omitempty" json:"criteria_unmet,omitempty"`
	Blockers      []Blocker `yaml:"blockers,omitempty" json:"blockers,omitempty"`
	Decisions     []string  `yaml:"decisions,omitempty" json:"decisions,omitempty"`
	Reports       []string  `yaml:"reports,omitempty" json:"reports,omitempty"`
	CreatedAt     string    `yaml:"created_at" json:"created_at"`
}

// CriticalBlockers returns the blockers tagged critical.
func (h Handoff) CriticalBlockers() []Blocker {
	return criticalBlockers(h.Blockers)
}

// HasReport reports whether kind (e.g. "security") is among the attached reports.
func (h Handoff) HasReport(kind string) bool {
	for _, r := range h.Reports {
		if strings.EqualFold(r, kind) {
			return true
		}
	}
	return false
}

// Precheck is the result of ValidateHandoffPreconditions.
type Precheck struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues,omitempty"`
}

// ValidationFailure is returned by Execute when preconditions are not met.
type ValidationFailure struct {
	Stage  string
	Issues []string
}

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("handoff from %s rejected: %s", e.Stage, strings.Join(e.Issues, "; "))
}

// ValidateHandoffPreconditions checks p without touching disk.
func ValidateHandoffPreconditions(p Params) Precheck {
	var issues []string
	switch {
	case p.Validation == nil:
		issues = append(issues, "validation result is missing")
	case !p.Validation.Valid:
		msg := "validation did not pass"
		if len(p.Validation.Issues) > 0 {
			msg += ": " + strings.Join(p.Validation.Issues, ", ")
		}
		issues = append(issues, msg)
	}
	if strings.TrimSpace(p.Summary) == "" {
		issues = append(issues, "summary is empty")
	}
	for _, b := range criticalBlockers(p.Blockers) {
		issues = append(issues, "critical blocker: "+b.Description)
	}
	return Precheck{Valid: len(issues) == 0, Issues: issues}
}

func criticalBlockers(bs []Blocker) []Blocker {
	var out []Blocker
	for _, b := range bs {
		if b.Severity == SeverityCritical {
			out = append(out, b)
		}
	}
	return out
}

// Log is the chronological handoff log under <stateDir>/handoffs.
type Log struct {
	dir   string
	now   func() time.Time
	newID func() string
}

// NewLog opens the handoff log of a project state directory.
func NewLog(stateDir string) *Log {
	return &Log{
		dir:   filepath.Join(stateDir, "handoffs"),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// SetClock overrides the time source (for testing).
func (l *Log) SetClock(now func() time.Time) {
	l.now = now
}

// Dir returns the directory holding handoff files.
func (l *Log) Dir() string {
	return l.dir
}

// Execute validates p and appends a new handoff. On a failed precondition it
// returns a *ValidationFailure and writes nothing.
func (l *Log) Execute(p Params) (Handoff, string, error) {
	if _, err := pipeline.MustLookup(p.FromStage); err != nil {
		return Handoff{}, "", err
	}
	if p.ToStage != "" {
		if _, err := pipeline.MustLookup(p.ToStage); err != nil {
			return Handoff{}, "", err
		}
	}
	if check := ValidateHandoffPreconditions(p); !check.Valid {
		return Handoff{}, "", &ValidationFailure{Stage: p.FromStage, Issues: check.Issues}
	}

	existing, err := l.List()
	if err != nil {
		return Handoff{}, "", err
	}
	seq := 1
	if n := len(existing); n > 0 {
		seq = existing[n-1].Seq + 1
	}

	h := Handoff{
		ID:            l.newID(),
		Seq:           seq,
		FromStage:     p.FromStage,
		ToStage:       p.ToStage,
		Status:        p.Status,
		Summary:       strings.TrimSpace(p.Summary),
		Outputs:       p.Outputs,
		CriteriaMet:   p.CriteriaMet,
		CriteriaUnmet: p.CriteriaUnmet,
		Blockers:      p.Blockers,
		Decisions:     p.Decisions,
		Reports:       p.Reports,
		CreatedAt:     pipeline.Timestamp(l.now()),
	}
	if p.Score != nil {
		v := *p.Score
		h.Score = &v
	}

	path := filepath.Join(l.dir, fmt.Sprintf("%04d-%s.yaml", seq, p.FromStage))
	if err := pipeline.WriteYAML(path, h); err != nil {
		return Handoff{}, "", fmt.Errorf("write handoff: %w", err)
	}
	return h, path, nil
}

// List returns every handoff in sequence order. A missing log is empty.
func (l *Log) List() ([]Handoff, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read handoff dir: %w", err)
	}

	var out []Handoff
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".yaml") || strings.HasPrefix(name, ".") {
			continue
		}
		var h Handoff
		if err := pipeline.ReadYAML(filepath.Join(l.dir, name), &h); err != nil {
			return nil, err
		}
		if h.Seq == 0 {
			h.Seq = seqFromName(name)
		}
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func seqFromName(name string) int {
	prefix, _, ok := strings.Cut(name, "-")
	if !ok {
		return 0
	}
	n, _ := strconv.Atoi(prefix)
	return n
}

// Latest returns the most recent handoff written by stage.
func (l *Log) Latest(stage string) (Handoff, bool, error) {
	all, err := l.List()
	if err != nil {
		return Handoff{}, false, err
	}
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].FromStage == stage {
			return all[i], true, nil
		}
	}
	return Handoff{}, false, nil
}

// Context merges what is known about a stage for whoever picks it up next.
type Context struct {
	Stage   string   `json:"stage"`
	Handoff *Handoff `json:"handoff,omitempty"`
	Notes   []Note   `json:"notes,omitempty"`
	Sources []string `json:"sources"`
}

// Empty reports whether no source contributed anything.
func (c Context) Empty() bool {
	return c.Handoff == nil && len(c.Notes) == 0
}

// LoadHandoffContext combines the latest handoff of stage with its memory notes.
// mem may be nil.
func (l *Log) LoadHandoffContext(stage string, mem *MemoryStore) (Context, error) {
	if _, err := pipeline.MustLookup(stage); err != nil {
		return Context{}, err
	}
	ctx := Context{Stage: stage, Sources: []string{}}

	h, ok, err := l.Latest(stage)
	if err != nil {
		return Context{}, err
	}
	if ok {
		ctx.Handoff = &h
		ctx.Sources = append(ctx.Sources, filepath.Join(l.dir, fmt.Sprintf("%04d-%s.yaml", h.Seq, h.FromStage)))
	}

	if mem != nil {
		notes, err := mem.Notes(stage)
		if err != nil {
			return Context{}, err
		}
		if len(notes) > 0 {
			ctx.Notes = notes
			ctx.Sources = append(ctx.Sources, mem.Path(stage))
		}
	}
	return ctx, nil
}

// Rollback feasibility reasons.
const (
	ReasonNoHistory      = "no history"
	ReasonMostRecent     = "already most recent"
	ReasonNoStageHandoff = "no handoff recorded for stage"
)

// Feasibility answers whether rolling back to a stage would discard anything.
type Feasibility struct {
	Possible       bool     `json:"possible"`
	Reason         string   `json:"reason,omitempty"`
	TargetStage    string   `json:"target_stage"`
	AffectedAgents []string `json:"affected_agents,omitempty"`
}

// CheckRollbackFeasibility lists the stages whose handoffs come after the
// last handoff of target.
func (l *Log) CheckRollbackFeasibility(target string) (Feasibility, error) {
	if _, err := pipeline.MustLookup(target); err != nil {
		return Feasibility{}, err
	}
	f := Feasibility{TargetStage: target}

	all, err := l.List()
	if err != nil {
		return Feasibility{}, err
	}
	if len(all) == 0 {
		f.Reason = ReasonNoHistory
		return f, nil
	}

	last := -1
	for i, h := range all {
		if h.FromStage == target {
			last = i
		}
	}
	switch {
	case last < 0:
		f.Reason = ReasonNoStageHandoff
		return f, nil
	case last == len(all)-1:
		f.Reason = ReasonMostRecent
		return f, nil
	}

	seen := map[string]bool{target: true}
	for _, h := range all[last+1:] {
		if !seen[h.FromStage] {
			seen[h.FromStage] = true
			f.AffectedAgents = append(f.AffectedAgents, h.FromStage)
		}
	}
	f.Possible = true
	return f, nil
}
