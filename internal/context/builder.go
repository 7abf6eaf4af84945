// Package context assembles the briefing handed to the agent of a stage:
// pipeline position, upstream handoffs, memory notes and backlog.
package context

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lucasnoah/agentline/internal/handoff"
	"github.com/lucasnoah/agentline/internal/pipeline"
	"github.com/lucasnoah/agentline/internal/prompt"
	"github.com/lucasnoah/agentline/internal/stage"
)

// FidelityMode controls how much upstream context is included.
type FidelityMode string

const (
	ModeFull         FidelityMode = "full"
	ModeCodeOnly     FidelityMode = "code_only"
	ModeFindingsOnly FidelityMode = "findings_only"
	ModeMinimal      FidelityMode = "minimal"
)

// ValidModes lists all valid fidelity modes.
var ValidModes = []FidelityMode{ModeFull, ModeCodeOnly, ModeFindingsOnly, ModeMinimal}

// IsValidMode checks whether a string is a valid fidelity mode.
func IsValidMode(s string) bool {
	for _, m := range ValidModes {
		if string(m) == s {
			return true
		}
	}
	return false
}

// DefaultMode is full for producing stages and findings_only for QA stages,
// which review artifacts rather than reasoning.
func DefaultMode(stageName string) FidelityMode {
	if pipeline.IsQAStage(stageName) {
		return ModeFindingsOnly
	}
	return ModeFull
}

// GitRunner provides the git state of the project.
type GitRunner interface {
	Log(dir string) (string, error)
	Status(dir string) (string, error)
}

// Builder assembles briefing variables for a stage.
type Builder struct {
	handoffs   *handoff.Log
	memory     *handoff.MemoryStore
	git        GitRunner
	thresholds stage.Thresholds
}

// NewBuilder creates a Builder. git may be nil.
func NewBuilder(handoffs *handoff.Log, memory *handoff.MemoryStore, git GitRunner, th stage.Thresholds) *Builder {
	return &Builder{handoffs: handoffs, memory: memory, git: git, thresholds: th}
}

// BuildOpts configures what context to build.
type BuildOpts struct {
	Stage      string
	Mode       FidelityMode // empty selects DefaultMode
	Request    string
	ProjectDir string
}

// BuildResult holds the assembled context.
type BuildResult struct {
	Stage     string       `json:"stage"`
	Vars      prompt.Vars  `json:"vars"`
	Mode      FidelityMode `json:"mode"`
	Templates []string     `json:"templates"`
}

// Build assembles template variables for opts.Stage from sess and the handoff log.
func (b *Builder) Build(sess pipeline.Session, opts BuildOpts) (*BuildResult, error) {
	spec, err := pipeline.MustLookup(opts.Stage)
	if err != nil {
		return nil, err
	}
	if !spec.AppliesTo(sess.ProjectType) {
		return nil, fmt.Errorf("stage %q does not apply to %s projects", spec.Name, sess.ProjectType)
	}
	mode := opts.Mode
	if mode == "" {
		mode = DefaultMode(spec.Name)
	}
	if !IsValidMode(string(mode)) {
		return nil, fmt.Errorf("invalid context mode %q for stage %q", mode, spec.Name)
	}

	vars := prompt.Vars{
		"stage_id":       spec.Name,
		"stage_phase":    string(spec.Phase),
		"project_type":   string(sess.ProjectType),
		"phase":          string(sess.Phase),
		"progress":       strconv.Itoa(stage.Progress(sess).Percent),
		"required_score": b.requiredScore(spec),
		"request":        strings.TrimSpace(opts.Request),
	}

	upstream, err := b.upstreamHandoffs(sess, spec)
	if err != nil {
		return nil, err
	}

	switch mode {
	case ModeFull:
		vars["prior_stage_summary"] = summaries(upstream)
		vars["decisions"] = bullets(collect(upstream, func(h handoff.Handoff) []string { return h.Decisions }))
		vars["outputs"] = bullets(collect(upstream, func(h handoff.Handoff) []string { return h.Outputs }))
		addFindings(vars, upstream)
		vars["backlog"] = backlog(sess.Backlog)
		b.addGit(vars, opts.ProjectDir, spec)
	case ModeCodeOnly:
		vars["outputs"] = bullets(collect(upstream, func(h handoff.Handoff) []string { return h.Outputs }))
		b.addGit(vars, opts.ProjectDir, spec)
	case ModeFindingsOnly:
		if len(upstream) > 0 {
			latest := upstream[len(upstream)-1:]
			addFindings(vars, latest)
			vars["outputs"] = bullets(latest[0].Outputs)
			if vars["open_blockers"] == "" && vars["unmet_criteria"] == "" {
				vars["prior_stage_summary"] = summaries(latest)
			}
		}
	case ModeMinimal:
		// base vars only
	}

	// Previous attempts and notes are always included regardless of mode.
	vars["previous_attempt"] = previousAttempt(sess, spec.Name)
	if err := b.addNotes(vars, spec.Name); err != nil {
		return nil, err
	}

	return &BuildResult{
		Stage:     spec.Name,
		Vars:      vars,
		Mode:      mode,
		Templates: templatesFor(spec),
	}, nil
}

// Render builds the context and renders it with the project's template.
func (b *Builder) Render(sess pipeline.Session, opts BuildOpts, stateDir string) (*BuildResult, string, error) {
	res, err := b.Build(sess, opts)
	if err != nil {
		return nil, "", err
	}
	tmpl, _, err := prompt.LoadTemplate(stateDir, res.Templates...)
	if err != nil {
		return nil, "", err
	}
	out, err := prompt.Render(tmpl, res.Vars)
	if err != nil {
		return nil, "", fmt.Errorf("render %s briefing: %w", res.Stage, err)
	}
	return res, out, nil
}

func (b *Builder) requiredScore(spec pipeline.StageSpec) string {
	switch spec.Phase {
	case pipeline.PhasePlanning:
		return strconv.FormatFloat(b.thresholds.PlanningScore, 'f', -1, 64)
	case pipeline.PhaseBuild:
		return strconv.FormatFloat(b.thresholds.BuildScore, 'f', -1, 64)
	}
	return ""
}

// upstreamHandoffs returns the latest handoff of every finished stage before
// spec, in pipeline order.
func (b *Builder) upstreamHandoffs(sess pipeline.Session, spec pipeline.StageSpec) ([]handoff.Handoff, error) {
	all, err := b.handoffs.List()
	if err != nil {
		return nil, err
	}
	latest := make(map[string]handoff.Handoff)
	for _, h := range all {
		latest[h.FromStage] = h
	}

	idx := pipeline.IndexOf(spec.Name)
	var out []handoff.Handoff
	for _, s := range pipeline.StagesFor(sess.ProjectType) {
		if pipeline.IndexOf(s.Name) >= idx {
			break
		}
		if !sess.IsCompleted(s.Name) {
			continue
		}
		if h, ok := latest[s.Name]; ok {
			out = append(out, h)
		}
	}
	return out, nil
}

func (b *Builder) addNotes(vars prompt.Vars, stageName string) error {
	if b.memory == nil {
		vars["notes"] = ""
		return nil
	}
	notes, err := b.memory.Notes(stageName)
	if err != nil {
		return err
	}
	lines := make([]string, 0, len(notes))
	for _, n := range notes {
		lines = append(lines, n.Text)
	}
	vars["notes"] = bullets(lines)
	return nil
}

// addGit adds commit history and working tree state for build and deploy stages.
func (b *Builder) addGit(vars prompt.Vars, dir string, spec pipeline.StageSpec) {
	vars["git_commits"], vars["git_status"] = "", ""
	if b.git == nil || dir == "" || spec.Phase == pipeline.PhasePlanning {
		return
	}
	if log, err := b.git.Log(dir); err == nil {
		vars["git_commits"] = log
	}
	if status, err := b.git.Status(dir); err == nil {
		vars["git_status"] = status
	}
}

// --- Helpers ---

func templatesFor(spec pipeline.StageSpec) []string {
	fallback := "agent.md"
	if spec.QA {
		fallback = "qa.md"
	}
	return []string{spec.Name + ".md", fallback}
}

func summaries(hs []handoff.Handoff) string {
	var sb strings.Builder
	for _, h := range hs {
		fmt.Fprintf(&sb, "### %s", h.FromStage)
		if h.Score != nil {
			fmt.Fprintf(&sb, " (score %.0f)", *h.Score)
		}
		fmt.Fprintf(&sb, "\n%s\n\n", h.Summary)
	}
	return strings.TrimSpace(sb.String())
}

func addFindings(vars prompt.Vars, hs []handoff.Handoff) {
	var blockers, unmet []string
	for _, h := range hs {
		for _, bl := range h.Blockers {
			blockers = append(blockers, fmt.Sprintf("[%s] %s (from %s)", bl.Severity, bl.Description, h.FromStage))
		}
		for _, c := range h.CriteriaUnmet {
			unmet = append(unmet, fmt.Sprintf("%s (from %s)", c, h.FromStage))
		}
	}
	vars["open_blockers"] = bullets(blockers)
	vars["unmet_criteria"] = bullets(unmet)
}

func collect(hs []handoff.Handoff, field func(handoff.Handoff) []string) []string {
	var out []string
	for _, h := range hs {
		out = append(out, field(h)...)
	}
	return out
}

func bullets(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return "- " + strings.Join(items, "\n- ")
}

func backlog(items []pipeline.BacklogItem) string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("[%s, priority %d] %s", it.Kind, it.Priority, it.Title))
	}
	return bullets(lines)
}

// previousAttempt describes why a stage that is running again was sent back.
func previousAttempt(sess pipeline.Session, stageName string) string {
	for i := len(sess.History) - 1; i >= 0; i-- {
		h := sess.History[i]
		if h.Stage != stageName {
			continue
		}
		switch h.Action {
		case stage.HistoryFailed:
			return "failed: " + h.Detail
		case stage.HistoryRevalidate:
			return "needs revalidation: " + h.Detail
		case stage.HistoryResetTo:
			return "pipeline was rolled back to this stage"
		case stage.HistoryCompleted:
			return ""
		}
	}
	return ""
}
