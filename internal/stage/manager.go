package stage

import (
	"errors"
	"fmt"
	"time"

	"github.com/lucasnoah/agentline/internal/pipeline"
	"github.com/lucasnoah/agentline/internal/selector"
)

// Next actions reported by AdvancePipeline.
const (
	ActionAdvancePhase = "advance_phase"
	ActionContinue     = "continue"
	ActionWait         = "wait"
	ActionComplete     = "complete"
)

// History actions written by the manager.
const (
	HistoryStarted     = "started"
	HistoryCompleted   = "completed"
	HistoryInterrupted = "interrupted"
	HistoryFailed      = "failed"
	HistoryRevalidate  = "needs_revalidation"
	HistoryResetTo     = "reset_to"
	HistorySkipped     = "skipped"
)

// ErrStageSkipped is returned when starting or completing a stage that was
// skipped. A skipped stage only reopens through a rollback that targets it.
var ErrStageSkipped = errors.New("stage was skipped")

// CheckCompletable reports whether name may be completed in sess: it must be
// a known stage of the session's flavor and must not have been skipped.
func CheckCompletable(sess pipeline.Session, name string) (pipeline.StageSpec, error) {
	spec, err := pipeline.MustLookup(name)
	if err != nil {
		return spec, err
	}
	if !spec.AppliesTo(sess.Flavor()) {
		return spec, fmt.Errorf("stage %q does not apply to %s projects", name, sess.Flavor())
	}
	if sess.Agent(name).Status == pipeline.StatusSkipped {
		return spec, fmt.Errorf("complete %s: %w", name, ErrStageSkipped)
	}
	return spec, nil
}

// Thresholds are the minimum QA scores for crossing a phase boundary.
type Thresholds struct {
	PlanningScore float64 `koanf:"planning_score"`
	BuildScore    float64 `koanf:"build_score"`
}

// DefaultThresholds returns the standard phase gates.
func DefaultThresholds() Thresholds {
	return Thresholds{PlanningScore: 95, BuildScore: 90}
}

// Manager is the phase state machine. Every transition takes a session by
// value and returns a new one; nothing is persisted here.
type Manager struct {
	thresholds Thresholds
	now        func() time.Time
}

// NewManager creates a Manager with the given thresholds.
func NewManager(th Thresholds) *Manager {
	return &Manager{thresholds: th, now: time.Now}
}

// SetClock overrides the time source (for testing).
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Thresholds returns the configured phase gates.
func (m *Manager) Thresholds() Thresholds {
	return m.thresholds
}

func (m *Manager) stamp() string {
	return pipeline.Timestamp(m.now())
}

// TransitionCheck is the advisory answer to "may this phase end?".
type TransitionCheck struct {
	CanAdvance    bool           `json:"can_advance"`
	From          pipeline.Phase `json:"from"`
	To            pipeline.Phase `json:"to,omitempty"`
	Terminal      bool           `json:"terminal,omitempty"`
	Reason        string         `json:"reason"`
	RequiredScore float64        `json:"required_score,omitempty"`
}

// CheckPhaseTransition reports whether the session's current phase may end.
func (m *Manager) CheckPhaseTransition(sess pipeline.Session) TransitionCheck {
	check := TransitionCheck{From: sess.Phase}
	if sess.CompletedAt != "" {
		check.Reason = "pipeline already complete"
		return check
	}

	switch sess.Phase {
	case pipeline.PhasePlanning:
		check.To = pipeline.PhaseBuild
		check.RequiredScore = m.thresholds.PlanningScore
		return m.requireScore(check, sess, pipeline.StageQAPlanning)

	case pipeline.PhaseBuild:
		check.To = pipeline.PhaseDeploy
		check.RequiredScore = m.thresholds.BuildScore
		if st := sess.Agent(pipeline.StageDev); st.Status != pipeline.StatusCompleted {
			check.Reason = fmt.Sprintf("%s is %s, must be completed", pipeline.StageDev, st.Status)
			return check
		}
		return m.requireScore(check, sess, pipeline.StageQAImplementation)

	case pipeline.PhaseDeploy:
		check.Terminal = true
		if st := sess.Agent(pipeline.StageDevops); st.Status != pipeline.StatusCompleted {
			check.Reason = fmt.Sprintf("%s is %s, must be completed", pipeline.StageDevops, st.Status)
			return check
		}
		check.CanAdvance = true
		check.Reason = fmt.Sprintf("%s completed", pipeline.StageDevops)
		return check
	}

	check.Reason = fmt.Sprintf("unknown phase %q", sess.Phase)
	return check
}

func (m *Manager) requireScore(check TransitionCheck, sess pipeline.Session, qaStage string) TransitionCheck {
	st := sess.Agent(qaStage)
	if st.Status != pipeline.StatusCompleted {
		check.Reason = fmt.Sprintf("%s is %s, must be completed", qaStage, st.Status)
		return check
	}
	if st.Score == nil {
		check.Reason = fmt.Sprintf("%s has no score, requires %.0f", qaStage, check.RequiredScore)
		return check
	}
	if *st.Score < check.RequiredScore {
		check.Reason = fmt.Sprintf("%s scored %.1f, requires %.0f", qaStage, *st.Score, check.RequiredScore)
		return check
	}
	check.CanAdvance = true
	check.Reason = fmt.Sprintf("%s scored %.1f (>= %.0f)", qaStage, *st.Score, check.RequiredScore)
	return check
}

// Results carries what a stage reported on completion.
type Results struct {
	Score   *float64
	Summary string
}

// AdvanceResult describes what should happen after a stage completes.
type AdvanceResult struct {
	NextAction string           `json:"next_action"`
	NextAgent  string           `json:"next_agent,omitempty"`
	Phase      pipeline.Phase   `json:"phase"`
	Reason     string           `json:"reason,omitempty"`
	Transition *TransitionCheck `json:"transition,omitempty"`
}

// AdvancePipeline marks completedStage done and decides the next step.
// Re-completing an already completed stage does not duplicate it.
func (m *Manager) AdvancePipeline(sess pipeline.Session, completedStage string, res Results) (pipeline.Session, AdvanceResult, error) {
	spec, err := CheckCompletable(sess, completedStage)
	if err != nil {
		return sess, AdvanceResult{}, err
	}

	next := sess.Clone()
	now := m.stamp()

	st := next.Agent(completedStage)
	st.Status = pipeline.StatusCompleted
	st.Score = copyScore(res.Score)
	st.CompletedAt = now
	next.Agents[completedStage] = st
	next.CompletedAgents = pipeline.InsertCompleted(next.CompletedAgents, completedStage)
	next.CurrentAgent = completedStage
	next.History = append(next.History, pipeline.HistoryEntry{
		Action:    HistoryCompleted,
		Stage:     completedStage,
		Score:     copyScore(res.Score),
		Detail:    res.Summary,
		Timestamp: now,
	})

	check := m.CheckPhaseTransition(next)

	if check.Terminal && check.CanAdvance && completedStage == pipeline.LastStage() {
		next.CompletedAt = now
		return next, AdvanceResult{
			NextAction: ActionComplete,
			Phase:      next.Phase,
			Reason:     check.Reason,
			Transition: &check,
		}, nil
	}

	if !check.Terminal && (spec.QA || check.CanAdvance) {
		if check.CanAdvance {
			next.Phase = check.To
			next.ModeTransitions = append(next.ModeTransitions, pipeline.ModeTransition{
				From:      check.From,
				To:        check.To,
				Trigger:   "stage_completed:" + completedStage,
				Reason:    check.Reason,
				Timestamp: now,
			})
			return next, AdvanceResult{
				NextAction: ActionAdvancePhase,
				NextAgent:  pipeline.FirstStage(check.To, next.Flavor()),
				Phase:      next.Phase,
				Reason:     check.Reason,
				Transition: &check,
			}, nil
		}
		return next, AdvanceResult{
			NextAction: ActionWait,
			Phase:      next.Phase,
			Reason:     check.Reason,
			Transition: &check,
		}, nil
	}

	nextAgent, err := m.nextInPhase(next, spec)
	if err != nil {
		return sess, AdvanceResult{}, err
	}
	if nextAgent != "" {
		return next, AdvanceResult{
			NextAction: ActionContinue,
			NextAgent:  nextAgent,
			Phase:      next.Phase,
		}, nil
	}
	return next, AdvanceResult{
		NextAction: ActionWait,
		Phase:      next.Phase,
		Reason:     fmt.Sprintf("no remaining stage in %s: %s", next.Phase, check.Reason),
		Transition: &check,
	}, nil
}

// nextInPhase prefers an unfinished parallel sibling, then the next stage forward.
func (m *Manager) nextInPhase(sess pipeline.Session, spec pipeline.StageSpec) (string, error) {
	done := sess.DoneStages()
	doneSet := make(map[string]bool, len(done))
	for _, d := range done {
		doneSet[d] = true
	}
	if spec.Parallel {
		for _, sib := range pipeline.GroupMembers(spec.Group, sess.Flavor()) {
			if !doneSet[sib.Name] {
				return sib.Name, nil
			}
		}
	}
	name, err := selector.GetNextAgent(spec.Name, done)
	if err != nil || name == "" {
		return "", err
	}
	nextSpec, _ := pipeline.Lookup(name)
	if nextSpec.Phase != sess.Phase {
		return "", nil
	}
	return name, nil
}

// StartStage marks name in progress and makes it the current agent. Any
// other in-progress stage is returned to pending. Entering a stage of a later
// phase moves the session into that phase.
func (m *Manager) StartStage(sess pipeline.Session, name string) (pipeline.Session, error) {
	spec, err := pipeline.MustLookup(name)
	if err != nil {
		return sess, err
	}
	if !spec.AppliesTo(sess.Flavor()) {
		return sess, fmt.Errorf("stage %q does not apply to %s projects", name, sess.Flavor())
	}
	if sess.Agent(name).Status == pipeline.StatusSkipped {
		return sess, fmt.Errorf("start %s: %w", name, ErrStageSkipped)
	}

	next := sess.Clone()
	now := m.stamp()

	if prev := next.InProgress(); prev != "" && prev != name {
		st := next.Agent(prev)
		st.Status = pipeline.StatusPending
		st.StartedAt = ""
		next.Agents[prev] = st
		next.History = append(next.History, pipeline.HistoryEntry{
			Action: HistoryInterrupted, Stage: prev, Detail: "superseded by " + name, Timestamp: now,
		})
	}

	if spec.Phase.Index() > next.Phase.Index() {
		next.ModeTransitions = append(next.ModeTransitions, pipeline.ModeTransition{
			From:      next.Phase,
			To:        spec.Phase,
			Trigger:   "direct_entry",
			Reason:    fmt.Sprintf("%s started ahead of %s", name, next.Phase),
			Timestamp: now,
		})
		next.Phase = spec.Phase
	}

	next.CompletedAgents = pipeline.RemoveCompleted(next.CompletedAgents, name)
	next.Agents[name] = pipeline.AgentState{Status: pipeline.StatusInProgress, StartedAt: now}
	next.CurrentAgent = name
	next.History = append(next.History, pipeline.HistoryEntry{Action: HistoryStarted, Stage: name, Timestamp: now})
	return next, nil
}

// FailStage marks name failed.
func (m *Manager) FailStage(sess pipeline.Session, name, reason string) (pipeline.Session, error) {
	if _, err := pipeline.MustLookup(name); err != nil {
		return sess, err
	}
	next := sess.Clone()
	st := next.Agent(name)
	st.Status = pipeline.StatusFailed
	next.Agents[name] = st
	next.CompletedAgents = pipeline.RemoveCompleted(next.CompletedAgents, name)
	next.History = append(next.History, pipeline.HistoryEntry{
		Action: HistoryFailed, Stage: name, Detail: reason, Timestamp: m.stamp(),
	})
	return next, nil
}

// MarkNeedsRevalidation reopens a completed stage so the selector offers it again.
// Stages that are not completed are returned unchanged.
func (m *Manager) MarkNeedsRevalidation(sess pipeline.Session, name, reason string) (pipeline.Session, error) {
	if _, err := pipeline.MustLookup(name); err != nil {
		return sess, err
	}
	if sess.Agent(name).Status != pipeline.StatusCompleted {
		return sess, nil
	}
	next := sess.Clone()
	st := next.Agent(name)
	st.Status = pipeline.StatusNeedsRevalidation
	next.Agents[name] = st
	next.CompletedAgents = pipeline.RemoveCompleted(next.CompletedAgents, name)
	next.History = append(next.History, pipeline.HistoryEntry{
		Action: HistoryRevalidate, Stage: name, Detail: reason, Timestamp: m.stamp(),
	})
	return next, nil
}

// ResetPipelineTo reverts targetStage and every later stage to pending and
// restarts work at targetStage. An earlier stage left in progress is
// returned to pending.
func (m *Manager) ResetPipelineTo(sess pipeline.Session, targetStage string) (pipeline.Session, []string, error) {
	spec, err := pipeline.MustLookup(targetStage)
	if err != nil {
		return sess, nil, err
	}
	if !spec.AppliesTo(sess.Flavor()) {
		return sess, nil, fmt.Errorf("stage %q does not apply to %s projects", targetStage, sess.Flavor())
	}

	next := sess.Clone()
	now := m.stamp()
	targetIdx := pipeline.IndexOf(targetStage)

	var reverted []string
	for i, s := range pipeline.Definition() {
		if i < targetIdx {
			if st := next.Agent(s.Name); st.Status == pipeline.StatusInProgress {
				st.Status = pipeline.StatusPending
				st.StartedAt = ""
				next.Agents[s.Name] = st
				next.History = append(next.History, pipeline.HistoryEntry{
					Action: HistoryInterrupted, Stage: s.Name, Detail: "superseded by reset to " + targetStage, Timestamp: now,
				})
			}
			continue
		}
		if prev := next.Agent(s.Name); prev.Status != pipeline.StatusPending || prev.Score != nil {
			reverted = append(reverted, s.Name)
		}
		next.Agents[s.Name] = pipeline.AgentState{Status: pipeline.StatusPending}
		next.CompletedAgents = pipeline.RemoveCompleted(next.CompletedAgents, s.Name)
	}

	if next.Phase != spec.Phase {
		next.ModeTransitions = append(next.ModeTransitions, pipeline.ModeTransition{
			From:      next.Phase,
			To:        spec.Phase,
			Trigger:   "reset",
			Reason:    "pipeline reset to " + targetStage,
			Timestamp: now,
		})
		next.Phase = spec.Phase
	}
	next.CompletedAt = ""
	next.CurrentAgent = targetStage
	next.Agents[targetStage] = pipeline.AgentState{Status: pipeline.StatusInProgress, StartedAt: now}
	next.History = append(next.History, pipeline.HistoryEntry{
		Action: HistoryResetTo, Stage: targetStage, Timestamp: now,
	})
	return next, reverted, nil
}

// Progress summarises a session for status and context tooling.
func Progress(sess pipeline.Session) pipeline.Progress {
	applicable := pipeline.StagesFor(sess.Flavor())
	doneSet := make(map[string]bool)
	for _, d := range sess.DoneStages() {
		doneSet[d] = true
	}
	done := 0
	for _, s := range applicable {
		if doneSet[s.Name] {
			done++
		}
	}

	p := pipeline.Progress{
		Phase:           sess.Phase,
		Percent:         done * 100 / len(applicable),
		CompletedAgents: append([]string{}, sess.CompletedAgents...),
		CurrentAgent:    sess.CurrentAgent,
		Complete:        sess.CompletedAt != "",
	}
	if p.Complete {
		p.Percent = 100
		return p
	}
	if cur := sess.InProgress(); cur != "" {
		p.NextAgent = cur
		return p
	}
	sel, err := selector.SelectAgent(selector.Request{
		Phase:           sess.Phase,
		CompletedStages: sess.DoneStages(),
		Greenfield:      sess.Greenfield(),
	})
	if err == nil {
		p.NextAgent = sel.Agent
	}
	return p
}

func copyScore(s *float64) *float64 {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
