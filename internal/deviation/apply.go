package deviation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lucasnoah/agentline/internal/pipeline"
	"github.com/lucasnoah/agentline/internal/stage"
)

// Handler applies deviations to sessions. Like the stage manager it never
// mutates its input.
type Handler struct {
	manager     *stage.Manager
	largeImpact int
	now         func() time.Time
	newID       func() string
}

// NewHandler creates a Handler. largeImpact <= 0 selects DefaultLargeImpactStages.
func NewHandler(m *stage.Manager, largeImpact int) *Handler {
	if largeImpact <= 0 {
		largeImpact = DefaultLargeImpactStages
	}
	return &Handler{manager: m, largeImpact: largeImpact, now: time.Now, newID: uuid.NewString}
}

// SetClock overrides the time source (for testing).
func (h *Handler) SetClock(now func() time.Time) {
	h.now = now
}

// ApplyDeviation returns sess with t applied and the audit record appended to
// its deviations log.
func (h *Handler) ApplyDeviation(sess pipeline.Session, t Type, d pipeline.DeviationDetails) (pipeline.Session, pipeline.DeviationRecord, error) {
	var (
		next    pipeline.Session
		changes []string
		err     error
	)
	switch t {
	case ScopeChange:
		next, changes, err = h.applyScopeChange(sess, d)
	case Rollback:
		next, changes, err = h.applyRollback(sess, d)
	case Skip:
		next, changes, err = h.applySkip(sess, d)
	case PriorityChange:
		next, changes, err = h.applyPriorityChange(sess, d)
	case Restart:
		next, changes = h.applyRestart(sess)
	default:
		err = fmt.Errorf("unknown deviation type %q", t)
	}
	if err != nil {
		return sess, pipeline.DeviationRecord{}, err
	}

	rec := pipeline.DeviationRecord{
		ID:        h.newID(),
		Type:      string(t),
		Details:   d,
		Changes:   changes,
		Timestamp: pipeline.Timestamp(h.now()),
	}
	next.Deviations = append(next.Deviations, rec)
	return next, rec, nil
}

func (h *Handler) applyScopeChange(sess pipeline.Session, d pipeline.DeviationDetails) (pipeline.Session, []string, error) {
	if len(d.Additions) == 0 && len(d.Removals) == 0 {
		return sess, nil, fmt.Errorf("%s needs at least one addition or removal", ScopeChange)
	}
	next := sess.Clone()
	now := pipeline.Timestamp(h.now())
	var changes []string
	for _, a := range d.Additions {
		next.Backlog = append(next.Backlog, pipeline.BacklogItem{Title: a, Kind: "addition", AddedAt: now})
		changes = append(changes, fmt.Sprintf("backlog: added %q", a))
	}
	for _, r := range d.Removals {
		next.Backlog = append(next.Backlog, pipeline.BacklogItem{Title: r, Kind: "removal", AddedAt: now})
		changes = append(changes, fmt.Sprintf("backlog: removal of %q", r))
	}
	return next, changes, nil
}

func (h *Handler) applyRollback(sess pipeline.Session, d pipeline.DeviationDetails) (pipeline.Session, []string, error) {
	if _, err := requireTarget(Rollback, d.TargetStage); err != nil {
		return sess, nil, err
	}
	if !workFrom(sess, d.TargetStage) {
		return sess, nil, fmt.Errorf("cannot roll back to %s: no stage at or after it has started", d.TargetStage)
	}
	next, reverted, err := h.manager.ResetPipelineTo(sess, d.TargetStage)
	if err != nil {
		return sess, nil, err
	}
	changes := []string{"reset to " + d.TargetStage}
	if next.Phase != sess.Phase {
		changes = append(changes, fmt.Sprintf("phase %s -> %s", sess.Phase, next.Phase))
	}
	for _, r := range reverted {
		if r != d.TargetStage {
			changes = append(changes, "reverted "+r)
		}
	}
	return next, changes, nil
}

// workFrom reports whether target or any later stage has left pending.
// Rolling back to a stage ahead of all progress would move the pipeline forward.
func workFrom(sess pipeline.Session, target string) bool {
	idx := pipeline.IndexOf(target)
	for i, s := range pipeline.Definition() {
		if i >= idx && (sess.Agent(s.Name).Status != pipeline.StatusPending || sess.IsCompleted(s.Name)) {
			return true
		}
	}
	return false
}

func (h *Handler) applySkip(sess pipeline.Session, d pipeline.DeviationDetails) (pipeline.Session, []string, error) {
	spec, err := requireTarget(Skip, d.TargetStage)
	if err != nil {
		return sess, nil, err
	}
	if !spec.AppliesTo(sess.Flavor()) {
		return sess, nil, fmt.Errorf("stage %q does not apply to %s projects", spec.Name, sess.Flavor())
	}
	switch sess.Agent(spec.Name).Status {
	case pipeline.StatusCompleted:
		return sess, nil, fmt.Errorf("cannot skip %s: already completed", spec.Name)
	case pipeline.StatusSkipped:
		return sess, nil, fmt.Errorf("cannot skip %s: already skipped", spec.Name)
	}

	next := sess.Clone()
	now := pipeline.Timestamp(h.now())
	next.Agents[spec.Name] = pipeline.AgentState{Status: pipeline.StatusSkipped}
	if next.CurrentAgent == spec.Name {
		next.CurrentAgent = ""
	}
	next.History = append(next.History, pipeline.HistoryEntry{
		Action: stage.HistorySkipped, Stage: spec.Name, Detail: d.Reason, Timestamp: now,
	})
	return next, []string{"skipped " + spec.Name}, nil
}

func (h *Handler) applyPriorityChange(sess pipeline.Session, d pipeline.DeviationDetails) (pipeline.Session, []string, error) {
	next := sess.Clone()
	var changes []string

	priorities := d.Priorities
	if len(priorities) == 0 && d.Text != "" {
		// Anything named in the text moves ahead of the current top.
		top := 0
		for _, item := range next.Backlog {
			if item.Priority > top {
				top = item.Priority
			}
		}
		lower := strings.ToLower(d.Text)
		priorities = make(map[string]int)
		for _, item := range next.Backlog {
			if strings.Contains(lower, strings.ToLower(item.Title)) {
				priorities[item.Title] = top + 1
			}
		}
	}
	if len(priorities) == 0 {
		return sess, nil, fmt.Errorf("%s matched no backlog item", PriorityChange)
	}

	for i, item := range next.Backlog {
		if p, ok := priorities[item.Title]; ok && p != item.Priority {
			changes = append(changes, fmt.Sprintf("priority of %q: %d -> %d", item.Title, item.Priority, p))
			next.Backlog[i].Priority = p
		}
	}
	for title := range priorities {
		if !hasTitle(next.Backlog, title) {
			return sess, nil, fmt.Errorf("no backlog item titled %q", title)
		}
	}
	sort.SliceStable(next.Backlog, func(i, j int) bool {
		return next.Backlog[i].Priority > next.Backlog[j].Priority
	})
	if len(changes) == 0 {
		changes = []string{"priorities unchanged"}
	}
	return next, changes, nil
}

func hasTitle(items []pipeline.BacklogItem, title string) bool {
	for _, it := range items {
		if it.Title == title {
			return true
		}
	}
	return false
}

func (h *Handler) applyRestart(sess pipeline.Session) (pipeline.Session, []string) {
	next := sess.Clone()
	now := pipeline.Timestamp(h.now())

	changes := []string{
		fmt.Sprintf("cleared %d completed stages", len(next.CompletedAgents)),
		fmt.Sprintf("cleared backlog (%d items)", len(next.Backlog)),
	}
	for _, s := range pipeline.Definition() {
		next.Agents[s.Name] = pipeline.AgentState{Status: pipeline.StatusPending}
	}
	next.CompletedAgents = []string{}
	next.Backlog = []pipeline.BacklogItem{}
	next.CurrentAgent = ""
	next.CompletedAt = ""
	if next.Phase != pipeline.PhasePlanning {
		changes = append(changes, fmt.Sprintf("phase %s -> %s", next.Phase, pipeline.PhasePlanning))
		next.ModeTransitions = append(next.ModeTransitions, pipeline.ModeTransition{
			From:      next.Phase,
			To:        pipeline.PhasePlanning,
			Trigger:   "restart",
			Reason:    "pipeline restarted",
			Timestamp: now,
		})
		next.Phase = pipeline.PhasePlanning
	}
	next.History = append(next.History, pipeline.HistoryEntry{Action: "restart", Timestamp: now})
	return next, changes
}
