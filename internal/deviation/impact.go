package deviation

import (
	"fmt"

	"github.com/lucasnoah/agentline/internal/pipeline"
)

// Impact is a qualitative cost of applying a deviation.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// DefaultLargeImpactStages is the affected-stage count from which scope and
// priority changes stop being low impact.
const DefaultLargeImpactStages = 4

// ImpactAnalysis is the result of AnalyzeDeviationImpact.
type ImpactAnalysis struct {
	Type                 Type     `json:"type"`
	Impact               Impact   `json:"impact"`
	RequiresConfirmation bool     `json:"requires_confirmation"`
	AffectedStages       []string `json:"affected_stages,omitempty"`
	Reason               string   `json:"reason"`
}

// AnalyzeDeviationImpact weighs applying t to sess.
func (h *Handler) AnalyzeDeviationImpact(t Type, sess pipeline.Session, d pipeline.DeviationDetails) (ImpactAnalysis, error) {
	a := ImpactAnalysis{Type: t}
	switch t {
	case Rollback:
		spec, err := requireTarget(t, d.TargetStage)
		if err != nil {
			return a, err
		}
		a.AffectedStages = touchedFrom(sess, pipeline.IndexOf(spec.Name))
		a.Impact, a.RequiresConfirmation = ImpactHigh, true
		a.Reason = fmt.Sprintf("discards work from %s onward", spec.Name)

	case Restart:
		a.AffectedStages = touchedFrom(sess, 0)
		a.Impact, a.RequiresConfirmation = ImpactHigh, true
		a.Reason = "discards all completed work and the backlog"

	case Skip:
		spec, err := requireTarget(t, d.TargetStage)
		if err != nil {
			return a, err
		}
		a.AffectedStages = []string{spec.Name}
		a.Impact, a.RequiresConfirmation = ImpactMedium, true
		a.Reason = fmt.Sprintf("%s will not run", spec.Name)

	case ScopeChange:
		a.AffectedStages = append([]string{}, sess.CompletedAgents...)
		h.weighSoft(&a, "completed stages predate the scope change")

	case PriorityChange:
		for _, name := range sess.CompletedAgents {
			if spec, ok := pipeline.Lookup(name); ok && spec.Phase == sess.Phase {
				a.AffectedStages = append(a.AffectedStages, name)
			}
		}
		h.weighSoft(&a, "reorders remaining work in "+string(sess.Phase))

	default:
		return a, fmt.Errorf("unknown deviation type %q", t)
	}
	return a, nil
}

func (h *Handler) weighSoft(a *ImpactAnalysis, reason string) {
	a.Impact = ImpactLow
	a.Reason = reason
	if len(a.AffectedStages) >= h.largeImpact {
		a.Impact, a.RequiresConfirmation = ImpactMedium, true
		a.Reason = fmt.Sprintf("%s (%d stages affected)", reason, len(a.AffectedStages))
	}
}

func requireTarget(t Type, target string) (pipeline.StageSpec, error) {
	if target == "" {
		return pipeline.StageSpec{}, fmt.Errorf("%s requires a target stage", t)
	}
	return pipeline.MustLookup(target)
}

// touchedFrom lists stages at or after index from that have left pending.
func touchedFrom(sess pipeline.Session, from int) []string {
	var out []string
	for i, s := range pipeline.Definition() {
		if i < from {
			continue
		}
		if st := sess.Agent(s.Name); st.Status != pipeline.StatusPending || st.Score != nil {
			out = append(out, s.Name)
		}
	}
	return out
}
