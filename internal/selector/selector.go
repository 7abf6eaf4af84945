// Package selector decides which pipeline stage should run next.
package selector

import (
	"github.com/lucasnoah/agentline/internal/intent"
	"github.com/lucasnoah/agentline/internal/pipeline"
)

// Request is the input to SelectAgent.
type Request struct {
	Intent          intent.Intent
	Phase           pipeline.Phase
	CurrentStage    string
	CompletedStages []string
	Greenfield      bool
}

// Selection names the stage to run. Agent is empty when nothing is runnable.
type Selection struct {
	Agent         string         `json:"agent"`
	ParallelGroup []string       `json:"parallel_group,omitempty"`
	Phase         pipeline.Phase `json:"phase,omitempty"`
	Reason        string         `json:"reason"`
}

// Reasons reported by SelectAgent.
const (
	ReasonResume        = "resume after current stage"
	ReasonPipelineStart = "start of pipeline"
	ReasonDirectEntry   = "direct entry"
	ReasonNextInPhase   = "next incomplete stage in phase"
	ReasonPhaseComplete = "phase complete"
	ReasonPipelineDone  = "pipeline complete"
)

// SelectAgent computes what comes next for the given intent and progress.
func SelectAgent(req Request) (Selection, error) {
	flavor := pipeline.FlavorFor(req.Greenfield)
	done := toSet(req.CompletedStages)

	if req.Intent == intent.Resume && req.CurrentStage != "" {
		next, err := GetNextAgent(req.CurrentStage, req.CompletedStages)
		if err != nil {
			return Selection{}, err
		}
		if next == "" {
			return Selection{Reason: ReasonPipelineDone}, nil
		}
		return selectionFor(next, flavor, ReasonResume, done), nil
	}

	if len(req.CompletedStages) == 0 {
		switch {
		case req.Intent == intent.Implementation && req.Phase == pipeline.PhaseBuild:
			return selectionFor(pipeline.StageDev, flavor, ReasonDirectEntry, done), nil
		case req.Intent == intent.Deploy && req.Phase == pipeline.PhaseDeploy:
			return selectionFor(pipeline.StageDevops, flavor, ReasonDirectEntry, done), nil
		default:
			return selectionFor(pipeline.FirstStage(pipeline.PhasePlanning, flavor), flavor, ReasonPipelineStart, done), nil
		}
	}

	for _, s := range pipeline.StagesInPhase(req.Phase, flavor) {
		if done[s.Name] {
			continue
		}
		return selectionFor(s.Name, flavor, ReasonNextInPhase, done), nil
	}
	return Selection{Phase: req.Phase, Reason: ReasonPhaseComplete}, nil
}

// GetNextAgent walks forward from stageName and returns the first stage not in
// completed, skipping the fork alternative of stageName. It returns "" when no
// stage remains. Repeated calls with the same arguments return the same result.
func GetNextAgent(stageName string, completed []string) (string, error) {
	start, err := pipeline.MustLookup(stageName)
	if err != nil {
		return "", err
	}
	done := toSet(completed)
	defs := pipeline.Definition()
	for _, s := range defs[pipeline.IndexOf(stageName)+1:] {
		if s.Flavor != "" && s.Group == start.Group && s.Flavor != start.Flavor {
			continue
		}
		if done[s.Name] {
			continue
		}
		return s.Name, nil
	}
	return "", nil
}

// selectionFor builds the selection for name. ParallelGroup lists the
// unfinished members of its group, name included.
func selectionFor(name string, flavor pipeline.Flavor, reason string, done map[string]bool) Selection {
	spec, _ := pipeline.Lookup(name)
	sel := Selection{Agent: name, Phase: spec.Phase, Reason: reason}
	if spec.Parallel {
		for _, m := range pipeline.GroupMembers(spec.Group, flavor) {
			if done[m.Name] && m.Name != name {
				continue
			}
			sel.ParallelGroup = append(sel.ParallelGroup, m.Name)
		}
	}
	return sel
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
