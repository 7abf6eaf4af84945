package gates

import (
	"fmt"

	"github.com/lucasnoah/agentline/internal/handoff"
	"github.com/lucasnoah/agentline/internal/pipeline"
)

type criterion struct {
	name  string
	check func(ev Evidence, primary handoff.Handoff, cfg Config) (bool, string)
}

type gateDef struct {
	stage         string
	blockerStages []string
	criteria      []criterion
}

var definitions = map[Checkpoint]gateDef{
	PostQAPlanning: {
		stage:         pipeline.StageQAPlanning,
		blockerStages: []string{pipeline.StageQAPlanning},
		criteria: []criterion{
			stageCompleted(pipeline.StageQAPlanning),
			scoreAtLeast("planning score", func(c Config) float64 { return c.PlanningScore }),
			allCriteriaMet(),
			noMajorBlockers(pipeline.StageQAPlanning),
			hasOutputs(),
		},
	},
	PreBuild: {
		stage:         pipeline.StageQAPlanning,
		blockerStages: []string{pipeline.StageArchitect, pipeline.StageStories, pipeline.StageQAPlanning},
		criteria: []criterion{
			stageCompleted(pipeline.StageArchitect),
			stageCompleted(pipeline.StageStories),
			stageCompleted(pipeline.StageQAPlanning),
			scoreAtLeast("planning score", func(c Config) float64 { return c.PlanningScore }),
			handoffFrom(pipeline.StageArchitect),
			handoffFrom(pipeline.StageStories),
		},
	},
	PostDev: {
		stage:         pipeline.StageDev,
		blockerStages: []string{pipeline.StageDev},
		criteria: []criterion{
			stageCompleted(pipeline.StageDev),
			hasOutputs(),
			allCriteriaMet(),
			noMajorBlockers(pipeline.StageDev),
		},
	},
	PostQAImpl: {
		stage:         pipeline.StageQAImplementation,
		blockerStages: []string{pipeline.StageQAImplementation},
		criteria: []criterion{
			stageCompleted(pipeline.StageQAImplementation),
			allCriteriaMet(),
			noMajorBlockers(pipeline.StageQAImplementation),
			hasReport("performance"),
			hasReport("security"),
			scoreAtLeast("build score", func(c Config) float64 { return c.BuildScore }),
		},
	},
	PreDeploy: {
		stage:         pipeline.StageQAImplementation,
		blockerStages: []string{pipeline.StageDev, pipeline.StageReview, pipeline.StageQAImplementation},
		criteria: []criterion{
			stageCompleted(pipeline.StageDev),
			stageCompleted(pipeline.StageReview),
			stageCompleted(pipeline.StageQAImplementation),
			scoreAtLeast("build score", func(c Config) float64 { return c.BuildScore }),
			hasReport("security"),
			handoffFrom(pipeline.StageReview),
		},
	},
}

func stageCompleted(stage string) criterion {
	return criterion{
		name: stage + " completed",
		check: func(ev Evidence, _ handoff.Handoff, _ Config) (bool, string) {
			st := ev.Session.Agent(stage).Status
			return st == pipeline.StatusCompleted, string(st)
		},
	}
}

func handoffFrom(stage string) criterion {
	return criterion{
		name: stage + " handoff present",
		check: func(ev Evidence, _ handoff.Handoff, _ Config) (bool, string) {
			_, ok := ev.handoff(stage)
			return ok, ""
		},
	}
}

// scoreAtLeast checks the primary handoff score against a configured minimum.
func scoreAtLeast(name string, threshold func(Config) float64) criterion {
	return criterion{
		name: name,
		check: func(_ Evidence, h handoff.Handoff, cfg Config) (bool, string) {
			want := threshold(cfg)
			if h.Score == nil {
				return false, fmt.Sprintf("no score, requires %.0f", want)
			}
			return *h.Score >= want, fmt.Sprintf("%.1f, requires %.0f", *h.Score, want)
		},
	}
}

func allCriteriaMet() criterion {
	return criterion{
		name: "acceptance criteria met",
		check: func(_ Evidence, h handoff.Handoff, _ Config) (bool, string) {
			total := len(h.CriteriaMet) + len(h.CriteriaUnmet)
			return len(h.CriteriaUnmet) == 0, fmt.Sprintf("%d/%d", len(h.CriteriaMet), total)
		},
	}
}

func noMajorBlockers(stage string) criterion {
	return criterion{
		name: "no major blockers",
		check: func(ev Evidence, _ handoff.Handoff, _ Config) (bool, string) {
			h, _ := ev.handoff(stage)
			n := 0
			for _, b := range h.Blockers {
				if b.Severity == handoff.SeverityMajor || b.Severity == handoff.SeverityCritical {
					n++
				}
			}
			return n == 0, fmt.Sprintf("%d open", n)
		},
	}
}

func hasOutputs() criterion {
	return criterion{
		name: "outputs recorded",
		check: func(_ Evidence, h handoff.Handoff, _ Config) (bool, string) {
			return len(h.Outputs) > 0, fmt.Sprintf("%d", len(h.Outputs))
		},
	}
}

func hasReport(kind string) criterion {
	return criterion{
		name: kind + " report",
		check: func(_ Evidence, h handoff.Handoff, _ Config) (bool, string) {
			return h.HasReport(kind), ""
		},
	}
}
