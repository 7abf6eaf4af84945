package intent

import "github.com/lucasnoah/agentline/internal/pipeline"

// Tier is a keyword weight band.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// TierWeights are the points each matched keyword contributes.
var TierWeights = map[Tier]float64{
	TierHigh:   3,
	TierMedium: 2,
	TierLow:    1,
}

// tierOrder fixes scan order so matched keywords are reported deterministically.
var tierOrder = []Tier{TierHigh, TierMedium, TierLow}

// Keywords maps every category to its tiered keyword lists. Matching is a
// case-insensitive substring test against the whole input.
var Keywords = map[Intent]map[Tier][]string{
	Planning: {
		TierHigh:   {"plan", "requirement", "architecture", "design doc"},
		TierMedium: {"scope", "spec", "user stor", "roadmap", "brief"},
		TierLow:    {"idea", "think about", "should we"},
	},
	Implementation: {
		TierHigh:   {"implement", "build", "code", "develop"},
		TierMedium: {"write", "fix", "refactor", "function", "endpoint"},
		TierLow:    {"add ", "change", "update"},
	},
	Review: {
		TierHigh:   {"review", "audit", "qa ", "test"},
		TierMedium: {"check", "verify", "validate", "quality"},
		TierLow:    {"look at", "feedback"},
	},
	Deploy: {
		TierHigh:   {"deploy", "release", "ship", "production"},
		TierMedium: {"ci/cd", "docker", "kubernetes", "infrastructure"},
		TierLow:    {"publish", "launch", "rollout"},
	},
	Question: {
		TierHigh:   {"what is", "how do", "why ", "explain"},
		TierMedium: {"what does", "how does", "can you tell"},
		TierLow:    {"wonder", "curious", "?"},
	},
	Deviation: {
		TierHigh:   {"go back", "start over", "skip", "roll back", "rollback", "from scratch"},
		TierMedium: {"redo", "bypass", "restart", "change the scope", "instead"},
		TierLow:    {"actually", "never mind", "prioriti"},
	},
	Status: {
		TierHigh:   {"status", "progress", "where are we"},
		TierMedium: {"what's next", "current stage", "how far"},
		TierLow:    {"summary", "overview"},
	},
	Resume: {
		TierHigh:   {"resume", "continue", "pick up where"},
		TierMedium: {"carry on", "keep going", "next step"},
		TierLow:    {"proceed", "go on"},
	},
	Help: {
		TierHigh:   {"help", "how does this work", "commands"},
		TierMedium: {"usage", "options", "what can you do"},
		TierLow:    {"guide", "docs"},
	},
}

// PhaseMultipliers scale category scores by the current phase. Missing entries mean 1.
var PhaseMultipliers = map[pipeline.Phase]map[Intent]float64{
	pipeline.PhasePlanning: {
		Planning: 1.5,
		Deploy:   0.5,
	},
	pipeline.PhaseBuild: {
		Implementation: 1.5,
		Review:         1.2,
		Planning:       0.5,
	},
	pipeline.PhaseDeploy: {
		Deploy:         1.5,
		Review:         1.2,
		Implementation: 0.8,
		Planning:       0.5,
	},
}

// Multiplier returns the phase multiplier for category c.
func Multiplier(phase pipeline.Phase, c Intent) float64 {
	if m, ok := PhaseMultipliers[phase][c]; ok {
		return m
	}
	return 1
}
