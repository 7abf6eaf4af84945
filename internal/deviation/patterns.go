package deviation

import "github.com/lucasnoah/agentline/internal/pipeline"

// Patterns maps each deviation type to the phrases that signal it. Matching is
// case-insensitive substring search.
var Patterns = map[Type][]string{
	Restart: {
		"start over", "from scratch", "restart", "begin again", "reset everything", "throw it all away",
	},
	Rollback: {
		"go back to", "go back", "redo", "revert", "roll back", "rollback", "return to", "revisit",
	},
	Skip: {
		"skip", "bypass", "jump ahead", "don't need the", "not needed",
	},
	ScopeChange: {
		"add a feature", "add feature", "also need", "new requirement", "remove feature",
		"drop the feature", "out of scope", "scope change", "change the scope", "in addition",
	},
	PriorityChange: {
		"prioritize", "priority", "more important", "focus on", "do this first", "move up",
	},
}

// precedence breaks ties between types with the same number of matches.
var precedence = []Type{Restart, Rollback, Skip, ScopeChange, PriorityChange}

// stageAliases maps common phrasings to stage names. Stage names themselves
// always match.
var stageAliases = map[string]string{
	"qa planning":         pipeline.StageQAPlanning,
	"planning qa":         pipeline.StageQAPlanning,
	"qa implementation":   pipeline.StageQAImplementation,
	"qa-impl":             pipeline.StageQAImplementation,
	"implementation qa":   pipeline.StageQAImplementation,
	"architecture":        pipeline.StageArchitect,
	"user stories":        pipeline.StageStories,
	"development":         pipeline.StageDev,
	"code review":         pipeline.StageReview,
	"deployment":          pipeline.StageDevops,
	"user experience":     pipeline.StageUX,
	"requirements detail": pipeline.StageDetail,
	"project brief":       pipeline.StageBrief,
	"codebase discovery":  pipeline.StageDiscovery,
}

// removalWords mark a scope change as a removal rather than an addition.
var removalWords = []string{"remove", "drop", "cut", "out of scope", "no longer"}
