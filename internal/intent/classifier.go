// Package intent classifies free-form user input into high-level pipeline intents.
package intent

import (
	"fmt"
	"strings"

	"github.com/lucasnoah/agentline/internal/pipeline"
)

// Intent is a high-level category of user input.
type Intent string

const (
	Planning       Intent = "planning"
	Implementation Intent = "implementation"
	Review         Intent = "review"
	Deploy         Intent = "deploy"
	Question       Intent = "question"
	Deviation      Intent = "deviation"
	Status         Intent = "status"
	Resume         Intent = "resume"
	Help           Intent = "help"
)

// Categories is the declaration order; ties resolve to the earliest entry.
var Categories = []Intent{Planning, Implementation, Review, Deploy, Question, Deviation, Status, Resume, Help}

// Valid reports whether c is a known category.
func (c Intent) Valid() bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

// Context is the optional pipeline position the input was given in.
type Context struct {
	Phase        pipeline.Phase
	CurrentStage string
}

// Result is the classification outcome.
type Result struct {
	Intent          Intent             `json:"intent"`
	Confidence      float64            `json:"confidence"`
	MatchedKeywords []string           `json:"matched_keywords"`
	Scores          map[Intent]float64 `json:"scores"`
	Reasoning       string             `json:"reasoning"`
}

// DefaultConfidence is reported when nothing matched.
const DefaultConfidence = 0.5

// Classify scores text against every category's keyword tiers and applies the
// phase multiplier table. It has no side effects.
func Classify(text string, ctx Context) Result {
	lower := strings.ToLower(text)

	scores := make(map[Intent]float64, len(Categories))
	matches := make(map[Intent][]string, len(Categories))
	total := 0.0
	for _, c := range Categories {
		raw := 0.0
		for _, tier := range tierOrder {
			for _, kw := range Keywords[c][tier] {
				if strings.Contains(lower, kw) {
					raw += TierWeights[tier]
					matches[c] = append(matches[c], strings.TrimSpace(kw))
				}
			}
		}
		s := raw * Multiplier(ctx.Phase, c)
		scores[c] = s
		total += s
	}

	winner := Categories[0]
	for _, c := range Categories[1:] {
		if scores[c] > scores[winner] {
			winner = c
		}
	}

	res := Result{
		Intent:          winner,
		Confidence:      DefaultConfidence,
		MatchedKeywords: matches[winner],
		Scores:          scores,
	}
	if res.MatchedKeywords == nil {
		res.MatchedKeywords = []string{}
	}

	if total == 0 {
		res.Reasoning = fmt.Sprintf("no keywords matched; defaulting to %s", winner)
		return res
	}

	res.Confidence = scores[winner] / total
	res.Reasoning = fmt.Sprintf("%s scored %.1f of %.1f total from %d keyword(s): %s",
		winner, scores[winner], total, len(res.MatchedKeywords), strings.Join(res.MatchedKeywords, ", "))
	if m := Multiplier(ctx.Phase, winner); m != 1 {
		res.Reasoning += fmt.Sprintf("; %s phase multiplier x%.1f", ctx.Phase, m)
	}
	if ctx.CurrentStage != "" {
		res.Reasoning += fmt.Sprintf("; current stage %s", ctx.CurrentStage)
	}
	return res
}
