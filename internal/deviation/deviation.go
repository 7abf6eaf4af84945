// Package deviation detects, weighs and applies non-linear pipeline movement:
// rollbacks, skips, restarts, scope and priority changes.
package deviation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/lucasnoah/agentline/internal/pipeline"
)

// Type is a deviation category. The zero value means no deviation.
type Type string

const (
	None           Type = ""
	ScopeChange    Type = "SCOPE_CHANGE"
	Rollback       Type = "ROLLBACK"
	Skip           Type = "SKIP"
	PriorityChange Type = "PRIORITY_CHANGE"
	Restart        Type = "RESTART"
)

// Types lists every deviation type.
var Types = []Type{ScopeChange, Rollback, Skip, PriorityChange, Restart}

// ParseType converts a user-supplied name (any case) into a Type.
func ParseType(s string) (Type, error) {
	want := Type(strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(s, "-", "_"))))
	for _, t := range Types {
		if t == want {
			return t, nil
		}
	}
	return None, fmt.Errorf("unknown deviation type %q", s)
}

// Context is what the caller knows about the session when detecting.
type Context struct {
	Phase        pipeline.Phase
	CurrentStage string
}

// Detection is the result of DetectDeviation. IsDeviation is false for the
// common case of ordinary text.
type Detection struct {
	IsDeviation bool     `json:"is_deviation"`
	Type        Type     `json:"type,omitempty"`
	Confidence  float64  `json:"confidence"`
	TargetStage string   `json:"target_stage,omitempty"`
	Matched     []string `json:"matched,omitempty"`
}

// DetectDeviation classifies text against Patterns.
func DetectDeviation(text string, ctx Context) Detection {
	lower := strings.ToLower(text)

	best, bestHits := None, 0
	var matched []string
	for _, t := range precedence {
		var hits []string
		for _, p := range Patterns[t] {
			if strings.Contains(lower, p) {
				hits = append(hits, p)
			}
		}
		if len(hits) > bestHits {
			best, bestHits, matched = t, len(hits), hits
		}
	}
	if best == None {
		return Detection{}
	}

	det := Detection{
		IsDeviation: true,
		Type:        best,
		Matched:     matched,
		TargetStage: ExtractStage(lower),
	}
	if det.TargetStage == "" && best == Skip {
		det.TargetStage = ctx.CurrentStage
	}

	det.Confidence = 0.6 + 0.15*float64(bestHits-1)
	if det.TargetStage != "" && (best == Rollback || best == Skip) {
		det.Confidence += 0.1
	}
	if det.Confidence > 1 {
		det.Confidence = 1
	}
	return det
}

var stageMatchers = buildStageMatchers()

type stageMatcher struct {
	re    *regexp.Regexp
	stage string
}

func buildStageMatchers() []stageMatcher {
	var out []stageMatcher
	for _, name := range pipeline.StageNames() {
		out = append(out, stageMatcher{re: wordRegexp(name), stage: name})
	}
	aliases := make([]string, 0, len(stageAliases))
	for a := range stageAliases {
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)
	for _, a := range aliases {
		out = append(out, stageMatcher{re: wordRegexp(a), stage: stageAliases[a]})
	}
	return out
}

func wordRegexp(phrase string) *regexp.Regexp {
	return regexp.MustCompile(`(^|[^a-z0-9-])` + regexp.QuoteMeta(phrase) + `($|[^a-z0-9-])`)
}

// ExtractStage returns the stage mentioned earliest in text, or "".
// Longer matches win at the same position.
func ExtractStage(text string) string {
	lower := strings.ToLower(text)
	bestPos, bestLen, best := -1, 0, ""
	for _, m := range stageMatchers {
		loc := m.re.FindStringIndex(lower)
		if loc == nil {
			continue
		}
		pos, length := loc[0], loc[1]-loc[0]
		if best == "" || pos < bestPos || (pos == bestPos && length > bestLen) {
			bestPos, bestLen, best = pos, length, m.stage
		}
	}
	return best
}

// DetailsFromDetection builds apply parameters for a detection made on text.
func DetailsFromDetection(det Detection, text string) pipeline.DeviationDetails {
	d := pipeline.DeviationDetails{Text: strings.TrimSpace(text)}
	switch det.Type {
	case Rollback, Skip:
		d.TargetStage = det.TargetStage
	case ScopeChange:
		lower := strings.ToLower(text)
		for _, w := range removalWords {
			if strings.Contains(lower, w) {
				d.Removals = []string{d.Text}
				return d
			}
		}
		d.Additions = []string{d.Text}
	}
	return d
}
