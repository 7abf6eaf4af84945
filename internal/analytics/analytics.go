// Package analytics derives delivery statistics from a session's history and
// from mirrored gate evaluations.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/lucasnoah/agentline/internal/db"
	"github.com/lucasnoah/agentline/internal/pipeline"
	"github.com/lucasnoah/agentline/internal/stage"
)

// StageDuration holds duration stats for a stage.
type StageDuration struct {
	Stage string  `json:"stage"`
	Count int     `json:"count"`
	Avg   float64 `json:"avg_minutes"`
	P50   float64 `json:"p50_minutes"`
	P95   float64 `json:"p95_minutes"`
}

// StageRework counts how often a stage had to run again.
type StageRework struct {
	Stage         string `json:"stage"`
	Starts        int    `json:"starts"`
	Completions   int    `json:"completions"`
	Failures      int    `json:"failures"`
	Revalidations int    `json:"revalidations"`
	Interruptions int    `json:"interruptions"`
	Resets        int    `json:"resets"`
}

// TypeCount is the number of applied deviations of one type.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// GatePassRate summarises verdicts for one checkpoint.
type GatePassRate struct {
	Checkpoint string  `json:"checkpoint"`
	Total      int     `json:"total"`
	Pass       int     `json:"pass"`
	Concerns   int     `json:"concerns"`
	Fail       int     `json:"fail"`
	Waived     int     `json:"waived"`
	PassPct    float64 `json:"pass_pct"`
}

// Report is the full analytics summary of a project.
type Report struct {
	Durations    []StageDuration `json:"durations"`
	Rework       []StageRework   `json:"rework"`
	Deviations   []TypeCount     `json:"deviations"`
	PhaseChanges int             `json:"phase_changes"`
	PhaseResets  int             `json:"phase_resets"`
	Gates        []GatePassRate  `json:"gates,omitempty"`
}

// Summarize computes every session-derived statistic.
func Summarize(sess pipeline.Session) Report {
	r := Report{
		Durations:  StageDurations(sess),
		Rework:     Rework(sess),
		Deviations: DeviationCounts(sess),
	}
	for _, mt := range sess.ModeTransitions {
		r.PhaseChanges++
		if mt.To.Index() < mt.From.Index() {
			r.PhaseResets++
		}
	}
	return r
}

// StageDurations pairs each start of a stage with its next completion.
// Starts that end in failure, interruption or a reset are not counted.
func StageDurations(sess pipeline.Session) []StageDuration {
	open := make(map[string]time.Time)
	durations := make(map[string][]float64)

	for _, h := range sess.History {
		ts, err := time.Parse(time.RFC3339, h.Timestamp)
		if err != nil {
			continue
		}
		switch h.Action {
		case stage.HistoryStarted, stage.HistoryResetTo:
			open[h.Stage] = ts
		case stage.HistoryCompleted:
			if start, ok := open[h.Stage]; ok {
				if minutes := ts.Sub(start).Minutes(); minutes >= 0 {
					durations[h.Stage] = append(durations[h.Stage], minutes)
				}
				delete(open, h.Stage)
			}
		case stage.HistoryFailed, stage.HistoryInterrupted:
			delete(open, h.Stage)
		}
	}

	var results []StageDuration
	for _, s := range pipeline.Definition() {
		ds, ok := durations[s.Name]
		if !ok {
			continue
		}
		sort.Float64s(ds)
		results = append(results, StageDuration{
			Stage: s.Name,
			Count: len(ds),
			Avg:   avg(ds),
			P50:   percentile(ds, 50),
			P95:   percentile(ds, 95),
		})
	}
	return results
}

// Rework tallies lifecycle events per stage, in pipeline order.
func Rework(sess pipeline.Session) []StageRework {
	byStage := make(map[string]*StageRework)
	get := func(name string) *StageRework {
		r, ok := byStage[name]
		if !ok {
			r = &StageRework{Stage: name}
			byStage[name] = r
		}
		return r
	}

	for _, h := range sess.History {
		if h.Stage == "" {
			continue
		}
		switch h.Action {
		case stage.HistoryStarted:
			get(h.Stage).Starts++
		case stage.HistoryCompleted:
			get(h.Stage).Completions++
		case stage.HistoryFailed:
			get(h.Stage).Failures++
		case stage.HistoryRevalidate:
			get(h.Stage).Revalidations++
		case stage.HistoryInterrupted:
			get(h.Stage).Interruptions++
		case stage.HistoryResetTo:
			get(h.Stage).Resets++
		}
	}

	var results []StageRework
	for _, s := range pipeline.Definition() {
		if r, ok := byStage[s.Name]; ok {
			results = append(results, *r)
		}
	}
	return results
}

// DeviationCounts counts applied deviations by type, most frequent first.
func DeviationCounts(sess pipeline.Session) []TypeCount {
	counts := make(map[string]int)
	for _, d := range sess.Deviations {
		counts[d.Type]++
	}
	results := make([]TypeCount, 0, len(counts))
	for t, n := range counts {
		results = append(results, TypeCount{Type: t, Count: n})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Count != results[j].Count {
			return results[i].Count > results[j].Count
		}
		return results[i].Type < results[j].Type
	})
	return results
}

// GatePassRates folds verdict counts into per-checkpoint rates. PASS,
// CONCERNS and WAIVED count as passing.
func GatePassRates(counts []db.GateVerdictCount) []GatePassRate {
	byCP := make(map[string]*GatePassRate)
	var order []string
	for _, c := range counts {
		r, ok := byCP[c.Checkpoint]
		if !ok {
			r = &GatePassRate{Checkpoint: c.Checkpoint}
			byCP[c.Checkpoint] = r
			order = append(order, c.Checkpoint)
		}
		r.Total += c.Count
		switch c.Verdict {
		case "PASS":
			r.Pass += c.Count
		case "CONCERNS":
			r.Concerns += c.Count
		case "FAIL":
			r.Fail += c.Count
		case "WAIVED":
			r.Waived += c.Count
		}
	}

	sort.Strings(order)
	results := make([]GatePassRate, 0, len(order))
	for _, cp := range order {
		r := byCP[cp]
		r.PassPct = pct(r.Pass+r.Concerns+r.Waived, r.Total)
		results = append(results, *r)
	}
	return results
}

// --- helpers ---

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return math.Round(sum/float64(len(values))*10) / 10
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper || upper >= len(sorted) {
		return math.Round(sorted[lower]*10) / 10
	}
	weight := rank - float64(lower)
	return math.Round((sorted[lower]*(1-weight)+sorted[upper]*weight)*10) / 10
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}
