package analytics

import (
	"testing"
	"time"

	"github.com/lucasnoah/agentline/internal/db"
	"github.com/lucasnoah/agentline/internal/pipeline"
	"github.com/lucasnoah/agentline/internal/stage"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func at(minutes int) string {
	return pipeline.Timestamp(base.Add(time.Duration(minutes) * time.Minute))
}

func entry(action, name string, minutes int) pipeline.HistoryEntry {
	return pipeline.HistoryEntry{Action: action, Stage: name, Timestamp: at(minutes)}
}

func TestAvg(t *testing.T) {
	if got := avg(nil); got != 0 {
		t.Errorf("avg(nil) = %v, want 0", got)
	}
	if got := avg([]float64{1, 2, 4}); got != 2.3 {
		t.Errorf("avg = %v, want 2.3", got)
	}
}

func TestPercentile(t *testing.T) {
	sorted := []float64{10, 20, 30, 40}
	tests := []struct {
		p    int
		want float64
	}{
		{0, 10},
		{50, 25},
		{95, 38.5},
		{100, 40},
	}
	for _, tt := range tests {
		if got := percentile(sorted, tt.p); got != tt.want {
			t.Errorf("percentile(%d) = %v, want %v", tt.p, got, tt.want)
		}
	}
	if got := percentile([]float64{7}, 95); got != 7 {
		t.Errorf("single value percentile = %v, want 7", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Errorf("empty percentile = %v, want 0", got)
	}
}

func TestPct(t *testing.T) {
	if got := pct(1, 3); got != 33.3 {
		t.Errorf("pct(1,3) = %v, want 33.3", got)
	}
	if got := pct(5, 0); got != 0 {
		t.Errorf("pct(5,0) = %v, want 0", got)
	}
}

func TestStageDurations(t *testing.T) {
	sess := pipeline.NewSession(pipeline.FlavorGreenfield, base)
	sess.History = []pipeline.HistoryEntry{
		entry(stage.HistoryStarted, "brief", 0),
		entry(stage.HistoryCompleted, "brief", 30),
		entry(stage.HistoryStarted, "detail", 30),
		entry(stage.HistoryFailed, "detail", 40),
		entry(stage.HistoryStarted, "detail", 45),
		entry(stage.HistoryCompleted, "detail", 105),
		entry(stage.HistoryResetTo, "brief", 110),
		entry(stage.HistoryCompleted, "brief", 120),
		{Action: stage.HistoryCompleted, Stage: "architect", Timestamp: "not a time"},
	}

	got := StageDurations(sess)
	if len(got) != 2 {
		t.Fatalf("got %d stages, want 2: %+v", len(got), got)
	}
	if got[0].Stage != "brief" || got[0].Count != 2 || got[0].Avg != 20 || got[0].P50 != 20 {
		t.Errorf("brief = %+v", got[0])
	}
	if got[1].Stage != "detail" || got[1].Count != 1 || got[1].Avg != 60 || got[1].P95 != 60 {
		t.Errorf("detail = %+v, failed attempt should not count", got[1])
	}
}

func TestRework(t *testing.T) {
	sess := pipeline.NewSession(pipeline.FlavorGreenfield, base)
	sess.History = []pipeline.HistoryEntry{
		entry(stage.HistoryStarted, "detail", 0),
		entry(stage.HistoryInterrupted, "detail", 5),
		entry(stage.HistoryStarted, "brief", 5),
		entry(stage.HistoryCompleted, "brief", 10),
		entry(stage.HistoryStarted, "detail", 10),
		entry(stage.HistoryFailed, "detail", 20),
		entry(stage.HistoryRevalidate, "brief", 25),
		entry(stage.HistoryResetTo, "brief", 30),
		{Action: "note", Timestamp: at(31)},
	}

	got := Rework(sess)
	if len(got) != 2 {
		t.Fatalf("got %d stages, want 2: %+v", len(got), got)
	}
	brief := StageRework{Stage: "brief", Starts: 1, Completions: 1, Revalidations: 1, Resets: 1}
	if got[0] != brief {
		t.Errorf("brief = %+v, want %+v", got[0], brief)
	}
	detail := StageRework{Stage: "detail", Starts: 2, Failures: 1, Interruptions: 1}
	if got[1] != detail {
		t.Errorf("detail = %+v, want %+v", got[1], detail)
	}
}

func TestDeviationCounts(t *testing.T) {
	sess := pipeline.NewSession(pipeline.FlavorGreenfield, base)
	for _, typ := range []string{"SKIP", "ROLLBACK", "SKIP", "ADD_FEATURE"} {
		sess.Deviations = append(sess.Deviations, pipeline.DeviationRecord{Type: typ})
	}

	got := DeviationCounts(sess)
	want := []TypeCount{{"SKIP", 2}, {"ADD_FEATURE", 1}, {"ROLLBACK", 1}}
	if len(got) != len(want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSummarize_PhaseChanges(t *testing.T) {
	sess := pipeline.NewSession(pipeline.FlavorGreenfield, base)
	sess.ModeTransitions = []pipeline.ModeTransition{
		{From: pipeline.PhasePlanning, To: pipeline.PhaseBuild, Trigger: "phase_complete"},
		{From: pipeline.PhaseBuild, To: pipeline.PhasePlanning, Trigger: "reset"},
		{From: pipeline.PhasePlanning, To: pipeline.PhaseBuild, Trigger: "phase_complete"},
	}

	r := Summarize(sess)
	if r.PhaseChanges != 3 {
		t.Errorf("PhaseChanges = %d, want 3", r.PhaseChanges)
	}
	if r.PhaseResets != 1 {
		t.Errorf("PhaseResets = %d, want 1", r.PhaseResets)
	}
	if len(r.Durations) != 0 || len(r.Rework) != 0 || len(r.Deviations) != 0 {
		t.Errorf("empty history should give empty stats: %+v", r)
	}
}

func TestGatePassRates(t *testing.T) {
	got := GatePassRates([]db.GateVerdictCount{
		{Checkpoint: "pre-dev", Verdict: "WAIVED", Count: 1},
		{Checkpoint: "post-dev", Verdict: "FAIL", Count: 1},
		{Checkpoint: "post-dev", Verdict: "PASS", Count: 2},
		{Checkpoint: "post-dev", Verdict: "CONCERNS", Count: 1},
	})
	if len(got) != 2 {
		t.Fatalf("got %+v", got)
	}
	post := GatePassRate{Checkpoint: "post-dev", Total: 4, Pass: 2, Concerns: 1, Fail: 1, PassPct: 75}
	if got[0] != post {
		t.Errorf("post-dev = %+v, want %+v", got[0], post)
	}
	pre := GatePassRate{Checkpoint: "pre-dev", Total: 1, Waived: 1, PassPct: 100}
	if got[1] != pre {
		t.Errorf("pre-dev = %+v, want %+v", got[1], pre)
	}
	if got := GatePassRates(nil); len(got) != 0 {
		t.Errorf("nil counts = %+v", got)
	}
}
