package gates

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasnoah/agentline/internal/checks"
	"github.com/lucasnoah/agentline/internal/handoff"
	"github.com/lucasnoah/agentline/internal/pipeline"
)

func ptr(v float64) *float64 { return &v }

// qaImplEvidence builds evidence where the post-qa-impl gate passes.
func qaImplEvidence() Evidence {
	sess := pipeline.NewSession(pipeline.FlavorGreenfield, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	for _, s := range []string{pipeline.StageDev, pipeline.StageReview, pipeline.StageQAImplementation} {
		sess.Agents[s] = pipeline.AgentState{Status: pipeline.StatusCompleted}
		sess.CompletedAgents = pipeline.InsertCompleted(sess.CompletedAgents, s)
	}
	return Evidence{
		Session: sess,
		Handoffs: map[string]handoff.Handoff{
			pipeline.StageDev:    {FromStage: pipeline.StageDev, Outputs: []string{"cmd/api"}},
			pipeline.StageReview: {FromStage: pipeline.StageReview},
			pipeline.StageQAImplementation: {
				FromStage:   pipeline.StageQAImplementation,
				Score:       ptr(93),
				CriteriaMet: []string{"login works", "logout works"},
				Reports:     []string{"performance", "Security"},
			},
		},
	}
}

func TestEvaluate_Pass(t *testing.T) {
	g := New(DefaultConfig())
	res, err := g.Evaluate(PostQAImpl, qaImplEvidence(), "")
	require.NoError(t, err)
	assert.Equal(t, Pass, res.Verdict, res.Reason)
	assert.Equal(t, 100, res.Score)
	assert.Equal(t, pipeline.StageQAImplementation, res.Stage)
	assert.Empty(t, res.Unmet())
}

func TestEvaluate_MissingHandoffFails(t *testing.T) {
	g := New(DefaultConfig())
	ev := qaImplEvidence()
	delete(ev.Handoffs, pipeline.StageQAImplementation)

	res, err := g.Evaluate(PostQAImpl, ev, "")
	require.NoError(t, err)
	assert.Equal(t, Fail, res.Verdict)
	assert.Equal(t, 0, res.Score)
	assert.Contains(t, res.Reason, "missing evidence")
}

func TestEvaluate_UnmetCriteriaScore(t *testing.T) {
	g := New(DefaultConfig())
	ev := qaImplEvidence()
	h := ev.Handoffs[pipeline.StageQAImplementation]
	h.Reports = []string{"security"}
	h.Score = ptr(80)
	ev.Handoffs[pipeline.StageQAImplementation] = h

	res, err := g.Evaluate(PostQAImpl, ev, "")
	require.NoError(t, err)
	// 4 of 6 criteria.
	assert.Equal(t, 67, res.Score)
	assert.Equal(t, Fail, res.Verdict)
	assert.ElementsMatch(t, []string{"performance report", "build score"}, res.Unmet())
}

func TestEvaluate_MinorBlockersGiveConcerns(t *testing.T) {
	g := New(DefaultConfig())
	ev := qaImplEvidence()
	h := ev.Handoffs[pipeline.StageQAImplementation]
	h.Blockers = []handoff.Blocker{{Description: "slow query", Severity: handoff.SeverityMinor}}
	ev.Handoffs[pipeline.StageQAImplementation] = h

	res, err := g.Evaluate(PostQAImpl, ev, "")
	require.NoError(t, err)
	assert.Equal(t, 100, res.Score)
	assert.Equal(t, Concerns, res.Verdict)
}

func TestEvaluate_CriticalBlockerForcesFail(t *testing.T) {
	g := New(DefaultConfig())
	ev := qaImplEvidence()
	h := ev.Handoffs[pipeline.StageQAImplementation]
	h.Blockers = []handoff.Blocker{{Description: "payments double charge", Severity: handoff.SeverityCritical}}
	ev.Handoffs[pipeline.StageQAImplementation] = h

	res, err := g.Evaluate(PostQAImpl, ev, "ship it anyway")
	require.NoError(t, err)
	assert.Equal(t, Fail, res.Verdict, "a waiver cannot override a critical blocker")
	assert.Equal(t, []string{"qa-implementation: payments double charge"}, res.CriticalBlockers)
}

func TestEvaluate_Waiver(t *testing.T) {
	g := New(DefaultConfig())
	ev := qaImplEvidence()
	h := ev.Handoffs[pipeline.StageQAImplementation]
	h.Reports = nil
	ev.Handoffs[pipeline.StageQAImplementation] = h

	res, err := g.Evaluate(PostQAImpl, ev, "reports tracked in JIRA-12")
	require.NoError(t, err)
	assert.Equal(t, Waived, res.Verdict)
	assert.Equal(t, "reports tracked in JIRA-12", res.Waiver)
	assert.True(t, res.Passed())
}

func TestEvaluate_IsPure(t *testing.T) {
	g := New(DefaultConfig())
	ev := qaImplEvidence()
	first, err := g.Evaluate(PreDeploy, ev, "")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := g.Evaluate(PreDeploy, ev, "")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestEvaluate_EveryCheckpointHandlesEmptyEvidence(t *testing.T) {
	g := New(DefaultConfig())
	ev := Evidence{Session: pipeline.NewSession(pipeline.FlavorBrownfield, time.Now())}
	for _, cp := range Checkpoints {
		res, err := g.Evaluate(cp, ev, "")
		require.NoError(t, err, cp)
		assert.Equal(t, Fail, res.Verdict, cp)
	}
}

func TestEvaluate_UnknownCheckpoint(t *testing.T) {
	g := New(DefaultConfig())
	_, err := g.Evaluate("post-lunch", Evidence{}, "")
	assert.Error(t, err)
	_, err = ParseCheckpoint("post-lunch")
	assert.Error(t, err)
}

func TestCollectEvidence(t *testing.T) {
	dir := t.TempDir()
	log := handoff.NewLog(dir)
	for _, summary := range []string{"first", "second"} {
		_, _, err := log.Execute(handoff.Params{
			FromStage:  pipeline.StageDev,
			Summary:    summary,
			Validation: &handoff.ValidationResult{Valid: true},
		})
		require.NoError(t, err)
	}
	ev, err := CollectEvidence(pipeline.NewSession(pipeline.FlavorGreenfield, time.Now()), log)
	require.NoError(t, err)
	require.Len(t, ev.Handoffs, 1)
	assert.Equal(t, "second", ev.Handoffs[pipeline.StageDev].Summary)
}

func TestGuard_OpensOnRepeatedFail(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	gd := NewGuard(New(DefaultConfig()), 3, time.Minute)
	gd.SetClock(clock.Now)

	ev := qaImplEvidence()
	delete(ev.Handoffs, pipeline.StageQAImplementation)
	for i := 0; i < 3; i++ {
		res, err := gd.Evaluate(PostQAImpl, ev, "")
		require.NoError(t, err)
		assert.Equal(t, Fail, res.Verdict)
	}
	_, err := gd.Evaluate(PostQAImpl, ev, "")
	assert.True(t, errors.Is(err, ErrCircuitOpen))

	// Other checkpoints keep their own breaker.
	_, err = gd.Evaluate(PostDev, qaImplEvidence(), "")
	assert.NoError(t, err)

	clock.Advance(time.Minute)
	res, err := gd.Evaluate(PostQAImpl, qaImplEvidence(), "")
	require.NoError(t, err)
	assert.Equal(t, Pass, res.Verdict)
	assert.Equal(t, StateClosed, gd.Breaker(PostQAImpl).State())

	snaps := gd.Snapshot()
	assert.Len(t, snaps, 2)
	other := NewGuard(New(DefaultConfig()), 3, time.Minute)
	require.NoError(t, other.Restore(snaps))
	assert.Equal(t, StateClosed, other.Breaker(PostQAImpl).State())
}

func TestEvaluate_ChecksAddCriteria(t *testing.T) {
	g := New(DefaultConfig())

	ev := qaImplEvidence()
	ev.Checks = []checks.Result{{Name: "unit tests", Passed: true, Summary: "12 packages ok"}}
	res, err := g.Evaluate(PostQAImpl, ev, "")
	require.NoError(t, err)
	assert.Equal(t, Pass, res.Verdict, res.Reason)
	assert.Len(t, res.Criteria, 7)

	ev.Checks = []checks.Result{{Name: "unit tests", Summary: "2 tests failed in 1 packages: TestCart"}}
	res, err = g.Evaluate(PostQAImpl, ev, "")
	require.NoError(t, err)
	assert.Equal(t, Fail, res.Verdict)
	assert.Equal(t, 86, res.Score)
	assert.Equal(t, []string{"check unit tests"}, res.Unmet())
}

func TestGuard_EvaluateWithSkipsCollectWhenOpen(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	gd := NewGuard(New(DefaultConfig()), 1, time.Minute)
	gd.SetClock(clock.Now)

	collectErr := errors.New("handoff log unreadable")
	_, err := gd.EvaluateWith(PostDev, func() (Evidence, error) { return Evidence{}, collectErr }, "")
	assert.ErrorIs(t, err, collectErr)
	assert.Equal(t, StateOpen, gd.Breaker(PostDev).State())

	calls := 0
	_, err = gd.EvaluateWith(PostDev, func() (Evidence, error) {
		calls++
		return qaImplEvidence(), nil
	}, "")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, calls)
}
