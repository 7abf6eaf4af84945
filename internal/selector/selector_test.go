package selector

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasnoah/agentline/internal/intent"
	"github.com/lucasnoah/agentline/internal/pipeline"
)

func TestGetNextAgent(t *testing.T) {
	tests := []struct {
		name      string
		stage     string
		completed []string
		want      string
	}{
		{"greenfield fork skips discovery", pipeline.StageBrief, nil, pipeline.StageDetail},
		{"brownfield fork", pipeline.StageDiscovery, nil, pipeline.StageDetail},
		{"skips completed sibling", pipeline.StageDetail, []string{pipeline.StageResearch}, pipeline.StageUX},
		{"crosses phase boundary", pipeline.StageQAPlanning, nil, pipeline.StageDev},
		{"skips several completed", pipeline.StageDev, []string{pipeline.StageReview, pipeline.StageQAImplementation}, pipeline.StageDevops},
		{"last stage", pipeline.StageDevops, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GetNextAgent(tt.stage, tt.completed)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetNextAgentIsIdempotent(t *testing.T) {
	completed := []string{pipeline.StageBrief, pipeline.StageDetail, pipeline.StageUX}
	for _, name := range pipeline.StageNames() {
		first, err1 := GetNextAgent(name, completed)
		second, err2 := GetNextAgent(name, completed)
		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.Equal(t, first, second, "stage %s", name)
	}
	assert.Equal(t, []string{pipeline.StageBrief, pipeline.StageDetail, pipeline.StageUX}, completed, "input must not be mutated")
}

func TestGetNextAgentUnknownStage(t *testing.T) {
	_, err := GetNextAgent("marketing", nil)
	var unknown *pipeline.UnknownStageError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "marketing", unknown.Name)
}

func TestSelectAgent_ColdStart(t *testing.T) {
	tests := []struct {
		name       string
		in         intent.Intent
		phase      pipeline.Phase
		greenfield bool
		want       string
		reason     string
	}{
		{"planning greenfield", intent.Planning, pipeline.PhasePlanning, true, pipeline.StageBrief, ReasonPipelineStart},
		{"planning brownfield", intent.Planning, pipeline.PhasePlanning, false, pipeline.StageDiscovery, ReasonPipelineStart},
		{"implementation in build", intent.Implementation, pipeline.PhaseBuild, true, pipeline.StageDev, ReasonDirectEntry},
		{"implementation in planning", intent.Implementation, pipeline.PhasePlanning, true, pipeline.StageBrief, ReasonPipelineStart},
		{"deploy in deploy", intent.Deploy, pipeline.PhaseDeploy, false, pipeline.StageDevops, ReasonDirectEntry},
		{"question defaults to start", intent.Question, pipeline.PhasePlanning, false, pipeline.StageDiscovery, ReasonPipelineStart},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := SelectAgent(Request{Intent: tt.in, Phase: tt.phase, Greenfield: tt.greenfield})
			require.NoError(t, err)
			assert.Equal(t, tt.want, sel.Agent)
			assert.Equal(t, tt.reason, sel.Reason)
		})
	}
}

func TestSelectAgent_ParallelGroup(t *testing.T) {
	sel, err := SelectAgent(Request{
		Intent:          intent.Planning,
		Phase:           pipeline.PhasePlanning,
		CompletedStages: []string{pipeline.StageBrief, pipeline.StageDetail},
		Greenfield:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StageResearch, sel.Agent)
	assert.Equal(t, []string{pipeline.StageResearch, pipeline.StageUX}, sel.ParallelGroup)

	sel, err = SelectAgent(Request{
		Intent:          intent.Planning,
		Phase:           pipeline.PhasePlanning,
		CompletedStages: []string{pipeline.StageBrief, pipeline.StageDetail, pipeline.StageResearch},
		Greenfield:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StageUX, sel.Agent)
	assert.Equal(t, []string{pipeline.StageUX}, sel.ParallelGroup)

	sel, err = SelectAgent(Request{
		Intent:          intent.Resume,
		Phase:           pipeline.PhasePlanning,
		CurrentStage:    pipeline.StageResearch,
		CompletedStages: []string{pipeline.StageBrief, pipeline.StageDetail, pipeline.StageResearch},
		Greenfield:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StageUX, sel.Agent)
	assert.Equal(t, []string{pipeline.StageUX}, sel.ParallelGroup)
}

func TestSelectAgent_PhaseComplete(t *testing.T) {
	sel, err := SelectAgent(Request{
		Intent: intent.Implementation,
		Phase:  pipeline.PhaseBuild,
		CompletedStages: []string{
			pipeline.StageDev, pipeline.StageReview, pipeline.StageQAImplementation,
		},
	})
	require.NoError(t, err)
	assert.Empty(t, sel.Agent)
	assert.Equal(t, ReasonPhaseComplete, sel.Reason)
}

func TestSelectAgent_BrownfieldSkipsBrief(t *testing.T) {
	sel, err := SelectAgent(Request{
		Intent:          intent.Planning,
		Phase:           pipeline.PhasePlanning,
		CompletedStages: []string{pipeline.StageDiscovery},
		Greenfield:      false,
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StageDetail, sel.Agent)
}

func TestSelectAgent_Resume(t *testing.T) {
	sel, err := SelectAgent(Request{
		Intent:          intent.Resume,
		Phase:           pipeline.PhasePlanning,
		CurrentStage:    pipeline.StageArchitect,
		CompletedStages: []string{pipeline.StageBrief, pipeline.StageDetail, pipeline.StageResearch, pipeline.StageUX, pipeline.StageArchitect},
		Greenfield:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StageStories, sel.Agent)
	assert.Equal(t, ReasonResume, sel.Reason)

	sel, err = SelectAgent(Request{Intent: intent.Resume, CurrentStage: pipeline.StageDevops, CompletedStages: []string{pipeline.StageDevops}})
	require.NoError(t, err)
	assert.Empty(t, sel.Agent)
	assert.Equal(t, ReasonPipelineDone, sel.Reason)

	_, err = SelectAgent(Request{Intent: intent.Resume, CurrentStage: "nope"})
	assert.Error(t, err)
}
