package pipeline

import (
	"reflect"
	"testing"
	"time"
)

func TestDefinitionShape(t *testing.T) {
	defs := Definition()
	if len(defs) != 12 {
		t.Fatalf("definition has %d stages, want 12", len(defs))
	}
	// Copies must not alias the package table.
	defs[0].Name = "mutated"
	if Definition()[0].Name != StageBrief {
		t.Error("Definition() returned an aliased slice")
	}

	for _, f := range []Flavor{FlavorGreenfield, FlavorBrownfield} {
		seen := map[string]int{}
		for _, s := range StagesFor(f) {
			seen[string(s.Phase)+"/"+s.Group]++
		}
		if seen["planning/intake"] != 1 {
			t.Errorf("%s: intake slot has %d active stages, want 1", f, seen["planning/intake"])
		}
		if len(StagesFor(f)) != 11 {
			t.Errorf("%s: %d applicable stages, want 11", f, len(StagesFor(f)))
		}
	}
}

func TestPhaseNext(t *testing.T) {
	tests := []struct {
		in   Phase
		want Phase
		ok   bool
	}{
		{PhasePlanning, PhaseBuild, true},
		{PhaseBuild, PhaseDeploy, true},
		{PhaseDeploy, "", false},
		{"bogus", "", false},
	}
	for _, tt := range tests {
		got, ok := tt.in.Next()
		if got != tt.want || ok != tt.ok {
			t.Errorf("%q.Next() = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFirstStage(t *testing.T) {
	if got := FirstStage(PhasePlanning, FlavorGreenfield); got != StageBrief {
		t.Errorf("greenfield planning entry = %q, want brief", got)
	}
	if got := FirstStage(PhasePlanning, FlavorBrownfield); got != StageDiscovery {
		t.Errorf("brownfield planning entry = %q, want discovery", got)
	}
	if got := FirstStage(PhaseBuild, FlavorBrownfield); got != StageDev {
		t.Errorf("build entry = %q, want dev", got)
	}
	if got := FirstStage(PhaseDeploy, FlavorGreenfield); got != StageDevops {
		t.Errorf("deploy entry = %q, want devops", got)
	}
}

func TestInsertCompletedKeepsPipelineOrder(t *testing.T) {
	got := InsertCompleted([]string{StageBrief, StageArchitect}, StageDetail)
	want := []string{StageBrief, StageDetail, StageArchitect}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("InsertCompleted = %v, want %v", got, want)
	}
	again := InsertCompleted(got, StageDetail)
	if !reflect.DeepEqual(again, want) {
		t.Errorf("duplicate insert changed list: %v", again)
	}
	tail := InsertCompleted(want, StageDevops)
	if tail[len(tail)-1] != StageDevops {
		t.Errorf("devops should be appended last, got %v", tail)
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := NewSession(FlavorGreenfield, time.Now())
	orig.Agents[StageBrief] = AgentState{Status: StatusCompleted, Score: score(90)}
	orig.CompletedAgents = []string{StageBrief}

	cp := orig.Clone()
	*cp.Agents[StageBrief].Score = 10
	cp.Agents[StageDetail] = AgentState{Status: StatusInProgress}
	cp.CompletedAgents[0] = StageDetail

	if *orig.Agents[StageBrief].Score != 90 {
		t.Error("clone shares score pointer")
	}
	if orig.Agent(StageDetail).Status != StatusPending {
		t.Error("clone shares agents map")
	}
	if orig.CompletedAgents[0] != StageBrief {
		t.Error("clone shares completed_agents array")
	}
}

func TestDoneStagesIncludesSkipped(t *testing.T) {
	sess := NewSession(FlavorGreenfield, time.Now())
	sess.CompletedAgents = []string{StageBrief}
	sess.Agents[StageUX] = AgentState{Status: StatusSkipped}
	got := sess.DoneStages()
	want := []string{StageBrief, StageUX}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DoneStages = %v, want %v", got, want)
	}
}

func TestValidateSingleInProgress(t *testing.T) {
	sess := NewSession(FlavorGreenfield, time.Now())
	sess.Agents[StageBrief] = AgentState{Status: StatusInProgress}
	sess.Agents[StageDetail] = AgentState{Status: StatusInProgress}
	if err := sess.Validate(); err == nil {
		t.Fatal("expected error for two in-progress stages")
	}
}

func TestValidateFlavorFork(t *testing.T) {
	sess := NewSession(FlavorGreenfield, time.Now())
	sess.CompletedAgents = []string{StageBrief, StageDiscovery}
	sess.Agents[StageBrief] = AgentState{Status: StatusCompleted}
	sess.Agents[StageDiscovery] = AgentState{Status: StatusCompleted}
	if err := sess.Validate(); err == nil {
		t.Fatal("greenfield session must not complete discovery")
	}

	brown := NewSession(FlavorBrownfield, time.Now())
	brown.Agents[StageBrief] = AgentState{Status: StatusInProgress}
	if err := brown.Validate(); err == nil {
		t.Fatal("brownfield session must not run brief")
	}

	brown.Agents[StageBrief] = AgentState{Status: StatusPending}
	brown.CompletedAgents = []string{StageDiscovery}
	brown.Agents[StageDiscovery] = AgentState{Status: StatusCompleted}
	if err := brown.Validate(); err != nil {
		t.Fatalf("valid brownfield session: %v", err)
	}
}

func TestValidateSkippedNotCompleted(t *testing.T) {
	sess := NewSession(FlavorGreenfield, time.Now())
	sess.CompletedAgents = []string{StageUX}
	sess.Agents[StageUX] = AgentState{Status: StatusSkipped}
	if err := sess.Validate(); err == nil {
		t.Fatal("a skipped stage cannot be in completed_agents")
	}
}

func TestFlavorDefaultsToGreenfield(t *testing.T) {
	if got := (Session{}).Flavor(); got != FlavorGreenfield {
		t.Errorf("Flavor() = %q, want greenfield", got)
	}
	if got := (Session{ProjectType: FlavorBrownfield}).Flavor(); got != FlavorBrownfield {
		t.Errorf("Flavor() = %q, want brownfield", got)
	}
}
