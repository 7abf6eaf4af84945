package pipeline

// Phase is one of the three top-level pipeline segments.
type Phase string

const (
	PhasePlanning Phase = "planning"
	PhaseBuild    Phase = "build"
	PhaseDeploy   Phase = "deploy"
)

// Phases lists the phases in pipeline order.
var Phases = []Phase{PhasePlanning, PhaseBuild, PhaseDeploy}

// Index returns the position of p in Phases, or -1 if p is not a phase.
func (p Phase) Index() int {
	for i, ph := range Phases {
		if ph == p {
			return i
		}
	}
	return -1
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	return p.Index() >= 0
}

// Next returns the phase after p and false when p is the last phase.
func (p Phase) Next() (Phase, bool) {
	i := p.Index()
	if i < 0 || i+1 >= len(Phases) {
		return "", false
	}
	return Phases[i+1], true
}

// Flavor distinguishes new projects from work on an existing codebase.
type Flavor string

const (
	FlavorGreenfield Flavor = "greenfield"
	FlavorBrownfield Flavor = "brownfield"
)

// FlavorFor maps the greenfield flag used by the selector to a Flavor.
func FlavorFor(greenfield bool) Flavor {
	if greenfield {
		return FlavorGreenfield
	}
	return FlavorBrownfield
}

// Stage names.
const (
	StageBrief            = "brief"
	StageDiscovery        = "discovery"
	StageDetail           = "detail"
	StageResearch         = "research"
	StageUX               = "ux"
	StageArchitect        = "architect"
	StageStories          = "stories"
	StageQAPlanning       = "qa-planning"
	StageDev              = "dev"
	StageReview           = "review"
	StageQAImplementation = "qa-implementation"
	StageDevops           = "devops"
)

// StageSpec describes one slot of the pipeline.
// Flavor is empty for stages that apply to every project.
type StageSpec struct {
	Name     string
	Phase    Phase
	Group    string
	Parallel bool
	Flavor   Flavor
	QA       bool
}

// AppliesTo reports whether the stage is part of the pipeline for flavor f.
func (s StageSpec) AppliesTo(f Flavor) bool {
	return s.Flavor == "" || s.Flavor == f
}

// definition is the fixed stage order. It is never mutated; callers get copies.
var definition = [...]StageSpec{
	{Name: StageBrief, Phase: PhasePlanning, Group: "intake", Flavor: FlavorGreenfield},
	{Name: StageDiscovery, Phase: PhasePlanning, Group: "intake", Flavor: FlavorBrownfield},
	{Name: StageDetail, Phase: PhasePlanning, Group: "detail"},
	{Name: StageResearch, Phase: PhasePlanning, Group: "analysis", Parallel: true},
	{Name: StageUX, Phase: PhasePlanning, Group: "analysis", Parallel: true},
	{Name: StageArchitect, Phase: PhasePlanning, Group: "architecture"},
	{Name: StageStories, Phase: PhasePlanning, Group: "stories"},
	{Name: StageQAPlanning, Phase: PhasePlanning, Group: "qa-planning", QA: true},
	{Name: StageDev, Phase: PhaseBuild, Group: "dev"},
	{Name: StageReview, Phase: PhaseBuild, Group: "review"},
	{Name: StageQAImplementation, Phase: PhaseBuild, Group: "qa-impl", QA: true},
	{Name: StageDevops, Phase: PhaseDeploy, Group: "devops"},
}

// Definition returns a copy of the full stage table in pipeline order.
func Definition() []StageSpec {
	out := make([]StageSpec, len(definition))
	copy(out, definition[:])
	return out
}

// StageNames returns every stage name in pipeline order.
func StageNames() []string {
	names := make([]string, len(definition))
	for i, s := range definition {
		names[i] = s.Name
	}
	return names
}

// Lookup returns the StageSpec for name.
func Lookup(name string) (StageSpec, bool) {
	for _, s := range definition {
		if s.Name == name {
			return s, true
		}
	}
	return StageSpec{}, false
}

// MustLookup returns the StageSpec for name or an UnknownStageError.
func MustLookup(name string) (StageSpec, error) {
	s, ok := Lookup(name)
	if !ok {
		return StageSpec{}, &UnknownStageError{Name: name}
	}
	return s, nil
}

// IndexOf returns the position of name in the pipeline, or -1.
func IndexOf(name string) int {
	for i, s := range definition {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// StagesFor returns the stages that apply to flavor f, in order.
func StagesFor(f Flavor) []StageSpec {
	var out []StageSpec
	for _, s := range definition {
		if s.AppliesTo(f) {
			out = append(out, s)
		}
	}
	return out
}

// StagesInPhase returns the stages of phase p that apply to flavor f, in order.
func StagesInPhase(p Phase, f Flavor) []StageSpec {
	var out []StageSpec
	for _, s := range definition {
		if s.Phase == p && s.AppliesTo(f) {
			out = append(out, s)
		}
	}
	return out
}

// GroupMembers returns the stages sharing group with the named stage for flavor f.
func GroupMembers(group string, f Flavor) []StageSpec {
	var out []StageSpec
	for _, s := range definition {
		if s.Group == group && s.AppliesTo(f) {
			out = append(out, s)
		}
	}
	return out
}

// FirstStage returns the entry stage of phase p for flavor f.
func FirstStage(p Phase, f Flavor) string {
	stages := StagesInPhase(p, f)
	if len(stages) == 0 {
		return ""
	}
	return stages[0].Name
}

// IsQAStage reports whether name is one of the QA stages that gate a phase.
func IsQAStage(name string) bool {
	s, ok := Lookup(name)
	return ok && s.QA
}

// LastStage returns the terminal stage of the pipeline.
func LastStage() string {
	return definition[len(definition)-1].Name
}
