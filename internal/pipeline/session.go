package pipeline

import (
	"fmt"
	"time"
)

// Timestamp formats t the way every session field stores time.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// NewSession returns a fresh session with every stage pending.
func NewSession(flavor Flavor, now time.Time) Session {
	agents := make(map[string]AgentState, len(definition))
	for _, s := range definition {
		agents[s.Name] = AgentState{Status: StatusPending}
	}
	return Session{
		Phase:           PhasePlanning,
		ProjectType:     flavor,
		StartedAt:       Timestamp(now),
		Agents:          agents,
		CompletedAgents: []string{},
		ModeTransitions: []ModeTransition{},
		History:         []HistoryEntry{},
		Deviations:      []DeviationRecord{},
		Backlog:         []BacklogItem{},
	}
}

// Clone returns a deep copy so transitions never share backing arrays or maps.
func (s Session) Clone() Session {
	out := s
	out.Agents = make(map[string]AgentState, len(s.Agents))
	for k, v := range s.Agents {
		if v.Score != nil {
			score := *v.Score
			v.Score = &score
		}
		out.Agents[k] = v
	}
	out.CompletedAgents = append([]string{}, s.CompletedAgents...)
	out.ModeTransitions = append([]ModeTransition{}, s.ModeTransitions...)
	out.History = make([]HistoryEntry, len(s.History))
	for i, h := range s.History {
		if h.Score != nil {
			score := *h.Score
			h.Score = &score
		}
		out.History[i] = h
	}
	out.Deviations = make([]DeviationRecord, len(s.Deviations))
	for i, d := range s.Deviations {
		d.Changes = append([]string{}, d.Changes...)
		d.Details.Additions = append([]string(nil), d.Details.Additions...)
		d.Details.Removals = append([]string(nil), d.Details.Removals...)
		if d.Details.Priorities != nil {
			p := make(map[string]int, len(d.Details.Priorities))
			for k, v := range d.Details.Priorities {
				p[k] = v
			}
			d.Details.Priorities = p
		}
		out.Deviations[i] = d
	}
	out.Backlog = append([]BacklogItem{}, s.Backlog...)
	return out
}

// Greenfield reports whether the session follows the greenfield fork.
func (s Session) Greenfield() bool {
	return s.ProjectType != FlavorBrownfield
}

// Flavor returns the project flavor, treating an unset type as greenfield.
func (s Session) Flavor() Flavor {
	return FlavorFor(s.Greenfield())
}

// Agent returns the state of name, defaulting to pending for stages missing from the map.
func (s Session) Agent(name string) AgentState {
	if st, ok := s.Agents[name]; ok {
		return st
	}
	return AgentState{Status: StatusPending}
}

// IsCompleted reports whether name is in CompletedAgents.
func (s Session) IsCompleted(name string) bool {
	for _, c := range s.CompletedAgents {
		if c == name {
			return true
		}
	}
	return false
}

// DoneStages returns completed and skipped stage names; the selector treats both as finished.
func (s Session) DoneStages() []string {
	done := append([]string{}, s.CompletedAgents...)
	for _, spec := range definition {
		if s.Agent(spec.Name).Status == StatusSkipped && !s.IsCompleted(spec.Name) {
			done = append(done, spec.Name)
		}
	}
	return done
}

// InProgress returns the stage currently marked in_progress, or "".
func (s Session) InProgress() string {
	for _, spec := range definition {
		if s.Agent(spec.Name).Status == StatusInProgress {
			return spec.Name
		}
	}
	return ""
}

// Validate checks the structural invariants of a loaded session.
func (s Session) Validate() error {
	if !s.Phase.Valid() {
		return fmt.Errorf("invalid phase %q", s.Phase)
	}
	flavor := s.Flavor()
	last := -1
	for _, name := range s.CompletedAgents {
		i := IndexOf(name)
		if i < 0 {
			return &UnknownStageError{Name: name}
		}
		if i <= last {
			return fmt.Errorf("completed_agents out of pipeline order at %q", name)
		}
		if !definition[i].AppliesTo(flavor) {
			return fmt.Errorf("completed_agents has %q, which is not a %s stage", name, flavor)
		}
		if s.Agent(name).Status == StatusSkipped {
			return fmt.Errorf("completed_agents has skipped stage %q", name)
		}
		last = i
	}
	inProgress := 0
	for name, st := range s.Agents {
		spec, ok := Lookup(name)
		if !ok {
			return &UnknownStageError{Name: name}
		}
		if st.Status == StatusInProgress {
			if !spec.AppliesTo(flavor) {
				return fmt.Errorf("stage %q is in progress but is not a %s stage", name, flavor)
			}
			inProgress++
		}
	}
	if inProgress > 1 {
		return fmt.Errorf("%d stages in progress, at most one allowed", inProgress)
	}
	return nil
}

// InsertCompleted adds name to completed in pipeline order, ignoring duplicates.
func InsertCompleted(completed []string, name string) []string {
	for _, c := range completed {
		if c == name {
			return append([]string{}, completed...)
		}
	}
	idx := IndexOf(name)
	out := make([]string, 0, len(completed)+1)
	inserted := false
	for _, c := range completed {
		if !inserted && IndexOf(c) > idx {
			out = append(out, name)
			inserted = true
		}
		out = append(out, c)
	}
	if !inserted {
		out = append(out, name)
	}
	return out
}

// RemoveCompleted returns completed without the given names.
func RemoveCompleted(completed []string, names ...string) []string {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	out := make([]string, 0, len(completed))
	for _, c := range completed {
		if !drop[c] {
			out = append(out, c)
		}
	}
	return out
}
