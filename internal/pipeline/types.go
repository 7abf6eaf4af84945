package pipeline

// AgentStatus is the lifecycle status of a single stage within a session.
type AgentStatus string

const (
	StatusPending           AgentStatus = "pending"
	StatusInProgress        AgentStatus = "in_progress"
	StatusCompleted         AgentStatus = "completed"
	StatusSkipped           AgentStatus = "skipped"
	StatusNeedsRevalidation AgentStatus = "needs_revalidation"
	StatusFailed            AgentStatus = "failed"
)

// Session is the persisted state document for one project.
type Session struct {
	Phase           Phase                 `json:"phase"`
	ProjectType     Flavor                `json:"project_type"`
	StartedAt       string                `json:"started_at"`
	CompletedAt     string                `json:"completed_at,omitempty"`
	Agents          map[string]AgentState `json:"agents"`
	CompletedAgents []string              `json:"completed_agents"`
	CurrentAgent    string                `json:"current_agent"`
	ModeTransitions []ModeTransition      `json:"mode_transitions"`
	History         []HistoryEntry        `json:"history"`
	Deviations      []DeviationRecord     `json:"deviations"`
	Backlog         []BacklogItem         `json:"backlog"`
	UpdatedAt       string                `json:"updated_at,omitempty"`
}

// AgentState tracks one stage. Score is nil until the stage is scored.
type AgentState struct {
	Status      AgentStatus `json:"status"`
	Score       *float64    `json:"score"`
	StartedAt   string      `json:"started_at,omitempty"`
	CompletedAt string      `json:"completed_at,omitempty"`
}

// ModeTransition is an append-only record of a phase change.
type ModeTransition struct {
	From      Phase  `json:"from"`
	To        Phase  `json:"to"`
	Trigger   string `json:"trigger"`
	Reason    string `json:"reason"`
	Timestamp string `json:"timestamp"`
}

// HistoryEntry records a stage-level event (started, completed, skipped, reset_to, ...).
type HistoryEntry struct {
	Action    string   `json:"action"`
	Stage     string   `json:"stage,omitempty"`
	Score     *float64 `json:"score,omitempty"`
	Detail    string   `json:"detail,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// DeviationRecord is the audit entry written every time a deviation is applied.
type DeviationRecord struct {
	ID        string           `json:"id"`
	Type      string           `json:"type"`
	Details   DeviationDetails `json:"details"`
	Changes   []string         `json:"changes"`
	Timestamp string           `json:"timestamp"`
}

// DeviationDetails carries the parameters of a deviation.
type DeviationDetails struct {
	TargetStage string         `json:"target_stage,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	Additions   []string       `json:"additions,omitempty"`
	Removals    []string       `json:"removals,omitempty"`
	Priorities  map[string]int `json:"priorities,omitempty"`
	Text        string         `json:"text,omitempty"`
}

// BacklogItem is a scope change recorded for later planning.
type BacklogItem struct {
	Title    string `json:"title"`
	Kind     string `json:"kind"` // "addition" or "removal"
	Priority int    `json:"priority"`
	AddedAt  string `json:"added_at"`
}

// Progress is the summary handed to status and context tooling.
type Progress struct {
	Phase           Phase    `json:"phase"`
	Percent         int      `json:"progress"`
	CompletedAgents []string `json:"completed_agents"`
	CurrentAgent    string   `json:"current_agent"`
	NextAgent       string   `json:"next_agent"`
	Complete        bool     `json:"complete"`
}
