package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StateDirName is the per-project directory holding all orchestration state.
const StateDirName = ".agentline"

// ErrNoSession is returned by Load when the project has not been initialised.
var ErrNoSession = errors.New("no session")

// Store manages the session document of one project on disk.
// It performs whole-document reads and rewrites only; callers serialise access.
type Store struct {
	projectDir string
	stateDir   string
	now        func() time.Time
}

// NewStore creates a Store for projectDir using the default state directory.
func NewStore(projectDir string) *Store {
	return &Store{
		projectDir: projectDir,
		stateDir:   filepath.Join(projectDir, StateDirName),
		now:        time.Now,
	}
}

// NewStoreAt creates a Store whose state lives in stateDir instead of <projectDir>/.agentline.
func NewStoreAt(projectDir, stateDir string) *Store {
	s := NewStore(projectDir)
	if stateDir != "" {
		s.stateDir = stateDir
	}
	return s
}

// SetClock overrides the time source used for StartedAt and UpdatedAt.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// ProjectDir returns the project root this store belongs to.
func (s *Store) ProjectDir() string {
	return s.projectDir
}

// StateDir returns the directory holding session and handoff files.
func (s *Store) StateDir() string {
	return s.stateDir
}

// SessionPath returns the path to session.json.
func (s *Store) SessionPath() string {
	return filepath.Join(s.stateDir, "session.json")
}

// Exists reports whether a session document is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.SessionPath())
	return err == nil
}

// Init creates a new session document. It fails if one already exists.
func (s *Store) Init(flavor Flavor) (Session, error) {
	if flavor != FlavorGreenfield && flavor != FlavorBrownfield {
		return Session{}, fmt.Errorf("invalid project type %q", flavor)
	}
	if s.Exists() {
		return Session{}, fmt.Errorf("session already exists at %s", s.SessionPath())
	}
	sess := NewSession(flavor, s.now())
	if err := s.Save(sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Load reads the session document.
func (s *Store) Load() (Session, error) {
	var sess Session
	if err := ReadJSON(s.SessionPath(), &sess); err != nil {
		if os.IsNotExist(err) {
			return Session{}, fmt.Errorf("%w in %s", ErrNoSession, s.projectDir)
		}
		return Session{}, err
	}
	normalize(&sess)
	if err := sess.Validate(); err != nil {
		return Session{}, fmt.Errorf("session %s: %w", s.SessionPath(), err)
	}
	return sess, nil
}

// Save rewrites the session document in full.
func (s *Store) Save(sess Session) error {
	if err := sess.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid session: %w", err)
	}
	if err := WriteJSON(s.SessionPath(), sess); err != nil {
		return fmt.Errorf("write session.json: %w", err)
	}
	return nil
}

// Update loads the session, applies fn, stamps UpdatedAt, and saves the result.
// Nothing is written when fn returns an error.
func (s *Store) Update(fn func(Session) (Session, error)) (Session, error) {
	sess, err := s.Load()
	if err != nil {
		return Session{}, err
	}
	next, err := fn(sess)
	if err != nil {
		return Session{}, err
	}
	next.UpdatedAt = Timestamp(s.now())
	if err := s.Save(next); err != nil {
		return Session{}, err
	}
	return next, nil
}

// normalize fills nil collections so documents written by hand load cleanly.
func normalize(sess *Session) {
	if sess.Agents == nil {
		sess.Agents = make(map[string]AgentState)
	}
	for _, spec := range definition {
		if _, ok := sess.Agents[spec.Name]; !ok {
			sess.Agents[spec.Name] = AgentState{Status: StatusPending}
		}
	}
	if sess.CompletedAgents == nil {
		sess.CompletedAgents = []string{}
	}
	if sess.ModeTransitions == nil {
		sess.ModeTransitions = []ModeTransition{}
	}
	if sess.History == nil {
		sess.History = []HistoryEntry{}
	}
	if sess.Deviations == nil {
		sess.Deviations = []DeviationRecord{}
	}
	if sess.Backlog == nil {
		sess.Backlog = []BacklogItem{}
	}
	if sess.ProjectType == "" {
		sess.ProjectType = FlavorGreenfield
	}
}
