package handoff

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lucasnoah/agentline/internal/pipeline"
)

// Note is a durable per-stage remark kept across runs.
type Note struct {
	Text    string `yaml:"text" json:"text"`
	Source  string `yaml:"source,omitempty" json:"source,omitempty"`
	AddedAt string `yaml:"added_at" json:"added_at"`
}

type noteFile struct {
	Stage string `yaml:"stage"`
	Notes []Note `yaml:"notes"`
}

// MemoryStore keeps notes in <stateDir>/memory/<stage>.yaml.
type MemoryStore struct {
	dir string
	now func() time.Time
}

// NewMemoryStore opens the memory directory of a project state directory.
func NewMemoryStore(stateDir string) *MemoryStore {
	return &MemoryStore{dir: filepath.Join(stateDir, "memory"), now: time.Now}
}

// SetClock overrides the time source (for testing).
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.now = now
}

// Path returns the notes file of stage.
func (m *MemoryStore) Path(stage string) string {
	return filepath.Join(m.dir, stage+".yaml")
}

// Notes returns the notes recorded for stage, or nil.
func (m *MemoryStore) Notes(stage string) ([]Note, error) {
	var f noteFile
	if err := pipeline.ReadYAML(m.Path(stage), &f); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read notes for %s: %w", stage, err)
	}
	return f.Notes, nil
}

// Add appends a note for stage.
func (m *MemoryStore) Add(stage, text, source string) error {
	if _, err := pipeline.MustLookup(stage); err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("empty note")
	}
	notes, err := m.Notes(stage)
	if err != nil {
		return err
	}
	notes = append(notes, Note{Text: text, Source: source, AddedAt: pipeline.Timestamp(m.now())})
	return pipeline.WriteYAML(m.Path(stage), noteFile{Stage: stage, Notes: notes})
}
