package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter("info", "json", &buf)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("stage completed", zap.String("stage", "dev"), zap.Float64("score", 92))
	require.NoError(t, log.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry), buf.String())
	assert.Equal(t, "stage completed", entry["msg"])
	assert.Equal(t, "dev", entry["stage"])
	assert.Equal(t, "info", entry["level"])
	assert.Contains(t, entry, "ts")
}

func TestNewWithWriter_Console(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter("debug", "console", &buf)
	require.NoError(t, err)
	log.Debug("routing", zap.String("intent", "planning"))
	assert.Contains(t, buf.String(), "routing")
	assert.Contains(t, buf.String(), "planning")
}

func TestNewWithWriter_Invalid(t *testing.T) {
	_, err := NewWithWriter("chatty", "json", &bytes.Buffer{})
	assert.Error(t, err)
	_, err = NewWithWriter("info", "xml", &bytes.Buffer{})
	assert.Error(t, err)
}
