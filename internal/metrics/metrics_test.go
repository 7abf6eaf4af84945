package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.GateEvaluationsTotal.WithLabelValues("post-dev", "PASS").Inc()
	m.GateEvaluationsTotal.WithLabelValues("post-dev", "PASS").Inc()
	m.DeviationsTotal.WithLabelValues("ROLLBACK").Inc()
	m.Progress.Set(45)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.GateEvaluationsTotal.WithLabelValues("post-dev", "PASS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeviationsTotal.WithLabelValues("ROLLBACK")))
	assert.Equal(t, 45.0, testutil.ToFloat64(m.Progress))
}

func TestSetBreakerState(t *testing.T) {
	m := New()
	m.SetBreakerState("pre-deploy", "OPEN")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("pre-deploy")))
	m.SetBreakerState("pre-deploy", "HALF_OPEN")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("pre-deploy")))
	m.SetBreakerState("pre-deploy", "CLOSED")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("pre-deploy")))
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.IntentsTotal.WithLabelValues("planning").Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.IntentsTotal.WithLabelValues("planning")))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.StageEventsTotal.WithLabelValues("dev", "completed").Inc()
	path := filepath.Join(t.TempDir(), "agentline.prom")

	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `agentline_stage_events_total{action="completed",stage="dev"} 1`), string(data))
}
