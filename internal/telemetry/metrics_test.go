package telemetry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()
	m.RecordsRead("pivot", 10)
	m.RecordsRead("pivot", 5)
	m.ArtifactWritten("matrix")
	m.BatchTask(true)
	m.BatchTask(false)
	m.BatchTask(false)

	assert.Equal(t, 15.0, testutil.ToFloat64(m.recordsRead.WithLabelValues("pivot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.artifactsWritten.WithLabelValues("matrix")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.batchTasks.WithLabelValues("failure")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordsRead("pivot", 1)
		m.ArtifactWritten("matrix")
		m.ObserveCommand("pivot", time.Second)
		m.BatchTask(true)
	})
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.ObserveCommand("qc-flags", 200*time.Millisecond)
	m.RecordsRead("qc-flags", 3)

	path := filepath.Join(t.TempDir(), "assaykit.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `assaykit_records_read_total{command="qc-flags"} 3`)
	assert.Contains(t, string(data), "assaykit_command_duration_seconds_count")
}

func TestNewLogger(t *testing.T) {
	assert.NotNil(t, NewLogger(true))
	assert.NotNil(t, NewLogger(false))
	assert.NotNil(t, OrNop(nil))
}
