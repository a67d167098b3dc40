package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters a command run updates. Its registry can be
// written to a node-exporter textfile when the run ends.
type Metrics struct {
	Registry *prometheus.Registry

	recordsRead      *prometheus.CounterVec
	artifactsWritten *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec
	batchTasks       *prometheus.CounterVec
}

// NewMetrics registers the assaykit collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		recordsRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assaykit",
			Name:      "records_read_total",
			Help:      "Table rows read, by command.",
		}, []string{"command"}),
		artifactsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assaykit",
			Name:      "artifacts_written_total",
			Help:      "Files written, by artifact kind.",
		}, []string{"kind"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "assaykit",
			Name:      "command_duration_seconds",
			Help:      "Wall time of a command run.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 4, 8),
		}, []string{"command"}),
		batchTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assaykit",
			Name:      "batch_tasks_total",
			Help:      "Batch pool tasks, by outcome.",
		}, []string{"outcome"}),
	}
	m.Registry.MustRegister(m.recordsRead, m.artifactsWritten, m.commandDuration, m.batchTasks)
	return m
}

// RecordsRead adds n rows read by command.
func (m *Metrics) RecordsRead(command string, n int) {
	if m == nil {
		return
	}
	m.recordsRead.WithLabelValues(command).Add(float64(n))
}

// ArtifactWritten counts one written file of the given kind.
func (m *Metrics) ArtifactWritten(kind string) {
	if m == nil {
		return
	}
	m.artifactsWritten.WithLabelValues(kind).Inc()
}

// ObserveCommand records a command's duration.
func (m *Metrics) ObserveCommand(command string, d time.Duration) {
	if m == nil {
		return
	}
	m.commandDuration.WithLabelValues(command).Observe(d.Seconds())
}

// BatchTask counts a finished batch task.
func (m *Metrics) BatchTask(ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.batchTasks.WithLabelValues(outcome).Inc()
}

// WriteTextfile writes the registry in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
