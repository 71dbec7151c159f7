package verlog

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts recorded versions and version conflicts per log table.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	recorded  *prometheus.CounterVec
	conflicts *prometheus.CounterVec
}

var _ prometheus.Collector = (*Metrics)(nil)

// NewMetrics returns unregistered counters; register them with a prometheus.Registerer.
func NewMetrics() *Metrics {
	return &Metrics{
		recorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verlog_versions_recorded_total",
			Help: "Total number of column versions appended to log tables.",
		}, []string{"log_table"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verlog_version_conflicts_total",
			Help: "Total number of version appends rejected by a primary key collision.",
		}, []string{"log_table"}),
	}
}

func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.recorded.Describe(ch)
	m.conflicts.Describe(ch)
}

func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.recorded.Collect(ch)
	m.conflicts.Collect(ch)
}

func (m *Metrics) observeRecorded(logTable string) {
	if m == nil {
		return
	}
	m.recorded.WithLabelValues(logTable).Inc()
}

func (m *Metrics) observeConflict(logTable string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(logTable).Inc()
}
