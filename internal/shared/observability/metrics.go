package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Process-wide metrics that are not tied to a single audit.
var (
	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "check_external_types_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})

	WatcherRunsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "check_external_types_watcher_runs_skipped_total",
		Help: "Total number of watch-mode re-runs dropped by the rate limiter.",
	})
)

// AuditMetrics counts what one audit visited and found. Each instance
// registers on its own registry so audits can be exported independently.
type AuditMetrics struct {
	Registry *prometheus.Registry

	ItemsVisited  *prometheus.CounterVec
	Findings      *prometheus.CounterVec
	PhaseDuration *prometheus.HistogramVec
}

func NewAuditMetrics() *AuditMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &AuditMetrics{
		Registry: reg,
		ItemsVisited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "check_external_types_items_visited_total",
			Help: "Number of public items visited, by component kind.",
		}, []string{"kind"}),
		Findings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "check_external_types_findings_total",
			Help: "Number of findings recorded, by finding kind.",
		}, []string{"kind"}),
		PhaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "check_external_types_phase_seconds",
			Help:    "Time spent in each audit phase.",
			Buckets: prometheus.DefBuckets,
		}, []string{"phase"}),
	}
}

// ItemVisited is safe to call on a nil receiver.
func (m *AuditMetrics) ItemVisited(kind string) {
	if m == nil {
		return
	}
	m.ItemsVisited.WithLabelValues(kind).Inc()
}

func (m *AuditMetrics) FindingAdded(kind string) {
	if m == nil {
		return
	}
	m.Findings.WithLabelValues(kind).Inc()
}

func (m *AuditMetrics) ObservePhase(phase string, seconds float64) {
	if m == nil {
		return
	}
	m.PhaseDuration.WithLabelValues(phase).Observe(seconds)
}

// WriteTextfile writes the audit metrics in the node exporter textfile
// format.
func (m *AuditMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
