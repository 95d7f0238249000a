package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "linkweaver"
	metricsSubsystem = "queue"
)

// Job outcomes recorded by the pool.
const (
	OutcomeCompleted = "completed"
	OutcomeDelayed   = "delayed"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
	OutcomeLeaseLost = "lease_lost"
)

// Metrics holds the queue and worker pool collectors.
type Metrics struct {
	JobsProcessed *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec
	Depth         *prometheus.GaugeVec
	BusyWorkers   prometheus.Gauge
}

// NewMetrics creates and registers the queue metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		JobsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "jobs_processed_total",
			Help:      "Jobs processed by kind and outcome",
		}, []string{"kind", "outcome"}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "job_duration_seconds",
			Help:      "Handler run time per job kind",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"kind"}),
		Depth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "depth",
			Help:      "Jobs per queue state",
		}, []string{"state"}),
		BusyWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "busy_workers",
			Help:      "Workers currently running a job",
		}),
	}
}

func (m *Metrics) observeStats(s Stats) {
	if m == nil {
		return
	}
	m.Depth.WithLabelValues("waiting").Set(float64(s.Waiting))
	m.Depth.WithLabelValues("active").Set(float64(s.Active))
	m.Depth.WithLabelValues("delayed").Set(float64(s.Delayed))
	m.Depth.WithLabelValues("failed").Set(float64(s.Failed))
	m.Depth.WithLabelValues("completed").Set(float64(s.Completed))
}
