package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Job results recorded by the jobs counter.
const (
	resultCompleted = "completed"
	resultFailed    = "failed"
	resultRequeued  = "requeued"
	resultAbandoned = "abandoned"
	resultStitched  = "stitched"
)

// Metrics holds the worker's Prometheus collectors.
type Metrics struct {
	jobs          *prometheus.CounterVec
	encodeSeconds prometheus.Histogram
	active        prometheus.Gauge
}

// NewMetrics registers the worker collectors with reg. A nil registerer
// leaves the collectors unregistered, which keeps tests isolated.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxyencoder_jobs_total",
			Help: "Encode jobs processed by this worker, by result.",
		}, []string{"result"}),
		encodeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "proxyencoder_encode_seconds",
			Help:    "Wall time spent in ffmpeg per job.",
			Buckets: prometheus.ExponentialBuckets(5, 2, 12),
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "proxyencoder_active_jobs",
			Help: "Jobs currently encoding on this worker.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.jobs, m.encodeSeconds, m.active)
	}
	return m
}

func (m *Metrics) observe(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(result).Inc()
	if elapsed > 0 {
		m.encodeSeconds.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) count(result string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(result).Inc()
}

func (m *Metrics) jobStarted() {
	if m != nil {
		m.active.Inc()
	}
}

func (m *Metrics) jobFinished() {
	if m != nil {
		m.active.Dec()
	}
}
