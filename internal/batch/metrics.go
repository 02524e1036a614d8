package batch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts coordinator activity. A nil *Metrics records nothing.
type Metrics struct {
	chunks   *prometheus.CounterVec
	records  *prometheus.CounterVec
	attempts prometheus.Counter
	retries  prometheus.Counter
	duration prometheus.Histogram
}

// NewMetrics creates the coordinator collectors and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opsync",
			Subsystem: "batch",
			Name:      "chunks_total",
			Help:      "Chunks finished, by terminal status.",
		}, []string{"status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opsync",
			Subsystem: "batch",
			Name:      "records_total",
			Help:      "Record ids processed, by chunk status.",
		}, []string{"status"}),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opsync",
			Subsystem: "batch",
			Name:      "dispatch_attempts_total",
			Help:      "Dispatch calls made, including retries.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opsync",
			Subsystem: "batch",
			Name:      "retries_total",
			Help:      "Backoff waits scheduled after a retryable failure.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "opsync",
			Subsystem: "batch",
			Name:      "bulk_update_duration_seconds",
			Help:      "Wall time of whole bulk update calls.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
	}

	if reg != nil {
		reg.MustRegister(m.chunks, m.records, m.attempts, m.retries, m.duration)
	}
	return m
}

func (m *Metrics) observeChunk(res ChunkResult) {
	if m == nil {
		return
	}
	status := res.Status.String()
	m.chunks.WithLabelValues(status).Inc()
	m.records.WithLabelValues(status).Add(float64(len(res.IDs)))
	m.attempts.Add(float64(res.Attempts))
}

func (m *Metrics) retried() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) observeRun(d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}
