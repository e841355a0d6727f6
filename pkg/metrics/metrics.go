package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics replay worker counters on a private registry
type WorkerMetrics struct {
	registry *prometheus.Registry

	jobsTotal     *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	recovered     *prometheus.CounterVec
	framesEncoded prometheus.Counter
}

// NewWorkerMetrics 每次呼叫都建立獨立的 registry，測試之間不會互相衝突
func NewWorkerMetrics() *WorkerMetrics {
	m := &WorkerMetrics{
		registry: prometheus.NewRegistry(),
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replay_worker_jobs_total",
				Help: "Jobs finished by the replay worker",
			},
			[]string{"type", "status"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "replay_worker_job_duration_seconds",
				Help:    "Wall time from dispatch to terminal result",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"type"},
		),
		recovered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replay_worker_recovered_messages_total",
				Help: "Pending requests picked up again by recovery",
			},
			[]string{"strategy"},
		),
		framesEncoded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "replay_worker_frames_encoded_total",
				Help: "Raw frames written to the encoder",
			},
		),
	}

	m.registry.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.recovered,
		m.framesEncoded,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveJob a nil receiver is a no-op
func (m *WorkerMetrics) ObserveJob(jobType, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(jobType, status).Inc()
	m.jobDuration.WithLabelValues(jobType).Observe(elapsed.Seconds())
}

// AddRecovered count of messages re-dispatched by a recovery strategy
func (m *WorkerMetrics) AddRecovered(strategy string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recovered.WithLabelValues(strategy).Add(float64(n))
}

// AddFrames frames accepted by the encoder pipe
func (m *WorkerMetrics) AddFrames(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.framesEncoded.Add(float64(n))
}

// Handler exposition for the private registry
func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer used by tests to read back values
func (m *WorkerMetrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
