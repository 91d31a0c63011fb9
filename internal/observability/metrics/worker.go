package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/chapterflow/internal/core/domain"
)

// WorkerMetrics implements ports.JobObserver.
type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	jobsTotal         *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
	jobsInFlight      prometheus.Gauge
	queueLag          prometheus.Histogram
	chaptersPersisted prometheus.Counter
	batchFlushes      *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": service}

	jobsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Ingestion jobs by terminal status.",
		},
		[]string{"service", "status"},
	)
	jobDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "job_duration_seconds",
			Help:      "Ingestion job duration in seconds by terminal status.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "status"},
	)
	jobsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "jobs_in_flight",
			Help:        "Number of ingestion jobs currently running.",
			ConstLabels: labels,
		},
	)
	queueLag := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "queue_lag_seconds",
			Help:        "Delay between enqueue and processing start.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
			ConstLabels: labels,
		},
	)
	chaptersPersisted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "chapters_persisted_total",
			Help:        "Chapters written by successful batch flushes.",
			ConstLabels: labels,
		},
	)
	batchFlushes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "batch_flushes_total",
			Help:      "Chapter batch flushes by result.",
		},
		[]string{"service", "result"},
	)

	registry.MustRegister(jobsTotal, jobDuration, jobsInFlight, queueLag, chaptersPersisted, batchFlushes)

	return &WorkerMetrics{
		registry:          registry,
		service:           service,
		jobsTotal:         jobsTotal,
		jobDuration:       jobDuration,
		jobsInFlight:      jobsInFlight,
		queueLag:          queueLag,
		chaptersPersisted: chaptersPersisted,
		batchFlushes:      batchFlushes,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) Registerer() prometheus.Registerer {
	return m.registry
}

func (m *WorkerMetrics) JobStarted(job domain.IngestionJob) {
	m.jobsInFlight.Inc()
	if !job.EnqueuedAt.IsZero() {
		if lag := time.Since(job.EnqueuedAt); lag >= 0 {
			m.queueLag.Observe(lag.Seconds())
		}
	}
}

func (m *WorkerMetrics) JobFinished(job domain.IngestionJob, status domain.DocumentStatus, _ int) {
	m.jobsInFlight.Dec()
	m.jobsTotal.WithLabelValues(m.service, string(status)).Inc()
	if !job.EnqueuedAt.IsZero() {
		m.jobDuration.WithLabelValues(m.service, string(status)).Observe(time.Since(job.EnqueuedAt).Seconds())
	}
}

func (m *WorkerMetrics) BatchFlushed(size int, err error) {
	if err != nil {
		m.batchFlushes.WithLabelValues(m.service, "error").Inc()
		return
	}
	m.batchFlushes.WithLabelValues(m.service, "ok").Inc()
	m.chaptersPersisted.Add(float64(size))
}
