package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application. A nil *Metrics
// records nothing.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	JobsSubmitted       *prometheus.CounterVec
	JobsFinished        *prometheus.CounterVec
	JobsRunning         prometheus.Gauge
	JobsQueued          prometheus.Gauge
	FetchAttempts       *prometheus.CounterVec
	FetchDuration       *prometheus.HistogramVec
	RecordsExtracted    *prometheus.CounterVec
	ProgressDropped     prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		JobsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_submitted_total",
			Help: "Total number of job runs queued.",
		}, []string{"type"}),
		JobsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_finished_total",
			Help: "Total number of job runs that reached a terminal status.",
		}, []string{"type", "status"}),
		JobsRunning: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jobs_running",
			Help: "Current number of running job runs.",
		}),
		JobsQueued: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jobs_queued",
			Help: "Current number of queued job runs.",
		}),
		FetchAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fetch_attempts_total",
			Help: "Total number of fetch attempts by outcome.",
		}, []string{"outcome"}), // success, transient, permanent
		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fetch_duration_seconds",
			Help:    "Duration of single fetch attempts.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"host"}),
		RecordsExtracted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "records_extracted_total",
			Help: "Total number of records extracted.",
		}, []string{"type"}),
		ProgressDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "progress_events_dropped_total",
			Help: "Progress notifications dropped because the dispatcher was full.",
		}),
	}
}

func (m *Metrics) IncSubmitted(jobType string) {
	if m == nil {
		return
	}
	m.JobsSubmitted.WithLabelValues(jobType).Inc()
	m.JobsQueued.Inc()
}

func (m *Metrics) IncDequeued() {
	if m == nil {
		return
	}
	m.JobsQueued.Dec()
}

func (m *Metrics) IncRunning() {
	if m == nil {
		return
	}
	m.JobsRunning.Inc()
}

func (m *Metrics) IncFinished(jobType, status string, wasRunning bool) {
	if m == nil {
		return
	}
	m.JobsFinished.WithLabelValues(jobType, status).Inc()
	if wasRunning {
		m.JobsRunning.Dec()
	}
}

func (m *Metrics) ObserveFetch(host, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.FetchAttempts.WithLabelValues(outcome).Inc()
	m.FetchDuration.WithLabelValues(host).Observe(seconds)
}

func (m *Metrics) AddRecords(jobType string, n int) {
	if m == nil {
		return
	}
	m.RecordsExtracted.WithLabelValues(jobType).Add(float64(n))
}

func (m *Metrics) IncProgressDropped() {
	if m == nil {
		return
	}
	m.ProgressDropped.Inc()
}

func (m *Metrics) ObserveHTTP(method, path, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(seconds)
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}
