package qbridge

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const latencyWindowSize = 1000

/*
Metrics keeps an in-process snapshot of pool and simulator activity that the
regulators read, and mirrors it into Prometheus collectors on a private
registry so several instances can coexist in one process.
*/
type Metrics struct {
	mu sync.RWMutex

	WorkerCount   int
	ActiveWorkers int
	JobQueueSize  int
	JobCount      int64
	FailedJobs    int64
	Fallbacks     int64
	RateLimitHits int64
	ReservedBytes uint64

	AverageJobLatency    time.Duration
	P95JobLatency        time.Duration
	P99JobLatency        time.Duration
	JobSuccessRate       float64
	CircuitBreakerStates map[string]CircuitState

	latencies []time.Duration

	registry     *prometheus.Registry
	jobs         *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	shots        prometheus.Counter
	qubits       prometheus.Histogram
	fallbacks    prometheus.Counter
	rateLimited  prometheus.Counter
	breakerState *prometheus.GaugeVec
	workers      prometheus.Gauge
	reserved     prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		CircuitBreakerStates: make(map[string]CircuitState),
		latencies:            make([]time.Duration, 0, latencyWindowSize),
		registry:             registry,
		jobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qbridge",
			Name:      "jobs_total",
			Help:      "Computation jobs by backend and outcome.",
		}, []string{"backend", "status"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "qbridge",
			Name:      "job_duration_seconds",
			Help:      "Wall time of computation jobs.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"backend"}),
		shots: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "qbridge",
			Name:      "shots_total",
			Help:      "Measurement shots sampled.",
		}),
		qubits: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "qbridge",
			Name:      "circuit_qubits",
			Help:      "Register width of simulated circuits.",
			Buckets:   prometheus.LinearBuckets(1, 3, 9),
		}),
		fallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "qbridge",
			Name:      "backend_fallbacks_total",
			Help:      "Jobs re-run on the simulator after a backend failed.",
		}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "qbridge",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		breakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "qbridge",
			Name:      "circuit_breaker_state",
			Help:      "Breaker state per backend: 0 closed, 1 open, 2 half-open.",
		}, []string{"backend"}),
		workers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "qbridge",
			Name:      "pool_workers",
			Help:      "Workers running in the job pool.",
		}),
		reserved: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "qbridge",
			Name:      "reserved_state_bytes",
			Help:      "Bytes reserved by in-flight state vectors.",
		}),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) recordJob(backend string, start time.Time, err error) {
	duration := time.Since(start)
	status := "completed"
	if err != nil {
		status = "failed"
	}

	m.jobs.WithLabelValues(backend, status).Inc()
	m.jobDuration.WithLabelValues(backend).Observe(duration.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()

	m.JobCount++
	if err != nil {
		m.FailedJobs++
	}
	m.JobSuccessRate = float64(m.JobCount-m.FailedJobs) / float64(m.JobCount)
	m.updateLatencyPercentiles(duration)
}

func (m *Metrics) updateLatencyPercentiles(duration time.Duration) {
	m.AverageJobLatency = (m.AverageJobLatency*time.Duration(m.JobCount-1) + duration) /
		time.Duration(m.JobCount)

	m.latencies = append(m.latencies, duration)
	if len(m.latencies) > latencyWindowSize {
		m.latencies = m.latencies[1:]
	}

	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	m.P95JobLatency = sorted[min(int(float64(len(sorted))*0.95), len(sorted)-1)]
	m.P99JobLatency = sorted[min(int(float64(len(sorted))*0.99), len(sorted)-1)]
}

func (m *Metrics) recordRun(qubits, shots int) {
	m.qubits.Observe(float64(qubits))
	m.shots.Add(float64(shots))
}

func (m *Metrics) recordFallback() {
	m.fallbacks.Inc()

	m.mu.Lock()
	m.Fallbacks++
	m.mu.Unlock()
}

func (m *Metrics) recordRateLimitHit() {
	m.rateLimited.Inc()

	m.mu.Lock()
	m.RateLimitHits++
	m.mu.Unlock()
}

func (m *Metrics) setBreakerState(backend string, state CircuitState) {
	m.breakerState.WithLabelValues(backend).Set(float64(state))

	m.mu.Lock()
	m.CircuitBreakerStates[backend] = state
	m.mu.Unlock()
}

func (m *Metrics) setWorkers(total, active, queued int) {
	m.workers.Set(float64(total))

	m.mu.Lock()
	m.WorkerCount = total
	m.ActiveWorkers = active
	m.JobQueueSize = queued
	m.mu.Unlock()
}

func (m *Metrics) setReserved(bytes uint64) {
	m.reserved.Set(float64(bytes))

	m.mu.Lock()
	m.ReservedBytes = bytes
	m.mu.Unlock()
}

// load returns the queue depth and average job latency the regulators read.
func (m *Metrics) load() (queued int, latency time.Duration) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.JobQueueSize, m.AverageJobLatency
}

// ExportMetrics returns a JSON-friendly snapshot.
func (m *Metrics) ExportMetrics() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]any{
		"worker_count":    m.WorkerCount,
		"active_workers":  m.ActiveWorkers,
		"queue_size":      m.JobQueueSize,
		"job_count":       m.JobCount,
		"success_rate":    m.JobSuccessRate,
		"fallbacks":       m.Fallbacks,
		"rate_limit_hits": m.RateLimitHits,
		"reserved_bytes":  m.ReservedBytes,
		"avg_latency":     m.AverageJobLatency.Milliseconds(),
		"p95_latency":     m.P95JobLatency.Milliseconds(),
		"p99_latency":     m.P99JobLatency.Milliseconds(),
	}
}
