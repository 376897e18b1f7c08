package qbridge

import (
	"sync"
	"time"
)

// pressureLimit is the pressure at and above which new jobs are refused.
const pressureLimit = 0.8

/*
BackPressureRegulator refuses new jobs while the pool is congested. Pressure
combines queue depth against maxQueue (weight 0.6) with average job latency
against the target (weight 0.4), clamped to [0, 1]. It rises immediately
when the pool reports congestion and decays by 0.1 per Renormalize once the
queue is under half full and latency is back under the target.
*/
type BackPressureRegulator struct {
	mu sync.RWMutex

	maxQueue      int
	targetLatency time.Duration
	pressure      float64
	metrics       *Metrics
}

func NewBackPressureRegulator(cfg BackPressureConfig) *BackPressureRegulator {
	return &BackPressureRegulator{
		maxQueue:      max(cfg.MaxQueue, 1),
		targetLatency: cfg.TargetLatency,
	}
}

func (bp *BackPressureRegulator) Observe(metrics *Metrics) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	bp.metrics = metrics
	bp.update()
}

func (bp *BackPressureRegulator) Limit() bool {
	bp.mu.RLock()
	defer bp.mu.RUnlock()

	return bp.pressure >= pressureLimit
}

func (bp *BackPressureRegulator) Renormalize() {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if bp.metrics == nil {
		return
	}

	queued, latency := bp.metrics.load()
	measured := bp.measure(queued, latency)

	if measured > bp.pressure {
		bp.pressure = measured
		return
	}

	if queued < bp.maxQueue/2 && latency < bp.targetLatency {
		bp.pressure = max(measured, bp.pressure-0.1)
	}
}

// Pressure returns the current pressure in [0, 1].
func (bp *BackPressureRegulator) Pressure() float64 {
	bp.mu.RLock()
	defer bp.mu.RUnlock()

	return bp.pressure
}

func (bp *BackPressureRegulator) update() {
	if bp.metrics == nil {
		return
	}

	bp.pressure = bp.measure(bp.metrics.load())
}

func (bp *BackPressureRegulator) measure(queued int, latency time.Duration) float64 {
	queuePressure := float64(queued) / float64(bp.maxQueue)

	latencyPressure := 0.0
	if latency > 0 && bp.targetLatency > 0 {
		latencyPressure = float64(latency) / float64(bp.targetLatency)
	}

	return clamp01(0.6*queuePressure + 0.4*latencyPressure)
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
