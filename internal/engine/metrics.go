package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"idgaf/pkg/types"
)

var (
	modelLoads = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "idgaf", Subsystem: "engine", Name: "model_loads_total",
		Help: "Successful model loads",
	})
	modelUnloads = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "idgaf", Subsystem: "engine", Name: "model_unloads_total",
		Help: "Explicit model unloads",
	})
	opDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "idgaf", Subsystem: "engine", Name: "op_duration_seconds",
		Help:    "Duration of modality operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	opErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "idgaf", Subsystem: "engine", Name: "op_errors_total",
		Help: "Failed modality operations by error kind",
	}, []string{"op", "kind"})
)

func init() {
	prometheus.MustRegister(modelLoads, modelUnloads, opDuration, opErrors)
}

// metricsUpdate is a partial record; nil fields leave the previous value.
type metricsUpdate struct {
	inferenceTime *time.Duration
	memoryBytes   *int64
	tokensPerSec  *float64
	loadTime      *time.Duration
}

// updateMetrics merges an update over the model's record, creating a fresh
// zeroed record on first touch. One writer per model id at a time is the
// documented expectation; the lock protects the map itself.
func (e *Engine) updateMetrics(id string, u metricsUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pm, ok := e.metrics[id]
	if !ok {
		pm = &types.PerformanceMetrics{}
		e.metrics[id] = pm
	}
	if u.inferenceTime != nil {
		pm.InferenceTime = *u.inferenceTime
	}
	if u.memoryBytes != nil {
		pm.MemoryBytes = *u.memoryBytes
	}
	if u.tokensPerSec != nil {
		pm.TokensPerSec = *u.tokensPerSec
	}
	if u.loadTime != nil {
		pm.LoadTime = *u.loadTime
	}
}

// Metrics returns the current record for a model id.
func (e *Engine) Metrics(id string) (types.PerformanceMetrics, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pm, ok := e.metrics[id]
	if !ok {
		return types.PerformanceMetrics{}, false
	}
	return *pm, true
}
