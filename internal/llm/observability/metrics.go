package observability

import (
	"maps"
	"sync"
)

// Metrics collects counters, histograms and gauges with tag dimensions.
type Metrics interface {
	IncrementCounter(name string, tags map[string]string, value float64)
	RecordHistogram(name string, tags map[string]string, value float64)
	SetGauge(name string, tags map[string]string, value float64)
}

// Metric names emitted by the decorator.
const (
	MetricRequestsTotal   = "llm.requests.total"
	MetricRequestsSuccess = "llm.requests.success"
	MetricRequestsErrors  = "llm.requests.errors"
	MetricDurationMs      = "llm.request.duration_ms"
	MetricTTFTMs          = "llm.stream.ttft_ms"
	MetricStreamFragments = "llm.stream.fragments"
	MetricPromptTokens    = "llm.tokens.prompt"
	MetricOutputTokens    = "llm.tokens.completion"
	MetricInFlight        = "llm.requests.in_flight"
)

// NoOpMetrics discards everything.
type NoOpMetrics struct{}

// NewNoOpMetrics returns a Metrics that discards all data.
func NewNoOpMetrics() *NoOpMetrics { return &NoOpMetrics{} }

func (n *NoOpMetrics) IncrementCounter(_ string, _ map[string]string, _ float64) {}

func (n *NoOpMetrics) RecordHistogram(_ string, _ map[string]string, _ float64) {}

func (n *NoOpMetrics) SetGauge(_ string, _ map[string]string, _ float64) {}

// Sample is one recorded metric observation.
type Sample struct {
	Name  string
	Tags  map[string]string
	Value float64
}

// Recorder is an in-memory Metrics implementation, safe for concurrent use.
// The CLI prints it after a run and tests assert against it.
type Recorder struct {
	mu         sync.Mutex
	counters   map[string]float64
	histograms map[string][]Sample
	gauges     map[string]float64
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		counters:   make(map[string]float64),
		histograms: make(map[string][]Sample),
		gauges:     make(map[string]float64),
	}
}

func (r *Recorder) IncrementCounter(name string, _ map[string]string, value float64) {
	r.mu.Lock()
	r.counters[name] += value
	r.mu.Unlock()
}

func (r *Recorder) RecordHistogram(name string, tags map[string]string, value float64) {
	r.mu.Lock()
	r.histograms[name] = append(r.histograms[name], Sample{Name: name, Tags: maps.Clone(tags), Value: value})
	r.mu.Unlock()
}

func (r *Recorder) SetGauge(name string, _ map[string]string, value float64) {
	r.mu.Lock()
	r.gauges[name] = value
	r.mu.Unlock()
}

// Counter returns the accumulated value of a counter.
func (r *Recorder) Counter(name string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[name]
}

// Histogram returns the samples recorded under name.
func (r *Recorder) Histogram(name string) []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sample, len(r.histograms[name]))
	copy(out, r.histograms[name])
	return out
}

// Gauge returns the last value set for name.
func (r *Recorder) Gauge(name string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gauges[name]
}
