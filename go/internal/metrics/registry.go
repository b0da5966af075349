// Package metrics is the in-process metrics registry behind the /metrics and
// /api/metrics endpoints. Counters may be decremented so connection-scoped
// values can live in the counter store; explicit gauges survive a reset as
// zero; histograms keep their bucket layout across resets.
package metrics

import (
	"crypto/subtle"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrResetUnauthorized is returned when a reset token is configured and the
// caller supplied a different one.
var ErrResetUnauthorized = errors.New("metrics reset: token mismatch")

// DefaultBuckets is used when a histogram is observed before it was registered.
var DefaultBuckets = []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

type histogram struct {
	bounds []float64
	counts []uint64 // len(bounds)+1, last slot is +Inf
	sum    float64
	count  uint64
}

func newHistogram(bounds []float64) *histogram {
	b := append([]float64(nil), bounds...)
	sort.Float64s(b)
	return &histogram{bounds: b, counts: make([]uint64, len(b)+1)}
}

func (h *histogram) observe(v float64) {
	idx := sort.SearchFloat64s(h.bounds, v)
	h.counts[idx]++
	h.sum += v
	h.count++
}

func (h *histogram) clear() {
	for i := range h.counts {
		h.counts[i] = 0
	}
	h.sum = 0
	h.count = 0
}

// Registry is safe for concurrent use.
type Registry struct {
	namespace  string
	resetToken string

	mu         sync.Mutex
	help       map[string]string
	counters   map[string]int64
	gauges     map[string]float64
	histograms map[string]*histogram
}

// NewRegistry creates a registry whose exposition names are prefixed with
// namespace. An empty resetToken leaves Reset unprotected.
func NewRegistry(namespace, resetToken string) *Registry {
	return &Registry{
		namespace:  namespace,
		resetToken: resetToken,
		help:       make(map[string]string),
		counters:   make(map[string]int64),
		gauges:     make(map[string]float64),
		histograms: make(map[string]*histogram),
	}
}

// Describe attaches HELP text to a metric name of any kind.
func (r *Registry) Describe(name, help string) {
	r.mu.Lock()
	r.help[name] = help
	r.mu.Unlock()
}

func (r *Registry) Inc(name string) {
	r.Add(name, 1)
}

func (r *Registry) Dec(name string) {
	r.Add(name, -1)
}

func (r *Registry) Add(name string, delta int64) {
	r.mu.Lock()
	r.counters[name] += delta
	r.mu.Unlock()
}

// RegisterGauge declares a gauge so it is exported (as zero) before its
// first Set.
func (r *Registry) RegisterGauge(name, help string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.gauges[name]; !ok {
		r.gauges[name] = 0
	}
	if help != "" {
		r.help[name] = help
	}
}

func (r *Registry) SetGauge(name string, v float64) {
	r.mu.Lock()
	r.gauges[name] = v
	r.mu.Unlock()
}

func (r *Registry) AddGauge(name string, delta float64) {
	r.mu.Lock()
	r.gauges[name] += delta
	r.mu.Unlock()
}

// RegisterHistogram fixes the bucket upper bounds for name. Registering an
// existing histogram again is a no-op.
func (r *Registry) RegisterHistogram(name, help string, buckets []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.histograms[name]; !ok {
		r.histograms[name] = newHistogram(buckets)
	}
	if help != "" {
		r.help[name] = help
	}
}

func (r *Registry) Observe(name string, v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.histograms[name]
	if !ok {
		h = newHistogram(DefaultBuckets)
		r.histograms[name] = h
	}
	h.observe(v)
}

// ObserveDuration records d in milliseconds.
func (r *Registry) ObserveDuration(name string, d time.Duration) {
	r.Observe(name, float64(d)/float64(time.Millisecond))
}

// Counters returns a copy of the counter store.
func (r *Registry) Counters() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64, len(r.counters))
	for k, v := range r.counters {
		out[k] = v
	}
	return out
}

// Counter returns the current value of one counter.
func (r *Registry) Counter(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[name]
}

// Gauge returns the current value of one gauge.
func (r *Registry) Gauge(name string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gauges[name]
}

// HistogramCount returns how many observations name has seen.
func (r *Registry) HistogramCount(name string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[name]; ok {
		return h.count
	}
	return 0
}

// Reset clears counters and histogram observations and re-zeros gauges.
func (r *Registry) Reset(token string) error {
	if r.resetToken != "" && subtle.ConstantTimeCompare([]byte(r.resetToken), []byte(token)) != 1 {
		return ErrResetUnauthorized
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = make(map[string]int64)
	for name := range r.gauges {
		r.gauges[name] = 0
	}
	for _, h := range r.histograms {
		h.clear()
	}
	return nil
}

// ResetProtected reports whether Reset requires a token.
func (r *Registry) ResetProtected() bool {
	return r.resetToken != ""
}
