package observability

import (
	"context"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/efebarandurmaz/flowscope/internal/events"
)

// MetricsRegistry holds all registered metrics.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]*Counter
	gauges   map[string]*Gauge
	histos   map[string]*Histogram
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name   string
	help   string
	labels map[string]string
	value  float64
	mu     sync.Mutex
}

// Gauge is a metric that can go up or down.
type Gauge struct {
	name   string
	help   string
	labels map[string]string
	value  float64
	mu     sync.Mutex
}

// Histogram tracks distribution of values.
type Histogram struct {
	name    string
	help    string
	labels  map[string]string
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
	mu      sync.Mutex
}

// NewMetricsRegistry creates a new metrics registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*Counter),
		gauges:   make(map[string]*Gauge),
		histos:   make(map[string]*Histogram),
	}
}

func seriesKey(name string, labels map[string]string) string {
	return name + formatLabels(labels)
}

// Counter returns the counter for name and labels, registering it on first use.
func (r *MetricsRegistry) Counter(name, help string, labels map[string]string) *Counter {
	key := seriesKey(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.counters[key]; ok {
		return c
	}
	c := &Counter{name: name, help: help, labels: labels}
	r.counters[key] = c
	return c
}

// Gauge returns the gauge for name and labels, registering it on first use.
func (r *MetricsRegistry) Gauge(name, help string, labels map[string]string) *Gauge {
	key := seriesKey(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.gauges[key]; ok {
		return g
	}
	g := &Gauge{name: name, help: help, labels: labels}
	r.gauges[key] = g
	return g
}

// Histogram returns the histogram for name and labels, registering it on
// first use. Nil buckets mean DefaultBuckets.
func (r *MetricsRegistry) Histogram(name, help string, labels map[string]string, buckets []float64) *Histogram {
	key := seriesKey(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.histos[key]; ok {
		return h
	}
	if buckets == nil {
		buckets = DefaultBuckets()
	}
	h := &Histogram{
		name:    name,
		help:    help,
		labels:  labels,
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
	r.histos[key] = h
	return h
}

// DefaultBuckets returns default histogram buckets for latency.
func DefaultBuckets() []float64 {
	return []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
}

// SizeBuckets suits diagram node counts.
func SizeBuckets() []float64 {
	return []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000}
}

// Inc increments a counter by 1.
func (c *Counter) Inc() {
	c.Add(1)
}

// Add adds a value to the counter.
func (c *Counter) Add(v float64) {
	c.mu.Lock()
	c.value += v
	c.mu.Unlock()
}

// Value returns the counter value.
func (c *Counter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set sets the gauge value.
func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

// Inc increments the gauge by 1.
func (g *Gauge) Inc() {
	g.Add(1)
}

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() {
	g.Add(-1)
}

// Add adds a value to the gauge.
func (g *Gauge) Add(v float64) {
	g.mu.Lock()
	g.value += v
	g.mu.Unlock()
}

// Value returns the gauge value.
func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += v
	h.count++

	for i, bound := range h.buckets {
		if v <= bound {
			h.counts[i]++
		}
	}
}

// ObserveDuration records a duration in the histogram.
func (h *Histogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Handler returns an HTTP handler for Prometheus metrics.
func (r *MetricsRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WritePrometheus(w)
	})
}

// WritePrometheus writes metrics in Prometheus text format. Series are
// sorted so HELP and TYPE lines appear once per metric name.
func (r *MetricsRegistry) WritePrometheus(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	written := make(map[string]bool)
	header := func(name, metricType, help string) {
		if written[name] {
			return
		}
		written[name] = true
		io.WriteString(w, "# HELP "+name+" "+help+"\n")
		io.WriteString(w, "# TYPE "+name+" "+metricType+"\n")
	}

	for _, key := range sortedKeys(r.counters) {
		c := r.counters[key]
		c.mu.Lock()
		header(c.name, "counter", c.help)
		io.WriteString(w, key+" "+formatFloat(c.value)+"\n")
		c.mu.Unlock()
	}

	for _, key := range sortedKeys(r.gauges) {
		g := r.gauges[key]
		g.mu.Lock()
		header(g.name, "gauge", g.help)
		io.WriteString(w, key+" "+formatFloat(g.value)+"\n")
		g.mu.Unlock()
	}

	for _, key := range sortedKeys(r.histos) {
		h := r.histos[key]
		h.mu.Lock()
		header(h.name, "histogram", h.help)
		writeHistogram(w, h)
		h.mu.Unlock()
	}
}

func writeHistogram(w io.Writer, h *Histogram) {
	// Observe already counts cumulatively.
	for i, bound := range h.buckets {
		labels := copyLabels(h.labels)
		labels["le"] = formatFloat(bound)
		io.WriteString(w, h.name+"_bucket"+formatLabels(labels)+" "+strconv.FormatUint(h.counts[i], 10)+"\n")
	}

	labels := copyLabels(h.labels)
	labels["le"] = "+Inf"
	io.WriteString(w, h.name+"_bucket"+formatLabels(labels)+" "+strconv.FormatUint(h.count, 10)+"\n")

	io.WriteString(w, h.name+"_sum"+formatLabels(h.labels)+" "+formatFloat(h.sum)+"\n")
	io.WriteString(w, h.name+"_count"+formatLabels(h.labels)+" "+strconv.FormatUint(h.count, 10)+"\n")
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range sortedKeys(labels) {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(labels[k])
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

func copyLabels(labels map[string]string) map[string]string {
	result := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		result[k] = v
	}
	return result
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Flowscope-specific metrics

const (
	metricRequests = "flowscope_analysis_requests_total"
	metricFailures = "flowscope_analysis_failures_total"
	metricDuration = "flowscope_analysis_duration_seconds"
	metricNodes    = "flowscope_diagram_nodes"
	metricInFlight = "flowscope_analysis_in_flight"
)

// AnalysisMetrics records analysis traffic. It implements events.Publisher,
// so it can observe the analysis service directly.
type AnalysisMetrics struct {
	Registry *MetricsRegistry

	DiagramNodes *Histogram
	InFlight     *Gauge
}

// NewAnalysisMetrics creates the flowscope metrics on a fresh registry.
func NewAnalysisMetrics() *AnalysisMetrics {
	r := NewMetricsRegistry()
	return &AnalysisMetrics{
		Registry:     r,
		DiagramNodes: r.Histogram(metricNodes, "Nodes per analysed diagram", nil, SizeBuckets()),
		InFlight:     r.Gauge(metricInFlight, "Analyses currently running", nil),
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *AnalysisMetrics) Handler() http.Handler {
	return m.Registry.Handler()
}

// Requests returns the request counter for operation.
func (m *AnalysisMetrics) Requests(operation string) *Counter {
	return m.Registry.Counter(metricRequests, "Total analysis requests", map[string]string{"operation": operation})
}

// Failures returns the failure counter for operation.
func (m *AnalysisMetrics) Failures(operation string) *Counter {
	return m.Registry.Counter(metricFailures, "Total failed analysis requests", map[string]string{"operation": operation})
}

// Duration returns the latency histogram for operation.
func (m *AnalysisMetrics) Duration(operation string) *Histogram {
	return m.Registry.Histogram(metricDuration, "Analysis duration", map[string]string{"operation": operation}, nil)
}

// RecordAnalysis records one finished analysis.
func (m *AnalysisMetrics) RecordAnalysis(operation string, duration time.Duration, nodes int, err error) {
	m.Requests(operation).Inc()
	m.Duration(operation).Observe(duration.Seconds())
	m.DiagramNodes.Observe(float64(nodes))
	if err != nil {
		m.Failures(operation).Inc()
	}
}

func (m *AnalysisMetrics) Publish(ctx context.Context, topic string, event any) error {
	ev, ok := event.(events.Event)
	if !ok {
		return nil
	}
	d := time.Duration(ev.DurationMs) * time.Millisecond
	switch ev.Type {
	case events.TypeStarted:
		m.InFlight.Inc()
	case events.TypeCompleted:
		m.InFlight.Dec()
		m.RecordAnalysis(ev.Operation, d, ev.Nodes, nil)
	case events.TypeFailed:
		m.InFlight.Dec()
		m.Failures(ev.Operation).Inc()
		m.Requests(ev.Operation).Inc()
		m.Duration(ev.Operation).Observe(d.Seconds())
	}
	return nil
}

func (m *AnalysisMetrics) Close() error { return nil }

var globalMetrics *AnalysisMetrics
var metricsOnce sync.Once

// Metrics returns the global metrics instance.
func Metrics() *AnalysisMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewAnalysisMetrics()
	})
	return globalMetrics
}
