// Package promobs records SDK metrics as Prometheus collectors.
//
// It only implements observability.Metrics; pair it with a tracing and
// logging backend through observability.Combine:
//
//	metrics := promobs.New(promobs.WithRegisterer(prometheus.DefaultRegisterer))
//	provider := observability.Combine(slogobs.New(), metrics)
package promobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/leofalp/qianfan/providers/observability"
)

// DefaultLabels are the attribute keys turned into Prometheus labels when
// WithLabels is not given. Attributes outside the label set are dropped.
var DefaultLabels = []string{
	observability.AttrQianfanResource,
	observability.AttrQianfanModel,
	observability.AttrQianfanErrorCode,
}

// DefaultBuckets suit request latencies in seconds, from 50ms up to two minutes.
var DefaultBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// Metrics implements observability.Metrics with CounterVec and HistogramVec
// collectors created on first use.
type Metrics struct {
	reg       prometheus.Registerer
	namespace string
	labels    []string
	names     []string
	buckets   []float64

	mu         sync.Mutex
	counters   map[string]*counter
	histograms map[string]*histogram
}

var _ observability.Metrics = (*Metrics)(nil)

// Option configures Metrics.
type Option func(*Metrics)

// WithRegisterer sets where collectors are registered. Defaults to
// prometheus.DefaultRegisterer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(m *Metrics) { m.reg = reg }
}

// WithNamespace prefixes every metric name.
func WithNamespace(ns string) Option {
	return func(m *Metrics) { m.namespace = ns }
}

// WithLabels replaces DefaultLabels.
func WithLabels(keys ...string) Option {
	return func(m *Metrics) { m.labels = keys }
}

// WithBuckets replaces DefaultBuckets for every histogram.
func WithBuckets(buckets ...float64) Option {
	return func(m *Metrics) { m.buckets = buckets }
}

// New returns Metrics ready to hand out instruments.
func New(opts ...Option) *Metrics {
	m := &Metrics{
		reg:        prometheus.DefaultRegisterer,
		labels:     DefaultLabels,
		buckets:    DefaultBuckets,
		counters:   make(map[string]*counter),
		histograms: make(map[string]*histogram),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.names = make([]string, len(m.labels))
	for i, l := range m.labels {
		m.names[i] = sanitize(l)
	}
	return m
}

// Counter returns a counter exported as <name>_total.
func (m *Metrics) Counter(name string) observability.Counter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.counters[name]; ok {
		return c
	}
	metricName := sanitize(name)
	if !strings.HasSuffix(metricName, "_total") {
		metricName += "_total"
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      metricName,
		Help:      fmt.Sprintf("Counter %s.", name),
	}, m.names)
	vec = register(m.reg, vec)

	c := &counter{vec: vec, keys: m.labels}
	m.counters[name] = c
	return c
}

// Histogram returns a histogram using the configured buckets.
func (m *Metrics) Histogram(name string) observability.Histogram {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.histograms[name]; ok {
		return h
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      sanitize(name),
		Help:      fmt.Sprintf("Histogram %s.", name),
		Buckets:   m.buckets,
	}, m.names)
	vec = register(m.reg, vec)

	h := &histogram{vec: vec, keys: m.labels}
	m.histograms[name] = h
	return h
}

// register adds c to reg, reusing a collector that is already registered
// under the same descriptor. A collector that cannot be registered still
// works; it is just not exported.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if reg == nil {
		return c
	}
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing
		}
	}
	return c
}

type counter struct {
	vec  *prometheus.CounterVec
	keys []string
}

// Add ignores negative deltas, which Prometheus counters reject.
func (c *counter) Add(_ context.Context, value int64, attrs ...observability.Attribute) {
	if value < 0 {
		return
	}
	c.vec.WithLabelValues(labelValues(c.keys, attrs)...).Add(float64(value))
}

type histogram struct {
	vec  *prometheus.HistogramVec
	keys []string
}

func (h *histogram) Record(_ context.Context, value float64, attrs ...observability.Attribute) {
	h.vec.WithLabelValues(labelValues(h.keys, attrs)...).Observe(value)
}

func labelValues(keys []string, attrs []observability.Attribute) []string {
	values := make([]string, len(keys))
	for i, k := range keys {
		for _, a := range attrs {
			if a.Key == k {
				values[i] = fmt.Sprint(a.Value)
			}
		}
	}
	return values
}

// sanitize turns an attribute or metric key into a valid Prometheus name.
func sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
