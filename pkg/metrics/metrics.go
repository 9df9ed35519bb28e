// Prometheus-compatible metric primitives for gcodeview
//
// Counter, Gauge and Histogram keep one value per label set and render in
// the Prometheus text exposition format through a Registry.
//
// Copyright (C) 2026  gcodeview authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MetricType is the Prometheus type of a metric
type MetricType int

const (
	TypeCounter MetricType = iota
	TypeGauge
	TypeHistogram
)

func (t MetricType) String() string {
	switch t {
	case TypeCounter:
		return "counter"
	case TypeGauge:
		return "gauge"
	case TypeHistogram:
		return "histogram"
	default:
		return "untyped"
	}
}

// Labels is a metric label set
type Labels map[string]string

// Key returns a canonical identity for the label set
func (l Labels) Key() string {
	keys := l.sortedKeys()
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(l[k])
	}
	return sb.String()
}

// String renders the set as {a="1",b="2"}; empty sets render as ""
func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range l.sortedKeys() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteString(`="`)
		sb.WriteString(labelEscaper.Replace(l[k]))
		sb.WriteByte('"')
	}
	sb.WriteByte('}')
	return sb.String()
}

// With returns a copy extended by key=value
func (l Labels) With(key, value string) Labels {
	out := cloneLabels(l)
	out[key] = value
	return out
}

func cloneLabels(l Labels) Labels {
	out := make(Labels, len(l)+1)
	for k, v := range l {
		out[k] = v
	}
	return out
}

func (l Labels) sortedKeys() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// Metric is anything a Registry can render
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	Write(sb *strings.Builder)
}

// series stores one value of type V per label set, in first-use order.
type series[V any] struct {
	mu     sync.Mutex
	keys   []string
	labels map[string]Labels
	values map[string]*V
}

// get returns the value for labels, creating it with init when missing.
// Callers hold s.mu.
func (s *series[V]) get(labels Labels, init func() *V) *V {
	key := labels.Key()
	if v, ok := s.values[key]; ok {
		return v
	}
	if s.values == nil {
		s.values = make(map[string]*V)
		s.labels = make(map[string]Labels)
	}
	v := init()
	s.keys = append(s.keys, key)
	s.labels[key] = cloneLabels(labels)
	s.values[key] = v
	return v
}

func (s *series[V]) lookup(labels Labels) (*V, bool) {
	v, ok := s.values[labels.Key()]
	return v, ok
}

func newFloat() *float64 { return new(float64) }

func header(sb *strings.Builder, m Metric) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s %s\n", m.Name(), m.Help(), m.Name(), m.Type())
}

// Counter only goes up
type Counter struct {
	name, help string
	s          series[float64]
}

// NewCounter creates a counter
func NewCounter(name, help string) *Counter {
	return &Counter{name: name, help: help}
}

func (c *Counter) Name() string     { return c.name }
func (c *Counter) Help() string     { return c.help }
func (c *Counter) Type() MetricType { return TypeCounter }

// Inc adds one
func (c *Counter) Inc(labels Labels) { c.Add(labels, 1) }

// Add adds delta; negative deltas are ignored
func (c *Counter) Add(labels Labels, delta float64) {
	if delta < 0 {
		return
	}
	c.s.mu.Lock()
	*c.s.get(labels, newFloat) += delta
	c.s.mu.Unlock()
}

// Get returns the value for labels
func (c *Counter) Get(labels Labels) float64 {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if v, ok := c.s.lookup(labels); ok {
		return *v
	}
	return 0
}

func (c *Counter) Write(sb *strings.Builder) {
	header(sb, c)
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	for _, key := range c.s.keys {
		sb.WriteString(c.name + c.s.labels[key].String() + " " + formatFloat(*c.s.values[key]) + "\n")
	}
}

// Gauge goes up and down
type Gauge struct {
	name, help string
	s          series[float64]
}

// NewGauge creates a gauge
func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

func (g *Gauge) Name() string     { return g.name }
func (g *Gauge) Help() string     { return g.help }
func (g *Gauge) Type() MetricType { return TypeGauge }

// Set replaces the value
func (g *Gauge) Set(labels Labels, v float64) {
	g.s.mu.Lock()
	*g.s.get(labels, newFloat) = v
	g.s.mu.Unlock()
}

// Add adds delta, which may be negative
func (g *Gauge) Add(labels Labels, delta float64) {
	g.s.mu.Lock()
	*g.s.get(labels, newFloat) += delta
	g.s.mu.Unlock()
}

func (g *Gauge) Inc(labels Labels) { g.Add(labels, 1) }
func (g *Gauge) Dec(labels Labels) { g.Add(labels, -1) }

// Get returns the value for labels
func (g *Gauge) Get(labels Labels) float64 {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	if v, ok := g.s.lookup(labels); ok {
		return *v
	}
	return 0
}

func (g *Gauge) Write(sb *strings.Builder) {
	header(sb, g)
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	for _, key := range g.s.keys {
		sb.WriteString(g.name + g.s.labels[key].String() + " " + formatFloat(*g.s.values[key]) + "\n")
	}
}

// Histogram counts observations into cumulative buckets
type Histogram struct {
	name, help string
	bounds     []float64
	s          series[histogramValue]
}

type histogramValue struct {
	counts []uint64 // per bucket, not cumulative
	count  uint64
	sum    float64
}

// NewHistogram creates a histogram with the given upper bounds
func NewHistogram(name, help string, bounds []float64) *Histogram {
	sorted := append([]float64(nil), bounds...)
	sort.Float64s(sorted)
	return &Histogram{name: name, help: help, bounds: sorted}
}

// DefaultBuckets suits durations in seconds
func DefaultBuckets() []float64 {
	return []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
}

// ExponentialBuckets returns count bounds starting at start growing by factor
func ExponentialBuckets(start, factor float64, count int) []float64 {
	out := make([]float64, count)
	for i := range out {
		out[i] = start
		start *= factor
	}
	return out
}

func (h *Histogram) Name() string     { return h.name }
func (h *Histogram) Help() string     { return h.help }
func (h *Histogram) Type() MetricType { return TypeHistogram }

// Observe records v
func (h *Histogram) Observe(labels Labels, v float64) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	hv := h.s.get(labels, func() *histogramValue {
		return &histogramValue{counts: make([]uint64, len(h.bounds))}
	})
	hv.count++
	hv.sum += v
	if i := sort.SearchFloat64s(h.bounds, v); i < len(h.bounds) {
		hv.counts[i]++
	}
}

// Timer returns a func that observes the time elapsed since Timer was called
func (h *Histogram) Timer(labels Labels) func() {
	start := time.Now()
	return func() { h.Observe(labels, time.Since(start).Seconds()) }
}

// HistogramSnapshot is a copy of one label set's state with cumulative buckets
type HistogramSnapshot struct {
	Count   uint64
	Sum     float64
	Buckets map[float64]uint64
}

// Snapshot copies the state for labels
func (h *Histogram) Snapshot(labels Labels) HistogramSnapshot {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	snap := HistogramSnapshot{Buckets: make(map[float64]uint64, len(h.bounds))}
	hv, ok := h.s.lookup(labels)
	if !ok {
		return snap
	}
	var cum uint64
	for i, b := range h.bounds {
		cum += hv.counts[i]
		snap.Buckets[b] = cum
	}
	snap.Count, snap.Sum = hv.count, hv.sum
	return snap
}

func (h *Histogram) Write(sb *strings.Builder) {
	header(sb, h)
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	for _, key := range h.s.keys {
		labels, hv := h.s.labels[key], h.s.values[key]
		var cum uint64
		for i, b := range h.bounds {
			cum += hv.counts[i]
			sb.WriteString(h.name + "_bucket" + labels.With("le", formatFloat(b)).String() + " " + strconv.FormatUint(cum, 10) + "\n")
		}
		sb.WriteString(h.name + "_bucket" + labels.With("le", "+Inf").String() + " " + strconv.FormatUint(hv.count, 10) + "\n")
		sb.WriteString(h.name + "_sum" + labels.String() + " " + formatFloat(hv.sum) + "\n")
		sb.WriteString(h.name + "_count" + labels.String() + " " + strconv.FormatUint(hv.count, 10) + "\n")
	}
}

func formatFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Registry renders metrics in registration order
type Registry struct {
	mu      sync.RWMutex
	metrics []Metric
	names   map[string]struct{}
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Register adds m; names must be unique
func (r *Registry) Register(m Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.names[m.Name()]; dup {
		return fmt.Errorf("metric %q already registered", m.Name())
	}
	r.names[m.Name()] = struct{}{}
	r.metrics = append(r.metrics, m)
	return nil
}

// MustRegister is Register panicking on error
func (r *Registry) MustRegister(ms ...Metric) {
	for _, m := range ms {
		if err := r.Register(m); err != nil {
			panic(err)
		}
	}
}

// Gather renders every metric
func (r *Registry) Gather() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sb strings.Builder
	for _, m := range r.metrics {
		m.Write(&sb)
	}
	return sb.String()
}
