// Interpreter metrics for gcodeview
//
// Copyright (C) 2026  gcodeview authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"context"
	"errors"
	goruntime "runtime"
	"sort"
	"time"
)

// Parse outcomes used as the status label
const (
	StatusOK       = "ok"
	StatusCanceled = "canceled"
	StatusError    = "error"
)

// ParseMetrics holds the metrics of the G-code interpreter
type ParseMetrics struct {
	Parses          *Counter
	Lines           *Counter
	Records         *Counter
	ArcSegments     *Counter
	UnknownFeatures *Counter
	ParseDuration   *Histogram
	InFlight        *Gauge

	GoGoroutines *Gauge
	GoHeapBytes  *Gauge

	registry *Registry
}

// ParseObservation summarizes one parse for ObserveParse
type ParseObservation struct {
	Slicer          string
	Lines           int
	Records         map[string]int // by record kind
	ArcSegments     int
	UnknownFeatures int
	Duration        time.Duration
	Err             error
}

// NewParseMetrics creates the interpreter metrics in their own registry
func NewParseMetrics() *ParseMetrics {
	pm := &ParseMetrics{
		Parses: NewCounter("gcodeview_parses_total",
			"Files parsed by slicer and outcome"),
		Lines: NewCounter("gcodeview_lines_total",
			"G-code lines interpreted"),
		Records: NewCounter("gcodeview_records_total",
			"Line records produced by kind"),
		ArcSegments: NewCounter("gcodeview_arc_segments_total",
			"Segments produced by arc decomposition"),
		UnknownFeatures: NewCounter("gcodeview_unknown_features_total",
			"Distinct unrecognized slicer feature names by slicer"),
		ParseDuration: NewHistogram("gcodeview_parse_duration_seconds",
			"Wall time of whole-file parses", ExponentialBuckets(0.001, 4, 9)),
		InFlight: NewGauge("gcodeview_parses_in_flight",
			"Parses currently running"),
		GoGoroutines: NewGauge("gcodeview_go_goroutines",
			"Number of goroutines"),
		GoHeapBytes: NewGauge("gcodeview_go_heap_bytes",
			"Heap bytes in use"),
		registry: NewRegistry(),
	}
	pm.registry.MustRegister(
		pm.Parses, pm.Lines, pm.Records, pm.ArcSegments, pm.UnknownFeatures,
		pm.ParseDuration, pm.InFlight, pm.GoGoroutines, pm.GoHeapBytes,
	)
	return pm
}

// Begin marks a parse as running; call the returned func when it ends
func (pm *ParseMetrics) Begin() func() {
	pm.InFlight.Inc(nil)
	return func() { pm.InFlight.Dec(nil) }
}

// ObserveParse records a finished parse
func (pm *ParseMetrics) ObserveParse(obs ParseObservation) {
	status := StatusOK
	switch {
	case errors.Is(obs.Err, context.Canceled), errors.Is(obs.Err, context.DeadlineExceeded):
		status = StatusCanceled
	case obs.Err != nil:
		status = StatusError
	}
	slicer := Labels{"slicer": obs.Slicer}

	pm.Parses.Inc(slicer.With("status", status))
	pm.ParseDuration.Observe(slicer, obs.Duration.Seconds())
	if obs.Err != nil {
		return
	}

	pm.Lines.Add(nil, float64(obs.Lines))
	pm.ArcSegments.Add(nil, float64(obs.ArcSegments))
	pm.UnknownFeatures.Add(slicer, float64(obs.UnknownFeatures))

	kinds := make([]string, 0, len(obs.Records))
	for k := range obs.Records {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		pm.Records.Add(Labels{"kind": k}, float64(obs.Records[k]))
	}
}

// Gather refreshes runtime gauges and renders everything
func (pm *ParseMetrics) Gather() string {
	var ms goruntime.MemStats
	goruntime.ReadMemStats(&ms)
	pm.GoGoroutines.Set(nil, float64(goruntime.NumGoroutine()))
	pm.GoHeapBytes.Set(nil, float64(ms.HeapAlloc))
	return pm.registry.Gather()
}

// Registry returns the registry holding the interpreter metrics
func (pm *ParseMetrics) Registry() *Registry {
	return pm.registry
}
