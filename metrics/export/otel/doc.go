// Package otel mirrors engine counters and latency histograms into an
// OpenTelemetry meter supplied by the caller.
//
// Counters become Int64ObservableCounter instruments. Each histogram is
// exposed as cumulative per-bucket gauges plus a count gauge. One callback
// reads [volcanion.Engine.MetricsSnapshot] per collection cycle.
package otel
