// Package prometheus exposes engine metrics as a prometheus.Collector.
//
// Counter names follow volcanion_*_total. Latency histograms are
// volcanion_verify_latency_seconds and
// volcanion_permission_check_latency_seconds. [Exporter.Handler] serves a
// private registry; register the Exporter yourself to merge it into an
// existing one.
package prometheus
