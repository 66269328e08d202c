// Package prometheus exposes the engine's counters as a client_golang
// Collector.
//
// Counter names are prefixed authd_ and suffixed _total; the single histogram
// is authd_validate_latency_seconds. Register [Collector] with your own
// registry, or mount [Collector.Handler] which uses a private one.
package prometheus
