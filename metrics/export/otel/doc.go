// Package otel binds the engine's counters to OpenTelemetry observable
// instruments.
//
// [NewExporter] registers one Int64ObservableCounter per counter and one
// Int64ObservableGauge per latency bucket. A single callback reads
// Engine.MetricsSnapshot on each collection. The caller owns the
// MeterProvider.
package otel
