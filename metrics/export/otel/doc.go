// Package otel publishes engine metrics through an OpenTelemetry meter.
//
// Counters become Int64ObservableCounters read from one snapshot per
// collection. OpenTelemetry has no asynchronous histogram, so the authorize
// latency histogram is exported as one cumulative gauge per bucket plus a
// count gauge, using the bucket names of the Prometheus exporter.
package otel
