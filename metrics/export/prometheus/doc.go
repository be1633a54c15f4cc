// Package prometheus exposes engine metrics as a client_golang Collector.
//
// [Collector] reads a fresh snapshot on every scrape; nothing is registered
// globally. Mount [Handler] or register the collector with your own
// registry. Counters are named sessiongate_*_total and the authorize latency
// histogram sessiongate_authorize_latency_seconds.
package prometheus
