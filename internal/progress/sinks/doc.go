// Package sinks implements progress consumers: structured logging,
// Prometheus counters, and a notification publisher for terminal events.
// Each sink satisfies progress.Sink and is safe for repeated Consume/Close cycles.
package sinks
