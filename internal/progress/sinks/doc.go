// Package sinks implements concrete event consumers: structured logging,
// Prometheus, repository-backed run tracking, and Pub/Sub change
// notifications. Each sink satisfies progress.Sink and is safe for repeated
// Consume/Close cycles.
package sinks
