// Package progress is the event sink for capture requests. Workers and the
// orchestrator publish progress, result and cancelled events to a Hub. Every
// consumer holds a Subscription: live ones (the websocket stream) are pruned
// when they fall behind, while sinks such as logs, Prometheus, or a Pub/Sub
// topic get durable subscriptions drained in batches by their own pump.
package progress
