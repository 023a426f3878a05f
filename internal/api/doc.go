// Package api hosts the HTTP server, middleware, and handlers for the capture
// service. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /api/screenshots/capture, /retry and /cancel; GET /api/screenshots/file.
//   - POST /api/auth/save, GET /api/auth/status, POST /api/auth/clear.
//   - GET /ws for the live progress event stream.
package api
