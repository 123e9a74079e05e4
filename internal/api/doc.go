// Package api hosts the HTTP server that triggers pipeline runs and streams their progress.
// Notable routes:
//   - POST /v1/runs starts a run and streams NDJSON progress until it finishes.
//   - POST /v1/runs/{run_id}/cancel requests a stop between items.
//   - GET /v1/runs and /v1/runs/{run_id} describe the runs in flight.
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
package api
