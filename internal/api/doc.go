// Package api hosts the ops HTTP server, middleware, and read-only run
// handlers. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/runs, /v1/runs/{run_id} and /v1/runs/{run_id}/sites backed by
//     the store.RunRepository the progress sinks write to.
//   - GET /v1/runs/active for the live counters of the run in this process.
package api
