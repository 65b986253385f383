// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/crawls for crawl job submission.
//   - GET /v1/sites/{site}/... for path, status, freshness, and occurrence
//     queries.
//   - GET /v1/listen for live websocket subscriptions to store mutations.
package api
