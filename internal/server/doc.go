// Package server exposes the bulk update engine over HTTP for the dashboard front-end.
//
// # Routes
//
// [NewServer] builds a chi router with:
//
//	GET  /healthz                       liveness
//	GET  /views                         services with configured views
//	GET  /views/{service}               views of one service, sorted by name
//	GET  /views/{service}/counts        record count per view
//	POST /tables/{table}/bulk-update    validated bulk write, returns a report
//	GET  /jobs                          job history (status, table, limit filters)
//	GET  /jobs/{id}                     one job as a report (?format=json|csv|markdown|txt)
//	POST /jobs/{id}/retry               re-run failed and not-attempted records
//	GET  /metrics                       Prometheus metrics, when a gatherer is configured
//
// Bulk writes run inside the request. Remote failures are part of the report and
// still answer 200; only rejected input maps to a 4xx status.
//
// # Middleware
//
// [Middleware] wraps handlers in the order they are added. [LoggingMiddleware]
// logs one line per request through charmbracelet/log.
package server
