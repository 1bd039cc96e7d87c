// Package api assembles the relay's HTTP surface on a chi router:
//
//	GET /healthz           liveness plus the number of connected sessions
//	GET /api/v1/sessions   live sessions (id, remote address, connect time)
//	GET /metrics           Prometheus exposition
//	GET /ws                websocket upgrade, behind the API-key middleware
//
// Every request gets a request id (X-Request-ID), a canonical zap log line,
// HTTP metrics (except /ws) and panic recovery that answers with a JSON 500.
package api
