// Package http provides the HTTP API of the sync daemon.
//
// The API lets a UI render from the process-wide session and the aggregate
// of member data subscriptions, and runs coordinated report deletion.
//
// # Usage
//
//	transport := http.NewHTTPTransport(syncService, authProvider,
//	    http.WithAddr("127.0.0.1:8080"),
//	    http.WithAllowedOrigins([]string{"http://localhost:3000"}),
//	    http.WithRegistry(reg),
//	    http.WithLogger(logger),
//	)
//	err := transport.Start(ctx)
//
// # Endpoints
//
//	GET  /health                 - component health
//	GET  /metrics                - Prometheus metrics
//	GET  /v1/session             - current session state
//	POST /v1/session/sign-in     - {"email", "password"}; 204 or 401
//	POST /v1/session/sign-out    - 204
//	GET  /v1/sync                - current aggregate state
//	GET  /v1/sync/stream         - Server-Sent Events, one event per aggregate change
//	POST /v1/reports/delete      - {"password", "report_ids", "all"}
//
// # Report deletion responses
//
//	200 - deletion result, possibly with failed_objects (partial failure)
//	400 - invalid request
//	409 - no identity signed in
//	422 - {"field_errors": {"password": "auth/wrong-password"}}; nothing deleted
//
// # Security
//
// Requests carrying an Origin header must match the configured allowlist
// (DNS rebinding protection). Requests without an Origin header are
// allowed. By default the server binds to localhost only.
//
// # Request Headers
//
//	X-Request-ID: <id>  - request correlation; generated when absent
package http
