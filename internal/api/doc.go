// Package api provides the HTTP surface of the proxy.
//
// # Architecture
//
// The server uses Go 1.22+ routing with a layered middleware stack:
//
//	Recovery → RequestID → Logging → RateLimit → Routes
//
// RequestID runs before Logging so request_id is available in log
// attributes. Health and status probes (/healthz, /status) bypass the
// middleware stack via a top-level mux, ensuring monitoring traffic is
// never rate limited.
//
// # Endpoints
//
// Augmented inference:
//   - POST /api/generate — completion with code-context augmentation;
//     streaming replies are relayed as Server-Sent Events
//   - POST /api/chat     — chat with code-context and web augmentation
//     of the last user turn; streaming replies are relayed as NDJSON
//
// Pass-through:
//   - POST /api/embeddings — forwarded verbatim
//   - GET  /api/tags       — forwarded verbatim
//   - everything else      — transparent proxy preserving method,
//     headers, body, status, and streamed bytes
//
// Control and diagnostics:
//   - GET  /control/enable_web_search — toggle web augmentation
//   - POST /debug                     — echo the received JSON body
//   - GET  /status                    — index counts and configuration
//   - GET  /healthz                   — liveness probe
//
// # Error Handling
//
// Error responses use a flat envelope: {"error": code, "message": msg}.
// A malformed client request yields 400 invalid_request before any
// backend call. Backend failures map by type: connection errors to
// 503 backend_unavailable, backend-reported errors to 502 upstream_error.
package api
