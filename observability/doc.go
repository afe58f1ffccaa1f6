// Package observability provides extensions that turn claim lifecycle
// events into OpenTelemetry counters and structured log lines.
//
// For per-call tracing and latency metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
