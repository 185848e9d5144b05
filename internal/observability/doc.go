// Package observability wires logging, metrics and tracing for Cognis.
//
// Logging is plain log/slog behind a handler that redacts secrets before a
// record is written. Metrics are Prometheus collectors registered on a caller
// supplied registry so tests can use an isolated one. Tracing uses
// OpenTelemetry with an OTLP/gRPC exporter when an endpoint is configured and
// the global no-op tracer otherwise.
//
// Every method on *Metrics and *Tracer is safe to call on a nil receiver, so
// components can take them as optional collaborators.
package observability
