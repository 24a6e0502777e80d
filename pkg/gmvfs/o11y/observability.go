// Package o11y defines the metrics and tracing hooks used around command
// dispatch. Implementations live in the otel package (OpenTelemetry) and in
// MemoryProvider (in-process, for the CLI's --stats and for tests).
package o11y

import (
	"context"
)

// ObservabilityConfig holds optional observability providers
type ObservabilityConfig struct {
	MetricsProvider MetricsProvider
	TracingProvider TracingProvider
	ServiceName     string
	ServiceVersion  string
}

// MetricsProvider abstracts metrics collection
type MetricsProvider interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
	Gauge(name string) Gauge
}

// TracingProvider abstracts distributed tracing
type TracingProvider interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Counter represents a monotonically increasing metric
type Counter interface {
	Add(ctx context.Context, value int64, labels ...Label)
}

// Histogram records distribution of values
type Histogram interface {
	Record(ctx context.Context, value float64, labels ...Label)
}

// Gauge represents a value that can go up and down
type Gauge interface {
	Set(ctx context.Context, value float64, labels ...Label)
}

// Span represents a unit of work in a trace
type Span interface {
	SetAttributes(labels ...Label)
	SetStatus(code SpanStatusCode, description string)
	End()
}

// Label represents a key-value pair for metrics and tracing
type Label struct {
	Key   string
	Value string
}

// SpanStatusCode represents the status of a span
type SpanStatusCode int

const (
	SpanStatusUnset SpanStatusCode = iota
	SpanStatusOK
	SpanStatusError
)

// Metric names recorded by the protocol client and the session.
const (
	MetricCommandsSent     = "gmvfs_commands_sent_total"
	MetricCommandErrors    = "gmvfs_command_errors_total"
	MetricCommandDuration  = "gmvfs_command_duration_seconds"
	MetricSessionCrashes   = "gmvfs_session_crashes_total"
	MetricSessionOpen      = "gmvfs_session_open"
	MetricTreeRefreshes    = "gmvfs_tree_refreshes_total"
	MetricCheckpointsTotal = "gmvfs_checkpoints_total"
)
