package observability

import (
	"context"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the service metrics. A nil *Metrics is valid and records nothing,
// so components can be built without instrumentation in tests and in the CLI.
type Metrics struct {
	meter metric.Meter

	// HTTP metrics
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Execution service calls
	RemoteCallDuration metric.Float64Histogram
	RemoteCallsTotal   metric.Int64Counter

	// Job tracking
	StatusObservations metric.Int64Counter
	LogLinesFetched    metric.Int64Counter
	BindingMisses      metric.Int64Counter
	JobsTracked        metric.Int64UpDownCounter
}

// NewMetrics creates all instruments on a private Prometheus registry and returns
// the handler that exposes it.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("jobtrack")
	m := &Metrics{meter: meter}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RemoteCallDuration, err = meter.Float64Histogram(
		"execsvc_call_duration_seconds",
		metric.WithDescription("Execution service call latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RemoteCallsTotal, err = meter.Int64Counter(
		"execsvc_calls_total",
		metric.WithDescription("Total number of execution service calls"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.StatusObservations, err = meter.Int64Counter(
		"job_status_observations_total",
		metric.WithDescription("Job states observed by polling"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.LogLinesFetched, err = meter.Int64Counter(
		"job_log_lines_fetched_total",
		metric.WithDescription("Log lines appended to local log buffers"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.BindingMisses, err = meter.Int64Counter(
		"output_binding_misses_total",
		metric.WithDescription("Output parameters resolved to null because their source was absent or malformed"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsTracked, err = meter.Int64UpDownCounter(
		"jobs_tracked",
		metric.WithDescription("Number of jobs with a live facade"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordRemoteCall records one execution service call.
func (m *Metrics) RecordRemoteCall(ctx context.Context, op string, ok bool, durationSeconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(opAttr(op), outcomeAttr(ok))
	m.RemoteCallDuration.Record(ctx, durationSeconds, attrs)
	m.RemoteCallsTotal.Add(ctx, 1, attrs)
}

// RecordStatus records an observed lifecycle state.
func (m *Metrics) RecordStatus(ctx context.Context, state string) {
	if m == nil {
		return
	}
	m.StatusObservations.Add(ctx, 1, metric.WithAttributes(stateAttr(state)))
}

// RecordLogLines records lines appended to a log buffer.
func (m *Metrics) RecordLogLines(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.LogLinesFetched.Add(ctx, int64(n))
}

// RecordBindingMiss records an output parameter that degraded to null.
func (m *Metrics) RecordBindingMiss(ctx context.Context, strategy string) {
	if m == nil {
		return
	}
	m.BindingMisses.Add(ctx, 1, metric.WithAttributes(strategyAttr(strategy)))
}

// RecordJobTracked adjusts the number of live job facades.
func (m *Metrics) RecordJobTracked(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.JobsTracked.Add(ctx, delta)
}
