// Package observe provides application-wide observability primitives for
// voxclone: OpenTelemetry metrics, tracing, trace-aware logging, and HTTP
// middleware for the status server.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxclone metrics.
const meterName = "github.com/MrWong99/voxclone"

// Cycle outcome labels for [Metrics.Cycles].
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// StageDuration tracks how long each pipeline stage takes. Use with
	// attribute.String("stage", ...).
	StageDuration metric.Float64Histogram

	// Cycles counts completed synthesis cycles. Use with
	// attribute.String("status", ...).
	Cycles metric.Int64Counter

	// StageErrors counts failures by stage. Use with
	// attribute.String("stage", ...).
	StageErrors metric.Int64Counter

	// OutputSeconds tracks the playback length of written files, including
	// the trailing silence.
	OutputSeconds metric.Float64Histogram

	// HTTPRequestDuration tracks status-server request time by mux route and
	// response status.
	HTTPRequestDuration metric.Float64Histogram
}

// stageBuckets covers everything from a fast file write to a slow vocoder
// pass on long text.
var stageBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

var outputBuckets = []float64{1, 2, 3, 5, 8, 13, 20, 30}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("voxclone.stage.duration",
		metric.WithDescription("Latency of a pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Cycles, err = m.Int64Counter("voxclone.cycles",
		metric.WithDescription("Synthesis cycles by outcome."),
	); err != nil {
		return nil, err
	}
	if met.StageErrors, err = m.Int64Counter("voxclone.stage.errors",
		metric.WithDescription("Pipeline stage failures by stage."),
	); err != nil {
		return nil, err
	}
	if met.OutputSeconds, err = m.Float64Histogram("voxclone.output.seconds",
		metric.WithDescription("Playback length of written output files."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(outputBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxclone.http.request.duration",
		metric.WithDescription("Status server request latency by route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordStage records the duration of one stage and, when err is non-nil,
// a stage error.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("stage", stage))
	m.StageDuration.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		m.StageErrors.Add(ctx, 1, attrs)
	}
}

// RecordCycle counts a finished cycle with the given status.
func (m *Metrics) RecordCycle(ctx context.Context, status string) {
	m.Cycles.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordOutput records the playback length of a written file.
func (m *Metrics) RecordOutput(ctx context.Context, d time.Duration) {
	m.OutputSeconds.Record(ctx, d.Seconds())
}
