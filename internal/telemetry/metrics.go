package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/sitepack"
)

// Metrics holds the OpenTelemetry instruments recorded by builds
type Metrics struct {
	BuildsTotal       metric.Int64Counter
	BuildErrorsTotal  metric.Int64Counter
	BuildDuration     metric.Float64Histogram
	OutputBytesTotal  metric.Int64Counter
	OutputFilesTotal  metric.Int64Counter
	TransformsTotal   metric.Int64Counter
	TransformErrors   metric.Int64Counter
	TransformDuration metric.Float64Histogram
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.BuildsTotal, _ = meter.Int64Counter(
		"sitepack.builds.total",
		metric.WithDescription("Total number of builds"),
		metric.WithUnit("{build}"),
	)

	m.BuildErrorsTotal, _ = meter.Int64Counter(
		"sitepack.builds.errors.total",
		metric.WithDescription("Total number of failed builds"),
		metric.WithUnit("{build}"),
	)

	m.BuildDuration, _ = meter.Float64Histogram(
		"sitepack.builds.duration",
		metric.WithDescription("Duration of builds"),
		metric.WithUnit("ms"),
	)

	m.OutputBytesTotal, _ = meter.Int64Counter(
		"sitepack.outputs.bytes.total",
		metric.WithDescription("Total bytes written to the output directory"),
		metric.WithUnit("By"),
	)

	m.OutputFilesTotal, _ = meter.Int64Counter(
		"sitepack.outputs.files.total",
		metric.WithDescription("Total files written to the output directory"),
		metric.WithUnit("{file}"),
	)

	m.TransformsTotal, _ = meter.Int64Counter(
		"sitepack.transforms.total",
		metric.WithDescription("Total number of transformer invocations"),
		metric.WithUnit("{transform}"),
	)

	m.TransformErrors, _ = meter.Int64Counter(
		"sitepack.transforms.errors.total",
		metric.WithDescription("Total number of failed transformer invocations"),
		metric.WithUnit("{transform}"),
	)

	m.TransformDuration, _ = meter.Float64Histogram(
		"sitepack.transforms.duration",
		metric.WithDescription("Duration of transformer invocations"),
		metric.WithUnit("ms"),
	)

	return m
}

// RecordBuild records the outcome of one build.
func (m *Metrics) RecordBuild(ctx context.Context, elapsed time.Duration, files int, bytes int64, err error) {
	m.BuildsTotal.Add(ctx, 1)
	m.BuildDuration.Record(ctx, float64(elapsed.Microseconds())/1000)
	if err != nil {
		m.BuildErrorsTotal.Add(ctx, 1)
		return
	}
	m.OutputFilesTotal.Add(ctx, int64(files))
	m.OutputBytesTotal.Add(ctx, bytes)
}

// RecordTransform records one transformer invocation.
func (m *Metrics) RecordTransform(ctx context.Context, transformer string, elapsed time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("transformer", transformer))
	m.TransformsTotal.Add(ctx, 1, attrs)
	m.TransformDuration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
	if err != nil {
		m.TransformErrors.Add(ctx, 1, attrs)
	}
}
