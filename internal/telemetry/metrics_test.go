package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRecordBuildAndTransform(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))

	ctx := context.Background()
	m := GetMetrics()
	m.RecordBuild(ctx, 120*time.Millisecond, 2, 2048, nil)
	m.RecordBuild(ctx, 10*time.Millisecond, 0, 0, errors.New("boom"))
	m.RecordTransform(ctx, "babel-loader", time.Millisecond, nil)
	m.RecordTransform(ctx, "css-loader", time.Millisecond, errors.New("bad css"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	sums := make(map[string]int64)
	histograms := make(map[string]uint64)
	for _, sm := range rm.ScopeMetrics {
		for _, mt := range sm.Metrics {
			switch data := mt.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					sums[mt.Name] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					histograms[mt.Name] += dp.Count
				}
			}
		}
	}

	require.Equal(t, int64(2), sums["sitepack.builds.total"])
	require.Equal(t, int64(1), sums["sitepack.builds.errors.total"])
	require.Equal(t, int64(2), sums["sitepack.outputs.files.total"])
	require.Equal(t, int64(2048), sums["sitepack.outputs.bytes.total"])
	require.Equal(t, int64(2), sums["sitepack.transforms.total"])
	require.Equal(t, int64(1), sums["sitepack.transforms.errors.total"])
	require.Equal(t, uint64(2), histograms["sitepack.builds.duration"])
	require.Equal(t, uint64(2), histograms["sitepack.transforms.duration"])
}
