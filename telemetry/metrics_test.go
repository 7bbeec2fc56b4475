package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestMetricInstruments_CachesCounterAcrossCalls(t *testing.T) {
	m := NewMetricInstruments("test", otel.Meter("test"))
	require.NoError(t, m.RecordCounter(context.Background(), MetricStepExecutions, 1))
	require.NoError(t, m.RecordCounter(context.Background(), MetricStepExecutions, 1))
	require.Len(t, m.counters, 1)
}

func TestMetricInstruments_RecordsDistinctInstrumentKinds(t *testing.T) {
	m := NewMetricInstruments("test", otel.Meter("test"))
	require.NoError(t, m.RecordUpDownCounter(context.Background(), MetricDLQDepth, 3))
	require.NoError(t, m.RecordHistogram(context.Background(), MetricStepDuration, 12.5))
	require.NoError(t, m.RecordDuration(context.Background(), MetricWorkflowDuration, 42))

	require.Len(t, m.upDowns, 1)
	require.Len(t, m.histograms, 2)
}
