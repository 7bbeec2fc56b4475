package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestProvider_DisabledReturnsUsableNoopSpans(t *testing.T) {
	p, err := NewProvider("", Config{Enabled: false})
	require.NoError(t, err)

	ctx, span := p.StartSpan(context.Background(), "step.run")
	assert.NotNil(t, ctx)
	span.SetAttribute("step_id", "a")
	span.RecordError(errors.New("boom"))
	span.End()

	p.RecordCounter(context.Background(), MetricStepExecutions)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestProvider_StdoutExporterStartsAndEndsSpans(t *testing.T) {
	p, err := NewProvider("flowforge-test", Config{Enabled: true, Provider: "stdout", SamplingRate: 1.0})
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(context.Background()) }()

	ctx, span := p.StartSpan(context.Background(), "step.run")
	SetSpanAttributes(ctx, attribute.String("step_id", "a"))
	AddSpanEvent(ctx, "step_started")
	span.End()

	tc := GetTraceContext(ctx)
	assert.NotEmpty(t, tc.TraceID)
}

func TestProvider_RequiresServiceNameWhenEnabled(t *testing.T) {
	_, err := NewProvider("", Config{Enabled: true, Provider: "stdout"})
	assert.Error(t, err)
}

func TestProvider_ShutdownIsIdempotent(t *testing.T) {
	p, err := NewProvider("flowforge-test", Config{Enabled: true, Provider: "stdout"})
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(context.Background()))
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestSampleRate_ClampsOutOfRangeValuesToOne(t *testing.T) {
	assert.Equal(t, 1.0, sampleRate(0))
	assert.Equal(t, 1.0, sampleRate(-0.5))
	assert.Equal(t, 1.0, sampleRate(2.0))
	assert.Equal(t, 0.25, sampleRate(0.25))
}

func TestConfig_WithOverridesAppliesOnlyNonZeroFields(t *testing.T) {
	base := UseProfile(ProfileDevelopment)
	merged := base.WithOverrides(Config{Endpoint: "collector:4317"})
	assert.Equal(t, "collector:4317", merged.Endpoint)
	assert.Equal(t, base.Provider, merged.Provider)
}

func TestUseProfile_DefaultsToDevelopmentForUnknownName(t *testing.T) {
	cfg := UseProfile(Profile("nonexistent"))
	assert.Equal(t, Profiles[ProfileDevelopment], cfg)
}

func TestGetTraceContext_ReturnsZeroValueWithoutASpan(t *testing.T) {
	tc := GetTraceContext(context.Background())
	assert.Empty(t, tc.TraceID)
	assert.False(t, tc.Sampled)
}

func TestStartLinkedSpan_CreatesSpanWithoutAValidParent(t *testing.T) {
	p, err := NewProvider("flowforge-test", Config{Enabled: true, Provider: "stdout"})
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(context.Background()) }()

	ctx, end := StartLinkedSpan(context.Background(), p.Tracer(), "dlq.retry", "", "", map[string]string{"step_id": "a"})
	defer end()
	assert.NotNil(t, ctx)
}
