package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hitoshura25/etl-narrative-engine/internal/config"
)

func TestNewWithDisabledConfigReturnsNoopInstruments(t *testing.T) {
	tel, err := New(&config.TelemetryConfig{Disabled: true})
	require.NoError(t, err)
	require.NotNil(t, tel.Instruments.MessagesProcessedTotal)

	ctx := context.Background()
	tel.RecordMessageProcessed(ctx, "BloodGlucoseRecord", "completed")
	tel.RecordProcessingDuration(ctx, "BloodGlucoseRecord", 1.5)
	tel.RecordQualityScore(ctx, "BloodGlucoseRecord", 0.95)
}

func TestNewWithNoOTLPEndpointUsesLocalTracerProvider(t *testing.T) {
	tel, err := New(&config.TelemetryConfig{ServiceName: "etl-narrative-engine"})
	require.NoError(t, err)
	require.NotNil(t, tel.TraceProvider)

	ctx, span := tel.StartMessageSpan(context.Background(), "HeartRateRecord")
	require.NotNil(t, ctx)
	span.End()

	require.NoError(t, tel.Shutdown(context.Background()))
}
