package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/technosurge/leadflow/config"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zaptest"
)

// saveAndRestoreGlobalProviders snapshots the global OTel providers so tests don't leak state.
func saveAndRestoreGlobalProviders(t *testing.T) {
	t.Helper()
	origTP := otel.GetTracerProvider()
	origMP := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
	})
}

func TestInit_Disabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(config.TelemetryConfig{Enabled: false}, "1.0.0", zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Nil(t, p.tp)
	assert.Nil(t, p.mp)
	assert.NoError(t, p.Shutdown(context.Background()))

	// noop tracer still produces usable spans
	_, span := Tracer().Start(context.Background(), "noop")
	span.End()
}

func TestInit_Enabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	cfg := config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "leadflow-test",
		SampleRate:   0.5,
	}
	p, err := Init(cfg, "", zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p.tp)
	require.NotNil(t, p.mp)

	_, tpIsSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	_, mpIsSDK := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, tpIsSDK)
	assert.True(t, mpIsSDK)

	// 没有 collector 时导出会失败，只验证不会 panic
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NotPanics(t, func() { _ = p.Shutdown(ctx) })
}

func TestProviders_Shutdown_Nil(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
}
