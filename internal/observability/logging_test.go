package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultLogConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultLogConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "stderr", cfg.Output)
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  LogConfig
		wantErr bool
	}{
		{
			name:   "default config",
			config: DefaultLogConfig(),
		},
		{
			name:   "console format",
			config: LogConfig{Level: "debug", Format: "console", Output: "stdout"},
		},
		{
			name:   "empty level defaults to info",
			config: LogConfig{Format: "json"},
		},
		{
			name:    "invalid level",
			config:  LogConfig{Level: "loud", Format: "json"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, err := NewLogger(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, logger)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestLogger_WithContext(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewLoggerFromZap(zap.New(core))

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "validate")
	defer span.End()

	logger.WithContext(ctx).Info("validated")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, span.SpanContext().TraceID().String(), fields["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), fields["span_id"])
}

func TestLogger_WithContext_NoSpan(t *testing.T) {
	t.Parallel()

	logger := NopLogger()
	assert.Same(t, logger, logger.WithContext(context.Background()))
}

func TestNewLoggerFromZap_Nil(t *testing.T) {
	t.Parallel()

	logger := NewLoggerFromZap(nil)
	require.NotNil(t, logger)
	logger.Info("discarded")
}

func TestNewTracer_Disabled(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(context.Background(), TracerConfig{Enabled: false})
	require.NoError(t, err)
	assert.False(t, tracer.Enabled())

	_, span := tracer.StartSpan(context.Background(), "noop")
	span.End()
	assert.False(t, span.SpanContext().IsValid())
	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestCreateSampler(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "AlwaysOnSampler", createSampler(1).Description())
	assert.Equal(t, "AlwaysOffSampler", createSampler(0).Description())
	assert.Contains(t, createSampler(0.5).Description(), "TraceIDRatioBased")
}
