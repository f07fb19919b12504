package telemetry

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

func TestSetup_Stdout(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := Setup(context.Background(), Config{
		Exporter:       ExporterStdout,
		ServiceName:    "forecaster-test",
		ServiceVersion: "test",
		Writer:         &buf,
	})
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), "ensemble.combine", attribute.Int("horizon", 3))
	EndSpan(span, errors.New("no viable forecaster"))

	require.NoError(t, shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "ensemble.combine")
	assert.Contains(t, out, "no viable forecaster")
	assert.Contains(t, out, "forecaster-test")
}

func TestSetup_None(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	_, span := StartSpan(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	EndSpan(span, nil)
}

func TestSetup_UnknownExporter(t *testing.T) {
	_, err := Setup(context.Background(), Config{Exporter: "jaeger"})
	assert.ErrorContains(t, err, "unknown trace exporter")
}
