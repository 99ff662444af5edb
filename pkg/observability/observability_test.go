package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(Config{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	var buf bytes.Buffer
	shutdown, err := Init(Config{
		Enabled:      true,
		ServiceName:  "harvester-test",
		SamplingRate: 1,
		Writer:       &buf,
	})
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), "process.run", attribute.String("task", "t1"))
	EndSpan(span, nil)

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "process.run")
}

func TestEndSpanRecordsError(t *testing.T) {
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	_, span := StartSpan(context.Background(), "publish")
	EndSpan(span, errors.New("rejected"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "publish", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "rejected", spans[0].Status().Description)
}

func TestRecordPublished(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordPublished(context.Background(), "FOLDER", "created")
	})
}
