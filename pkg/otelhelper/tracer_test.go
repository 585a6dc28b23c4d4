package otelhelper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTracerProducesRecordingSpans(t *testing.T) {
	tracer, err := NewTracer(context.Background(), "cadenzo-test")
	require.NoError(t, err)
	require.NotNil(t, tracer)

	ctx, span := StartSpan(context.Background(), tracer, "instance.start")
	defer span.End()

	assert.NotNil(t, ctx)
	assert.True(t, span.IsRecording())
}
