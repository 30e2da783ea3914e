package elector_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"leaderbus/pkg/broadcast/memory"
	"leaderbus/pkg/elector"
)

func TestTryApply_RecordsCandidacySpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	otel.SetTracerProvider(tp)

	ch := memory.NewChannel()
	e := newElector(ch, elector.WithToken("traced"))
	defer e.Close()

	require.True(t, e.TryApply(context.Background()))

	var outcome string
	for _, s := range rec.Ended() {
		if s.Name() != "elector.candidacy" {
			continue
		}
		for _, kv := range s.Attributes() {
			if kv.Key == attribute.Key("elector.outcome") {
				outcome = kv.Value.AsString()
			}
		}
	}
	assert.Equal(t, "won", outcome)
}
