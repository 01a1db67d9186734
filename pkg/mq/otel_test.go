package mq

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTraceContextRoundTrip(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	otel.SetTextMapPropagator(propagation.TraceContext{})

	_, pubSpan, headers := StartPublishSpan(context.Background(), "checkin.events", "checkin.created", amqp.Table{"x-app": "geocheckin"})
	pubSpan.End()

	assert.Equal(t, "geocheckin", headers["x-app"])
	require.NotEmpty(t, headers["traceparent"])

	_, procSpan := StartProcessSpan(context.Background(), "location.pings", amqp.Delivery{Headers: headers, MessageId: "m-1"})
	procSpan.End()

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, ended[0].SpanContext().TraceID(), ended[1].SpanContext().TraceID())
	assert.Equal(t, ended[0].SpanContext().SpanID(), ended[1].Parent().SpanID())
}

func TestCarrierKeys(t *testing.T) {
	c := &MessageHeaderCarrier{}
	c.Set("a", "1")
	assert.Equal(t, "1", c.Get("a"))
	assert.Equal(t, "", c.Get("missing"))
	assert.ElementsMatch(t, []string{"a"}, c.Keys())
}
