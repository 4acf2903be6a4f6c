package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type registeredPayload struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

func TestNewEvent_Fields(t *testing.T) {
	data := registeredPayload{UserID: "u-1", Email: "a@b.co"}
	event, err := NewEvent("user.registered", "u-1", "user", "inbox", data)
	require.NoError(t, err)

	assert.Len(t, event.EventID, 36)
	assert.Equal(t, "user.registered", event.EventType)
	assert.Equal(t, "u-1", event.AggregateID)
	assert.Equal(t, "user", event.AggregateType)
	assert.Equal(t, "inbox", event.Source)
	assert.Equal(t, 1, event.Version)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)

	var got registeredPayload
	require.NoError(t, event.UnmarshalData(&got))
	assert.Equal(t, data, got)
}

func TestNewEvent_InvalidData(t *testing.T) {
	_, err := NewEvent("bad", "x", "x", "inbox", make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marshal bad payload")
}

func TestEvent_WithHelpers(t *testing.T) {
	e := (&Event{}).WithCorrelationID("corr-1").WithMetadata("k", "v")
	assert.Equal(t, "corr-1", e.CorrelationID)
	assert.Equal(t, "v", e.Metadata["k"])

	raw, err := e.Marshal()
	require.NoError(t, err)
	var back Event
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, "corr-1", back.CorrelationID)
}

func TestProducer_PublishBuildsMessage(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, nil, testLogger())

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	event, err := NewEvent("auth.login_locked", "sess-1", "session", "inbox", map[string]int{"retry_after_seconds": 900})
	require.NoError(t, err)
	event.WithCorrelationID("corr-9")

	require.NoError(t, p.Publish(ctx, "inbox.auth", event))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "inbox.auth", msg.Topic)
	assert.Equal(t, []byte("sess-1"), msg.Key)

	carrier := NewHeaderCarrier(&msg.Headers)
	assert.Equal(t, "auth.login_locked", carrier.Get("event_type"))
	assert.Equal(t, "inbox", carrier.Get("source"))
	assert.Equal(t, "corr-9", carrier.Get("correlation_id"))
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", carrier.Get("traceparent"))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.EventID, decoded.EventID)
}

func TestProducer_PublishErrorCounted(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewProducerWithWriter(w, nil, testLogger())
	before := testutil.ToFloat64(producerPublishErrors.WithLabelValues("inbox.errors"))

	event, _ := NewEvent("user.registered", "u-2", "user", "inbox", nil)
	err := p.Publish(context.Background(), "inbox.errors", event)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish event to inbox.errors")
	assert.Equal(t, before+1, testutil.ToFloat64(producerPublishErrors.WithLabelValues("inbox.errors")))
}

func TestProducer_Close(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, NewProducerWithWriter(w, nil, testLogger()).Close())
	assert.True(t, w.closed)
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	err := PingBrokers(context.Background(), nil)
	assert.EqualError(t, err, "kafka: no brokers configured")
}

func TestHeaderCarrier(t *testing.T) {
	headers := []kafka.Header{{Key: "existing", Value: []byte("v1")}}
	c := NewHeaderCarrier(&headers)

	assert.Equal(t, "v1", c.Get("existing"))
	assert.Empty(t, c.Get("missing"))

	c.Set("existing", "v2")
	c.Set("new", "n")
	assert.Equal(t, "v2", c.Get("existing"))
	assert.ElementsMatch(t, []string{"existing", "new"}, c.Keys())
	assert.Len(t, headers, 2)
}
