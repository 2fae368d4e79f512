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

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type positionsPayload struct {
	OwnerID int64   `json:"owner_id"`
	IDs     []int64 `json:"ids"`
}

func TestNewEvent(t *testing.T) {
	event, err := NewEvent("positions.saved", "category-6", positionsPayload{OwnerID: 6, IDs: []int64{1, 2}})
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, Source, event.Source)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)

	data, err := event.WithCorrelationID("req-1").Marshal()
	require.NoError(t, err)
	decoded, err := UnmarshalEvent(data)
	require.NoError(t, err)
	assert.Equal(t, "req-1", decoded.CorrelationID)

	var payload positionsPayload
	require.NoError(t, decoded.UnmarshalData(&payload))
	assert.Equal(t, positionsPayload{OwnerID: 6, IDs: []int64{1, 2}}, payload)
}

func TestEvent_UnmarshalDataErrors(t *testing.T) {
	var payload positionsPayload

	empty := &Event{EventID: "e1"}
	assert.Error(t, empty.UnmarshalData(&payload))

	bad := &Event{EventID: "e2", Data: json.RawMessage(`{"owner_id":"six"}`)}
	assert.Error(t, bad.UnmarshalData(&payload))

	_, err := NewEvent("x", "y", func() {})
	assert.Error(t, err)
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "searchandising.positions.saved", Topic("positions", "saved"))
	assert.Equal(t, "searchandising.dlq.ecommerce.catalog.category.saved", DLQTopic("ecommerce.catalog.category.saved"))
}

func TestKafkaHeaderCarrier(t *testing.T) {
	headers := []kafka.Header{{Key: "existing", Value: []byte("value1")}}
	carrier := NewHeaderCarrier(&headers)

	assert.Equal(t, "value1", carrier.Get("existing"))
	assert.Equal(t, "", carrier.Get("missing"))

	carrier.Set("existing", "updated")
	carrier.Set("new-key", "new-value")
	assert.Equal(t, "updated", carrier.Get("existing"))
	assert.ElementsMatch(t, []string{"existing", "new-key"}, carrier.Keys())
	assert.Len(t, headers, 2)
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
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

func (w *fakeWriter) Close() error { return nil }

func tracedContext(t *testing.T) context.Context {
	t.Helper()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, logger: testLogger()}

	event, err := NewEvent("positions.saved", "category-6", positionsPayload{OwnerID: 6})
	require.NoError(t, err)
	require.NoError(t, p.Publish(tracedContext(t), "searchandising.positions.saved", event))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "searchandising.positions.saved", msg.Topic)
	assert.Equal(t, []byte("category-6"), msg.Key)

	carrier := NewHeaderCarrier(&msg.Headers)
	assert.Equal(t, "positions.saved", carrier.Get("event_type"))
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", carrier.Get("traceparent"))
}

func TestProducer_PublishError(t *testing.T) {
	p := &Producer{writer: &fakeWriter{err: errors.New("leader not available")}, logger: testLogger()}

	event, err := NewEvent("positions.saved", "category-6", positionsPayload{})
	require.NoError(t, err)
	err = p.Publish(context.Background(), "t", event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	assert.Error(t, PingBrokers(context.Background(), nil))
}

func TestDLQProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	d := &DLQProducer{writer: w, logger: testLogger()}

	original := kafka.Message{Topic: "searchandising.positions.saved", Partition: 2, Offset: 17, Key: []byte("k"), Value: []byte("v")}
	require.NoError(t, d.Publish(context.Background(), original, errors.New("boom"), "searchandising"))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "searchandising.dlq.searchandising.positions.saved", msg.Topic)
	assert.Equal(t, []byte("v"), msg.Value)
	carrier := NewHeaderCarrier(&msg.Headers)
	assert.Equal(t, "2", carrier.Get("dlq.original_partition"))
	assert.Equal(t, "17", carrier.Get("dlq.original_offset"))
	assert.Equal(t, "boom", carrier.Get("dlq.error"))
}

// fakeReader serves queued messages and then blocks until ctx is done.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    int
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

func eventMessage(t *testing.T, offset int64, eventType string) kafka.Message {
	t.Helper()
	event, err := NewEvent(eventType, "agg", positionsPayload{})
	require.NoError(t, err)
	data, err := event.Marshal()
	require.NoError(t, err)
	return kafka.Message{Topic: "t", Offset: offset, Value: data}
}

type recordingDLQ struct {
	offsets []int64
}

func (d *recordingDLQ) Publish(_ context.Context, msg kafka.Message, _ error, _ string) error {
	d.offsets = append(d.offsets, msg.Offset)
	return nil
}

var errPermanent = errors.New("unknown provider")

func newTestConsumer(r messageReader, handler Handler, dlq DeadLetterPublisher) *Consumer {
	cfg := ConsumerConfig{
		Topic:     "t",
		GroupID:   "g",
		Backoff:   time.Millisecond,
		Permanent: func(err error) bool { return errors.Is(err, errPermanent) },
	}
	return newConsumer(r, cfg, handler, testLogger(), WithDeadLetter(dlq))
}

func TestConsumer_ProcessRetriesTransientErrors(t *testing.T) {
	r := &fakeReader{}
	dlq := &recordingDLQ{}
	attempts := 0
	c := newTestConsumer(r, func(context.Context, *Event) error {
		attempts++
		if attempts < 3 {
			return errors.New("engine timeout")
		}
		return nil
	}, dlq)

	c.process(context.Background(), eventMessage(t, 1, "positions.saved"))

	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int64{1}, r.committed)
	assert.Empty(t, dlq.offsets)
}

func TestConsumer_ProcessPermanentErrorSkipsRetries(t *testing.T) {
	r := &fakeReader{}
	dlq := &recordingDLQ{}
	attempts := 0
	c := newTestConsumer(r, func(context.Context, *Event) error {
		attempts++
		return errPermanent
	}, dlq)

	c.process(context.Background(), eventMessage(t, 4, "positions.saved"))

	assert.Equal(t, 1, attempts)
	assert.Equal(t, []int64{4}, r.committed)
	assert.Equal(t, []int64{4}, dlq.offsets)
}

func TestConsumer_ProcessExhaustedRetries(t *testing.T) {
	r := &fakeReader{}
	dlq := &recordingDLQ{}
	attempts := 0
	c := newTestConsumer(r, func(context.Context, *Event) error {
		attempts++
		return errors.New("still down")
	}, dlq)

	c.process(context.Background(), eventMessage(t, 5, "positions.saved"))

	assert.Equal(t, maxHandlerRetries, attempts)
	assert.Equal(t, []int64{5}, r.committed)
	assert.Equal(t, []int64{5}, dlq.offsets)
}

func TestConsumer_ProcessMalformedMessageIsCommitted(t *testing.T) {
	r := &fakeReader{}
	called := false
	c := newTestConsumer(r, func(context.Context, *Event) error {
		called = true
		return nil
	}, &recordingDLQ{})

	c.process(context.Background(), kafka.Message{Offset: 9, Value: []byte("{not json")})

	assert.False(t, called)
	assert.Equal(t, []int64{9}, r.committed)
}

func TestConsumer_CanceledDuringRetryIsNotCommitted(t *testing.T) {
	r := &fakeReader{}
	ctx, cancel := context.WithCancel(context.Background())
	c := newTestConsumer(r, func(context.Context, *Event) error {
		cancel()
		return errors.New("engine timeout")
	}, &recordingDLQ{})

	c.process(ctx, eventMessage(t, 3, "positions.saved"))

	assert.Empty(t, r.committed)
}

func TestConsumer_StartHandlesQueueUntilCanceled(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{
		eventMessage(t, 1, "a"),
		eventMessage(t, 2, "b"),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	var seen []string
	c := newTestConsumer(r, func(_ context.Context, e *Event) error {
		mu.Lock()
		seen = append(seen, e.EventType)
		done := len(seen) == 2
		mu.Unlock()
		if done {
			cancel()
		}
		return nil
	}, &recordingDLQ{})

	require.NoError(t, c.Start(ctx))
	assert.Equal(t, []string{"a", "b"}, seen)
	assert.Equal(t, 1, r.closed)
	require.NoError(t, c.Close())
	assert.Equal(t, 1, r.closed)
}

func TestMemoryIdempotencyStore_Expiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryIdempotencyStore(time.Minute)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "evt-1"))
	seen, err := store.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, seen)

	now = now.Add(2 * time.Minute)
	seen, err = store.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Equal(t, 0, store.Len())
}

func TestRedisIdempotencyStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisIdempotencyStore(client, time.Hour)
	ctx := context.Background()

	seen, err := store.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.Add(ctx, "evt-1"))
	seen, err = store.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, time.Hour, mr.TTL(idempotencyKeyPrefix+"evt-1"))

	mr.FastForward(2 * time.Hour)
	seen, err = store.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

type brokenStore struct{}

func (brokenStore) Contains(context.Context, string) (bool, error) { return false, errors.New("down") }
func (brokenStore) Add(context.Context, string) error              { return errors.New("down") }

func TestIdempotentHandler(t *testing.T) {
	ctx := context.Background()
	calls := 0
	fail := false
	inner := func(context.Context, *Event) error {
		calls++
		if fail {
			return errors.New("failed")
		}
		return nil
	}
	h := IdempotentHandler(NewMemoryIdempotencyStore(time.Hour), inner, testLogger())

	fail = true
	require.Error(t, h(ctx, &Event{EventID: "e1"}))
	fail = false
	require.NoError(t, h(ctx, &Event{EventID: "e1"}))
	require.NoError(t, h(ctx, &Event{EventID: "e1"}))
	assert.Equal(t, 2, calls, "a failed event is not recorded, a processed one is")

	require.NoError(t, h(ctx, &Event{}))
	require.NoError(t, h(ctx, &Event{}))
	assert.Equal(t, 4, calls, "events without id are never deduplicated")

	broken := IdempotentHandler(brokenStore{}, inner, testLogger())
	require.NoError(t, broken(ctx, &Event{EventID: "e2"}))
	assert.Equal(t, 5, calls)
}
