package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	applogger "EventHorizon/pkg/logger"
)

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

type fakeFetcher struct {
	mu        sync.Mutex
	committed []int64
}

func (f *fakeFetcher) FetchMessage(ctx context.Context) (kafka.Message, error) {
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeFetcher) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeFetcher) Close() error { return nil }

type countingHandler struct {
	topic string
	fail  int
	err   error
	calls int
}

func (h *countingHandler) Topic() string { return h.topic }

func (h *countingHandler) Handle(context.Context, []byte) error {
	h.calls++
	if h.calls <= h.fail {
		return h.err
	}
	return nil
}

func newTestConsumer(t *testing.T, h *countingHandler, dlq *fakeWriter) (*Consumer, *fakeFetcher) {
	t.Helper()
	c, err := NewConsumer(applogger.Nop(),
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(2, time.Millisecond, 2*time.Millisecond),
	)
	require.NoError(t, err)
	c.RegisterHandler(h)
	f := &fakeFetcher{}
	c.readers[h.topic] = f
	c.dlq = nil
	if dlq != nil {
		c.cfg.DLQTopic = "curves.dlq"
		c.dlq = dlq
	}
	return c, f
}

func TestProducerPublishEncodes(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "none")

	require.NoError(t, p.Publish(context.Background(), "verdicts", []byte("1:2"), map[string]int{"tau": 70}))
	require.NoError(t, p.PublishBatch(context.Background(), "verdicts", []Message{
		{Key: []byte("a"), Value: "raw", Headers: map[string]string{"run_id": "r1"}},
		{Key: []byte("b"), Value: []byte("bytes")},
	}))
	require.NoError(t, p.PublishBatch(context.Background(), "verdicts", nil))

	require.Len(t, w.msgs, 3)
	assert.Equal(t, `{"tau":70}`, string(w.msgs[0].Value))
	assert.Equal(t, "verdicts", w.msgs[0].Topic)
	assert.Equal(t, "raw", string(w.msgs[1].Value))
	assert.Equal(t, "r1", Header(w.msgs[1], "run_id"))
	assert.Equal(t, "bytes", string(w.msgs[2].Value))
}

func TestProducerPublishError(t *testing.T) {
	p := newProducer(&fakeWriter{err: errors.New("down")}, "none")
	assert.Error(t, p.Publish(context.Background(), "t", nil, "x"))

	_, err := NewProducer()
	assert.Error(t, err)
}

func TestConsumerRetriesThenCommits(t *testing.T) {
	h := &countingHandler{topic: "curves", fail: 2, err: errors.New("transient")}
	c, f := newTestConsumer(t, h, nil)

	c.process(context.Background(), kafka.Message{Topic: "curves", Offset: 7})
	assert.Equal(t, 3, h.calls)
	assert.Equal(t, []int64{7}, f.committed)
}

func TestConsumerExhaustedGoesToDLQ(t *testing.T) {
	h := &countingHandler{topic: "curves", fail: 100, err: errors.New("boom")}
	dlq := &fakeWriter{}
	c, f := newTestConsumer(t, h, dlq)

	c.process(context.Background(), kafka.Message{Topic: "curves", Offset: 3, Value: []byte("{}")})
	assert.Equal(t, 3, h.calls)
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, "curves", Header(dlq.msgs[0], "source_topic"))
	assert.Equal(t, "boom", Header(dlq.msgs[0], "error"))
	assert.Equal(t, []int64{3}, f.committed)
}

func TestConsumerPermanentSkipsRetries(t *testing.T) {
	h := &countingHandler{topic: "curves", fail: 100, err: Permanent(errors.New("bad payload"))}
	c, f := newTestConsumer(t, h, nil)

	c.process(context.Background(), kafka.Message{Topic: "curves", Offset: 1})
	assert.Equal(t, 1, h.calls)
	assert.Empty(t, f.committed)
}

func TestHookChainRecoversPanic(t *testing.T) {
	var afterOrder []string
	chain := NewHookChain(
		RequestIDHook(),
		HookFuncs{After: func(context.Context, kafka.Message, error) { afterOrder = append(afterOrder, "second") }},
		nil,
	)
	km := kafka.Message{Headers: []kafka.Header{{Key: "request_id", Value: []byte("req-1")}}}
	ctx, err := chain.BeforeHandle(context.Background(), km)
	require.NoError(t, err)
	assert.Equal(t, "req-1", RequestID(ctx))
	chain.AfterHandle(ctx, km, nil)
	assert.Equal(t, []string{"second"}, afterOrder)

	panicky := NewHookChain(HookFuncs{Before: func(context.Context, kafka.Message) (context.Context, error) {
		panic("bad hook")
	}})
	_, err = panicky.BeforeHandle(context.Background(), km)
	var he *HookError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "ERR_PANIC", he.Code)
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt < 10; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 80*time.Millisecond, attempt)
		assert.LessOrEqual(t, d, 80*time.Millisecond)
		assert.Greater(t, d, time.Duration(0))
	}
}
