package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EventHorizon/internal/domain/models"
	pkgkafka "EventHorizon/pkg/kafka"
)

type capturePublisher struct {
	topic  string
	msgs   []pkgkafka.Message
	closed bool
}

func (c *capturePublisher) PublishBatch(_ context.Context, topic string, msgs []pkgkafka.Message) error {
	c.topic = topic
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func (c *capturePublisher) Close() error {
	c.closed = true
	return nil
}

func TestKafkaPublisherKeysByCurve(t *testing.T) {
	cp := &capturePublisher{}
	pub := &KafkaPublisher{producer: cp, topic: "horizon.verdicts"}
	sink := NewPublisherSink(pub)

	v := sampleVerdict("-13", "4", -28.9)
	require.NoError(t, sink.Write(context.Background(), models.Result{Verdict: &v}))
	require.NoError(t, sink.Write(context.Background(), models.Result{A: "0", B: "0", Err: models.ErrInvalidCurve}))
	require.NoError(t, pub.PublishBatch(context.Background(), []models.Verdict{v, v}))

	assert.Equal(t, "horizon.verdicts", cp.topic)
	require.Len(t, cp.msgs, 3)
	assert.Equal(t, "-13:4", string(cp.msgs[0].Key))
	assert.Equal(t, "HighRankCandidate", cp.msgs[0].Headers["category"])
	assert.Equal(t, v, cp.msgs[0].Value)

	require.NoError(t, sink.Close())
	assert.True(t, cp.closed)
	assert.Equal(t, "kafka", sink.Name())
}
