package repository

import (
	"context"

	"EventHorizon/internal/domain/models"
	domrepo "EventHorizon/internal/domain/repository"
	pkgkafka "EventHorizon/pkg/kafka"
)

// batchPublisher is the part of *pkgkafka.Producer the publisher uses.
type batchPublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaPublisher emits verdicts as JSON keyed by "A:B", so every verdict for
// one curve lands on the same partition.
type KafkaPublisher struct {
	producer batchPublisher
	topic    string
}

func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) domrepo.VerdictPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func verdictMessage(v models.Verdict) pkgkafka.Message {
	return pkgkafka.Message{
		Key:   []byte(v.A + ":" + v.B),
		Value: v,
		Headers: map[string]string{
			"category":    string(v.Category),
			"fingerprint": v.Fingerprint,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, v models.Verdict) error {
	return p.producer.PublishBatch(ctx, p.topic, []pkgkafka.Message{verdictMessage(v)})
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, vs []models.Verdict) error {
	if len(vs) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(vs))
	for i, v := range vs {
		msgs[i] = verdictMessage(v)
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// PublisherSink adapts a VerdictPublisher to the batch sink interface.
type PublisherSink struct {
	pub domrepo.VerdictPublisher
}

func NewPublisherSink(pub domrepo.VerdictPublisher) *PublisherSink {
	return &PublisherSink{pub: pub}
}

func (s *PublisherSink) Name() string { return "kafka" }

func (s *PublisherSink) Write(ctx context.Context, r models.Result) error {
	if r.Verdict == nil {
		return nil
	}
	return s.pub.Publish(ctx, *r.Verdict)
}

func (s *PublisherSink) Close() error { return s.pub.Close() }
