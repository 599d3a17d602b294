// Package stream fans persisted audit entries out over Kafka so every
// replica can invalidate the read-side caches derived from the log.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"verifier/internal/audit"
)

// Producer is the part of *kgo.Client the publisher needs.
type Producer interface {
	TryProduce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// Publisher is an audit.Subscriber that produces every persisted entry,
// keyed by affected object id so per-object order holds within a partition.
type Publisher struct {
	producer Producer
	topic    string
	logger   *slog.Logger
}

func NewPublisher(producer Producer, topic string, logger *slog.Logger) *Publisher {
	return &Publisher{producer: producer, topic: topic, logger: logger}
}

var _ audit.Subscriber = (*Publisher)(nil)

// EntryPersisted produces without blocking. When the client buffer is full
// the record is dropped and logged; the entry itself is already durable in
// the audit store.
func (p *Publisher) EntryPersisted(ctx context.Context, e audit.Entry) {
	value, err := json.Marshal(e)
	if err != nil {
		p.logger.ErrorContext(ctx, "encode audit entry for stream", "log_id", e.LogID, "error", err)
		return
	}
	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(e.AffectedObjectID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "log_id", Value: []byte(e.LogID)},
			{Key: "domain", Value: []byte(e.Domain)},
		},
	}
	p.producer.TryProduce(context.WithoutCancel(ctx), rec, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("produce audit entry", "log_id", e.LogID, "topic", r.Topic, "error", err)
		}
	})
}
