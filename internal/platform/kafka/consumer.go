package kafka

import (
	"context"
	"errors"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is a consumed record, detached from the franz-go types.
type Message struct {
	Topic     string
	Key       []byte
	Value     []byte
	Partition int32
	Offset    int64
}

// Handler processes one message. Errors are logged and the offset is still
// committed; handlers must be idempotent and tolerate gaps.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// Consume polls client until ctx is cancelled or the client is closed.
func Consume(ctx context.Context, client *kgo.Client, h Handler, logger *slog.Logger) error {
	for {
		fetches := client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Warn("kafka fetch error", "topic", topic, "partition", partition, "error", err)
		})
		fetches.EachRecord(func(r *kgo.Record) {
			msg := &Message{
				Topic:     r.Topic,
				Key:       r.Key,
				Value:     r.Value,
				Partition: r.Partition,
				Offset:    r.Offset,
			}
			if err := h.Handle(ctx, msg); err != nil {
				logger.Error("kafka message handling failed",
					"topic", msg.Topic,
					"partition", msg.Partition,
					"offset", msg.Offset,
					"error", err,
				)
			}
		})
	}
}
