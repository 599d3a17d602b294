package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"verifier/internal/audit"
	"verifier/internal/platform/kafka"
)

// Router dispatches messages to topic-specific handlers.
type Router struct {
	handlers map[string]kafka.Handler
	fallback kafka.Handler
	logger   *slog.Logger
}

// NewRouter creates a topic router with an optional fallback handler.
func NewRouter(logger *slog.Logger, fallback kafka.Handler) *Router {
	return &Router{
		handlers: make(map[string]kafka.Handler),
		fallback: fallback,
		logger:   logger,
	}
}

// Register adds a handler for a specific topic.
func (r *Router) Register(topic string, handler kafka.Handler) {
	r.handlers[topic] = handler
}

func (r *Router) Handle(ctx context.Context, msg *kafka.Message) error {
	handler, ok := r.handlers[msg.Topic]
	if !ok {
		if r.fallback != nil {
			return r.fallback.Handle(ctx, msg)
		}
		r.logger.Warn("no handler for topic, skipping message",
			"topic", msg.Topic,
			"key", string(msg.Key),
		)
		return nil
	}
	return handler.Handle(ctx, msg)
}

// EntryHandler decodes audit entries and hands them to local subscribers.
type EntryHandler struct {
	subscribers []audit.Subscriber
}

func NewEntryHandler(subscribers ...audit.Subscriber) *EntryHandler {
	return &EntryHandler{subscribers: subscribers}
}

func (h *EntryHandler) Handle(ctx context.Context, msg *kafka.Message) error {
	var e audit.Entry
	if err := json.Unmarshal(msg.Value, &e); err != nil {
		return fmt.Errorf("decode audit entry at offset %d: %w", msg.Offset, err)
	}
	for _, s := range h.subscribers {
		s.EntryPersisted(ctx, e)
	}
	return nil
}
