//go:build integration

package stream_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verifier/internal/audit"
	"verifier/internal/audit/stream"
	"verifier/internal/platform/config"
	"verifier/internal/platform/kafka"
	"verifier/pkg/testutil/containers"
)

func TestEntriesRoundTripThroughKafka(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	kc := containers.GetManager().GetKafka(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cfg := config.KafkaConfig{
		Brokers:    kc.Brokers,
		AuditTopic: "audit-roundtrip",
	}
	producer, err := kafka.NewProducer(ctx, cfg)
	require.NoError(t, err)
	defer producer.Close()
	require.NoError(t, kafka.EnsureTopic(ctx, producer, cfg.AuditTopic, 1))

	consumer, err := kafka.NewConsumer(cfg)
	require.NoError(t, err)

	var (
		mu  sync.Mutex
		got []string
	)
	handler := stream.NewEntryHandler(audit.SubscriberFunc(func(_ context.Context, e audit.Entry) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.LogID)
	}))
	router := stream.NewRouter(slog.Default(), nil)
	router.Register(cfg.AuditTopic, handler)

	consumeCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- kafka.Consume(consumeCtx, consumer, router, slog.Default()) }()

	pub := stream.NewPublisher(producer, cfg.AuditTopic, slog.Default())
	require.Eventually(t, func() bool {
		pub.EntryPersisted(ctx, audit.Entry{LogID: "01A", AffectedObjectID: "obj-1"})
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, 30*time.Second, time.Second)

	stop()
	consumer.Close()
	assert.NoError(t, <-done)
	assert.Equal(t, "01A", got[0])
}
