package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"verifier/internal/audit"
	"verifier/internal/audit/retry"
	auditstore "verifier/internal/audit/store"
	"verifier/internal/audit/stream"
	"verifier/internal/gateway"
	gatewayhandler "verifier/internal/gateway/handler"
	jwttoken "verifier/internal/jwt_token"
	"verifier/internal/platform/config"
	"verifier/internal/platform/httpserver"
	"verifier/internal/platform/kafka"
	"verifier/internal/platform/logger"
	"verifier/internal/platform/metrics"
	"verifier/internal/platform/middleware"
	"verifier/internal/platform/postgres"
	redisclient "verifier/internal/platform/redis"
	"verifier/internal/platform/tracing"
	"verifier/internal/rules"
	"verifier/internal/rules/engine"
	rulestore "verifier/internal/rules/store"
	"verifier/internal/traceability"
	"verifier/internal/verification"
	verificationstore "verifier/internal/verification/store"
	"verifier/pkg/platform/httputil"
	authmw "verifier/pkg/platform/middleware/auth"
	"verifier/pkg/platform/middleware/metadata"
	request "verifier/pkg/platform/middleware/request"
	"verifier/pkg/platform/middleware/requesttime"
)

const (
	shutdownTimeout = 15 * time.Second
	topicPartitions = 6
)

// main wires the verification service and keeps the lifecycle small.
// Business logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("verifier stopped with error", "error", err)
		os.Exit(1)
	}
}

type backends struct {
	db          *sql.DB
	redis       *redisclient.Client
	auditStore  audit.Store
	ruleRepo    rulestore.Repository
	statusStore verification.Store
}

func openBackends(ctx context.Context, cfg config.Server, log *slog.Logger) (*backends, error) {
	b := &backends{}
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		b.db = db
		b.auditStore = auditstore.NewPostgres(db)
		b.ruleRepo = rulestore.NewPostgres(db)
		b.statusStore = verificationstore.NewPostgres(db)
		log.InfoContext(ctx, "using postgres storage")
	} else {
		b.auditStore = auditstore.NewMemory()
		b.ruleRepo = rulestore.NewMemory()
		b.statusStore = verificationstore.NewMemory()
		log.WarnContext(ctx, "DATABASE_URL not set, using in-memory storage")
	}

	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		b.close()
		return nil, err
	}
	b.redis = rc
	return b, nil
}

func (b *backends) retryQueue() audit.RetryQueue {
	if b.redis == nil {
		return audit.NewMemoryRetryQueue()
	}
	return retry.NewRedis(b.redis.Client, "")
}

func (b *backends) health(ctx context.Context) error {
	if b.db != nil {
		if err := b.db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if b.redis != nil {
		if err := b.redis.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (b *backends) close() {
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.db != nil {
		_ = b.db.Close()
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	tp, err := tracing.Setup(cfg.OTelEnabled, os.Stdout)
	if err != nil {
		return err
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	registry := engine.DefaultRegistry()
	gatewayMetrics := gateway.NewMetrics()
	rulesStore := rulestore.New(registry,
		rulestore.WithLogger(log),
		rulestore.WithRepository(b.ruleRepo),
		rulestore.WithObserver(gatewayMetrics),
	)
	if err := rulesStore.Restore(ctx); err != nil {
		return err
	}
	if err := loadRulesFile(ctx, cfg.RulesFile, rulesStore, log); err != nil {
		return err
	}

	graphs, err := traceability.NewBuilder(b.auditStore,
		traceability.WithLogger(log),
		traceability.WithCacheSize(cfg.Graph.CacheSize),
	)
	if err != nil {
		return err
	}
	pending := audit.NewPendingTracker()
	statuses := verification.NewService(b.statusStore, b.auditStore,
		verification.WithLogger(log),
		verification.WithMetrics(verification.NewMetrics()),
		verification.WithPendingAudit(pending),
	)

	g, gctx := errgroup.WithContext(ctx)

	// With a stream configured, local caches are fed from the topic so every
	// replica invalidates on every write. Without one, they subscribe directly.
	auditOpts := []audit.Option{
		audit.WithLogger(log),
		audit.WithMetrics(audit.NewMetrics()),
		audit.WithRetryQueue(b.retryQueue()),
		audit.WithShards(cfg.Audit.Shards, cfg.Audit.ShardCapacity),
		audit.WithRetryInterval(cfg.Audit.RetryInterval),
		audit.WithPendingTracker(pending),
	}
	var producer, consumer *kgo.Client
	if cfg.Kafka.Enabled() {
		producer, err = kafka.NewProducer(ctx, cfg.Kafka)
		if err != nil {
			return err
		}
		defer producer.Close()
		if err := kafka.EnsureTopic(ctx, producer, cfg.Kafka.AuditTopic, topicPartitions); err != nil {
			return err
		}
		consumer, err = kafka.NewConsumer(cfg.Kafka)
		if err != nil {
			return err
		}
		defer consumer.Close()

		router := stream.NewRouter(log, nil)
		router.Register(cfg.Kafka.AuditTopic, stream.NewEntryHandler(graphs, statuses))
		g.Go(func() error { return kafka.Consume(gctx, consumer, router, log) })

		auditOpts = append(auditOpts, audit.WithSubscriber(stream.NewPublisher(producer, cfg.Kafka.AuditTopic, log)))
		log.InfoContext(ctx, "audit stream enabled", "topic", cfg.Kafka.AuditTopic, "brokers", cfg.Kafka.Brokers)
	} else {
		auditOpts = append(auditOpts, audit.WithSubscriber(graphs), audit.WithSubscriber(statuses))
	}

	auditLog, err := audit.New(ctx, b.auditStore, auditOpts...)
	if err != nil {
		return err
	}

	validator := gateway.New(rulesStore, engine.New(registry, engine.WithTracer(tp)), auditLog,
		gateway.WithLogger(log),
		gateway.WithMetrics(gatewayMetrics),
		gateway.WithTracer(tp),
		gateway.WithMaxConcurrent(cfg.Gateway.MaxConcurrentValidations),
		gateway.WithAuditAckTimeout(cfg.Gateway.AuditAckTimeout),
	)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, jwttoken.DefaultIssuer, jwttoken.DefaultAudience)
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(middleware.AccessLog(log, metrics.New()))
	r.Use(middleware.Recover(log))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := b.health(r.Context()); err != nil {
			log.WarnContext(r.Context(), "health check failed", "error", err)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"status":       "ok",
			"ruleVersion":  rulesStore.CurrentSnapshot().Version(),
			"auditPending": auditLog.PendingCount(),
		})
	})
	r.Group(func(r chi.Router) {
		r.Use(authmw.Principal(jwttoken.NewMiddlewareValidator(jwtService), log))
		gatewayhandler.New(validator, b.auditStore, graphs, statuses, rulesStore, log).Register(r)
	})

	srv := httpserver.New(cfg.Addr, r)
	g.Go(func() error {
		log.InfoContext(gctx, "starting verifier", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.InfoContext(shutdownCtx, "shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.ErrorContext(shutdownCtx, "graceful shutdown failed", "error", err)
		}
		if err := auditLog.Close(shutdownCtx); err != nil {
			log.ErrorContext(shutdownCtx, "audit logger close failed", "error", err)
		}
		if producer != nil {
			if err := producer.Flush(shutdownCtx); err != nil {
				log.ErrorContext(shutdownCtx, "kafka flush failed", "error", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// loadRulesFile publishes RULES_FILE at boot. A file identical to the
// restored snapshot republishes the same rule versions.
func loadRulesFile(ctx context.Context, path string, store *rulestore.Store, log *slog.Logger) error {
	if path == "" {
		return nil
	}
	rs, err := rules.LoadFile(path)
	if err != nil {
		return err
	}
	snap, err := store.Publish(ctx, rs)
	if err != nil {
		return fmt.Errorf("publish %s: %w", path, err)
	}
	log.InfoContext(ctx, "rules file published", "path", path, "snapshot_version", snap.Version(), "rules", snap.Len())
	return nil
}
