package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	LogLevel      string
	JWTSigningKey string
	OTelEnabled   bool
	RulesFile     string

	DatabaseURL string
	Redis       RedisConfig
	Kafka       KafkaConfig
	Audit       AuditConfig
	Gateway     GatewayConfig
	Graph       GraphConfig
}

// RedisConfig configures the retry queue backend. An empty URL keeps retries in memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit stream. No brokers disables the stream.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// Enabled reports whether an audit stream is configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// AuditConfig sizes the sharded audit logger.
type AuditConfig struct {
	Shards        int
	ShardCapacity int
	RetryInterval time.Duration
}

// GatewayConfig bounds request handling.
type GatewayConfig struct {
	MaxConcurrentValidations int
	AuditAckTimeout          time.Duration
}

// GraphConfig sizes the traceability cache.
type GraphConfig struct {
	CacheSize int
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:          envString("VERIFIER_ADDR", ":8080"),
		LogLevel:      envString("LOG_LEVEL", "info"),
		JWTSigningKey: jwtSigningKey,
		OTelEnabled:   os.Getenv("OTEL_ENABLED") == "true",
		RulesFile:     os.Getenv("RULES_FILE"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    envList("KAFKA_BROKERS"),
			AuditTopic: envString("KAFKA_AUDIT_TOPIC", "verification.audit"),
		},
		Audit: AuditConfig{
			Shards:        envInt("AUDIT_SHARDS", 8),
			ShardCapacity: envInt("AUDIT_SHARD_CAPACITY", 1024),
			RetryInterval: envDuration("AUDIT_RETRY_INTERVAL", 2*time.Second),
		},
		Gateway: GatewayConfig{
			MaxConcurrentValidations: envInt("MAX_CONCURRENT_VALIDATIONS", 256),
			AuditAckTimeout:          envDuration("AUDIT_ACK_TIMEOUT", 250*time.Millisecond),
		},
		Graph: GraphConfig{
			CacheSize: envInt("GRAPH_CACHE_SIZE", 128),
		},
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envInt ignores unparsable or non-positive values.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
