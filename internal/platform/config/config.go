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
	DatabaseURL   string
	JWTSigningKey string
	Redis         RedisConfig
	Kafka         KafkaConfig
	Realtime      RealtimeConfig
}

// RedisConfig configures the snapshot cache backend. An empty URL means the
// in-memory cache is used instead.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit event publisher. Empty brokers disable
// publishing (events still reach the local audit store).
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// RealtimeConfig bounds the sync channel's reconnect and heartbeat behavior.
type RealtimeConfig struct {
	ServerURL         string
	HeartbeatWindow   time.Duration
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	MaxReconnectTries int
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("SHEPHERD_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	cfg := Server{
		Addr:          addr,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		JWTSigningKey: jwtSigningKey,
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			AuditTopic: envString("KAFKA_AUDIT_TOPIC", "shepherd.checkin.audit"),
		},
		Realtime: RealtimeConfig{
			ServerURL:         os.Getenv("REALTIME_URL"),
			HeartbeatWindow:   envDuration("REALTIME_HEARTBEAT_WINDOW", 45*time.Second),
			InitialBackoff:    envDuration("REALTIME_BACKOFF_INITIAL", time.Second),
			MaxBackoff:        envDuration("REALTIME_BACKOFF_MAX", 30*time.Second),
			MaxReconnectTries: envInt("REALTIME_MAX_RECONNECTS", 8),
		},
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, b)
			}
		}
	}
	return cfg
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
