package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr   string
	CRDBDSN      string
	MongoURI     string
	RedisAddr    string
	RabbitURL    string
	JWTSecret    string
	OTLPEndpoint string

	HoldTTL        time.Duration
	SweepInterval  time.Duration
	CancelCutoff   time.Duration
	LockWait       time.Duration
	IdempotencyTTL time.Duration

	AllowPastEventCancel bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		ListenAddr:           envOr("LISTEN_ADDR", ":8080"),
		CRDBDSN:              os.Getenv("CRDB_DSN"),
		MongoURI:             os.Getenv("MONGO_URI"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RabbitURL:            os.Getenv("RABBIT_URL"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		HoldTTL:              durationOr("HOLD_TTL", 15*time.Minute),
		SweepInterval:        durationOr("SWEEP_INTERVAL", time.Minute),
		CancelCutoff:         durationOr("CANCEL_CUTOFF", 24*time.Hour),
		LockWait:             durationOr("LOCK_WAIT", 2*time.Second),
		IdempotencyTTL:       durationOr("IDEMPOTENCY_TTL", time.Hour),
		AllowPastEventCancel: os.Getenv("ALLOW_PAST_EVENT_CANCEL") != "false",
	}, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationOr(key string, def time.Duration) time.Duration {
	d, _ := time.ParseDuration(os.Getenv(key))
	if d == 0 {
		return def
	}
	return d
}
