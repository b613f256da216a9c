package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	ServiceName    string
	HTTPAddr       string
	Storage        string
	PostgresDSN    string
	RedisAddr      string
	KafkaBrokers   []string
	EventsTopic    string
	FundingTopic   string
	KafkaGroupID   string
	JWTSecret      string
	OTLPEndpoint   string
	LogLevel       string
	AllowedOrigins []string
	JobLockTTL     time.Duration
	FundingMode    string
}

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

func defaults(v *viper.Viper) {
	v.SetDefault("SERVICE_NAME", "job-escrow-service")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("STORAGE", StoragePostgres)
	v.SetDefault("POSTGRES_DSN", "host=localhost user=postgres password=postgres dbname=escrow sslmode=disable")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_EVENTS_TOPIC", "marketplace-events")
	v.SetDefault("KAFKA_FUNDING_TOPIC", "funding-confirmations")
	v.SetDefault("KAFKA_GROUP_ID", "job-escrow-service")
	v.SetDefault("JWT_SECRET", "supersecret")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("JOB_LOCK_TTL", "10s")
	v.SetDefault("FUNDING_MODE", "simulated")
}

// Load reads .env when present and then the environment. Empty REDIS_ADDR or KAFKA_BROKERS turn
// those integrations off.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using environment and defaults", "error", err)
	}
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	defaults(v)
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()
	return v
}

func FromViper(v *viper.Viper) *Config {
	cfg := &Config{
		ServiceName:    v.GetString("SERVICE_NAME"),
		HTTPAddr:       v.GetString("HTTP_ADDR"),
		Storage:        strings.ToLower(v.GetString("STORAGE")),
		PostgresDSN:    v.GetString("POSTGRES_DSN"),
		RedisAddr:      v.GetString("REDIS_ADDR"),
		KafkaBrokers:   splitList(v.GetString("KAFKA_BROKERS")),
		EventsTopic:    v.GetString("KAFKA_EVENTS_TOPIC"),
		FundingTopic:   v.GetString("KAFKA_FUNDING_TOPIC"),
		KafkaGroupID:   v.GetString("KAFKA_GROUP_ID"),
		JWTSecret:      v.GetString("JWT_SECRET"),
		OTLPEndpoint:   v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		JobLockTTL:     v.GetDuration("JOB_LOCK_TTL"),
		FundingMode:    v.GetString("FUNDING_MODE"),
	}
	if cfg.JobLockTTL <= 0 {
		cfg.JobLockTTL = 10 * time.Second
	}

	slog.Info("config loaded", "http_addr", cfg.HTTPAddr, "storage", cfg.Storage, "redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers, "funding_mode", cfg.FundingMode)
	return cfg
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
