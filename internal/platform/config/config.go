package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName  string   `env:"SERVICE_NAME"  envDefault:"gatherly"`
	HTTPPort     string   `env:"HTTP_PORT"     envDefault:"8080"`
	PostgresDSN  string   `env:"POSTGRES_DSN"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// DBLockTimeout bounds how long a transaction waits on a row lock before
	// the request fails as a transient conflict.
	DBLockTimeout      time.Duration `env:"DB_LOCK_TIMEOUT"      envDefault:"3s"`
	GroupPageSize      int           `env:"GROUP_PAGE_SIZE"      envDefault:"50"`
	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"2s"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE"    envDefault:"100"`
	AutoMigrate        bool          `env:"AUTO_MIGRATE"         envDefault:"true"`
	UseInMemoryStore   bool          `env:"USE_IN_MEMORY_STORE"  envDefault:"false"`
}

func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.KafkaBrokers = compact(cfg.KafkaBrokers)
	if len(cfg.KafkaBrokers) == 0 {
		cfg.KafkaBrokers = []string{"localhost:9092"}
	}
	if cfg.GroupPageSize <= 0 {
		return Config{}, fmt.Errorf("GROUP_PAGE_SIZE must be positive, got %d", cfg.GroupPageSize)
	}
	if cfg.OutboxBatchSize <= 0 {
		return Config{}, fmt.Errorf("OUTBOX_BATCH_SIZE must be positive, got %d", cfg.OutboxBatchSize)
	}
	if cfg.OutboxPollInterval <= 0 {
		return Config{}, fmt.Errorf("OUTBOX_POLL_INTERVAL must be positive, got %s", cfg.OutboxPollInterval)
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value != "" {
			out = append(out, value)
		}
	}
	return out
}
