package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "gatherly" {
		t.Fatalf("expected default service name, got %q", cfg.ServiceName)
	}
	if cfg.HTTPPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.HTTPPort)
	}
	if cfg.DBLockTimeout != 3*time.Second {
		t.Fatalf("expected 3s lock timeout, got %s", cfg.DBLockTimeout)
	}
	if cfg.GroupPageSize != 50 || cfg.OutboxBatchSize != 100 {
		t.Fatalf("unexpected sizes: page=%d batch=%d", cfg.GroupPageSize, cfg.OutboxBatchSize)
	}
	if !cfg.AutoMigrate || cfg.UseInMemoryStore {
		t.Fatalf("unexpected flags: auto_migrate=%v in_memory=%v", cfg.AutoMigrate, cfg.UseInMemoryStore)
	}
	if len(cfg.KafkaBrokers) != 1 || cfg.KafkaBrokers[0] != "localhost:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.KafkaBrokers)
	}
}

func TestLoadTrimsBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " kafka-1:9092, ,kafka-2:9092 ")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "kafka-1:9092" || cfg.KafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.KafkaBrokers)
	}
}

func TestLoadRejectsNonPositivePageSize(t *testing.T) {
	t.Setenv("GROUP_PAGE_SIZE", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero page size")
	}
}

func TestParseEnvError(t *testing.T) {
	t.Setenv("DB_LOCK_TIMEOUT", "soon")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}
