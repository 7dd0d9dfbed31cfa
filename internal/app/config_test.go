package app

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.GRPCAddr != ":50051" {
		t.Errorf("expected GRPCAddr :50051, got %s", cfg.GRPCAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("expected MetricsAddr :9090, got %s", cfg.MetricsAddr)
	}
	if cfg.StorageDriver != StorageDriverMemory {
		t.Errorf("expected StorageDriver %s, got %s", StorageDriverMemory, cfg.StorageDriver)
	}
	if !cfg.PostgresAutoMigrate {
		t.Error("expected PostgresAutoMigrate to be true")
	}
	if cfg.PostgresAppName != "pos-billing" || cfg.PostgresMaxConns != 25 {
		t.Errorf("unexpected postgres pool defaults: %q/%d", cfg.PostgresAppName, cfg.PostgresMaxConns)
	}
	if cfg.PostgresStatementTimeout != 10*time.Second || cfg.PostgresLockTimeout != 3*time.Second {
		t.Errorf("unexpected postgres timeouts: %s/%s", cfg.PostgresStatementTimeout, cfg.PostgresLockTimeout)
	}
	if cfg.StockPolicy != domain.StockPolicyReject {
		t.Errorf("expected reject stock policy by default, got %s", cfg.StockPolicy)
	}
	if cfg.KafkaBrokers != "" {
		t.Errorf("expected kafka to be disabled by default, got %q", cfg.KafkaBrokers)
	}
	if cfg.OutboxPollInterval <= 0 {
		t.Error("expected OutboxPollInterval to be > 0")
	}
	if cfg.OutboxBatchSize <= 0 {
		t.Error("expected OutboxBatchSize to be > 0")
	}
	if cfg.OutboxMaxAttempts <= 0 {
		t.Error("expected OutboxMaxAttempts to be > 0")
	}
	if cfg.OutboxRetryDelay < 0 {
		t.Error("expected OutboxRetryDelay to be >= 0")
	}
	if cfg.OutboxMaxPending <= 0 {
		t.Error("expected OutboxMaxPending to be > 0")
	}
	if cfg.IdempotencyCleanupInterval <= 0 {
		t.Error("expected IdempotencyCleanupInterval to be > 0")
	}
	if cfg.IdempotencyCleanupBatchSize <= 0 {
		t.Error("expected IdempotencyCleanupBatchSize to be > 0")
	}
	if cfg.ReconcilerGroupID == "" || cfg.ReconcilerMaxRetries <= 0 {
		t.Errorf("expected reconciler defaults, got group=%q retries=%d", cfg.ReconcilerGroupID, cfg.ReconcilerMaxRetries)
	}
	if cfg.ShutdownTimeout <= 0 {
		t.Error("expected ShutdownTimeout to be > 0")
	}
}

func TestConfig_CopyAndComparison(t *testing.T) {
	original := DefaultConfig()
	modified := original
	modified.GRPCAddr = ":8080"
	modified.ShutdownTimeout = time.Second

	if original.GRPCAddr != ":50051" {
		t.Error("original config was modified")
	}
	if original == modified {
		t.Error("modified config should not be equal to original")
	}
	if DefaultConfig() != DefaultConfig() {
		t.Error("two DefaultConfig instances should be equal")
	}
}
