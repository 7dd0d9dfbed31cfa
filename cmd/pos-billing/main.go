package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/app"
	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/version"
)

const (
	envFile                        = "POS_ENV_FILE"
	envGRPCAddr                    = "POS_GRPC_ADDR"
	envMetricsAddr                 = "POS_METRICS_ADDR"
	envStorageDriver               = "POS_STORAGE_DRIVER"
	envPostgresDSN                 = "POS_POSTGRES_DSN"
	envPostgresAutoMigrate         = "POS_POSTGRES_AUTO_MIGRATE"
	envPostgresMaxConns            = "POS_POSTGRES_MAX_CONNS"
	envPostgresStatementTimeout    = "POS_POSTGRES_STATEMENT_TIMEOUT"
	envPostgresLockTimeout         = "POS_POSTGRES_LOCK_TIMEOUT"
	envStockPolicy                 = "POS_STOCK_POLICY"
	envCatalogFile                 = "POS_CATALOG_FILE"
	envKafkaBrokers                = "POS_KAFKA_BROKERS"
	envOutboxPollInterval          = "POS_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "POS_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "POS_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "POS_OUTBOX_RETRY_DELAY"
	envOutboxMaxPending            = "POS_OUTBOX_MAX_PENDING"
	envIdempotencyCleanupInterval  = "POS_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "POS_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envShutdownTimeout             = "POS_SHUTDOWN_TIMEOUT"
	envLogLevel                    = "POS_LOG_LEVEL"
	envLogFormat                   = "POS_LOG_FORMAT"

	defaultEnvFile = ".env"
)

type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования. Возвращает предупреждение,
// если уровень не распознан.
func setupLogger(lookup envLookup) []string {
	var warnings []string

	if format, ok := lookup(envLogFormat); ok && strings.EqualFold(strings.TrimSpace(format), "text") {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}

	level := log.InfoLevel
	if raw, ok := lookup(envLogLevel); ok && strings.TrimSpace(raw) != "" {
		parsed, err := log.ParseLevel(strings.TrimSpace(raw))
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v, using %s", envLogLevel, err, level))
		} else {
			level = parsed
		}
	}
	log.SetLevel(level)
	return warnings
}

// loadEnvFile подгружает .env; уже заданные переменные окружения не перезаписываются.
func loadEnvFile(lookup envLookup) error {
	path := defaultEnvFile
	explicit := false
	if v, ok := lookup(envFile); ok && strings.TrimSpace(v) != "" {
		path = strings.TrimSpace(v)
		explicit = true
	}

	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// readConfigFromEnv формирует конфигурацию из переменных POS_*. Некорректные значения
// не ломают запуск: остаётся значение по умолчанию, а в warnings пишется причина.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	warn := func(key, value string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q: %v, using default", key, value, err))
	}

	readString := func(key string, target *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*target = strings.TrimSpace(v)
		}
	}

	readString(envGRPCAddr, &cfg.GRPCAddr)
	readString(envMetricsAddr, &cfg.MetricsAddr)
	readString(envPostgresDSN, &cfg.PostgresDSN)
	readString(envCatalogFile, &cfg.CatalogFile)
	readString(envKafkaBrokers, &cfg.KafkaBrokers)
	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(v))
	}

	if v, ok := lookup(envStockPolicy); ok && strings.TrimSpace(v) != "" {
		policy := domain.StockPolicy(strings.ToLower(strings.TrimSpace(v)))
		if policy.Valid() {
			cfg.StockPolicy = policy
		} else {
			warn(envStockPolicy, v, domain.ErrUnknownStockPolicy)
		}
	}

	if v, ok := lookup(envPostgresAutoMigrate); ok && strings.TrimSpace(v) != "" {
		if parsed, err := parseBool(v); err != nil {
			warn(envPostgresAutoMigrate, v, err)
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}

	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }

	readInt := func(key string, target *int, valid func(int) bool, rule string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			if parsed, err := parseInt(v, valid, rule); err != nil {
				warn(key, v, err)
			} else {
				*target = parsed
			}
		}
	}
	readDuration := func(key string, target *time.Duration, valid func(time.Duration) bool, rule string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			if parsed, err := parseDuration(v, valid, rule); err != nil {
				warn(key, v, err)
			} else {
				*target = parsed
			}
		}
	}

	readInt(envPostgresMaxConns, &cfg.PostgresMaxConns, positive, "must be > 0")
	readDuration(envPostgresStatementTimeout, &cfg.PostgresStatementTimeout, nonNegativeDuration, "must be >= 0")
	readDuration(envPostgresLockTimeout, &cfg.PostgresLockTimeout, nonNegativeDuration, "must be >= 0")
	readDuration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	readInt(envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	readInt(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	readDuration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")
	readInt(envOutboxMaxPending, &cfg.OutboxMaxPending, nonNegative, "must be >= 0")
	readDuration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positiveDuration, "must be > 0")
	readInt(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize, positive, "must be > 0")
	readDuration(envShutdownTimeout, &cfg.ShutdownTimeout, positiveDuration, "must be > 0")

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q", raw)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q", raw)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}

func main() {
	if err := loadEnvFile(os.LookupEnv); err != nil {
		log.WithError(err).Fatal("failed to load env file")
	}

	for _, warning := range setupLogger(os.LookupEnv) {
		log.Warn(warning)
	}

	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range warnings {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"stock_policy":   cfg.StockPolicy,
		"kafka_enabled":  cfg.KafkaBrokers != "",
		"version":        version.GetVersion(),
	}).Info("starting pos billing service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("service exited with error")
	}

	log.Info("pos billing service stopped")
}
