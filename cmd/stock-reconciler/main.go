// Command stock-reconciler читает stock-события биллинга и сохраняет расхождения остатков для ручной сверки.
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
	"github.com/vladislavdragonenkov/pos/internal/version"
)

const (
	envFile                = "POS_ENV_FILE"
	envKafkaBrokers        = "POS_KAFKA_BROKERS"
	envStorageDriver       = "POS_STORAGE_DRIVER"
	envPostgresDSN         = "POS_POSTGRES_DSN"
	envPostgresAutoMigrate = "POS_POSTGRES_AUTO_MIGRATE"
	envMetricsAddr         = "POS_RECONCILER_METRICS_ADDR"
	envGroupID             = "POS_RECONCILER_GROUP"
	envMaxRetries          = "POS_RECONCILER_MAX_RETRIES"
	envLogLevel            = "POS_LOG_LEVEL"

	defaultMetricsAddr = ":9091"
	defaultPostgresApp = "pos-stock-reconciler"
	defaultEnvFile     = ".env"
)

type envLookup func(key string) (string, bool)

func lookupTrimmed(lookup envLookup, key string) (string, bool) {
	v, ok := lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// readConfig собирает конфигурацию сверки. Брокеры обязательны; остальные
// некорректные значения заменяются значениями по умолчанию с предупреждением.
func readConfig(lookup envLookup) (app.Config, []string, error) {
	cfg := app.DefaultConfig()
	cfg.MetricsAddr = defaultMetricsAddr
	cfg.PostgresAppName = defaultPostgresApp
	var warnings []string

	brokers, ok := lookupTrimmed(lookup, envKafkaBrokers)
	if !ok {
		return app.Config{}, nil, fmt.Errorf("%s is required", envKafkaBrokers)
	}
	cfg.KafkaBrokers = brokers

	if v, ok := lookupTrimmed(lookup, envStorageDriver); ok {
		cfg.StorageDriver = strings.ToLower(v)
	}
	if v, ok := lookupTrimmed(lookup, envPostgresDSN); ok {
		cfg.PostgresDSN = v
	}
	if v, ok := lookupTrimmed(lookup, envMetricsAddr); ok {
		cfg.MetricsAddr = v
	}
	if v, ok := lookupTrimmed(lookup, envGroupID); ok {
		cfg.ReconcilerGroupID = v
	}
	if v, ok := lookupTrimmed(lookup, envPostgresAutoMigrate); ok {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s=%q: invalid bool, using %t", envPostgresAutoMigrate, v, cfg.PostgresAutoMigrate))
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}
	if v, ok := lookupTrimmed(lookup, envMaxRetries); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			warnings = append(warnings, fmt.Sprintf("%s=%q: must be a positive int, using %d", envMaxRetries, v, cfg.ReconcilerMaxRetries))
		} else {
			cfg.ReconcilerMaxRetries = parsed
		}
	}
	return cfg, warnings, nil
}

func setupLogger(lookup envLookup) error {
	log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	level := log.InfoLevel
	if raw, ok := lookupTrimmed(lookup, envLogLevel); ok {
		parsed, err := log.ParseLevel(raw)
		if err != nil {
			log.SetLevel(level)
			return fmt.Errorf("%s: %w", envLogLevel, err)
		}
		level = parsed
	}
	log.SetLevel(level)
	return nil
}

func loadEnvFile(lookup envLookup) error {
	path, explicit := lookupTrimmed(lookup, envFile)
	if !explicit {
		path = defaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func main() {
	if err := loadEnvFile(os.LookupEnv); err != nil {
		log.WithError(err).Fatal("failed to load env file")
	}
	if err := setupLogger(os.LookupEnv); err != nil {
		log.WithError(err).Warn("invalid log level, using info")
	}

	cfg, warnings, err := readConfig(os.LookupEnv)
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	for _, warning := range warnings {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"storage_driver": cfg.StorageDriver,
		"group":          cfg.ReconcilerGroupID,
		"metrics_addr":   cfg.MetricsAddr,
		"version":        version.GetVersion(),
	}).Info("starting stock reconciler")

	if err := app.RunStockReconciler(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("stock reconciler exited with error")
	}
	log.Info("stock reconciler stopped")
}
