package app

import (
	"time"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска сервиса биллинга.
type Config struct {
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	// Параметры сессии и пула PostgreSQL; нулевые таймауты оставляют настройки сервера.
	PostgresAppName          string
	PostgresMaxConns         int
	PostgresStatementTimeout time.Duration
	PostgresLockTimeout      time.Duration

	// Политика продажи сверх остатка по умолчанию; каталог может
	// переопределить её для отдельных магазинов.
	StockPolicy domain.StockPolicy
	CatalogFile string

	// Список брокеров через запятую; пустое значение отключает публикацию outbox.
	KafkaBrokers string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// Порог backlog, после которого /healthz отдаёт degraded. 0 отключает проверку.
	OutboxMaxPending int

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	// ReconcilerGroupID и ReconcilerMaxRetries настраивают consumer сверки остатков.
	ReconcilerGroupID    string
	ReconcilerMaxRetries int

	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает конфигурацию для локального запуска in-memory.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:                    ":50051",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		PostgresAppName:             "pos-billing",
		PostgresMaxConns:            25,
		PostgresStatementTimeout:    10 * time.Second,
		PostgresLockTimeout:         3 * time.Second,
		StockPolicy:                 domain.StockPolicyReject,
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            100 * time.Millisecond,
		OutboxMaxPending:            1000,
		IdempotencyCleanupInterval:  time.Hour,
		IdempotencyCleanupBatchSize: 500,
		ReconcilerGroupID:           "pos-stock-reconciler",
		ReconcilerMaxRetries:        3,
		ShutdownTimeout:             5 * time.Second,
	}
}
