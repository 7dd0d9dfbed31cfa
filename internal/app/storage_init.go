package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/pos/internal/health"
	"github.com/vladislavdragonenkov/pos/internal/service/billing"
	"github.com/vladislavdragonenkov/pos/internal/storage/memory"
	"github.com/vladislavdragonenkov/pos/internal/storage/postgres"
)

// runtimeDependencies — хранилища выбранного драйвера и хук их закрытия.
type runtimeDependencies struct {
	invoices        domain.InvoiceRepository
	items           domain.InvoiceItemRepository
	payments        domain.PaymentRepository
	stock           domain.StockRepository
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository
	discrepancies   domain.StockDiscrepancyRepository
	storageChecker  healthcheck.Checker
	closeFn         func() error
}

func (d *runtimeDependencies) billingRepositories() billing.Repositories {
	return billing.Repositories{
		Invoices: d.invoices,
		Items:    d.items,
		Payments: d.payments,
		Stock:    d.stock,
		Outbox:   d.outboxRepo,
		Timeline: d.timelineRepo,
	}
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	switch driver {
	case "", StorageDriverMemory:
		return initMemoryDependencies(), nil
	case StorageDriverPostgres:
		return initPostgresDependencies(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func initMemoryDependencies() *runtimeDependencies {
	invoices := memory.NewInvoiceRepository()
	return &runtimeDependencies{
		invoices:        invoices,
		items:           memory.NewInvoiceItemRepository(),
		payments:        memory.NewPaymentRepository(invoices),
		stock:           memory.NewStockRepository(),
		outboxRepo:      memory.NewOutboxRepository(),
		timelineRepo:    memory.NewTimelineRepository(),
		idempotencyRepo: memory.NewIdempotencyRepository(),
		discrepancies:   memory.NewStockDiscrepancyRepository(),
		storageChecker: healthcheck.NewPingChecker("storage", func(context.Context) error {
			return nil
		}),
	}
}

func initPostgresDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	dsn := strings.TrimSpace(cfg.PostgresDSN)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required when storage driver is %q", StorageDriverPostgres)
	}

	store, err := postgres.Open(ctx, dsn,
		postgres.WithApplicationName(cfg.PostgresAppName),
		postgres.WithMaxConns(cfg.PostgresMaxConns),
		postgres.WithStatementTimeout(cfg.PostgresStatementTimeout),
		postgres.WithLockTimeout(cfg.PostgresLockTimeout),
	)
	if err != nil {
		return nil, err
	}

	if cfg.PostgresAutoMigrate {
		if err := store.MigrateUp(ctx, 0); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info("postgres migrations applied")
	}
	status, err := store.MigrationStatus(ctx)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("check migrations: %w", err)
	}
	if !status.UpToDate() {
		_ = store.Close()
		return nil, fmt.Errorf("postgres schema is outdated: pending [%s], modified [%s]",
			strings.Join(status.Pending, ", "), strings.Join(status.Modified, ", "))
	}
	logger.WithField("schema_version", status.Version).Info("postgres schema verified")

	if collector, err := store.StatsCollector(); err == nil {
		registerCollector(collector, logger)
	}

	return &runtimeDependencies{
		invoices:        postgres.NewInvoiceRepository(store),
		items:           postgres.NewInvoiceItemRepository(store),
		payments:        postgres.NewPaymentRepository(store),
		stock:           postgres.NewStockRepository(store),
		outboxRepo:      postgres.NewOutboxRepository(store),
		timelineRepo:    postgres.NewTimelineRepository(store),
		idempotencyRepo: postgres.NewIdempotencyRepository(store),
		discrepancies:   postgres.NewStockDiscrepancyRepository(store),
		storageChecker:  healthcheck.NewPingChecker("storage", store.Ping),
		closeFn:         store.Close,
	}, nil
}

// registerCollector регистрирует метрики пула. Повторная регистрация
// (например, второй запуск в тестах) не считается ошибкой.
func registerCollector(collector prometheus.Collector, logger *log.Entry) {
	err := prometheus.Register(collector)
	var already prometheus.AlreadyRegisteredError
	if err != nil && !errors.As(err, &already) {
		logger.WithError(err).Warn("register postgres pool metrics failed")
	}
}
