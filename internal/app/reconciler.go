package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/pos/internal/health"
	"github.com/vladislavdragonenkov/pos/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/pos/internal/service/inventory"
	"github.com/vladislavdragonenkov/pos/internal/version"
)

// stockConsumer — часть kafka.Consumer, нужная процессу сверки.
type stockConsumer interface {
	Start(ctx context.Context) error
	Stop() error
}

var newReconcilerDLQ = initKafkaProducer

var newStockConsumer = func(brokers []string, groupID string, handler kafka.MessageHandler, dlq *kafka.Producer, maxRetries int) (stockConsumer, error) {
	return kafka.NewConsumerWithDLQ(brokers, groupID, []string{kafka.TopicStockEvents}, handler, dlq, maxRetries)
}

// RunStockReconciler читает stock-события из Kafka и сохраняет расхождения остатков
// в хранилище, выбранном cfg.StorageDriver. Блокируется до отмены ctx.
func RunStockReconciler(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "stock-reconciler")

	brokers := splitBrokers(cfg.KafkaBrokers)
	if len(brokers) == 0 {
		return errors.New("kafka brokers are required for stock reconciler")
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	reconciler, err := inventory.NewReconciler(deps.discrepancies, logger.WithField("layer", "inventory"))
	if err != nil {
		return err
	}

	dlq, err := newReconcilerDLQ(cfg.KafkaBrokers, logger)
	if err != nil {
		return fmt.Errorf("init dlq producer: %w", err)
	}
	defer closeKafka(dlq, logger)

	consumer, err := newStockConsumer(brokers, cfg.ReconcilerGroupID, reconciler.Handle, dlq, cfg.ReconcilerMaxRetries)
	if err != nil {
		return err
	}

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", deps.storageChecker)
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	defer shutdownHTTP(metricsSrv, logger)

	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("start stock consumer: %w", err)
	}
	logger.WithFields(log.Fields{
		"group":   cfg.ReconcilerGroupID,
		"topic":   kafka.TopicStockEvents,
		"brokers": brokers,
	}).Info("stock reconciler started")

	<-ctx.Done()
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop stock consumer")
	}
	return ctx.Err()
}
