// Package inventory сверяет остатки: превращает stock-события биллинга в записи для ручной сверки.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/messaging/kafka"
)

// ErrMalformedEvent помечает сообщение, которое невозможно разобрать.
// Оборачивает kafka.ErrPoisonMessage, поэтому consumer сразу уводит такое сообщение в DLQ.
var ErrMalformedEvent = fmt.Errorf("malformed stock event: %w", kafka.ErrPoisonMessage)

// Reconciler записывает расхождения остатков из событий stock.decrement_failed и stock.backordered.
type Reconciler struct {
	discrepancies domain.StockDiscrepancyRepository
	logger        *log.Entry
}

// NewReconciler создаёт Reconciler. logger может быть nil.
func NewReconciler(discrepancies domain.StockDiscrepancyRepository, logger *log.Entry) (*Reconciler, error) {
	if discrepancies == nil {
		return nil, errors.New("stock discrepancy repository is required")
	}
	if logger == nil {
		logger = log.WithField("component", "stock-reconciler")
	}
	return &Reconciler{discrepancies: discrepancies, logger: logger}, nil
}

// kindFor возвращает вид расхождения для типа события; ok=false для событий, не требующих сверки.
func kindFor(eventType string) (domain.DiscrepancyKind, bool) {
	switch kafka.EventType(eventType) {
	case kafka.EventTypeStockDecrementFailed:
		return domain.DiscrepancyDecrementFailed, true
	case kafka.EventTypeStockBackordered:
		return domain.DiscrepancyBackordered, true
	default:
		return "", false
	}
}

// Handle — kafka.MessageHandler. Повторная доставка события не создаёт дубликат:
// идентификатор конверта сохраняется как EventID.
func (r *Reconciler) Handle(_ context.Context, message *sarama.ConsumerMessage) error {
	envelope, err := kafka.ParseEnvelope(message)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	kind, ok := kindFor(envelope.EventType)
	if !ok {
		r.logger.WithField("event_type", envelope.EventType).Debug("skip event without stock discrepancy")
		return nil
	}

	payload, err := kafka.ParseStockEvent(envelope)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	invoiceID := payload.InvoiceID
	if invoiceID == "" {
		invoiceID = envelope.AggregateID
	}
	occurredAt := payload.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = envelope.PublishedAt
	}

	created, err := r.discrepancies.Record(domain.StockDiscrepancy{
		ShopID:     payload.ShopID,
		InvoiceID:  invoiceID,
		ProductID:  payload.ProductID,
		Qty:        payload.Qty,
		Kind:       kind,
		Reason:     payload.Reason,
		EventID:    envelope.ID,
		OccurredAt: occurredAt,
	})
	if err != nil {
		return fmt.Errorf("record stock discrepancy: %w", err)
	}

	fields := log.Fields{
		"event_id":   envelope.ID,
		"shop_id":    payload.ShopID,
		"invoice_id": invoiceID,
		"product_id": payload.ProductID,
		"kind":       kind,
	}
	if !created {
		r.logger.WithFields(fields).Debug("stock discrepancy already recorded")
		return nil
	}
	r.logger.WithFields(fields).Info("stock discrepancy recorded")
	return nil
}

// Open возвращает нерешённые расхождения магазина, старые первыми.
func (r *Reconciler) Open(shopID string, limit int) ([]domain.StockDiscrepancy, error) {
	if shopID == "" {
		return nil, domain.ErrShopIDRequired
	}
	return r.discrepancies.ListOpen(shopID, limit)
}

// Resolve закрывает расхождение после ручной сверки.
func (r *Reconciler) Resolve(shopID, id string) error {
	if err := r.discrepancies.Resolve(shopID, id); err != nil {
		return err
	}
	r.logger.WithFields(log.Fields{
		"shop_id":        shopID,
		"discrepancy_id": id,
	}).Info("stock discrepancy resolved")
	return nil
}
