package billing

import (
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/pos/internal/money"
)

const aggregateInvoice = "invoice"

// enqueue кладёт событие счёта в outbox. Ошибка не прерывает workflow.
func (s *Service) enqueue(invoiceID string, eventType kafka.EventType, payload any) {
	if s.outbox == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"invoice_id": invoiceID,
			"event":      eventType,
		}).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: aggregateInvoice,
		AggregateID:   invoiceID,
		EventType:     string(eventType),
		Payload:       data,
	}
	if _, err := s.outbox.Enqueue(msg); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"invoice_id": invoiceID,
			"event":      eventType,
		}).Error("enqueue event failed")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}
}

// record добавляет запись в таймлайн счёта.
func (s *Service) record(invoice domain.Invoice, eventType, reason string) {
	if s.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		InvoiceID: invoice.ID,
		ShopID:    invoice.ShopID,
		Type:      eventType,
		Reason:    reason,
		Occurred:  s.now().UTC(),
	}
	if err := s.timeline.Append(event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"invoice_id": invoice.ID,
			"event":      eventType,
		}).Warn("append timeline event failed")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordTimelineEvent()
	}
}

func (s *Service) invoicePayload(invoice domain.Invoice, reason string) kafka.InvoiceEventPayload {
	return kafka.InvoiceEventPayload{
		InvoiceID:     invoice.ID,
		ShopID:        invoice.ShopID,
		InvoiceNumber: invoice.InvoiceNumber,
		CustomerID:    invoice.CustomerID,
		Total:         money.FormatMinor(invoice.TotalMinor),
		AmountPaid:    money.FormatMinor(invoice.AmountPaidMinor),
		DueAmount:     money.FormatMinor(invoice.DueAmountMinor),
		PaymentStatus: string(invoice.PaymentStatus),
		Status:        string(invoice.Status),
		Reason:        reason,
		OccurredAt:    s.now().UTC(),
	}
}

func (s *Service) paymentPayload(invoice domain.Invoice, payment domain.Payment, reason string) kafka.PaymentEventPayload {
	return kafka.PaymentEventPayload{
		PaymentID:     payment.ID,
		InvoiceID:     invoice.ID,
		ShopID:        invoice.ShopID,
		Amount:        money.FormatMinor(payment.AmountMinor),
		Method:        string(payment.Method),
		PaymentStatus: string(invoice.PaymentStatus),
		Reason:        reason,
		OccurredAt:    s.now().UTC(),
	}
}

func (s *Service) stockPayload(invoice domain.Invoice, item domain.InvoiceItem, newStock int64, reason string) kafka.StockEventPayload {
	return kafka.StockEventPayload{
		InvoiceID:  invoice.ID,
		ShopID:     invoice.ShopID,
		ProductID:  item.ProductID,
		Qty:        item.Qty,
		NewStock:   newStock,
		Reason:     reason,
		OccurredAt: s.now().UTC(),
	}
}

func itemReason(item domain.InvoiceItem) string {
	return fmt.Sprintf("product_id=%s qty=%d", item.ProductID, item.Qty)
}
