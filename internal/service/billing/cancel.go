package billing

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/messaging/kafka"
)

// CancelInvoice отменяет счёт без платежей и возвращает товары на склад.
// Повторная отмена уже отменённого счёта ничего не делает.
func (s *Service) CancelInvoice(ctx context.Context, shopID, invoiceID, reason string) (invoice domain.Invoice, err error) {
	start := s.begin()
	defer func() { s.observe("cancel_invoice", start, err) }()

	if shopID == "" {
		return domain.Invoice{}, domain.NewValidationError("shop_id", domain.ErrShopIDRequired)
	}
	if invoiceID == "" {
		return domain.Invoice{}, domain.NewValidationError("invoice_id", domain.ErrInvoiceIDRequired)
	}
	if err := ctx.Err(); err != nil {
		return domain.Invoice{}, err
	}

	logger := s.logger.WithFields(log.Fields{
		"invoice_id": invoiceID,
		"shop_id":    shopID,
	})

	var alreadyCancelled bool
	// Платёж, записанный между проверкой и сохранением, увеличивает версию заголовка,
	// поэтому Save вернёт конфликт и проверка повторится.
	err = withRetry(ctx, s.conflictRetry, logger, "cancel", retryVersionConflict, func() error {
		current, err := s.invoices.Get(shopID, invoiceID)
		if err != nil {
			return err
		}
		if current.IsCancelled() {
			alreadyCancelled = true
			invoice = current
			return nil
		}

		paid, err := s.payments.SumByInvoice(shopID, invoiceID)
		if err != nil {
			return err
		}
		if paid > 0 {
			return domain.ErrInvoiceHasPayments
		}

		updated := current
		updated.Status = domain.InvoiceStatusCancelled
		updated.ApplyPaidAmount(0)
		updated.PaymentStatus = domain.PaymentStatusCancelled
		if err := s.invoices.Save(updated); err != nil {
			return err
		}
		updated.Version++
		updated.UpdatedAt = s.now().UTC()
		invoice = updated
		return nil
	})
	if err != nil {
		logger.WithError(err).Warn("cancel invoice failed")
		return domain.Invoice{}, err
	}
	if alreadyCancelled {
		logger.Debug("invoice already cancelled")
		return invoice, nil
	}

	s.restock(invoice)

	if s.metrics != nil {
		s.metrics.RecordInvoiceCancelled()
	}
	s.record(invoice, domain.TimelineInvoiceCancelled, reason)
	s.enqueue(invoice.ID, kafka.EventTypeInvoiceCancelled, s.invoicePayload(invoice, reason))
	logger.WithField("reason", reason).Info("invoice cancelled")

	return invoice, nil
}

// restock возвращает на склад позиции, по которым остаток был списан при продаже.
// Позиции с неудавшимся списанием пропускаются: их количество со склада не уходило.
func (s *Service) restock(invoice domain.Invoice) {
	items, err := s.items.ListByInvoice(invoice.ShopID, invoice.ID)
	if err != nil {
		s.logger.WithError(err).WithField("invoice_id", invoice.ID).Error("list items for restock failed")
		return
	}
	for _, item := range items {
		fields := log.Fields{
			"invoice_id": invoice.ID,
			"product_id": item.ProductID,
			"qty":        item.Qty,
		}
		if !item.StockDecremented {
			s.logger.WithFields(fields).Debug("skip restock, stock was not decremented")
			continue
		}
		if _, err := s.stock.Increment(invoice.ShopID, item.ProductID, item.Qty); err != nil {
			s.logger.WithError(err).WithFields(fields).Warn("restock failed")
			continue
		}
		if err := s.items.SetStockDecremented(invoice.ShopID, invoice.ID, item.ID, false); err != nil {
			s.logger.WithError(err).WithFields(fields).Warn("clear item stock flag failed")
		}
	}
}
