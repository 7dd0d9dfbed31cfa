package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/pos/internal/money"
)

// RecordPaymentResult — записанный платёж и заголовок счёта после пересчёта.
type RecordPaymentResult struct {
	Payment domain.Payment
	Invoice domain.Invoice
}

// RecordPayment добавляет платёж в журнал и пересчитывает оплату по свежей сумме платежей.
// Проверка "не больше суммы счёта" выполняется атомарно вместе со вставкой.
// Если пересчёт не удался, платёж остаётся записанным; ReconcileInvoice доводит заголовок.
func (s *Service) RecordPayment(ctx context.Context, shopID, invoiceID string, amountMinor int64) (result RecordPaymentResult, err error) {
	start := s.begin()
	defer func() { s.observe("record_payment", start, err) }()

	switch {
	case shopID == "":
		return RecordPaymentResult{}, domain.NewValidationError("shop_id", domain.ErrShopIDRequired)
	case invoiceID == "":
		return RecordPaymentResult{}, domain.NewValidationError("invoice_id", domain.ErrInvoiceIDRequired)
	case amountMinor <= 0:
		return RecordPaymentResult{}, domain.NewValidationError("amount", domain.ErrPaymentAmountInvalid)
	}
	if err := ctx.Err(); err != nil {
		return RecordPaymentResult{}, err
	}

	logger := s.logger.WithFields(log.Fields{
		"invoice_id": invoiceID,
		"shop_id":    shopID,
		"amount":     money.FormatMinor(amountMinor),
	})

	invoice, err := s.invoices.Get(shopID, invoiceID)
	if err != nil {
		return RecordPaymentResult{}, err
	}

	payment := domain.Payment{
		ID:          uuid.NewString(),
		ShopID:      shopID,
		InvoiceID:   invoiceID,
		CustomerID:  invoice.CustomerID,
		AmountMinor: amountMinor,
		Method:      domain.PaymentMethodCash,
		CreatedAt:   s.now().UTC(),
	}

	stepStart := s.now()
	if err := s.payments.Append(payment); err != nil {
		s.recordRejection(err)
		logger.WithError(err).Warn("payment rejected")
		return RecordPaymentResult{}, err
	}
	s.observeStep(domain.WorkflowStepPayment, stepStart)
	if s.metrics != nil {
		s.metrics.RecordPayment(amountMinor)
	}

	stepStart = s.now()
	reconciled, err := s.reconcile(ctx, shopID, invoiceID)
	s.observeStep(domain.WorkflowStepReconcile, stepStart)
	if err != nil {
		logger.WithError(err).Error("payment recorded but invoice reconcile failed")
		return RecordPaymentResult{Payment: payment}, fmt.Errorf("reconcile invoice after payment: %w", err)
	}

	s.record(reconciled, domain.TimelinePaymentRecorded, money.FormatMinor(amountMinor))
	s.enqueue(invoiceID, kafka.EventTypePaymentRecorded, s.paymentPayload(reconciled, payment, ""))

	logger.WithFields(log.Fields{
		"payment_id":     payment.ID,
		"payment_status": reconciled.PaymentStatus,
		"due":            money.FormatMinor(reconciled.DueAmountMinor),
	}).Info("payment recorded")

	return RecordPaymentResult{Payment: payment, Invoice: reconciled}, nil
}

// ReconcileInvoice пересчитывает оплаченную сумму, долг и статус по сохранённым платежам.
// Повторный вызов без новых платежей не меняет заголовок.
func (s *Service) ReconcileInvoice(ctx context.Context, shopID, invoiceID string) (invoice domain.Invoice, err error) {
	start := s.begin()
	defer func() { s.observe("reconcile_invoice", start, err) }()

	if shopID == "" {
		return domain.Invoice{}, domain.NewValidationError("shop_id", domain.ErrShopIDRequired)
	}
	if invoiceID == "" {
		return domain.Invoice{}, domain.NewValidationError("invoice_id", domain.ErrInvoiceIDRequired)
	}

	invoice, err = s.reconcile(ctx, shopID, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	s.record(invoice, domain.TimelineReconciled, string(invoice.PaymentStatus))
	return invoice, nil
}

// reconcile перечитывает заголовок, суммирует платежи и сохраняет результат
// с optimistic locking; конфликт версий повторяется с backoff.
func (s *Service) reconcile(ctx context.Context, shopID, invoiceID string) (domain.Invoice, error) {
	logger := s.logger.WithFields(log.Fields{
		"invoice_id": invoiceID,
		"shop_id":    shopID,
	})

	var result domain.Invoice
	err := withRetry(ctx, s.conflictRetry, logger, "reconcile", retryVersionConflict, func() error {
		current, err := s.invoices.Get(shopID, invoiceID)
		if err != nil {
			return err
		}
		if current.IsCancelled() {
			result = current
			return nil
		}

		paid, err := s.payments.SumByInvoice(shopID, invoiceID)
		if err != nil {
			return fmt.Errorf("sum payments: %w", err)
		}

		updated := current
		updated.ApplyPaidAmount(paid)
		if updated.AmountPaidMinor == current.AmountPaidMinor &&
			updated.DueAmountMinor == current.DueAmountMinor &&
			updated.PaymentStatus == current.PaymentStatus {
			result = current
			return nil
		}

		if err := s.invoices.Save(updated); err != nil {
			if domain.IsVersionConflict(err) && s.metrics != nil {
				s.metrics.RecordReconcileConflict()
			}
			return err
		}
		updated.Version++
		updated.UpdatedAt = s.now().UTC()
		result = updated
		return nil
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	if errs := result.ValidateInvariants(); len(errs) > 0 {
		logger.WithError(errors.Join(errs...)).Error("invoice invariants violated after reconcile")
	}
	return result, nil
}

func (s *Service) recordRejection(err error) {
	if s.metrics == nil {
		return
	}
	reason := "error"
	switch {
	case errors.Is(err, domain.ErrPaymentExceedsDue):
		reason = "exceeds_due"
	case errors.Is(err, domain.ErrInvoiceCancelled):
		reason = "cancelled"
	case errors.Is(err, domain.ErrInvoiceNotFound):
		reason = "not_found"
	}
	s.metrics.RecordPaymentRejected(reason)
}
