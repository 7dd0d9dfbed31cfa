package billing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/pos/internal/money"
)

const maxNumberAttempts = 3

// CreateInvoice проводит продажу: валидация, заголовок, позиции, первоначальный платёж,
// списание остатков. Сбой сохранения позиций откатывает заголовок до возврата ошибки.
// Сбой первоначального платежа и списания остатков не отменяет продажу.
func (s *Service) CreateInvoice(ctx context.Context, shopID string, in CreateInvoiceInput) (result CreateInvoiceResult, err error) {
	start := s.begin()
	defer func() { s.observe("create_invoice", start, err) }()

	stepStart := s.now()
	subtotal, total, err := validateCreateInput(shopID, in)
	if err != nil {
		return CreateInvoiceResult{}, err
	}
	policy := s.policies.PolicyFor(shopID)
	if !policy.AllowsNegative() {
		if err := s.checkStock(shopID, in.Items); err != nil {
			return CreateInvoiceResult{}, err
		}
	}
	s.observeStep(domain.WorkflowStepValidate, stepStart)

	if err := ctx.Err(); err != nil {
		return CreateInvoiceResult{}, err
	}

	now := s.now().UTC()
	invoice := domain.Invoice{
		ID:            uuid.NewString(),
		ShopID:        shopID,
		CustomerID:    in.CustomerID,
		CustomerName:  in.CustomerName,
		CustomerPhone: in.CustomerPhone,
		SubtotalMinor: subtotal,
		DiscountMinor: in.DiscountMinor,
		TaxMinor:      in.TaxMinor,
		TotalMinor:    total,
		Status:        domain.InvoiceStatusCompleted,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	invoice.ApplyPaidAmount(in.InitialPaymentMinor)

	logger := s.logger.WithFields(log.Fields{
		"invoice_id": invoice.ID,
		"shop_id":    shopID,
	})

	stepStart = s.now()
	if err := s.createHeader(&invoice); err != nil {
		logger.WithError(err).Error("persist invoice header failed")
		return CreateInvoiceResult{}, fmt.Errorf("persist invoice header: %w", err)
	}
	s.observeStep(domain.WorkflowStepHeader, stepStart)

	items := buildItems(invoice, in.Items, now)

	stepStart = s.now()
	itemsErr := ctx.Err()
	if itemsErr == nil {
		itemsErr = s.items.CreateBatch(items)
	}
	if itemsErr != nil {
		logger.WithError(itemsErr).Error("persist invoice items failed, rolling back invoice")
		s.record(invoice, domain.TimelineItemsFailed, itemsErr.Error())
		s.rollback(ctx, invoice)
		return CreateInvoiceResult{}, fmt.Errorf("persist invoice items: %w", itemsErr)
	}
	s.observeStep(domain.WorkflowStepItems, stepStart)

	if s.metrics != nil {
		s.metrics.RecordInvoiceCreated()
	}
	s.record(invoice, domain.TimelineInvoiceCreated, invoice.InvoiceNumber)
	s.enqueue(invoice.ID, kafka.EventTypeInvoiceCreated, s.invoicePayload(invoice, ""))

	// Продажа зафиксирована: дальнейшие шаги не откатывают счёт.
	var payment *domain.Payment
	if in.InitialPaymentMinor > 0 {
		stepStart = s.now()
		payment = s.recordInitialPayment(ctx, &invoice, in.InitialPaymentMinor, now)
		s.observeStep(domain.WorkflowStepInitialPayment, stepStart)
	}

	stepStart = s.now()
	s.decrementStock(invoice, items, policy)
	s.observeStep(domain.WorkflowStepStock, stepStart)

	if fresh, getErr := s.invoices.Get(shopID, invoice.ID); getErr == nil {
		invoice = fresh
	} else {
		logger.WithError(getErr).Warn("reload invoice after creation failed")
	}

	logger.WithFields(log.Fields{
		"invoice_number": invoice.InvoiceNumber,
		"total":          money.FormatMinor(invoice.TotalMinor),
		"payment_status": invoice.PaymentStatus,
	}).Info("invoice created")

	return CreateInvoiceResult{Invoice: invoice, Items: items, Payment: payment}, nil
}

// createHeader сохраняет заголовок, перегенерируя номер при коллизии в магазине.
func (s *Service) createHeader(invoice *domain.Invoice) error {
	var err error
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		invoice.InvoiceNumber = s.numbers(invoice.CreatedAt)
		err = s.invoices.Create(*invoice)
		if !errors.Is(err, domain.ErrInvoiceAlreadyExists) {
			return err
		}
		s.logger.WithFields(log.Fields{
			"invoice_id":     invoice.ID,
			"invoice_number": invoice.InvoiceNumber,
		}).Warn("invoice number collision, regenerating")
	}
	return err
}

// rollback удаляет позиции и заголовок. Обе операции идемпотентны и повторяются с backoff;
// отмена контекста вызывающего не прерывает компенсацию.
func (s *Service) rollback(ctx context.Context, invoice domain.Invoice) {
	ctx = context.WithoutCancel(ctx)
	stepStart := s.now()
	defer s.observeStep(domain.WorkflowStepRollback, stepStart)

	logger := s.logger.WithFields(log.Fields{
		"invoice_id": invoice.ID,
		"shop_id":    invoice.ShopID,
	})

	itemsErr := withRetry(ctx, s.rollbackRetry, logger, "rollback_items", retryAll, func() error {
		return s.items.DeleteByInvoice(invoice.ShopID, invoice.ID)
	})
	headerErr := withRetry(ctx, s.rollbackRetry, logger, "rollback_header", retryAll, func() error {
		return s.invoices.Delete(invoice.ShopID, invoice.ID)
	})

	if err := errors.Join(itemsErr, headerErr); err != nil {
		logger.WithError(err).Error("invoice rollback incomplete, manual cleanup required")
		return
	}

	if s.metrics != nil {
		s.metrics.RecordInvoiceRolledBack()
	}
	s.record(invoice, domain.TimelineInvoiceRolledBack, "")
	logger.Info("invoice rolled back")
}

// recordInitialPayment записывает оплату при продаже. При ошибке счёт остаётся,
// а заголовок пересчитывается по фактически сохранённым платежам.
func (s *Service) recordInitialPayment(ctx context.Context, invoice *domain.Invoice, amountMinor int64, now time.Time) *domain.Payment {
	payment := domain.Payment{
		ID:          uuid.NewString(),
		ShopID:      invoice.ShopID,
		InvoiceID:   invoice.ID,
		CustomerID:  invoice.CustomerID,
		AmountMinor: amountMinor,
		Method:      domain.PaymentMethodCash,
		CreatedAt:   now,
	}

	if err := s.payments.Append(payment); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"invoice_id": invoice.ID,
			"shop_id":    invoice.ShopID,
			"amount":     money.FormatMinor(amountMinor),
		}).Error("initial payment failed, invoice kept")
		if s.metrics != nil {
			s.metrics.RecordInitialPaymentFailure()
		}
		s.record(*invoice, domain.TimelineInitialPaymentFailed, err.Error())
		s.enqueue(invoice.ID, kafka.EventTypePaymentInitialFailed, s.paymentPayload(*invoice, payment, err.Error()))

		reconciled, recErr := s.reconcile(ctx, invoice.ShopID, invoice.ID)
		if recErr != nil {
			s.logger.WithError(recErr).WithField("invoice_id", invoice.ID).
				Error("reconcile after failed initial payment failed")
			return nil
		}
		*invoice = reconciled
		return nil
	}

	if s.metrics != nil {
		s.metrics.RecordPayment(amountMinor)
	}
	s.record(*invoice, domain.TimelineInitialPayment, money.FormatMinor(amountMinor))
	s.enqueue(invoice.ID, kafka.EventTypePaymentRecorded, s.paymentPayload(*invoice, payment, ""))
	return &payment
}

// decrementStock списывает остатки по каждой позиции независимо и отмечает
// списанные позиции. Сбой по одной позиции не откатывает ни продажу, ни уже
// выполненные списания.
func (s *Service) decrementStock(invoice domain.Invoice, items []domain.InvoiceItem, policy domain.StockPolicy) {
	decremented := 0
	for i := range items {
		item := items[i]
		fields := log.Fields{
			"invoice_id": invoice.ID,
			"shop_id":    invoice.ShopID,
			"product_id": item.ProductID,
			"qty":        item.Qty,
		}

		newStock, err := s.stock.Decrement(invoice.ShopID, item.ProductID, item.Qty, policy.AllowsNegative())
		if err != nil {
			s.logger.WithError(err).WithFields(fields).Error("stock decrement failed, manual reconciliation required")
			if s.metrics != nil {
				s.metrics.RecordStockDecrementFailure()
			}
			s.record(invoice, domain.TimelineStockDecrementFailed, fmt.Sprintf("%s: %v", itemReason(item), err))
			s.enqueue(invoice.ID, kafka.EventTypeStockDecrementFailed, s.stockPayload(invoice, item, 0, err.Error()))
			continue
		}
		decremented++
		items[i].StockDecremented = true
		// Без отметки отмена не вернёт товар на склад; расхождение видно в логе.
		if err := s.items.SetStockDecremented(invoice.ShopID, invoice.ID, item.ID, true); err != nil {
			s.logger.WithError(err).WithFields(fields).Error("mark item stock decremented failed")
		}

		if newStock < 0 {
			s.logger.WithFields(fields).WithField("new_stock", newStock).Warn("stock backordered")
			if s.metrics != nil {
				s.metrics.RecordStockBackorder()
			}
			s.record(invoice, domain.TimelineStockBackordered, itemReason(item))
			s.enqueue(invoice.ID, kafka.EventTypeStockBackordered, s.stockPayload(invoice, item, newStock, "backorder"))
		}
	}

	if decremented > 0 {
		s.record(invoice, domain.TimelineStockDecremented, fmt.Sprintf("%d of %d items", decremented, len(items)))
	}
}

// checkStock проверяет остатки до любой записи. Товар без складской записи
// не блокирует продажу: позиция ссылается на товар слабо.
func (s *Service) checkStock(shopID string, items []ItemInput) error {
	required := make(map[string]int64, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		if _, seen := required[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		required[item.ProductID] += int64(item.Qty)
	}

	for _, productID := range order {
		product, err := s.stock.Get(shopID, productID)
		if errors.Is(err, domain.ErrProductNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("check stock for %s: %w", productID, err)
		}
		if product.Stock < required[productID] {
			return fmt.Errorf("%w: product %s has %d, requested %d",
				domain.ErrInsufficientStock, productID, product.Stock, required[productID])
		}
	}
	return nil
}

// validateCreateInput проверяет запрос и возвращает subtotal и total.
func validateCreateInput(shopID string, in CreateInvoiceInput) (int64, int64, error) {
	if shopID == "" {
		return 0, 0, domain.NewValidationError("shop_id", domain.ErrShopIDRequired)
	}
	if len(in.Items) == 0 {
		return 0, 0, domain.NewValidationError("items", domain.ErrItemsRequired)
	}

	var subtotal int64
	for i, item := range in.Items {
		if item.ProductID == "" {
			return 0, 0, domain.NewValidationError(fmt.Sprintf("items[%d].product_id", i), domain.ErrProductIDRequired)
		}
		if item.Qty < 1 {
			return 0, 0, domain.NewValidationError(fmt.Sprintf("items[%d].qty", i), domain.ErrItemQtyInvalid)
		}
		if item.UnitPriceMinor < 0 {
			return 0, 0, domain.NewValidationError(fmt.Sprintf("items[%d].unit_price", i), domain.ErrItemPriceInvalid)
		}
		line, ok := mulChecked(item.UnitPriceMinor, int64(item.Qty))
		if !ok || subtotal > math.MaxInt64-line {
			return 0, 0, domain.NewValidationError(fmt.Sprintf("items[%d]", i), money.ErrOutOfRange)
		}
		subtotal += line
	}

	if in.DiscountMinor < 0 {
		return 0, 0, domain.NewValidationError("discount", domain.ErrDiscountNegative)
	}
	if in.TaxMinor < 0 {
		return 0, 0, domain.NewValidationError("tax", domain.ErrTaxNegative)
	}
	if in.TaxMinor > math.MaxInt64-subtotal {
		return 0, 0, domain.NewValidationError("tax", money.ErrOutOfRange)
	}
	total := subtotal - in.DiscountMinor + in.TaxMinor
	if total < 0 {
		return 0, 0, domain.NewValidationError("discount", domain.ErrTotalNegative)
	}
	if in.InitialPaymentMinor < 0 || in.InitialPaymentMinor > total {
		return 0, 0, domain.NewValidationError("initial_payment", domain.ErrInitialPaymentOutOfRange)
	}

	return subtotal, total, nil
}

func mulChecked(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxInt64/b {
		return 0, false
	}
	return a * b, true
}

func buildItems(invoice domain.Invoice, inputs []ItemInput, now time.Time) []domain.InvoiceItem {
	items := make([]domain.InvoiceItem, 0, len(inputs))
	for _, in := range inputs {
		items = append(items, domain.InvoiceItem{
			ID:             uuid.NewString(),
			InvoiceID:      invoice.ID,
			ShopID:         invoice.ShopID,
			ProductID:      in.ProductID,
			ProductName:    in.ProductName,
			UnitPriceMinor: in.UnitPriceMinor,
			Qty:            in.Qty,
			CreatedAt:      now,
		})
	}
	return items
}
