package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// paymentRepositoryInMemory — журнал платежей в памяти.
// Проверка переплаты и вставка выполняются под блокировкой счёта.
type paymentRepositoryInMemory struct {
	invoices *invoiceRepositoryInMemory

	mu       sync.RWMutex
	payments map[invoiceKey][]domain.Payment
}

// NewPaymentRepository создаёт журнал платежей поверх in-memory счетов.
func NewPaymentRepository(invoices *invoiceRepositoryInMemory) domain.PaymentRepository {
	return &paymentRepositoryInMemory{
		invoices: invoices,
		payments: make(map[invoiceKey][]domain.Payment),
	}
}

// Append добавляет платёж, если сумма платежей не превысит сумму счёта.
func (r *paymentRepositoryInMemory) Append(payment domain.Payment) error {
	if errs := payment.Validate(); len(errs) > 0 {
		return errs[0]
	}

	return r.invoices.lockForPayment(payment.ShopID, payment.InvoiceID, func(invoice domain.Invoice) error {
		if invoice.IsCancelled() {
			return domain.ErrInvoiceCancelled
		}

		r.mu.Lock()
		defer r.mu.Unlock()

		key := invoiceKey{shopID: payment.ShopID, id: payment.InvoiceID}
		var paid int64
		for _, existing := range r.payments[key] {
			if existing.ID == payment.ID {
				return domain.ErrPaymentAlreadyRecorded
			}
			paid += existing.AmountMinor
		}
		if paid+payment.AmountMinor > invoice.TotalMinor {
			return domain.ErrPaymentExceedsDue
		}
		r.payments[key] = append(r.payments[key], payment)
		return nil
	})
}

// ListByInvoice возвращает платежи счёта в порядке записи.
func (r *paymentRepositoryInMemory) ListByInvoice(shopID, invoiceID string) ([]domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payments := r.payments[invoiceKey{shopID: shopID, id: invoiceID}]
	result := make([]domain.Payment, len(payments))
	copy(result, payments)
	return result, nil
}

// SumByInvoice возвращает сумму всех платежей счёта.
func (r *paymentRepositoryInMemory) SumByInvoice(shopID, invoiceID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sum int64
	for _, p := range r.payments[invoiceKey{shopID: shopID, id: invoiceID}] {
		sum += p.AmountMinor
	}
	return sum, nil
}

var _ domain.PaymentRepository = (*paymentRepositoryInMemory)(nil)
