package domain

import "time"

// PaymentMethod описывает способ оплаты.
type PaymentMethod string

// PaymentMethodCash — наличные; единственный поддерживаемый способ.
const PaymentMethodCash PaymentMethod = "cash"

// Payment — запись в журнале платежей. Журнал только дописывается.
type Payment struct {
	ID          string
	ShopID      string
	InvoiceID   string
	CustomerID  string // Может быть пустым для анонимной продажи.
	AmountMinor int64
	Method      PaymentMethod
	CreatedAt   time.Time
}

// Validate проверяет корректность полей платежа и возвращает ошибки, если они есть.
func (p *Payment) Validate() []error {
	var errs []error

	if p.ShopID == "" {
		errs = append(errs, ErrShopIDRequired)
	}
	if p.InvoiceID == "" {
		errs = append(errs, ErrInvoiceIDRequired)
	}
	if p.AmountMinor <= 0 {
		errs = append(errs, ErrPaymentAmountInvalid)
	}
	if p.Method != PaymentMethodCash {
		errs = append(errs, ErrPaymentMethodUnsupported)
	}

	return errs
}
