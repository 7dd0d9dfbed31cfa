package billing

import (
	"context"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

const defaultListLimit = 50

// GetInvoice возвращает счёт магазина с позициями и платежами.
func (s *Service) GetInvoice(ctx context.Context, shopID, invoiceID string) (InvoiceDetails, error) {
	if shopID == "" {
		return InvoiceDetails{}, domain.NewValidationError("shop_id", domain.ErrShopIDRequired)
	}
	if invoiceID == "" {
		return InvoiceDetails{}, domain.NewValidationError("invoice_id", domain.ErrInvoiceIDRequired)
	}
	if err := ctx.Err(); err != nil {
		return InvoiceDetails{}, err
	}

	invoice, err := s.invoices.Get(shopID, invoiceID)
	if err != nil {
		return InvoiceDetails{}, err
	}
	items, err := s.items.ListByInvoice(shopID, invoiceID)
	if err != nil {
		return InvoiceDetails{}, err
	}
	payments, err := s.payments.ListByInvoice(shopID, invoiceID)
	if err != nil {
		return InvoiceDetails{}, err
	}

	return InvoiceDetails{Invoice: invoice, Items: items, Payments: payments}, nil
}

// ListInvoices возвращает счета магазина, новые первыми.
func (s *Service) ListInvoices(ctx context.Context, shopID string, limit int) ([]domain.Invoice, error) {
	if shopID == "" {
		return nil, domain.NewValidationError("shop_id", domain.ErrShopIDRequired)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.invoices.ListByShop(shopID, limit)
}

// Timeline возвращает аудит шагов по счёту магазина.
func (s *Service) Timeline(ctx context.Context, shopID, invoiceID string) ([]domain.TimelineEvent, error) {
	if s.timeline == nil {
		return nil, nil
	}
	if _, err := s.invoices.Get(shopID, invoiceID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.timeline.List(invoiceID)
}
