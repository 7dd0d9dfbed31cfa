package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// invoiceItemRepositoryInMemory хранит позиции счетов в порядке добавления.
type invoiceItemRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[invoiceKey][]domain.InvoiceItem
}

// NewInvoiceItemRepository создаёт in-memory реализацию InvoiceItemRepository.
func NewInvoiceItemRepository() *invoiceItemRepositoryInMemory {
	return &invoiceItemRepositoryInMemory{items: make(map[invoiceKey][]domain.InvoiceItem)}
}

// CreateBatch сохраняет все позиции; при ошибке не сохраняется ни одна.
func (r *invoiceItemRepositoryInMemory) CreateBatch(items []domain.InvoiceItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, item := range items {
		if item.InvoiceID == "" {
			return domain.ErrInvoiceIDRequired
		}
		if item.Qty < 1 {
			return domain.ErrItemQtyInvalid
		}
	}
	for _, item := range items {
		key := invoiceKey{shopID: item.ShopID, id: item.InvoiceID}
		r.items[key] = append(r.items[key], item)
	}
	return nil
}

// ListByInvoice возвращает копию позиций счёта.
func (r *invoiceItemRepositoryInMemory) ListByInvoice(shopID, invoiceID string) ([]domain.InvoiceItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := r.items[invoiceKey{shopID: shopID, id: invoiceID}]
	result := make([]domain.InvoiceItem, len(items))
	copy(result, items)
	return result, nil
}

// DeleteByInvoice удаляет позиции счёта; повторный вызов безопасен.
func (r *invoiceItemRepositoryInMemory) DeleteByInvoice(shopID, invoiceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.items, invoiceKey{shopID: shopID, id: invoiceID})
	return nil
}

// SetStockDecremented обновляет отметку списания остатка по позиции.
func (r *invoiceItemRepositoryInMemory) SetStockDecremented(shopID, invoiceID, itemID string, decremented bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := r.items[invoiceKey{shopID: shopID, id: invoiceID}]
	for i := range items {
		if items[i].ID == itemID {
			items[i].StockDecremented = decremented
			return nil
		}
	}
	return domain.ErrInvoiceItemNotFound
}

var _ domain.InvoiceItemRepository = (*invoiceItemRepositoryInMemory)(nil)
