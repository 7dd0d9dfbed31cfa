package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// invoiceRepositoryInMemory — in-memory реализация InvoiceRepository.
// Ключом служит пара (shop_id, id), чтобы счета разных магазинов не пересекались.
type invoiceRepositoryInMemory struct {
	mu      sync.RWMutex
	items   map[invoiceKey]domain.Invoice
	numbers map[invoiceKey]string
}

type invoiceKey struct {
	shopID string
	id     string
}

// NewInvoiceRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewInvoiceRepository() *invoiceRepositoryInMemory {
	return &invoiceRepositoryInMemory{
		items:   make(map[invoiceKey]domain.Invoice),
		numbers: make(map[invoiceKey]string),
	}
}

// Create сохраняет новый заголовок, если ID и номер счёта в магазине ещё не заняты.
func (r *invoiceRepositoryInMemory) Create(invoice domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := invoiceKey{shopID: invoice.ShopID, id: invoice.ID}
	if _, exists := r.items[key]; exists {
		return domain.ErrInvoiceAlreadyExists
	}
	numberKey := invoiceKey{shopID: invoice.ShopID, id: invoice.InvoiceNumber}
	if invoice.InvoiceNumber != "" {
		if _, taken := r.numbers[numberKey]; taken {
			return domain.ErrInvoiceAlreadyExists
		}
		r.numbers[numberKey] = invoice.ID
	}
	r.items[key] = invoice
	return nil
}

// Get возвращает счёт магазина или ErrInvoiceNotFound.
func (r *invoiceRepositoryInMemory) Get(shopID, id string) (domain.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	invoice, ok := r.items[invoiceKey{shopID: shopID, id: id}]
	if !ok {
		return domain.Invoice{}, domain.ErrInvoiceNotFound
	}
	return invoice, nil
}

// ListByShop возвращает счета магазина, новые первыми, ограничивая выборку limit (если >0).
func (r *invoiceRepositoryInMemory) ListByShop(shopID string, limit int) ([]domain.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Invoice, 0, len(r.items))
	for key, invoice := range r.items {
		if key.shopID != shopID {
			continue
		}
		result = append(result, invoice)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Save перезаписывает заголовок, проверяя версию (optimistic locking).
func (r *invoiceRepositoryInMemory) Save(invoice domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := invoiceKey{shopID: invoice.ShopID, id: invoice.ID}
	current, ok := r.items[key]
	if !ok {
		return domain.ErrInvoiceNotFound
	}
	if current.Version != invoice.Version {
		return domain.ErrInvoiceVersionConflict
	}
	invoice.Version++
	invoice.UpdatedAt = time.Now().UTC()
	r.items[key] = invoice
	return nil
}

// Delete удаляет заголовок; отсутствие записи не ошибка.
func (r *invoiceRepositoryInMemory) Delete(shopID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := invoiceKey{shopID: shopID, id: id}
	if invoice, ok := r.items[key]; ok {
		delete(r.numbers, invoiceKey{shopID: shopID, id: invoice.InvoiceNumber})
	}
	delete(r.items, key)
	return nil
}

// lockForPayment выполняет fn под эксклюзивной блокировкой счёта.
// Изменения заголовка, которые вернёт fn, сохраняются с увеличением версии.
func (r *invoiceRepositoryInMemory) lockForPayment(shopID, id string, fn func(invoice domain.Invoice) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := invoiceKey{shopID: shopID, id: id}
	invoice, ok := r.items[key]
	if !ok {
		return domain.ErrInvoiceNotFound
	}
	if err := fn(invoice); err != nil {
		return err
	}
	// Новый платёж делает прочитанную ранее версию устаревшей.
	invoice.Version++
	r.items[key] = invoice
	return nil
}

var _ domain.InvoiceRepository = (*invoiceRepositoryInMemory)(nil)
