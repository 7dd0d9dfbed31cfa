package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// stockRepositoryInMemory — складской учёт в памяти.
// Проверка остатка и списание выполняются под одной блокировкой.
type stockRepositoryInMemory struct {
	mu       sync.Mutex
	products map[invoiceKey]domain.Product
}

// NewStockRepository создаёт in-memory реализацию StockRepository.
func NewStockRepository() domain.StockRepository {
	return &stockRepositoryInMemory{products: make(map[invoiceKey]domain.Product)}
}

// Upsert создаёт или обновляет товар магазина.
func (r *stockRepositoryInMemory) Upsert(product domain.Product) error {
	if product.ShopID == "" {
		return domain.ErrShopIDRequired
	}
	if product.ID == "" {
		return domain.ErrProductIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	product.UpdatedAt = time.Now().UTC()
	r.products[invoiceKey{shopID: product.ShopID, id: product.ID}] = product
	return nil
}

// Seed добавляет товар, если его нет; у существующего меняет только название и цену.
func (r *stockRepositoryInMemory) Seed(product domain.Product) (bool, error) {
	if product.ShopID == "" {
		return false, domain.ErrShopIDRequired
	}
	if product.ID == "" {
		return false, domain.ErrProductIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := invoiceKey{shopID: product.ShopID, id: product.ID}
	existing, ok := r.products[key]
	if ok {
		existing.Name = product.Name
		existing.PriceMinor = product.PriceMinor
		existing.UpdatedAt = time.Now().UTC()
		r.products[key] = existing
		return false, nil
	}

	product.UpdatedAt = time.Now().UTC()
	r.products[key] = product
	return true, nil
}

// Get возвращает товар или ErrProductNotFound.
func (r *stockRepositoryInMemory) Get(shopID, productID string) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.products[invoiceKey{shopID: shopID, id: productID}]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// Decrement списывает qty, если остатка хватает или разрешён минус.
func (r *stockRepositoryInMemory) Decrement(shopID, productID string, qty int32, allowNegative bool) (int64, error) {
	if qty < 1 {
		return 0, domain.ErrItemQtyInvalid
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := invoiceKey{shopID: shopID, id: productID}
	product, ok := r.products[key]
	if !ok {
		return 0, domain.ErrProductNotFound
	}
	if !allowNegative && product.Stock < int64(qty) {
		return product.Stock, domain.ErrInsufficientStock
	}
	product.Stock -= int64(qty)
	product.UpdatedAt = time.Now().UTC()
	r.products[key] = product
	return product.Stock, nil
}

// Increment возвращает qty единиц на склад.
func (r *stockRepositoryInMemory) Increment(shopID, productID string, qty int32) (int64, error) {
	if qty < 1 {
		return 0, domain.ErrItemQtyInvalid
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := invoiceKey{shopID: shopID, id: productID}
	product, ok := r.products[key]
	if !ok {
		return 0, domain.ErrProductNotFound
	}
	product.Stock += int64(qty)
	product.UpdatedAt = time.Now().UTC()
	r.products[key] = product
	return product.Stock, nil
}

var _ domain.StockRepository = (*stockRepositoryInMemory)(nil)
