package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

type stockRepository struct {
	db *sql.DB
}

// NewStockRepository создаёт PostgreSQL-реализацию складского учёта.
func NewStockRepository(store *Store) domain.StockRepository {
	return &stockRepository{db: store.DB()}
}

func (r *stockRepository) Upsert(p domain.Product) error {
	if p.ShopID == "" {
		return domain.ErrShopIDRequired
	}
	if p.ID == "" {
		return domain.ErrProductIDRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, shop_id, name, price_minor, stock, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (shop_id, id) DO UPDATE
		SET name = EXCLUDED.name,
		    price_minor = EXCLUDED.price_minor,
		    stock = EXCLUDED.stock,
		    updated_at = EXCLUDED.updated_at
	`, p.ID, p.ShopID, p.Name, p.PriceMinor, p.Stock, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

// Seed вставляет отсутствующий товар. Остаток существующего товара не меняется:
// каталог применяется при каждом запуске сервиса, а остаток живёт в базе.
func (r *stockRepository) Seed(p domain.Product) (bool, error) {
	if p.ShopID == "" {
		return false, domain.ErrShopIDRequired
	}
	if p.ID == "" {
		return false, domain.ErrProductIDRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	// xmax = 0 только у строки, вставленной этим запросом.
	var inserted bool
	if err := r.db.QueryRowContext(ctx, `
		INSERT INTO products (id, shop_id, name, price_minor, stock, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (shop_id, id) DO UPDATE
		SET name = EXCLUDED.name,
		    price_minor = EXCLUDED.price_minor,
		    updated_at = EXCLUDED.updated_at
		RETURNING (xmax = 0)
	`, p.ID, p.ShopID, p.Name, p.PriceMinor, p.Stock, time.Now().UTC()).Scan(&inserted); err != nil {
		return false, fmt.Errorf("seed product: %w", err)
	}
	return inserted, nil
}

func (r *stockRepository) Get(shopID, productID string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var p domain.Product
	err := r.db.QueryRowContext(ctx, `
		SELECT id, shop_id, name, price_minor, stock, updated_at
		FROM products
		WHERE id = $1 AND shop_id = $2
	`, productID, shopID).Scan(&p.ID, &p.ShopID, &p.Name, &p.PriceMinor, &p.Stock, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return p, nil
}

// Decrement списывает остаток одним условным UPDATE.
// Ноль затронутых строк означает либо нехватку остатка, либо отсутствие товара.
func (r *stockRepository) Decrement(shopID, productID string, qty int32, allowNegative bool) (int64, error) {
	if qty < 1 {
		return 0, domain.ErrItemQtyInvalid
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var left int64
	err := r.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock - $1,
		    updated_at = NOW()
		WHERE id = $2
		  AND shop_id = $3
		  AND ($4 OR stock >= $1)
		RETURNING stock
	`, int64(qty), productID, shopID, allowNegative).Scan(&left)
	if err == nil {
		return left, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("decrement stock: %w", err)
	}

	current, getErr := r.Get(shopID, productID)
	if getErr != nil {
		return 0, getErr
	}
	return current.Stock, domain.ErrInsufficientStock
}

func (r *stockRepository) Increment(shopID, productID string, qty int32) (int64, error) {
	if qty < 1 {
		return 0, domain.ErrItemQtyInvalid
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var left int64
	err := r.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock + $1,
		    updated_at = NOW()
		WHERE id = $2 AND shop_id = $3
		RETURNING stock
	`, int64(qty), productID, shopID).Scan(&left)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrProductNotFound
		}
		return 0, fmt.Errorf("increment stock: %w", err)
	}
	return left, nil
}

var _ domain.StockRepository = (*stockRepository)(nil)
