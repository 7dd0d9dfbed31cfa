package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

type invoiceItemRepository struct {
	db *sql.DB
}

// NewInvoiceItemRepository создаёт PostgreSQL-реализацию InvoiceItemRepository.
func NewInvoiceItemRepository(store *Store) domain.InvoiceItemRepository {
	return &invoiceItemRepository{db: store.DB()}
}

// CreateBatch вставляет все позиции в одной транзакции.
func (r *invoiceItemRepository) CreateBatch(items []domain.InvoiceItem) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i, item := range items {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO invoice_items (
				id, invoice_id, shop_id, product_id, product_name, unit_price_minor, qty,
				stock_decremented, position, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`,
			item.ID, item.InvoiceID, item.ShopID, item.ProductID, item.ProductName,
			item.UnitPriceMinor, item.Qty, item.StockDecremented, i, item.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert invoice item: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit invoice items: %w", err)
	}

	return nil
}

func (r *invoiceItemRepository) ListByInvoice(shopID, invoiceID string) ([]domain.InvoiceItem, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, invoice_id, shop_id, product_id, product_name, unit_price_minor, qty,
		       stock_decremented, created_at
		FROM invoice_items
		WHERE invoice_id = $1 AND shop_id = $2
		ORDER BY position ASC, id ASC
	`, invoiceID, shopID)
	if err != nil {
		return nil, fmt.Errorf("load invoice items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.InvoiceItem, 0)
	for rows.Next() {
		var item domain.InvoiceItem
		if err := rows.Scan(
			&item.ID, &item.InvoiceID, &item.ShopID, &item.ProductID, &item.ProductName,
			&item.UnitPriceMinor, &item.Qty, &item.StockDecremented, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan invoice item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoice items: %w", err)
	}

	return items, nil
}

func (r *invoiceItemRepository) DeleteByInvoice(shopID, invoiceID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM invoice_items WHERE invoice_id = $1 AND shop_id = $2
	`, invoiceID, shopID); err != nil {
		return fmt.Errorf("delete invoice items: %w", err)
	}
	return nil
}

func (r *invoiceItemRepository) SetStockDecremented(shopID, invoiceID, itemID string, decremented bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE invoice_items SET stock_decremented = $1
		WHERE id = $2 AND invoice_id = $3 AND shop_id = $4
	`, decremented, itemID, invoiceID, shopID)
	if err != nil {
		return fmt.Errorf("update invoice item stock flag: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrInvoiceItemNotFound
	}
	return nil
}

var _ domain.InvoiceItemRepository = (*invoiceItemRepository)(nil)
