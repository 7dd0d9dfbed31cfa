package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

type discrepancyRepository struct {
	db *sql.DB
}

// NewStockDiscrepancyRepository создаёт PostgreSQL-реализацию StockDiscrepancyRepository.
func NewStockDiscrepancyRepository(store *Store) domain.StockDiscrepancyRepository {
	return &discrepancyRepository{db: store.DB()}
}

func (r *discrepancyRepository) Record(d domain.StockDiscrepancy) (bool, error) {
	if d.ShopID == "" {
		return false, domain.ErrShopIDRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if d.OccurredAt.IsZero() {
		d.OccurredAt = now
	}

	var eventID sql.NullString
	if d.EventID != "" {
		eventID = sql.NullString{String: d.EventID, Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO stock_discrepancies (
			id, shop_id, invoice_id, product_id, qty, kind, reason, event_id, resolved, occurred_at, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,FALSE,$9,$10)
		ON CONFLICT DO NOTHING
	`, d.ID, d.ShopID, d.InvoiceID, d.ProductID, d.Qty, string(d.Kind), d.Reason, eventID, d.OccurredAt, now)
	if err != nil {
		return false, fmt.Errorf("insert stock discrepancy: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *discrepancyRepository) ListOpen(shopID string, limit int) ([]domain.StockDiscrepancy, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, shop_id, invoice_id, product_id, qty, kind, reason, COALESCE(event_id, ''), resolved, occurred_at, created_at
		FROM stock_discrepancies
		WHERE shop_id = $1 AND NOT resolved
		ORDER BY occurred_at ASC, id ASC
		LIMIT $2
	`, shopID, limit)
	if err != nil {
		return nil, fmt.Errorf("list stock discrepancies: %w", err)
	}
	defer rows.Close()

	result := make([]domain.StockDiscrepancy, 0)
	for rows.Next() {
		var (
			d    domain.StockDiscrepancy
			kind string
		)
		if err := rows.Scan(&d.ID, &d.ShopID, &d.InvoiceID, &d.ProductID, &d.Qty, &kind, &d.Reason, &d.EventID, &d.Resolved, &d.OccurredAt, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stock discrepancy: %w", err)
		}
		d.Kind = domain.DiscrepancyKind(kind)
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock discrepancies: %w", err)
	}
	return result, nil
}

func (r *discrepancyRepository) Resolve(shopID, id string) error {
	if shopID == "" {
		return domain.ErrShopIDRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `UPDATE stock_discrepancies SET resolved = TRUE WHERE shop_id = $1 AND id = $2`, shopID, id)
	if err != nil {
		return fmt.Errorf("resolve stock discrepancy: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrDiscrepancyNotFound
	}
	return nil
}

var _ domain.StockDiscrepancyRepository = (*discrepancyRepository)(nil)
