package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

type paymentRepository struct {
	db *sql.DB
}

// NewPaymentRepository создаёт PostgreSQL-реализацию журнала платежей.
func NewPaymentRepository(store *Store) domain.PaymentRepository {
	return &paymentRepository{db: store.DB()}
}

// Append проверяет остаток и вставляет платёж в одной транзакции.
// Строка счёта блокируется FOR UPDATE, поэтому параллельные платежи
// не могут вместе превысить сумму счёта.
func (r *paymentRepository) Append(p domain.Payment) (err error) {
	if errs := p.Validate(); len(errs) > 0 {
		return errs[0]
	}

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

	var (
		totalMinor int64
		status     string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT total_minor, status
		FROM invoices
		WHERE id = $1 AND shop_id = $2
		FOR UPDATE
	`, p.InvoiceID, p.ShopID).Scan(&totalMinor, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrInvoiceNotFound
		}
		return fmt.Errorf("lock invoice: %w", err)
	}
	if domain.InvoiceStatus(status) == domain.InvoiceStatusCancelled {
		return domain.ErrInvoiceCancelled
	}

	var paid int64
	if err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_minor), 0)
		FROM payments
		WHERE invoice_id = $1 AND shop_id = $2
	`, p.InvoiceID, p.ShopID).Scan(&paid); err != nil {
		return fmt.Errorf("sum payments: %w", err)
	}
	if paid+p.AmountMinor > totalMinor {
		return domain.ErrPaymentExceedsDue
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO payments (id, shop_id, invoice_id, customer_id, amount_minor, method, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, p.ID, p.ShopID, p.InvoiceID, p.CustomerID, p.AmountMinor, string(p.Method), p.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPaymentAlreadyRecorded
		}
		return fmt.Errorf("insert payment: %w", err)
	}

	// Новый платёж делает прочитанную ранее версию счёта устаревшей.
	if _, err = tx.ExecContext(ctx, `
		UPDATE invoices SET version = version + 1 WHERE id = $1 AND shop_id = $2
	`, p.InvoiceID, p.ShopID); err != nil {
		return fmt.Errorf("bump invoice version: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit payment: %w", err)
	}

	return nil
}

func (r *paymentRepository) ListByInvoice(shopID, invoiceID string) ([]domain.Payment, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, shop_id, invoice_id, customer_id, amount_minor, method, created_at
		FROM payments
		WHERE invoice_id = $1 AND shop_id = $2
		ORDER BY created_at ASC, id ASC
	`, invoiceID, shopID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0)
	for rows.Next() {
		var (
			p      domain.Payment
			method string
		)
		if err := rows.Scan(&p.ID, &p.ShopID, &p.InvoiceID, &p.CustomerID, &p.AmountMinor, &method, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		p.Method = domain.PaymentMethod(method)
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}

	return payments, nil
}

func (r *paymentRepository) SumByInvoice(shopID, invoiceID string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var sum int64
	if err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_minor), 0)
		FROM payments
		WHERE invoice_id = $1 AND shop_id = $2
	`, invoiceID, shopID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum payments: %w", err)
	}
	return sum, nil
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
