package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

const invoiceColumns = `
	id, shop_id, invoice_number, customer_id, customer_name, customer_phone,
	subtotal_minor, discount_minor, tax_minor, total_minor, amount_paid_minor, due_amount_minor,
	payment_status, status, version, created_at, updated_at`

type invoiceRepository struct {
	db *sql.DB
}

// NewInvoiceRepository создаёт PostgreSQL-реализацию InvoiceRepository.
func NewInvoiceRepository(store *Store) domain.InvoiceRepository {
	return &invoiceRepository{db: store.DB()}
}

func (r *invoiceRepository) Create(inv domain.Invoice) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`,
		inv.ID, inv.ShopID, inv.InvoiceNumber, inv.CustomerID, inv.CustomerName, inv.CustomerPhone,
		inv.SubtotalMinor, inv.DiscountMinor, inv.TaxMinor, inv.TotalMinor, inv.AmountPaidMinor, inv.DueAmountMinor,
		string(inv.PaymentStatus), string(inv.Status), inv.Version, inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrInvoiceAlreadyExists
		}
		return fmt.Errorf("insert invoice: %w", err)
	}

	return nil
}

func (r *invoiceRepository) Get(shopID, id string) (domain.Invoice, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE id = $1 AND shop_id = $2
	`, id, shopID)

	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Invoice{}, domain.ErrInvoiceNotFound
		}
		return domain.Invoice{}, fmt.Errorf("select invoice: %w", err)
	}
	return inv, nil
}

func (r *invoiceRepository) ListByShop(shopID string, limit int) ([]domain.Invoice, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE shop_id = $1
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)

	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", shopID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, shopID)
	}
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	invoices := make([]domain.Invoice, 0)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice row: %w", err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoice rows: %w", err)
	}

	return invoices, nil
}

func (r *invoiceRepository) Save(inv domain.Invoice) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE invoices
		SET amount_paid_minor = $1,
		    due_amount_minor = $2,
		    payment_status = $3,
		    status = $4,
		    version = version + 1,
		    updated_at = $5
		WHERE id = $6
		  AND shop_id = $7
		  AND version = $8
	`,
		inv.AmountPaidMinor,
		inv.DueAmountMinor,
		string(inv.PaymentStatus),
		string(inv.Status),
		time.Now().UTC(),
		inv.ID,
		inv.ShopID,
		inv.Version,
	)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.invoiceExists(ctx, inv.ShopID, inv.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrInvoiceNotFound
		}
		return domain.ErrInvoiceVersionConflict
	}

	return nil
}

// Delete удаляет заголовок; позиции удаляются каскадом, платежи остаются.
func (r *invoiceRepository) Delete(shopID, id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM invoices WHERE id = $1 AND shop_id = $2`, id, shopID); err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}
	return nil
}

func (r *invoiceRepository) invoiceExists(ctx context.Context, shopID, id string) (bool, error) {
	var found string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM invoices WHERE id = $1 AND shop_id = $2`, id, shopID).Scan(&found)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check invoice exists: %w", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (domain.Invoice, error) {
	var (
		inv           domain.Invoice
		paymentStatus string
		status        string
	)
	if err := row.Scan(
		&inv.ID, &inv.ShopID, &inv.InvoiceNumber, &inv.CustomerID, &inv.CustomerName, &inv.CustomerPhone,
		&inv.SubtotalMinor, &inv.DiscountMinor, &inv.TaxMinor, &inv.TotalMinor, &inv.AmountPaidMinor, &inv.DueAmountMinor,
		&paymentStatus, &status, &inv.Version, &inv.CreatedAt, &inv.UpdatedAt,
	); err != nil {
		return domain.Invoice{}, err
	}
	inv.PaymentStatus = domain.PaymentStatus(paymentStatus)
	inv.Status = domain.InvoiceStatus(status)
	return inv, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.InvoiceRepository = (*invoiceRepository)(nil)
