package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

const defaultIdempotencyTTL = 24 * time.Hour

// idempotencyRepository хранит ключи повторов RPC в idempotency_keys с ключом (shop_id, key).
type idempotencyRepository struct {
	db *sql.DB
}

// NewIdempotencyRepository создаёт PostgreSQL-реализацию IdempotencyRepository.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &idempotencyRepository{db: store.DB()}
}

const selectIdempotencyColumns = `
	SELECT shop_id, key, method, request_hash, status, invoice_id, response, code, ttl_at, created_at, updated_at
	FROM idempotency_keys`

func (r *idempotencyRepository) Begin(key domain.IdempotencyKey, method, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	if err := key.Validate(); err != nil {
		return domain.IdempotencyRecord{}, err
	}
	method = strings.TrimSpace(method)
	requestHash = strings.TrimSpace(requestHash)
	if method == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyMethodRequired
	}
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := time.Now().UTC()
	if ttlAt.IsZero() {
		ttlAt = now.Add(defaultIdempotencyTTL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	// Вставка или захват просроченной записи одним запросом; живую запись не трогаем.
	var taken bool
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO idempotency_keys (
			shop_id, key, method, request_hash, status, invoice_id, response, code, ttl_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,'',NULL,0,$6,$7,$7)
		ON CONFLICT (shop_id, key) DO UPDATE
		SET method = EXCLUDED.method,
		    request_hash = EXCLUDED.request_hash,
		    status = EXCLUDED.status,
		    invoice_id = '',
		    response = NULL,
		    code = 0,
		    ttl_at = EXCLUDED.ttl_at,
		    created_at = EXCLUDED.created_at,
		    updated_at = EXCLUDED.updated_at
		WHERE idempotency_keys.ttl_at <= $7
		RETURNING TRUE
	`, key.ShopID, key.Key, method, requestHash, string(domain.IdempotencyStatusProcessing), ttlAt, now).Scan(&taken)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		existing, getErr := r.Get(key)
		if getErr != nil {
			// Запись удалил cleanup между запросами; клиент повторит.
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
		}
		return existing, existing.Conflict(method, requestHash)
	case err != nil:
		return domain.IdempotencyRecord{}, fmt.Errorf("begin idempotency key %s/%s: %w", key.ShopID, key.Key, err)
	}

	return domain.IdempotencyRecord{
		IdempotencyKey: key,
		Method:         method,
		RequestHash:    requestHash,
		Status:         domain.IdempotencyStatusProcessing,
		TTLAt:          ttlAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (r *idempotencyRepository) Get(key domain.IdempotencyKey) (domain.IdempotencyRecord, error) {
	if err := key.Validate(); err != nil {
		return domain.IdempotencyRecord{}, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		record    domain.IdempotencyRecord
		statusRaw string
		code      int64
	)
	err := r.db.QueryRowContext(ctx, selectIdempotencyColumns+`
		WHERE shop_id = $1 AND key = $2
	`, key.ShopID, key.Key).Scan(
		&record.ShopID,
		&record.Key,
		&record.Method,
		&record.RequestHash,
		&statusRaw,
		&record.InvoiceID,
		&record.Response,
		&code,
		&record.TTLAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
		}
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency key %s/%s: %w", key.ShopID, key.Key, err)
	}

	record.Status = domain.IdempotencyStatus(statusRaw)
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("invalid idempotency status %q for key %s/%s", statusRaw, key.ShopID, key.Key)
	}
	if code < 0 {
		return domain.IdempotencyRecord{}, fmt.Errorf("invalid idempotency code %d for key %s/%s", code, key.ShopID, key.Key)
	}
	record.Code = uint32(code) //nolint:gosec // проверено выше, коды gRPC малы.
	return record, nil
}

func (r *idempotencyRepository) Complete(key domain.IdempotencyKey, invoiceID string, response []byte) error {
	return r.finish(key, domain.IdempotencyStatusDone, invoiceID, 0, response)
}

func (r *idempotencyRepository) Fail(key domain.IdempotencyKey, code uint32, response []byte) error {
	return r.finish(key, domain.IdempotencyStatusFailed, "", code, response)
}

// DeleteExpired удаляет просроченные ключи пачкой, начиная с самых старых.
func (r *idempotencyRepository) DeleteExpired(before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		res sql.Result
		err error
	)
	if limit > 0 {
		res, err = r.db.ExecContext(ctx, `
			DELETE FROM idempotency_keys
			WHERE (shop_id, key) IN (
				SELECT shop_id, key
				FROM idempotency_keys
				WHERE ttl_at <= $1
				ORDER BY ttl_at
				LIMIT $2
			)
		`, before, limit)
	} else {
		res, err = r.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE ttl_at <= $1`, before)
	}
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency keys: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("idempotency rows affected: %w", err)
	}
	return int(affected), nil
}

func (r *idempotencyRepository) finish(key domain.IdempotencyKey, status domain.IdempotencyStatus, invoiceID string, code uint32, response []byte) error {
	if err := key.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET status = $3,
		    invoice_id = $4,
		    code = $5,
		    response = $6,
		    updated_at = $7
		WHERE shop_id = $1 AND key = $2
	`, key.ShopID, key.Key, string(status), invoiceID, int64(code), response, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark idempotency key %s/%s %s: %w", key.ShopID, key.Key, status, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("idempotency rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
