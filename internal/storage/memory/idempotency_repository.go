package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

const defaultIdempotencyTTL = 24 * time.Hour

// idempotencyRepositoryInMemory держит ключи повторов RPC по магазинам.
type idempotencyRepositoryInMemory struct {
	mu      sync.Mutex
	records map[domain.IdempotencyKey]domain.IdempotencyRecord
	now     func() time.Time
}

// NewIdempotencyRepository создаёт in-memory реализацию IdempotencyRepository.
func NewIdempotencyRepository() domain.IdempotencyRepository {
	return &idempotencyRepositoryInMemory{
		records: make(map[domain.IdempotencyKey]domain.IdempotencyRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *idempotencyRepositoryInMemory) Begin(key domain.IdempotencyKey, method, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
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

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if ttlAt.IsZero() {
		ttlAt = now.Add(defaultIdempotencyTTL)
	}

	if existing, ok := r.records[key]; ok && !existing.IsExpired(now) {
		return cloneIdempotencyRecord(existing), existing.Conflict(method, requestHash)
	}

	record := domain.IdempotencyRecord{
		IdempotencyKey: key,
		Method:         method,
		RequestHash:    requestHash,
		Status:         domain.IdempotencyStatusProcessing,
		TTLAt:          ttlAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.records[key] = record
	return record, nil
}

func (r *idempotencyRepositoryInMemory) Get(key domain.IdempotencyKey) (domain.IdempotencyRecord, error) {
	if err := key.Validate(); err != nil {
		return domain.IdempotencyRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return cloneIdempotencyRecord(record), nil
}

func (r *idempotencyRepositoryInMemory) Complete(key domain.IdempotencyKey, invoiceID string, response []byte) error {
	return r.finish(key, func(record *domain.IdempotencyRecord) {
		record.Status = domain.IdempotencyStatusDone
		record.InvoiceID = invoiceID
		record.Response = append([]byte(nil), response...)
		record.Code = 0
	})
}

func (r *idempotencyRepositoryInMemory) Fail(key domain.IdempotencyKey, code uint32, response []byte) error {
	return r.finish(key, func(record *domain.IdempotencyRecord) {
		record.Status = domain.IdempotencyStatusFailed
		record.Response = append([]byte(nil), response...)
		record.Code = code
	})
}

// DeleteExpired удаляет записи с истёкшим TTL, начиная с самых старых.
func (r *idempotencyRepositoryInMemory) DeleteExpired(before time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if before.IsZero() {
		before = r.now()
	}

	expired := make([]domain.IdempotencyRecord, 0)
	for _, record := range r.records {
		if !record.TTLAt.After(before) {
			expired = append(expired, record)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].TTLAt.Before(expired[j].TTLAt) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}

	for _, record := range expired {
		delete(r.records, record.IdempotencyKey)
	}
	return len(expired), nil
}

func (r *idempotencyRepositoryInMemory) finish(key domain.IdempotencyKey, apply func(*domain.IdempotencyRecord)) error {
	if err := key.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	apply(&record)
	record.UpdatedAt = r.now()
	r.records[key] = record
	return nil
}

func cloneIdempotencyRecord(src domain.IdempotencyRecord) domain.IdempotencyRecord {
	dst := src
	dst.Response = append([]byte(nil), src.Response...)
	return dst
}

var _ domain.IdempotencyRepository = (*idempotencyRepositoryInMemory)(nil)
