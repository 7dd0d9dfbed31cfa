package domain

import (
	"strings"
	"time"
)

// IdempotencyStatus описывает жизненный цикл ключа идемпотентности.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing означает, что запрос принят и ещё обрабатывается.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone означает, что запрос завершён успешно и ответ сохранён.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed означает, что обработка завершилась ошибкой.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// IdempotencyKey — ключ повтора в пределах магазина. Кассы разных магазинов
// выдают ключи независимо, поэтому одинаковые строки не конфликтуют.
type IdempotencyKey struct {
	ShopID string
	Key    string
}

// NewIdempotencyKey нормализует ключ и проверяет обязательные части.
func NewIdempotencyKey(shopID, key string) (IdempotencyKey, error) {
	k := IdempotencyKey{ShopID: strings.TrimSpace(shopID), Key: strings.TrimSpace(key)}
	if err := k.Validate(); err != nil {
		return IdempotencyKey{}, err
	}
	return k, nil
}

// Validate проверяет, что магазин и ключ заданы.
func (k IdempotencyKey) Validate() error {
	if k.ShopID == "" {
		return ErrShopIDRequired
	}
	if k.Key == "" {
		return ErrIdempotencyKeyRequired
	}
	return nil
}

// IdempotencyRecord хранит состояние обработки RPC и сохранённый ответ.
type IdempotencyRecord struct {
	IdempotencyKey
	// Method — полное имя RPC; ключ нельзя переиспользовать для другого метода.
	Method      string
	RequestHash string
	Status      IdempotencyStatus
	// InvoiceID заполняется при успехе: по нему оператор находит счёт, к которому относится повтор.
	InvoiceID string
	Response  []byte
	// Code — gRPC-код ответа; для успешных ответов 0.
	Code      uint32
	TTLAt     time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// IsExpired сообщает, истёк ли TTL записи к моменту now.
func (r IdempotencyRecord) IsExpired(now time.Time) bool {
	return !r.TTLAt.IsZero() && !now.Before(r.TTLAt)
}

// Conflict сравнивает живую запись с новым запросом под тем же ключом.
// Возвращает ErrIdempotencyMethodMismatch, ErrIdempotencyHashMismatch или
// ErrIdempotencyKeyAlreadyExists для точного повтора.
func (r IdempotencyRecord) Conflict(method, requestHash string) error {
	switch {
	case r.Method != method:
		return ErrIdempotencyMethodMismatch
	case r.RequestHash != requestHash:
		return ErrIdempotencyHashMismatch
	default:
		return ErrIdempotencyKeyAlreadyExists
	}
}
