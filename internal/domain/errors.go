package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего идентификатора магазина.
	ErrShopIDRequired = errors.New("shop_id is required")
	// Ошибка отсутствующего идентификатора счёта.
	ErrInvoiceIDRequired = errors.New("invoice_id is required")
	// Ошибка отсутствующего идентификатора товара в позиции.
	ErrProductIDRequired = errors.New("product_id is required")
	// Ошибка отсутствия хотя бы одной позиции в счёте.
	ErrItemsRequired = errors.New("invoice must contain at least one item")
	// Ошибка при некорректном количестве товара (< 1).
	ErrItemQtyInvalid = errors.New("item qty must be at least one")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка отрицательной скидки.
	ErrDiscountNegative = errors.New("discount must be non-negative")
	// Ошибка отрицательного налога.
	ErrTaxNegative = errors.New("tax must be non-negative")
	// Ошибка отрицательной итоговой суммы (скидка больше суммы позиций с налогом).
	ErrTotalNegative = errors.New("invoice total must be non-negative")
	// Ошибка отрицательной оплаченной суммы.
	ErrAmountPaidNegative = errors.New("amount_paid must be non-negative")
	// Ошибка отрицательного долга.
	ErrDueAmountNegative = errors.New("due_amount must be non-negative")
	// Ошибка нарушения баланса amount_paid + due_amount == total.
	ErrInvoiceBalanceMismatch = errors.New("amount_paid plus due_amount does not match total")
	// Ошибка начальной оплаты вне диапазона [0, total].
	ErrInitialPaymentOutOfRange = errors.New("initial payment must be between zero and invoice total")
	// Ошибка неположительной суммы платежа.
	ErrPaymentAmountInvalid = errors.New("payment amount must be greater than zero")
	// Ошибка неподдерживаемого способа оплаты.
	ErrPaymentMethodUnsupported = errors.New("payment method is not supported")
	// Сумма платежей превысила бы сумму счёта.
	ErrPaymentExceedsDue = errors.New("payment exceeds invoice due amount")
	// Платёж с таким ID уже есть в журнале.
	ErrPaymentAlreadyRecorded = errors.New("payment already recorded")
	// ErrInvoiceNotFound возвращается, если счёт не найден в магазине.
	ErrInvoiceNotFound = errors.New("invoice not found")
	// ErrInvoiceItemNotFound возвращается, если позиции нет в счёте.
	ErrInvoiceItemNotFound = errors.New("invoice item not found")
	// ErrInvoiceAlreadyExists возвращается при повторной вставке счёта с тем же ID или номером.
	ErrInvoiceAlreadyExists = errors.New("invoice already exists")
	// ErrInvoiceVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrInvoiceVersionConflict = errors.New("invoice version conflict")
	// Операция невозможна для отменённого счёта.
	ErrInvoiceCancelled = errors.New("invoice is cancelled")
	// Отмена невозможна, по счёту уже есть платежи.
	ErrInvoiceHasPayments = errors.New("invoice has recorded payments")
	// ErrProductNotFound возвращается, если товара нет в магазине.
	ErrProductNotFound = errors.New("product not found")
	// Остатка не хватает для продажи.
	ErrInsufficientStock = errors.New("insufficient stock")
	// Неизвестная политика продажи сверх остатка.
	ErrUnknownStockPolicy = errors.New("unknown stock policy")
	// Ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// Пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// Пустой хэш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// Ключ уже занят тем же запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// Ключ занят запросом с другим телом.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// Ключ занят другим RPC.
	ErrIdempotencyMethodMismatch = errors.New("idempotency key reused for another method")
	// Пустое имя RPC.
	ErrIdempotencyMethodRequired = errors.New("idempotency method is required")
	// Ключ не найден.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// Расхождение не найдено.
	ErrDiscrepancyNotFound = errors.New("stock discrepancy not found")
)

// ValidationError оборачивает sentinel-ошибку валидации и указывает поле.
// Такие ошибки возвращаются до любой записи в хранилище.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Err.Error())
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт ошибку валидации для поля.
func NewValidationError(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// IsValidation проверяет, является ли ошибка ошибкой валидации.
func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrInvoiceVersionConflict)
}
