package domain

import "time"

// Product — минимальное представление товара, нужное складскому учёту.
type Product struct {
	ID         string
	ShopID     string
	Name       string
	PriceMinor int64
	// Доступное количество; при политике reject не уходит в минус.
	Stock     int64
	UpdatedAt time.Time
}

// StockPolicy определяет, что делать с продажей сверх остатка.
type StockPolicy string

const (
	// Продажа сверх остатка отклоняется.
	StockPolicyReject StockPolicy = "reject"
	// Продажа проходит, остаток уходит в минус (под заказ).
	StockPolicyBackorder StockPolicy = "backorder"
)

// Valid проверяет, что политика относится к поддерживаемым значениям.
func (p StockPolicy) Valid() bool {
	switch p {
	case StockPolicyReject, StockPolicyBackorder:
		return true
	default:
		return false
	}
}

// AllowsNegative сообщает, разрешён ли отрицательный остаток.
func (p StockPolicy) AllowsNegative() bool {
	return p == StockPolicyBackorder
}

// DiscrepancyKind — тип расхождения складского учёта.
type DiscrepancyKind string

const (
	// Списание остатка не удалось после фиксации продажи.
	DiscrepancyDecrementFailed DiscrepancyKind = "decrement_failed"
	// Остаток ушёл в минус по политике backorder.
	DiscrepancyBackordered DiscrepancyKind = "backordered"
)

// StockDiscrepancy — запись для ручной сверки остатков.
type StockDiscrepancy struct {
	ID        string
	ShopID    string
	InvoiceID string
	ProductID string
	Qty       int32
	Kind      DiscrepancyKind
	Reason    string
	// Идентификатор исходного события; повторная доставка не создаёт дубликат.
	EventID    string
	Resolved   bool
	OccurredAt time.Time
	CreatedAt  time.Time
}
