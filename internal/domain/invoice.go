package domain

import "time"

// InvoiceStatus описывает жизненный цикл счёта (продажи).
type InvoiceStatus string

const (
	// Счёт создан, продажа ещё не закрыта.
	InvoiceStatusPending InvoiceStatus = "pending"
	// Продажа завершена.
	InvoiceStatusCompleted InvoiceStatus = "completed"
	// Счёт отменён; физически не удаляется.
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// InvoiceItem представляет одну позицию счёта.
// Название и цена фиксируются в момент продажи и не следуют за каталогом.
type InvoiceItem struct {
	ID        string
	InvoiceID string
	ShopID    string
	ProductID string
	// Снимок названия товара на момент продажи.
	ProductName string
	// Цена за единицу в минимальных денежных единицах (копейки, центы).
	UnitPriceMinor int64
	// Количество единиц, не меньше одной.
	Qty int32
	// StockDecremented выставляется после успешного списания остатка по позиции.
	// Отмена возвращает на склад только такие позиции.
	StockDecremented bool
	CreatedAt        time.Time
}

// LineTotal возвращает стоимость позиции: цена × количество.
func (i InvoiceItem) LineTotal() int64 {
	return int64(i.Qty) * i.UnitPriceMinor
}

// Invoice — заголовок счёта: клиент, суммы и статусы.
type Invoice struct {
	ID            string
	ShopID        string
	InvoiceNumber string
	CustomerID    string
	CustomerName  string
	CustomerPhone string

	SubtotalMinor   int64
	DiscountMinor   int64
	TaxMinor        int64
	TotalMinor      int64
	AmountPaidMinor int64
	DueAmountMinor  int64

	PaymentStatus PaymentStatus
	Status        InvoiceStatus
	// Version используется для optimistic locking при пересчёте оплат.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ApplyPaidAmount пересчитывает оплаченную сумму, долг и статус оплаты по свежей сумме платежей.
func (inv *Invoice) ApplyPaidAmount(paidMinor int64) {
	inv.AmountPaidMinor = paidMinor
	inv.DueAmountMinor = DueAmount(inv.TotalMinor, paidMinor)
	inv.PaymentStatus = ComputePaymentStatus(inv.TotalMinor, paidMinor)
}

// IsCancelled сообщает, отменён ли счёт.
func (inv *Invoice) IsCancelled() bool {
	return inv.Status == InvoiceStatusCancelled
}

// ValidateInvariants проверяет денежные инварианты заголовка и возвращает список нарушений.
func (inv *Invoice) ValidateInvariants() []error {
	var errs []error

	if inv.ShopID == "" {
		errs = append(errs, ErrShopIDRequired)
	}
	if inv.TotalMinor < 0 {
		errs = append(errs, ErrTotalNegative)
	}
	if inv.AmountPaidMinor < 0 {
		errs = append(errs, ErrAmountPaidNegative)
	}
	if inv.DueAmountMinor < 0 {
		errs = append(errs, ErrDueAmountNegative)
	}
	// Переплата возможна только при нарушении учёта, долг в этом случае равен нулю.
	if inv.AmountPaidMinor+inv.DueAmountMinor != inv.TotalMinor {
		errs = append(errs, ErrInvoiceBalanceMismatch)
	}

	return errs
}

// SumItems возвращает сумму позиций: Σ цена × количество.
func SumItems(items []InvoiceItem) int64 {
	var total int64
	for _, item := range items {
		total += item.LineTotal()
	}
	return total
}
