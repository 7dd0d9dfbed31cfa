package domain

// PaymentStatus описывает состояние оплаты счёта.
type PaymentStatus string

const (
	// По счёту ещё ничего не оплачено.
	PaymentStatusPending PaymentStatus = "pending"
	// Счёт оплачен частично.
	PaymentStatusPartial PaymentStatus = "partial"
	// Счёт оплачен полностью.
	PaymentStatusPaid PaymentStatus = "paid"
	// Счёт отменён, оплата не ожидается.
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// ComputePaymentStatus вычисляет статус оплаты по сумме счёта и оплаченной сумме.
// Используется и при создании счёта, и при записи платежа.
//
// Счёт с нулевой суммой считается оплаченным: 0 >= 0.
func ComputePaymentStatus(totalMinor, paidMinor int64) PaymentStatus {
	switch {
	case paidMinor >= totalMinor:
		return PaymentStatusPaid
	case paidMinor > 0:
		return PaymentStatusPartial
	default:
		return PaymentStatusPending
	}
}

// DueAmount возвращает остаток долга, не меньше нуля.
func DueAmount(totalMinor, paidMinor int64) int64 {
	if due := totalMinor - paidMinor; due > 0 {
		return due
	}
	return 0
}
