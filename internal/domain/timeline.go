package domain

import "time"

// TimelineEvent описывает событие в жизни счёта (аудит шагов workflow).
type TimelineEvent struct {
	InvoiceID string
	ShopID    string
	Type      string
	Reason    string
	Occurred  time.Time
}

// Типы событий таймлайна.
const (
	TimelineInvoiceCreated       = "invoice_created"
	TimelineItemsFailed          = "items_failed"
	TimelineInvoiceRolledBack    = "invoice_rolled_back"
	TimelineInitialPayment       = "initial_payment_recorded"
	TimelineInitialPaymentFailed = "initial_payment_failed"
	TimelineStockDecremented     = "stock_decremented"
	TimelineStockDecrementFailed = "stock_decrement_failed"
	TimelineStockBackordered     = "stock_backordered"
	TimelinePaymentRecorded      = "payment_recorded"
	TimelineReconciled           = "reconciled"
	TimelineInvoiceCancelled     = "invoice_cancelled"
)
