package billingv1

import "time"

// InvoiceItem — позиция счёта.
type InvoiceItem struct {
	ID          string `json:"id,omitempty"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	UnitPrice   string `json:"unit_price"`
	Qty         int32  `json:"qty"`
	LineTotal   string `json:"line_total,omitempty"`
	// Остаток по позиции списан; отмена вернёт его на склад.
	StockDecremented bool `json:"stock_decremented"`
}

// Invoice — заголовок счёта с позициями.
type Invoice struct {
	ID            string        `json:"id"`
	ShopID        string        `json:"shop_id"`
	InvoiceNumber string        `json:"invoice_number"`
	CustomerID    string        `json:"customer_id,omitempty"`
	CustomerName  string        `json:"customer_name,omitempty"`
	CustomerPhone string        `json:"customer_phone,omitempty"`
	Subtotal      string        `json:"subtotal"`
	Discount      string        `json:"discount"`
	Tax           string        `json:"tax"`
	Total         string        `json:"total"`
	AmountPaid    string        `json:"amount_paid"`
	DueAmount     string        `json:"due_amount"`
	PaymentStatus string        `json:"payment_status"`
	Status        string        `json:"status"`
	Version       int64         `json:"version"`
	Items         []InvoiceItem `json:"items,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Payment — запись журнала платежей.
type Payment struct {
	ID        string    `json:"id"`
	InvoiceID string    `json:"invoice_id"`
	Amount    string    `json:"amount"`
	Method    string    `json:"method"`
	CreatedAt time.Time `json:"created_at"`
}

// TimelineEvent — запись аудита жизненного цикла счёта.
type TimelineEvent struct {
	Type       string    `json:"type"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CreateInvoiceItem — позиция в запросе на создание счёта.
type CreateInvoiceItem struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	UnitPrice   string `json:"unit_price"`
	Qty         int32  `json:"qty"`
}

// CreateInvoiceRequest — продажа. InitialPayment "" или "0" означает продажу в долг.
type CreateInvoiceRequest struct {
	ShopID         string              `json:"shop_id"`
	CustomerID     string              `json:"customer_id,omitempty"`
	CustomerName   string              `json:"customer_name,omitempty"`
	CustomerPhone  string              `json:"customer_phone,omitempty"`
	Items          []CreateInvoiceItem `json:"items"`
	Discount       string              `json:"discount,omitempty"`
	Tax            string              `json:"tax,omitempty"`
	InitialPayment string              `json:"initial_payment,omitempty"`
}

type CreateInvoiceResponse struct {
	Invoice *Invoice `json:"invoice"`
	Payment *Payment `json:"payment,omitempty"`
}

type RecordPaymentRequest struct {
	ShopID    string `json:"shop_id"`
	InvoiceID string `json:"invoice_id"`
	Amount    string `json:"amount"`
}

type RecordPaymentResponse struct {
	Payment *Payment `json:"payment"`
	Invoice *Invoice `json:"invoice"`
}

type GetInvoiceRequest struct {
	ShopID    string `json:"shop_id"`
	InvoiceID string `json:"invoice_id"`
}

type GetInvoiceResponse struct {
	Invoice  *Invoice        `json:"invoice"`
	Payments []Payment       `json:"payments,omitempty"`
	Timeline []TimelineEvent `json:"timeline,omitempty"`
}

type ListInvoicesRequest struct {
	ShopID   string `json:"shop_id"`
	PageSize int32  `json:"page_size,omitempty"`
}

type ListInvoicesResponse struct {
	Invoices []Invoice `json:"invoices"`
}

type ReconcileInvoiceRequest struct {
	ShopID    string `json:"shop_id"`
	InvoiceID string `json:"invoice_id"`
}

type ReconcileInvoiceResponse struct {
	Invoice *Invoice `json:"invoice"`
}

type CancelInvoiceRequest struct {
	ShopID    string `json:"shop_id"`
	InvoiceID string `json:"invoice_id"`
	Reason    string `json:"reason,omitempty"`
}

type CancelInvoiceResponse struct {
	Invoice *Invoice `json:"invoice"`
}

type GetTimelineRequest struct {
	ShopID    string `json:"shop_id"`
	InvoiceID string `json:"invoice_id"`
}

type GetTimelineResponse struct {
	Events []TimelineEvent `json:"events"`
}

// StockDiscrepancy — расхождение остатка, ожидающее ручной сверки.
type StockDiscrepancy struct {
	ID         string    `json:"id"`
	ShopID     string    `json:"shop_id"`
	InvoiceID  string    `json:"invoice_id,omitempty"`
	ProductID  string    `json:"product_id"`
	Qty        int32     `json:"qty"`
	Kind       string    `json:"kind"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type ListStockDiscrepanciesRequest struct {
	ShopID   string `json:"shop_id"`
	PageSize int32  `json:"page_size,omitempty"`
}

type ListStockDiscrepanciesResponse struct {
	Discrepancies []StockDiscrepancy `json:"discrepancies"`
}

type ResolveStockDiscrepancyRequest struct {
	ShopID        string `json:"shop_id"`
	DiscrepancyID string `json:"discrepancy_id"`
}

type ResolveStockDiscrepancyResponse struct{}
