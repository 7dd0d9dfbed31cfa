package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

// EventType определяет тип доменного события.
type EventType string

const (
	// Invoice события
	EventTypeInvoiceCreated   EventType = "invoice.created"
	EventTypeInvoiceCancelled EventType = "invoice.cancelled"

	// Payment события
	EventTypePaymentRecorded      EventType = "payment.recorded"
	EventTypePaymentInitialFailed EventType = "payment.initial_failed"

	// Stock события
	EventTypeStockDecrementFailed EventType = "stock.decrement_failed"
	EventTypeStockBackordered     EventType = "stock.backordered"
)

// Topics для Kafka
const (
	TopicInvoiceEvents   = "pos.invoice.events"
	TopicPaymentEvents   = "pos.payment.events"
	TopicStockEvents     = "pos.stock.events"
	TopicDeadLetterQueue = "pos.dlq"
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
	HeaderEventType     = "x-event-type"
)

// TopicForEvent возвращает topic по префиксу типа события; неизвестные типы уходят в fallback.
func TopicForEvent(eventType string, fallback string) string {
	prefix, _, _ := strings.Cut(eventType, ".")
	switch prefix {
	case "invoice":
		return TopicInvoiceEvents
	case "payment":
		return TopicPaymentEvents
	case "stock":
		return TopicStockEvents
	default:
		if fallback == "" {
			return TopicInvoiceEvents
		}
		return fallback
	}
}

// OutboxEnvelope — формат сообщения, которое outbox публикует в Kafka.
type OutboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// InvoiceEventPayload — payload событий invoice.*. Суммы в десятичном виде ("150.00").
type InvoiceEventPayload struct {
	InvoiceID     string    `json:"invoice_id"`
	ShopID        string    `json:"shop_id"`
	InvoiceNumber string    `json:"invoice_number,omitempty"`
	CustomerID    string    `json:"customer_id,omitempty"`
	Total         string    `json:"total"`
	AmountPaid    string    `json:"amount_paid"`
	DueAmount     string    `json:"due_amount"`
	PaymentStatus string    `json:"payment_status"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// PaymentEventPayload — payload событий payment.*.
type PaymentEventPayload struct {
	PaymentID     string    `json:"payment_id,omitempty"`
	InvoiceID     string    `json:"invoice_id"`
	ShopID        string    `json:"shop_id"`
	Amount        string    `json:"amount"`
	Method        string    `json:"method,omitempty"`
	PaymentStatus string    `json:"payment_status,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// StockEventPayload — payload событий stock.*; потребляется сверкой остатков.
type StockEventPayload struct {
	InvoiceID  string    `json:"invoice_id"`
	ShopID     string    `json:"shop_id"`
	ProductID  string    `json:"product_id"`
	Qty        int32     `json:"qty"`
	NewStock   int64     `json:"new_stock,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ParseEnvelope парсит OutboxEnvelope из сообщения.
func ParseEnvelope(message *sarama.ConsumerMessage) (*OutboxEnvelope, error) {
	var envelope OutboxEnvelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outbox envelope: %w", err)
	}
	if envelope.EventType == "" {
		return nil, fmt.Errorf("outbox envelope without event_type")
	}
	return &envelope, nil
}

// ParseStockEvent парсит payload stock-события из конверта.
func ParseStockEvent(envelope *OutboxEnvelope) (*StockEventPayload, error) {
	if !strings.HasPrefix(envelope.EventType, "stock.") {
		return nil, fmt.Errorf("unexpected event type %q for stock payload", envelope.EventType)
	}
	var payload StockEventPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stock event: %w", err)
	}
	if payload.ShopID == "" || payload.ProductID == "" {
		return nil, fmt.Errorf("stock event without shop_id or product_id")
	}
	return &payload, nil
}
