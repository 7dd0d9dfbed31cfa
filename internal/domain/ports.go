package domain

import "time"

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла счёта.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(invoiceID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	// Begin занимает ключ под запрос. Если живая запись уже есть, она возвращается
	// вместе с ошибкой из IdempotencyRecord.Conflict. Просроченный ключ занимается заново.
	Begin(key IdempotencyKey, method, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key IdempotencyKey) (IdempotencyRecord, error)
	// Complete сохраняет успешный ответ и счёт, к которому он относится.
	Complete(key IdempotencyKey, invoiceID string, response []byte) error
	// Fail сохраняет gRPC-код и тело ошибки для повторов.
	Fail(key IdempotencyKey, code uint32, response []byte) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// WorkflowStep задаёт константы шагов для метрик/логов.
type WorkflowStep string

const (
	WorkflowStepValidate       WorkflowStep = "validate"
	WorkflowStepHeader         WorkflowStep = "header"
	WorkflowStepItems          WorkflowStep = "items"
	WorkflowStepInitialPayment WorkflowStep = "initial_payment"
	WorkflowStepStock          WorkflowStep = "stock"
	WorkflowStepRollback       WorkflowStep = "rollback"
	WorkflowStepPayment        WorkflowStep = "payment"
	WorkflowStepReconcile      WorkflowStep = "reconcile"
	WorkflowStepCancel         WorkflowStep = "cancel"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
	// Сообщения, ушедшие в DLQ после исчерпания попыток.
	FailedCount int
}
