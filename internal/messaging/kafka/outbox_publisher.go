package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в Kafka, выбирая topic по типу события.
type OutboxTopicPublisher struct {
	producer      *Producer
	fallbackTopic string
	// fixed отключает маршрутизацию: все сообщения уходят в fallbackTopic (DLQ).
	fixed bool
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
// fallbackTopic используется для событий с неизвестным префиксом.
func NewOutboxPublisher(producer *Producer, fallbackTopic string) domain.OutboxPublisher {
	if fallbackTopic == "" {
		fallbackTopic = TopicInvoiceEvents
	}
	return &OutboxTopicPublisher{
		producer:      producer,
		fallbackTopic: fallbackTopic,
	}
}

// NewDLQPublisher создаёт паблишер, который пишет все сообщения в DLQ topic.
func NewDLQPublisher(producer *Producer) domain.OutboxPublisher {
	return &OutboxTopicPublisher{
		producer:      producer,
		fallbackTopic: TopicDeadLetterQueue,
		fixed:         true,
	}
}

// Publish оборачивает сообщение в OutboxEnvelope. Ключ партиционирования равен ID счёта,
// поэтому события одного счёта сохраняют порядок внутри topic.
func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	envelope := OutboxEnvelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishedAt:   time.Now().UTC(),
	}

	topic := p.fallbackTopic
	if !p.fixed {
		topic = TopicForEvent(event.EventType, p.fallbackTopic)
	}

	return p.producer.PublishEvent(
		topic,
		key,
		envelope,
		sarama.RecordHeader{Key: []byte(HeaderEventType), Value: []byte(event.EventType)},
	)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
