package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"learnhub/internal/domain/entity"
	"learnhub/internal/domain/service"
	"learnhub/pkg/errors"
	"learnhub/pkg/logger"
)

const EventMessageSent = "message.sent"

// MessageSentEvent is the record written for every persisted message.
// Consumers such as push notifications use Participants to fan out.
type MessageSentEvent struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversationId"`
	Kind           string          `json:"kind"`
	Participants   []string        `json:"participants"`
	Message        *entity.Message `json:"message"`
	OccurredAt     time.Time       `json:"occurredAt"`
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher writes asynchronously and keys records by conversation id,
// so one conversation's events stay ordered within a partition.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("Kafka: failed to deliver %d event(s) to %s: %v", len(messages), topic, err)
			}
		},
	}
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) PublishMessageSent(ctx context.Context, conv *entity.Conversation, msg *entity.Message) error {
	record, err := messageSentRecord(conv, msg)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, record); err != nil {
		return errors.Internal("Failed to publish message event", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func messageSentRecord(conv *entity.Conversation, msg *entity.Message) (kafka.Message, error) {
	value, err := json.Marshal(MessageSentEvent{
		Type:           EventMessageSent,
		ConversationID: conv.ID,
		Kind:           string(conv.Kind),
		Participants:   conv.Participants,
		Message:        msg,
		OccurredAt:     msg.CreatedAt,
	})
	if err != nil {
		return kafka.Message{}, errors.Internal("Failed to encode message event", err)
	}
	return kafka.Message{
		Key:   []byte(conv.ID),
		Value: value,
		Time:  msg.CreatedAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(EventMessageSent)},
		},
	}, nil
}

type noopPublisher struct{}

// NewNoopPublisher is used when no brokers are configured.
func NewNoopPublisher() service.EventPublisher {
	return noopPublisher{}
}

func (noopPublisher) PublishMessageSent(ctx context.Context, conv *entity.Conversation, msg *entity.Message) error {
	return nil
}

func (noopPublisher) Close() error { return nil }
