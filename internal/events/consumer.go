package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
)

// ImportEventHandler reacts to one import event. Returning an error nacks the
// message so the subscriber delivers it again.
type ImportEventHandler func(ctx context.Context, event *ImportEvent) error

// Consumer reads import events from a topic. The notification service runs
// one of these; cmd/import-events uses it to tail the topic.
type Consumer struct {
	subscriber message.Subscriber
	topicName  string
	logger     *slog.Logger
}

// ConsumerConfig holds configuration for a Kafka consumer
type ConsumerConfig struct {
	KafkaBrokers  []string
	TopicName     string
	ConsumerGroup string
	Logger        *slog.Logger
}

// NewKafkaConsumer creates a consumer group member on the import topic
func NewKafkaConsumer(config ConsumerConfig) (*Consumer, error) {
	subscriber, err := kafka.NewSubscriber(kafka.SubscriberConfig{
		Brokers:               config.KafkaBrokers,
		Unmarshaler:           kafka.DefaultMarshaler{},
		OverwriteSaramaConfig: kafka.DefaultSaramaSubscriberConfig(),
		ConsumerGroup:         config.ConsumerGroup,
	}, watermill.NewSlogLogger(config.Logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka subscriber: %w", err)
	}

	return NewConsumer(subscriber, config.TopicName, config.Logger), nil
}

func NewConsumer(subscriber message.Subscriber, topicName string, logger *slog.Logger) *Consumer {
	return &Consumer{
		subscriber: subscriber,
		topicName:  topicName,
		logger:     logger.With("topic", topicName),
	}
}

// Run delivers events to handler until ctx is cancelled or the subscription
// closes. Payloads that cannot be decoded are acked and dropped.
func (c *Consumer) Run(ctx context.Context, handler ImportEventHandler) error {
	messages, err := c.subscriber.Subscribe(ctx, c.topicName)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.topicName, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			c.handle(msg, handler)
		}
	}
}

func (c *Consumer) handle(msg *message.Message, handler ImportEventHandler) {
	var event ImportEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		c.logger.Warn("Dropping undecodable import event",
			"message_uuid", msg.UUID,
			"error", err)
		msg.Ack()
		return
	}

	if err := handler(msg.Context(), &event); err != nil {
		c.logger.Error("Import event handler failed",
			"event_id", event.ID,
			"event_type", event.Type,
			"job_id", event.Data.JobID,
			"error", err)
		msg.Nack()
		return
	}
	msg.Ack()
}

// Close closes the underlying subscriber
func (c *Consumer) Close() error {
	return c.subscriber.Close()
}
