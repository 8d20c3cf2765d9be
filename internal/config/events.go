package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/SAP-F-2025/inventory-import-service/internal/events"
)

// EventConfig holds configuration for event publishing
type EventConfig struct {
	Enabled       bool
	Publisher     string // kafka, gochannel or mock
	KafkaBrokers  string
	ImportTopic   string
	ConsumerGroup string
}

// GetKafkaBrokers returns Kafka brokers as a slice
func (c *EventConfig) GetKafkaBrokers() []string {
	var brokers []string
	for _, broker := range strings.Split(c.KafkaBrokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// CreateEventPublisher creates an event publisher based on configuration
func (c *EventConfig) CreateEventPublisher(logger *slog.Logger) (events.EventPublisher, error) {
	if !c.Enabled {
		logger.Info("Event publishing disabled, using mock publisher")
		return events.NewMockEventPublisher(logger), nil
	}

	publisherConfig := events.PublisherConfig{
		KafkaBrokers: c.GetKafkaBrokers(),
		TopicName:    c.ImportTopic,
		Logger:       logger,
	}

	switch c.Publisher {
	case "kafka":
		logger.Info("Creating Kafka event publisher",
			"brokers", c.KafkaBrokers,
			"topic", c.ImportTopic)
		return events.NewKafkaEventPublisher(publisherConfig)
	case "gochannel":
		logger.Info("Creating in-process event publisher", "topic", c.ImportTopic)
		publisher, _ := events.NewGoChannelEventPublisher(publisherConfig)
		return publisher, nil
	case "mock":
		logger.Info("Using mock event publisher")
		return events.NewMockEventPublisher(logger), nil
	default:
		logger.Warn("Unknown event publisher type, falling back to mock", "publisher", c.Publisher)
		return events.NewMockEventPublisher(logger), nil
	}
}

// CreateEventConsumer joins the consumer group on the Kafka import topic.
func (c *EventConfig) CreateEventConsumer(logger *slog.Logger) (*events.Consumer, error) {
	if !c.Enabled || c.Publisher != "kafka" {
		return nil, fmt.Errorf("event consumer requires EVENTS_ENABLED=true and EVENTS_PUBLISHER=kafka, got publisher %q", c.Publisher)
	}

	logger.Info("Creating Kafka event consumer",
		"brokers", c.KafkaBrokers,
		"topic", c.ImportTopic,
		"group", c.ConsumerGroup)

	return events.NewKafkaConsumer(events.ConsumerConfig{
		KafkaBrokers:  c.GetKafkaBrokers(),
		TopicName:     c.ImportTopic,
		ConsumerGroup: c.ConsumerGroup,
		Logger:        logger,
	})
}
