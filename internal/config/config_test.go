package config

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/SAP-F-2025/inventory-import-service/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 2, cfg.Queue.Concurrency)
	assert.Equal(t, 3, cfg.Queue.Attempts)
	assert.Equal(t, 5*time.Second, cfg.Queue.BackoffBase)
	assert.Equal(t, 5*time.Minute, cfg.Queue.VisibilityTimeout)
	assert.Equal(t, "imports", cfg.Queue.KeyPrefix)
	assert.Equal(t, 7, cfg.Queue.RetentionDays)
	assert.Equal(t, 250*time.Millisecond, cfg.Cache.OpTimeout)
	assert.Equal(t, 70, cfg.Import.AutoDetectMinConfidence)
	assert.True(t, cfg.Events.Enabled)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("QUEUE_CONCURRENCY", "8")
	t.Setenv("QUEUE_BACKOFF_BASE", "250ms")
	t.Setenv("IMPORT_AUTO_DETECT_MIN_CONFIDENCE", "85")
	t.Setenv("EVENTS_ENABLED", "false")
	t.Setenv("ENVIRONMENT", "Production")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://admin.example.com, https://app.example.com")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Queue.Concurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.Queue.BackoffBase)
	assert.Equal(t, 85, cfg.Import.AutoDetectMinConfidence)
	assert.False(t, cfg.Events.Enabled)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []string{"https://admin.example.com", "https://app.example.com"}, cfg.AllowedOrigins)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	t.Setenv("QUEUE_CONCURRENCY", "0")
	t.Setenv("IMPORT_AUTO_DETECT_MIN_CONFIDENCE", "101")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUEUE_CONCURRENCY")
	assert.Contains(t, err.Error(), "IMPORT_AUTO_DETECT_MIN_CONFIDENCE")
}

func TestUnparseableValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("QUEUE_ATTEMPTS", "many")
	t.Setenv("QUEUE_POLL_INTERVAL", "soon")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Queue.Attempts)
	assert.Equal(t, time.Second, cfg.Queue.PollInterval)
}

func TestCreateEventPublisher(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	disabled := EventConfig{Enabled: false, Publisher: "kafka"}
	publisher, err := disabled.CreateEventPublisher(logger)
	require.NoError(t, err)
	assert.IsType(t, &events.MockEventPublisher{}, publisher)

	inProcess := EventConfig{Enabled: true, Publisher: "gochannel", ImportTopic: "imports"}
	publisher, err = inProcess.CreateEventPublisher(logger)
	require.NoError(t, err)
	assert.IsType(t, &events.WatermillEventPublisher{}, publisher)
	require.NoError(t, publisher.Close())

	unknown := EventConfig{Enabled: true, Publisher: "sqs"}
	publisher, err = unknown.CreateEventPublisher(logger)
	require.NoError(t, err)
	assert.IsType(t, &events.MockEventPublisher{}, publisher)
}

func TestCreateEventConsumerRequiresKafka(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := EventConfig{Enabled: true, Publisher: "mock"}
	_, err := cfg.CreateEventConsumer(logger)
	assert.Error(t, err)
}

func TestGetKafkaBrokers(t *testing.T) {
	cfg := EventConfig{KafkaBrokers: "kafka-1:9092, kafka-2:9092,"}
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.GetKafkaBrokers())
}
