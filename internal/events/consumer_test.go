package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SAP-F-2025/inventory-import-service/internal/models"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func persistentPubSub(t *testing.T) *gochannel.GoChannel {
	t.Helper()
	pubSub := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, watermill.NewSlogLogger(testLogger()))
	t.Cleanup(func() { pubSub.Close() })
	return pubSub
}

type eventRecorder struct {
	mu     sync.Mutex
	events []ImportEvent
	fail   int
}

func (r *eventRecorder) handle(_ context.Context, event *ImportEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail > 0 {
		r.fail--
		return errors.New("notification backend unavailable")
	}
	r.events = append(r.events, *event)
	return nil
}

func (r *eventRecorder) received() []ImportEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ImportEvent(nil), r.events...)
}

func TestConsumerDecodesPublishedEvents(t *testing.T) {
	pubSub := persistentPubSub(t)
	publisher := NewWatermillEventPublisher(pubSub, "imports", testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	completed := NewImportEvent(EventImportCompleted, finishedJob(models.JobCompleted), time.Now())
	require.NoError(t, publisher.PublishImportEvent(ctx, completed))
	// A payload that is not an import event is skipped.
	require.NoError(t, pubSub.Publish("imports", message.NewMessage(watermill.NewUUID(), []byte("{"))))
	failed := NewImportEvent(EventImportFailed, finishedJob(models.JobFailed), time.Now())
	require.NoError(t, publisher.PublishImportEvent(ctx, failed))

	recorder := &eventRecorder{}
	consumer := NewConsumer(pubSub, "imports", testLogger())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx, recorder.handle) }()

	require.Eventually(t, func() bool { return len(recorder.received()) == 2 }, 3*time.Second, 10*time.Millisecond)
	got := recorder.received()
	assert.Equal(t, completed.ID, got[0].ID)
	assert.Equal(t, EventImportFailed, got[1].Type)
	assert.Equal(t, failed.Data.JobID, got[1].Data.JobID)

	cancel()
	assert.NoError(t, <-done)
}

func TestConsumerRedeliversWhenHandlerFails(t *testing.T) {
	pubSub := persistentPubSub(t)
	publisher := NewWatermillEventPublisher(pubSub, "imports", testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	event := NewImportEvent(EventImportCancelled, finishedJob(models.JobFailed), time.Now())
	require.NoError(t, publisher.PublishImportEvent(ctx, event))

	recorder := &eventRecorder{fail: 1}
	consumer := NewConsumer(pubSub, "imports", testLogger())
	go func() { _ = consumer.Run(ctx, recorder.handle) }()

	require.Eventually(t, func() bool { return len(recorder.received()) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, event.ID, recorder.received()[0].ID)
}
