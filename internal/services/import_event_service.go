package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/inventory-import-service/internal/events"
	"github.com/SAP-F-2025/inventory-import-service/internal/models"
	"github.com/SAP-F-2025/inventory-import-service/internal/queue"
)

// ImportEventService publishes import lifecycle events for the notification
// service, which owns the decision to e-mail the user.
type ImportEventService interface {
	NotifyImportCompleted(ctx context.Context, job *models.Job) error
	NotifyImportFailed(ctx context.Context, job *models.Job) error
	NotifyImportCancelled(ctx context.Context, job *models.Job) error

	// NotifyJobFinished picks the event from the job's terminal state.
	NotifyJobFinished(ctx context.Context, job *models.Job) error
}

type importEventService struct {
	eventPublisher events.EventPublisher
	logger         *slog.Logger
	clock          func() time.Time
}

func NewImportEventService(eventPublisher events.EventPublisher, logger *slog.Logger) ImportEventService {
	return &importEventService{
		eventPublisher: eventPublisher,
		logger:         logger,
		clock:          time.Now,
	}
}

func (s *importEventService) NotifyImportCompleted(ctx context.Context, job *models.Job) error {
	s.logger.Info("Publishing import completed event",
		"job_id", job.ID,
		"success_records", job.SuccessRecords,
		"error_records", job.ErrorRecords)
	return s.publish(ctx, events.EventImportCompleted, job)
}

func (s *importEventService) NotifyImportFailed(ctx context.Context, job *models.Job) error {
	s.logger.Info("Publishing import failed event", "job_id", job.ID)
	return s.publish(ctx, events.EventImportFailed, job)
}

func (s *importEventService) NotifyImportCancelled(ctx context.Context, job *models.Job) error {
	s.logger.Info("Publishing import cancelled event", "job_id", job.ID)
	return s.publish(ctx, events.EventImportCancelled, job)
}

func (s *importEventService) NotifyJobFinished(ctx context.Context, job *models.Job) error {
	switch {
	case job.State == models.JobCompleted:
		return s.NotifyImportCompleted(ctx, job)
	case job.State == models.JobCancelled || IsCancelled(job):
		return s.NotifyImportCancelled(ctx, job)
	case job.State == models.JobFailed:
		return s.NotifyImportFailed(ctx, job)
	default:
		s.logger.Debug("Skipping event for unfinished import", "job_id", job.ID, "state", job.State)
		return nil
	}
}

func (s *importEventService) publish(ctx context.Context, eventType events.EventType, job *models.Job) error {
	return s.eventPublisher.PublishImportEvent(ctx, events.NewImportEvent(eventType, job, s.clock()))
}

// IsCancelled reports whether a failed job was stopped by its user.
func IsCancelled(job *models.Job) bool {
	if job.State != models.JobFailed {
		return false
	}
	for _, e := range job.Errors {
		if e.Kind == models.ErrorKindSystem && e.Message == queue.CancellationMessage {
			return true
		}
	}
	return false
}
