package events

import (
	"time"

	"github.com/SAP-F-2025/inventory-import-service/internal/models"
	"github.com/google/uuid"
)

// EventType represents the lifecycle events of an import job
type EventType string

const (
	EventImportCompleted EventType = "import.completed"
	EventImportFailed    EventType = "import.failed"
	EventImportCancelled EventType = "import.cancelled"
)

const (
	EventSource  = "inventory-import-service"
	EventVersion = "1.0"
)

// ImportEvent is the envelope published for every finished import
type ImportEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      ImportFinishedPayload  `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// ImportFinishedPayload carries what the notification service needs to
// decide whether and how to tell the user.
type ImportFinishedPayload struct {
	JobID            string            `json:"job_id"`
	ImportType       models.ImportType `json:"import_type"`
	TenantID         uint              `json:"tenant_id"`
	UserID           uint              `json:"user_id"`
	State            models.JobState   `json:"state"`
	TotalRecords     int               `json:"total_records"`
	ProcessedRecords int               `json:"processed_records"`
	SuccessRecords   int               `json:"success_records"`
	ErrorRecords     int               `json:"error_records"`
	PartialErrors    bool              `json:"partial_errors"`
	ErrorReportRef   string            `json:"error_report_ref,omitempty"`
	Reason           string            `json:"reason,omitempty"`
	NotifyEmail      bool              `json:"notify_email"`
	ValidateOnly     bool              `json:"validate_only"`
	FinishedAt       *time.Time        `json:"finished_at,omitempty"`
}

// NewImportEvent builds the event of the given type from a finished job.
func NewImportEvent(eventType EventType, job *models.Job, at time.Time) *ImportEvent {
	payload := ImportFinishedPayload{
		JobID:            job.ID,
		ImportType:       job.ImportType,
		TenantID:         job.TenantID,
		UserID:           job.UserID,
		State:            job.State,
		TotalRecords:     job.TotalRecords,
		ProcessedRecords: job.ProcessedRecords,
		SuccessRecords:   job.SuccessRecords,
		ErrorRecords:     job.ErrorRecords,
		PartialErrors:    job.HasPartialErrors(),
		ErrorReportRef:   job.ErrorReportRef,
		NotifyEmail:      job.Options.NotifyEmail,
		ValidateOnly:     job.Options.ValidateOnly,
		FinishedAt:       job.FinishedAt,
	}
	if eventType != EventImportCompleted {
		payload.Reason = lastSystemError(job)
	}

	return &ImportEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: at.UTC(),
		Source:    EventSource,
		Version:   EventVersion,
		Data:      payload,
		Metadata: map[string]interface{}{
			"tenant_id": job.TenantID,
		},
	}
}

func lastSystemError(job *models.Job) string {
	for i := len(job.Errors) - 1; i >= 0; i-- {
		if job.Errors[i].Kind == models.ErrorKindSystem || job.Errors[i].Row == 0 {
			return job.Errors[i].Message
		}
	}
	return ""
}
