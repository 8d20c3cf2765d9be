package services

import (
	"context"

	"github.com/SAP-F-2025/inventory-import-service/internal/models"
	"github.com/SAP-F-2025/inventory-import-service/internal/queue"
)

// ImportService is the entry point used by the HTTP adapter.
type ImportService interface {
	Enqueue(ctx context.Context, req *EnqueueRequest) (*EnqueueResponse, error)
	GetStatus(ctx context.Context, jobID string) (*models.Job, error)
	Cancel(ctx context.Context, jobID string) (bool, error)
	ListByTenant(ctx context.Context, tenantID uint, limit, offset int) ([]*models.Job, error)
	PurgeOlderThan(ctx context.Context, days int) int

	DetectType(ctx context.Context, columns []string) ([]models.TypeDetectionResult, error)
	ValidateFile(ctx context.Context, sourceFileRef string, importType string) (*models.FileValidationResult, error)
	TemplateInfo(ctx context.Context, importType string) (*models.TemplateInfo, error)
	Stats(ctx context.Context, tenantID uint) (*models.ImportStats, error)
	Counts(ctx context.Context) (queue.Counts, error)
}

// JobQueue is the part of the queue the service drives. Workers use the
// consumer side directly.
type JobQueue interface {
	Enqueue(ctx context.Context, job *models.Job) (string, error)
	Cancel(ctx context.Context, id string) (*models.Job, bool, error)
	Get(ctx context.Context, id string) (*models.Job, error)
	ListByTenant(ctx context.Context, tenantID uint, limit, offset int) ([]*models.Job, error)
	PurgeOlderThan(ctx context.Context, days int) int
	Counts(ctx context.Context) (queue.Counts, error)
}

// JobSnapshotStore is the cache mirror of job states.
type JobSnapshotStore interface {
	Lookup(ctx context.Context, jobID string) (*models.Job, bool)
	MirrorJob(ctx context.Context, job *models.Job)
}

// ===== REQUEST/RESPONSE TYPES =====

type EnqueueRequest struct {
	// JobID is an optional idempotency key. Enqueueing the same id twice
	// returns the first job.
	JobID         string            `json:"job_id,omitempty" validate:"omitempty,max=64"`
	ImportType    string            `json:"import_type" validate:"required,import_type"`
	TenantID      uint              `json:"tenant_id" validate:"required,gt=0"`
	UserID        uint              `json:"user_id" validate:"required,gt=0"`
	SourceFileRef string            `json:"source_file_ref" validate:"required,max=1024"`
	Options       models.JobOptions `json:"options"`
}

type EnqueueResponse struct {
	JobID      string                      `json:"job_id"`
	ImportType models.ImportType           `json:"import_type"`
	Existing   bool                        `json:"existing,omitempty"`
	Detection  *models.TypeDetectionResult `json:"detection,omitempty"`
}

type DetectTypeRequest struct {
	Columns []string `json:"columns" validate:"required,min=1,dive,max=256"`
}

type ValidateFileRequest struct {
	SourceFileRef string `json:"source_file_ref" validate:"required,max=1024"`
	ImportType    string `json:"import_type" validate:"required,import_type"`
}
