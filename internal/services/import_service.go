package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/inventory-import-service/internal/cache"
	"github.com/SAP-F-2025/inventory-import-service/internal/models"
	"github.com/SAP-F-2025/inventory-import-service/internal/processors"
	"github.com/SAP-F-2025/inventory-import-service/internal/queue"
	"github.com/SAP-F-2025/inventory-import-service/internal/schema"
	"github.com/SAP-F-2025/inventory-import-service/internal/spreadsheet"
	"github.com/SAP-F-2025/inventory-import-service/internal/validator"
)

type ImportServiceConfig struct {
	// AutoDetectMinConfidence is the score an auto detected type must reach.
	AutoDetectMinConfidence int
	DefaultPageSize         int
	MaxPageSize             int
}

func DefaultImportServiceConfig() ImportServiceConfig {
	return ImportServiceConfig{
		AutoDetectMinConfidence: 70,
		DefaultPageSize:         20,
		MaxPageSize:             100,
	}
}

type importService struct {
	queue     JobQueue
	snapshots JobSnapshotStore
	cache     cache.CacheService
	registry  *processors.Registry
	reader    spreadsheet.Reader
	detector  *TypeDetector
	events    ImportEventService
	validator *validator.Validator
	logger    *slog.Logger
	ops       *ServiceLogger
	config    ImportServiceConfig
	clock     func() time.Time
}

type ImportServiceDeps struct {
	Queue     JobQueue
	Snapshots JobSnapshotStore
	Cache     cache.CacheService
	Registry  *processors.Registry
	Reader    spreadsheet.Reader
	Events    ImportEventService
	Validator *validator.Validator
	Logger    *slog.Logger
}

func NewImportService(deps ImportServiceDeps, config ImportServiceConfig) ImportService {
	return &importService{
		queue:     deps.Queue,
		snapshots: deps.Snapshots,
		cache:     deps.Cache,
		registry:  deps.Registry,
		reader:    deps.Reader,
		detector:  NewTypeDetector(),
		events:    deps.Events,
		validator: deps.Validator,
		logger:    deps.Logger,
		ops:       NewServiceLogger(deps.Logger, "import_service"),
		config:    config,
		clock:     time.Now,
	}
}

// ===== JOB LIFECYCLE =====

func (s *importService) Enqueue(ctx context.Context, req *EnqueueRequest) (resp *EnqueueResponse, err error) {
	op := s.ops.Start(ctx, "enqueue_import", req.TenantID)
	defer func() {
		id := ""
		if resp != nil {
			id = resp.JobID
		}
		op.Finish(id, err)
	}()

	if err := s.validator.ValidateStruct(req); err != nil {
		return nil, err
	}

	importType, err := models.ParseImportType(req.ImportType)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImportType, req.ImportType)
	}

	resp = &EnqueueResponse{}
	if importType == models.ImportTypeAuto {
		detected, err := s.detectFromFile(ctx, req.SourceFileRef)
		if err != nil {
			return nil, err
		}
		importType = detected.ImportType
		resp.Detection = detected
	}
	if _, ok := s.registry.Get(importType); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImportType, importType)
	}

	job := &models.Job{
		ID:            req.JobID,
		ImportType:    importType,
		TenantID:      req.TenantID,
		UserID:        req.UserID,
		SourceFileRef: req.SourceFileRef,
		Options:       req.Options,
		State:         models.JobPending,
	}

	id, err := s.queue.Enqueue(ctx, job)
	if errors.Is(err, queue.ErrJobExists) {
		s.logger.Info("Import job already enqueued", "job_id", id)
		existing, getErr := s.queue.Get(ctx, id)
		if getErr != nil {
			return nil, fmt.Errorf("failed to load existing import job: %w", getErr)
		}
		return &EnqueueResponse{JobID: id, ImportType: existing.ImportType, Existing: true}, nil
	}
	if err != nil {
		return nil, err
	}

	resp.JobID = id
	resp.ImportType = importType
	op.Audit(AuditJobEnqueued, req.UserID, id,
		slog.String("import_type", string(importType)),
		slog.String("source_file_ref", req.SourceFileRef))
	return resp, nil
}

// detectFromFile resolves an auto request to the best scoring import type.
func (s *importService) detectFromFile(ctx context.Context, ref string) (*models.TypeDetectionResult, error) {
	sheet, err := s.reader.Read(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceFileUnreadable, err)
	}
	results := s.detector.Detect(sheet.Headers)
	best, ok := BestMatch(results, s.config.AutoDetectMinConfidence)
	if !ok {
		return nil, NewBusinessRuleError("import_type_detection", ErrTypeNotDetected.Error(), map[string]interface{}{
			"best_type":        best.ImportType,
			"confidence":       best.Confidence,
			"min_confidence":   s.config.AutoDetectMinConfidence,
			"missing_required": best.MissingRequiredColumns,
		})
	}
	s.logger.Info("Detected import type", "source_file_ref", ref, "import_type", best.ImportType, "confidence", best.Confidence)
	return &best, nil
}

// GetStatus answers from the cached snapshot only when it is terminal. Any
// other state may already be stale, so the queue record is read and mirrored
// again.
func (s *importService) GetStatus(ctx context.Context, jobID string) (*models.Job, error) {
	if job, ok := s.snapshots.Lookup(ctx, jobID); ok && job.IsTerminal() {
		return job, nil
	}

	job, err := s.queue.Get(ctx, jobID)
	if errors.Is(err, queue.ErrJobNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read import job: %w", err)
	}
	s.snapshots.MirrorJob(ctx, job)
	return job, nil
}

func (s *importService) Cancel(ctx context.Context, jobID string) (cancelled bool, err error) {
	op := s.ops.Start(ctx, "cancel_import", 0)
	defer func() { op.Finish(jobID, err) }()

	job, cancelled, err := s.queue.Cancel(ctx, jobID)
	if err != nil {
		return false, err
	}
	if !cancelled {
		return false, nil
	}

	op.Audit(AuditJobCancelled, job.UserID, jobID, slog.Uint64("tenant_id", uint64(job.TenantID)))
	if err := s.events.NotifyImportCancelled(ctx, job); err != nil {
		s.logger.Error("Failed to publish import cancelled event", "job_id", jobID, "error", err)
	}
	return true, nil
}

func (s *importService) ListByTenant(ctx context.Context, tenantID uint, limit, offset int) ([]*models.Job, error) {
	if tenantID == 0 {
		return nil, NewValidationError("tenant_id", "must be greater than zero", tenantID)
	}
	if limit <= 0 {
		limit = s.config.DefaultPageSize
	}
	if s.config.MaxPageSize > 0 && limit > s.config.MaxPageSize {
		limit = s.config.MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.queue.ListByTenant(ctx, tenantID, limit, offset)
}

func (s *importService) PurgeOlderThan(ctx context.Context, days int) int {
	removed := s.queue.PurgeOlderThan(ctx, days)
	s.logger.Info("Purged finished import jobs", "older_than_days", days, "removed", removed)
	return removed
}

// ===== FILE INSPECTION =====

func (s *importService) DetectType(ctx context.Context, columns []string) ([]models.TypeDetectionResult, error) {
	req := &DetectTypeRequest{Columns: columns}
	if err := s.validator.ValidateStruct(req); err != nil {
		return nil, err
	}
	return s.detector.Detect(columns), nil
}

// ValidateFile runs detection and the structure check without enqueueing.
// Results are cached by content hash, so a re-uploaded file under a new name
// is not parsed again.
func (s *importService) ValidateFile(ctx context.Context, sourceFileRef string, importType string) (*models.FileValidationResult, error) {
	req := &ValidateFileRequest{SourceFileRef: sourceFileRef, ImportType: importType}
	if err := s.validator.ValidateStruct(req); err != nil {
		return nil, err
	}
	requested, err := models.ParseImportType(importType)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImportType, importType)
	}

	hash, err := s.reader.Fingerprint(ctx, sourceFileRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceFileUnreadable, err)
	}
	key := cache.ValidationKey(hash + ":" + string(requested))

	var cached models.FileValidationResult
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	sheet, err := s.reader.Read(ctx, sourceFileRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceFileUnreadable, err)
	}

	result := &models.FileValidationResult{
		ContentHash:     hash,
		Detection:       s.detector.Detect(sheet.Headers),
		StructureErrors: []models.RowError{},
		TotalRecords:    len(sheet.Rows),
	}

	resolved := requested
	if requested == models.ImportTypeAuto {
		best, ok := BestMatch(result.Detection, s.config.AutoDetectMinConfidence)
		if ok {
			resolved = best.ImportType
		} else {
			resolved = ""
			result.StructureErrors = append(result.StructureErrors, models.SystemError(ErrTypeNotDetected.Error()))
		}
	}
	if resolved != "" {
		processor, ok := s.registry.Get(resolved)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedImportType, resolved)
		}
		result.ImportType = resolved
		result.StructureErrors = append(result.StructureErrors, processor.ValidateFileStructure(sheet)...)
	}
	result.Valid = len(result.StructureErrors) == 0

	_ = s.cache.Set(ctx, key, result)
	return result, nil
}

func (s *importService) TemplateInfo(ctx context.Context, importType string) (*models.TemplateInfo, error) {
	t, err := models.ParseImportType(importType)
	if err != nil || !t.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImportType, importType)
	}

	var cached models.TemplateInfo
	if err := s.cache.Get(ctx, cache.TemplateKey(t), &cached); err == nil {
		return &cached, nil
	}

	processor, ok := s.registry.Get(t)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImportType, t)
	}
	info := &models.TemplateInfo{
		ImportType: t,
		ChunkSize:  processor.ChunkSize(),
		Columns:    schema.Template(processor.Columns()),
	}
	_ = s.cache.Set(ctx, cache.TemplateKey(t), info)
	return info, nil
}

// Stats aggregates every job of a tenant. Cancelled jobs are stored as
// failed but are counted under their own state here.
func (s *importService) Stats(ctx context.Context, tenantID uint) (*models.ImportStats, error) {
	if tenantID == 0 {
		return nil, NewValidationError("tenant_id", "must be greater than zero", tenantID)
	}

	var cached models.ImportStats
	if err := s.cache.Get(ctx, cache.TenantStatsKey(tenantID), &cached); err == nil {
		return &cached, nil
	}

	jobs, err := s.queue.ListByTenant(ctx, tenantID, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list import jobs: %w", err)
	}

	stats := &models.ImportStats{
		TenantID:    tenantID,
		TotalJobs:   len(jobs),
		ByState:     make(map[models.JobState]int),
		GeneratedAt: s.clock().UTC(),
	}
	for _, job := range jobs {
		state := job.State
		if IsCancelled(job) {
			state = models.JobCancelled
		}
		stats.ByState[state]++
		stats.TotalRecords += job.TotalRecords
		stats.SuccessRecords += job.SuccessRecords
		stats.ErrorRecords += job.ErrorRecords
	}

	_ = s.cache.Set(ctx, cache.TenantStatsKey(tenantID), stats)
	return stats, nil
}

func (s *importService) Counts(ctx context.Context) (queue.Counts, error) {
	return s.queue.Counts(ctx)
}
