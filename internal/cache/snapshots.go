package cache

import (
	"context"
	"log/slog"

	"github.com/SAP-F-2025/inventory-import-service/internal/models"
	"github.com/SAP-F-2025/inventory-import-service/internal/queue"
)

// JobSnapshots mirrors committed job states into the trabajos namespace. The
// snapshot is the serializer's primitive record so a cached job passes the
// same integrity checks as one read from the queue.
type JobSnapshots struct {
	cache      CacheService
	serializer *queue.Serializer
	logger     *slog.Logger
}

var _ queue.JobMirror = (*JobSnapshots)(nil)

func NewJobSnapshots(cache CacheService, serializer *queue.Serializer, logger *slog.Logger) *JobSnapshots {
	return &JobSnapshots{
		cache:      cache,
		serializer: serializer,
		logger:     logger.With("component", "job_snapshots"),
	}
}

// MirrorJob stores the job's snapshot. A terminal snapshot is never replaced
// by a non terminal one, so a late mirror of a stale read cannot move a
// finished job backwards.
func (s *JobSnapshots) MirrorJob(ctx context.Context, job *models.Job) {
	if !job.IsTerminal() {
		if cached, ok := s.Lookup(ctx, job.ID); ok && cached.IsTerminal() {
			s.logger.Debug("Keeping terminal job snapshot", "job_id", job.ID, "state", cached.State, "stale_state", job.State)
			return
		}
	}

	record, err := s.serializer.Serialize(job)
	if err != nil {
		s.logger.Warn("Skipping job snapshot", "job_id", job.ID, "error", err)
		return
	}
	_ = s.cache.Set(ctx, JobKey(job.ID), record)

	if job.IsTerminal() {
		_ = s.cache.Delete(ctx, TenantStatsKey(job.TenantID))
	}
}

func (s *JobSnapshots) ForgetJob(ctx context.Context, jobID string) {
	_ = s.cache.Delete(ctx, JobKey(jobID))
}

// Lookup returns the cached snapshot. A snapshot that fails integrity
// validation is dropped and reported as a miss.
func (s *JobSnapshots) Lookup(ctx context.Context, jobID string) (*models.Job, bool) {
	var record queue.PrimitiveRecord
	if err := s.cache.Get(ctx, JobKey(jobID), &record); err != nil {
		return nil, false
	}
	job, err := s.serializer.Deserialize(record)
	if err != nil || job.ID != jobID || !s.serializer.ValidateIntegrity(job) {
		s.logger.Warn("Dropping invalid job snapshot", "job_id", jobID)
		s.ForgetJob(ctx, jobID)
		return nil, false
	}
	return job, true
}
