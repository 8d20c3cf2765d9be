// Package worker runs the import jobs held by the queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/SAP-F-2025/inventory-import-service/internal/models"
	"github.com/SAP-F-2025/inventory-import-service/internal/processors"
	"github.com/SAP-F-2025/inventory-import-service/internal/queue"
	"golang.org/x/sync/errgroup"
)

// JobQueue is the consumer side of the queue.
type JobQueue interface {
	Claim(ctx context.Context) (*queue.Lease, error)
	SaveProgress(ctx context.Context, lease *queue.Lease) error
	Complete(ctx context.Context, lease *queue.Lease) (*models.Job, error)
	Fail(ctx context.Context, lease *queue.Lease, rowErrors []models.RowError) (*models.Job, error)
	Retry(ctx context.Context, lease *queue.Lease, cause error) (*models.Job, error)
	Release(ctx context.Context, lease *queue.Lease) error

	PromoteDelayed(ctx context.Context) (int, error)
	RequeueExpired(ctx context.Context) (int, error)
	PurgeOlderThan(ctx context.Context, days int) int
}

// JobProcessor runs one job; *processors.BatchProcessor in production.
type JobProcessor interface {
	Process(ctx context.Context, job *models.Job, checkpoint processors.Checkpoint) error
}

// JobNotifier is told about every job this pool moves to a terminal state.
type JobNotifier interface {
	NotifyJobFinished(ctx context.Context, job *models.Job) error
}

type Config struct {
	Concurrency         int
	PollInterval        time.Duration
	MaintenanceInterval time.Duration
	PurgeInterval       time.Duration
	RetentionDays       int
}

func DefaultConfig() Config {
	return Config{
		Concurrency:         2,
		PollInterval:        time.Second,
		MaintenanceInterval: 5 * time.Second,
		PurgeInterval:       24 * time.Hour,
		RetentionDays:       7,
	}
}

// Pool is a fixed set of workers pulling from the queue, plus one loop doing
// queue maintenance. Each worker holds at most one job at a time.
type Pool struct {
	queue     JobQueue
	processor JobProcessor
	notifier  JobNotifier
	config    Config
	logger    *slog.Logger
}

func NewPool(q JobQueue, processor JobProcessor, notifier JobNotifier, config Config, logger *slog.Logger) *Pool {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	return &Pool{
		queue:     q,
		processor: processor,
		notifier:  notifier,
		config:    config,
		logger:    logger.With("component", "worker_pool"),
	}
}

// Run blocks until ctx is cancelled. Jobs in flight at that point are
// released back to the queue.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("Worker pool started",
		"concurrency", p.config.Concurrency,
		"poll_interval", p.config.PollInterval)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.config.Concurrency; i++ {
		worker := i + 1
		g.Go(func() error {
			p.work(ctx, worker)
			return nil
		})
	}
	g.Go(func() error {
		p.maintain(ctx)
		return nil
	})

	err := g.Wait()
	p.logger.Info("Worker pool stopped")
	return err
}

func (p *Pool) work(ctx context.Context, worker int) {
	log := p.logger.With("worker", worker)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		processed, err := p.ProcessNext(ctx)
		if err != nil && ctx.Err() == nil {
			log.Error("Failed to pull import job", "error", err)
		}
		if processed {
			timer.Reset(0)
		} else {
			timer.Reset(p.config.PollInterval)
		}
	}
}

func (p *Pool) maintain(ctx context.Context) {
	if p.config.MaintenanceInterval <= 0 {
		return
	}
	maintenance := time.NewTicker(p.config.MaintenanceInterval)
	defer maintenance.Stop()

	var purge <-chan time.Time
	if p.config.PurgeInterval > 0 && p.config.RetentionDays > 0 {
		ticker := time.NewTicker(p.config.PurgeInterval)
		defer ticker.Stop()
		purge = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-maintenance.C:
			p.RunMaintenance(ctx)
		case <-purge:
			removed := p.queue.PurgeOlderThan(ctx, p.config.RetentionDays)
			p.logger.Info("Purged finished import jobs", "removed", removed, "retention_days", p.config.RetentionDays)
		}
	}
}

// RunMaintenance promotes retries whose backoff elapsed and requeues jobs
// whose lease expired.
func (p *Pool) RunMaintenance(ctx context.Context) {
	if promoted, err := p.queue.PromoteDelayed(ctx); err != nil {
		p.logger.Warn("Failed to promote delayed import jobs", "error", err)
	} else if promoted > 0 {
		p.logger.Info("Promoted delayed import jobs", "count", promoted)
	}

	if requeued, err := p.queue.RequeueExpired(ctx); err != nil {
		p.logger.Warn("Failed to requeue expired import jobs", "error", err)
	} else if requeued > 0 {
		p.logger.Warn("Requeued import jobs with expired leases", "count", requeued)
	}
}

// ProcessNext claims and runs one job. It reports false when the queue had
// nothing to hand out.
func (p *Pool) ProcessNext(ctx context.Context) (bool, error) {
	lease, err := p.queue.Claim(ctx)
	switch {
	case errors.Is(err, queue.ErrQueueEmpty):
		return false, nil
	case errors.Is(err, queue.ErrPoisonedJob),
		errors.Is(err, queue.ErrJobNotActive),
		errors.Is(err, queue.ErrLeaseLost),
		errors.Is(err, queue.ErrInvalidTransition):
		p.logger.Warn("Skipping claimed import job", "error", err)
		return true, nil
	case err != nil:
		return false, err
	}

	p.run(ctx, lease)
	return true, nil
}

func (p *Pool) run(ctx context.Context, lease *queue.Lease) {
	job := lease.Job
	log := p.logger.With("job_id", job.ID, "import_type", job.ImportType, "attempt", job.Attempts)
	start := time.Now()

	err := p.execute(ctx, lease)

	// Terminal writes must land even when shutdown cancelled ctx.
	finishCtx := context.WithoutCancel(ctx)
	var structural *processors.StructuralError

	switch {
	case err == nil:
		finished, err := p.queue.Complete(finishCtx, lease)
		if err != nil {
			log.Warn("Could not complete import job", "error", err)
			return
		}
		log.Info("Import job completed",
			"success_records", finished.SuccessRecords,
			"error_records", finished.ErrorRecords,
			"duration", time.Since(start))
		p.notify(finishCtx, finished)

	case errors.As(err, &structural):
		finished, ferr := p.queue.Fail(finishCtx, lease, structural.Errors)
		if ferr != nil {
			log.Warn("Could not fail import job", "error", ferr)
			return
		}
		log.Warn("Import job failed", "error", err)
		p.notify(finishCtx, finished)

	case errors.Is(err, queue.ErrJobNotActive), errors.Is(err, queue.ErrLeaseLost):
		log.Info("Import job stopped after cancellation or lease loss", "error", err)

	case ctx.Err() != nil:
		if rerr := p.queue.Release(finishCtx, lease); rerr != nil {
			log.Warn("Could not release interrupted import job", "error", rerr)
			return
		}
		log.Info("Import job released on shutdown", "processed_records", job.ProcessedRecords)

	default:
		retried, rerr := p.queue.Retry(finishCtx, lease, err)
		if rerr != nil {
			log.Warn("Could not schedule import job retry", "error", rerr, "cause", err)
			return
		}
		if retried.IsTerminal() {
			log.Error("Import job failed permanently", "error", err)
			p.notify(finishCtx, retried)
		}
	}
}

// execute runs the batch with checkpoints going to the queue. A panic is
// turned into a retryable error.
func (p *Pool) execute(ctx context.Context, lease *queue.Lease) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Panic recovered while processing import job",
				"job_id", lease.Job.ID,
				"panic_value", r,
				"stack_trace", string(debug.Stack()))
			err = fmt.Errorf("panic while processing import job: %v", r)
		}
	}()

	checkpoint := func(ctx context.Context, _ *models.Job) error {
		return p.queue.SaveProgress(ctx, lease)
	}
	return p.processor.Process(ctx, lease.Job, checkpoint)
}

func (p *Pool) notify(ctx context.Context, job *models.Job) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.NotifyJobFinished(ctx, job); err != nil {
		p.logger.Error("Failed to publish import event", "job_id", job.ID, "error", err)
	}
}
