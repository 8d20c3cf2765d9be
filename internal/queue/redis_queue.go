package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/SAP-F-2025/inventory-import-service/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	fieldLeaseToken = "lease_token"
	fieldSeq        = "seq"

	maxTxAttempts = 8

	// CancellationMessage is the system error appended to a cancelled job.
	CancellationMessage = "job cancelled by user"
)

var errAlreadyTerminal = errors.New("import job already finished")

// JobMirror receives every committed job state so read paths can be served
// without touching the queue.
type JobMirror interface {
	MirrorJob(ctx context.Context, job *models.Job)
	ForgetJob(ctx context.Context, jobID string)
}

type noopMirror struct{}

func (noopMirror) MirrorJob(context.Context, *models.Job) {}
func (noopMirror) ForgetJob(context.Context, string)      {}

type Config struct {
	Prefix            string
	MaxAttempts       int
	BackoffBase       time.Duration
	VisibilityTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Prefix:            "imports",
		MaxAttempts:       3,
		BackoffBase:       5 * time.Second,
		VisibilityTimeout: 5 * time.Minute,
	}
}

// Lease is a claimed job. Token proves ownership on every later mutation.
type Lease struct {
	Job   *models.Job
	Token string
}

type Counts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Delayed   int64 `json:"delayed"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// RedisQueue stores each job as a hash and tracks it through sorted sets:
// waiting (priority then FIFO), active (lease deadline), delayed (retry
// time), completed and failed (finish time).
type RedisQueue struct {
	client     redis.UniversalClient
	cfg        Config
	serializer *Serializer
	mirror     JobMirror
	logger     *slog.Logger
	clock      func() time.Time
}

func NewRedisQueue(client redis.UniversalClient, cfg Config, mirror JobMirror, logger *slog.Logger) *RedisQueue {
	defaults := DefaultConfig()
	if cfg.Prefix == "" {
		cfg.Prefix = defaults.Prefix
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaults.BackoffBase
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = defaults.VisibilityTimeout
	}
	if mirror == nil {
		mirror = noopMirror{}
	}
	return &RedisQueue{
		client:     client,
		cfg:        cfg,
		serializer: NewSerializer(logger),
		mirror:     mirror,
		logger:     logger.With("component", "import_queue"),
		clock:      time.Now,
	}
}

func (q *RedisQueue) Serializer() *Serializer {
	return q.serializer
}

// ===== KEYS =====

func (q *RedisQueue) key(parts ...string) string {
	return q.cfg.Prefix + ":" + strings.Join(parts, ":")
}

func (q *RedisQueue) jobKey(id string) string { return q.key("job", id) }
func (q *RedisQueue) waitingKey() string      { return q.key("waiting") }
func (q *RedisQueue) activeKey() string       { return q.key("active") }
func (q *RedisQueue) delayedKey() string      { return q.key("delayed") }
func (q *RedisQueue) completedKey() string    { return q.key("completed") }
func (q *RedisQueue) failedKey() string       { return q.key("failed") }
func (q *RedisQueue) seqKey() string          { return q.key("seq") }

func waitingScore(t models.ImportType, seq int64) float64 {
	return float64(t.Priority())*1e12 + float64(seq)
}

// ===== PRODUCER =====

// Enqueue validates and stores a pending job. The id doubles as an
// idempotency key: enqueueing an existing id returns ErrJobExists.
func (q *RedisQueue) Enqueue(ctx context.Context, job *models.Job) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = q.clock().UTC()
	}
	if job.State == "" {
		job.State = models.JobPending
	}
	if job.State != models.JobPending {
		return "", &SerializationError{Field: fieldState, Reason: "must be pending on enqueue"}
	}
	if err := q.serializer.Validate(job); err != nil {
		return "", err
	}
	record, err := q.serializer.Serialize(job)
	if err != nil {
		return "", err
	}

	seq, err := q.client.Incr(ctx, q.seqKey()).Result()
	if err != nil {
		return "", fmt.Errorf("failed to allocate queue sequence: %w", err)
	}
	record[fieldSeq] = seq

	key := q.jobKey(job.ID)
	err = q.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return ErrJobExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, map[string]interface{}(record))
			pipe.ZAdd(ctx, q.waitingKey(), redis.Z{Score: waitingScore(job.ImportType, seq), Member: job.ID})
			return nil
		})
		return err
	}, key)
	if errors.Is(err, ErrJobExists) {
		return job.ID, err
	}
	if err != nil {
		return "", fmt.Errorf("failed to enqueue import job: %w", err)
	}

	q.mirror.MirrorJob(ctx, job)
	q.logger.Info("Import job enqueued",
		"job_id", job.ID,
		"import_type", job.ImportType,
		"tenant_id", job.TenantID,
		"priority", job.ImportType.Priority())
	return job.ID, nil
}

// ===== CONSUMER =====

// Claim leases the next waiting job and moves it to processing. It returns
// ErrQueueEmpty when nothing is waiting.
func (q *RedisQueue) Claim(ctx context.Context) (*Lease, error) {
	token := uuid.NewString()
	deadline := q.clock().Add(q.cfg.VisibilityTimeout).UnixMilli()

	id, err := claimScript.Run(ctx, q.client,
		[]string{q.waitingKey(), q.activeKey()},
		deadline, token, q.jobKey("")).Text()
	if errors.Is(err, redis.Nil) {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim import job: %w", err)
	}

	job, err := q.mutate(ctx, id, func(ctx context.Context, st *txState) error {
		if st.token != token {
			return ErrLeaseLost
		}
		if st.job.IsTerminal() {
			st.write = false
			st.queue(func(pipe redis.Pipeliner) {
				pipe.ZRem(ctx, q.activeKey(), id)
				pipe.HDel(ctx, q.jobKey(id), fieldLeaseToken)
			})
			st.outcome = ErrJobNotActive
			return nil
		}
		if verr := q.serializer.Validate(st.job); verr != nil {
			q.failPoisoned(ctx, st, verr)
			st.outcome = fmt.Errorf("%w: %v", ErrPoisonedJob, verr)
			return nil
		}

		if err := moveTo(st.job, models.JobProcessing); err != nil {
			return err
		}
		now := q.clock().UTC()
		st.job.Attempts++
		if st.job.StartedAt == nil {
			st.job.StartedAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	q.logger.Info("Import job claimed", "job_id", job.ID, "attempt", job.Attempts, "resume_at", job.ProcessedRecords)
	return &Lease{Job: job, Token: token}, nil
}

// SaveProgress checkpoints counters, errors and progress and extends the
// lease. ErrJobNotActive means the job was cancelled or requeued meanwhile.
func (q *RedisQueue) SaveProgress(ctx context.Context, lease *Lease) error {
	id := lease.Job.ID
	_, err := q.mutate(ctx, id, func(ctx context.Context, st *txState) error {
		if err := owned(st, lease); err != nil {
			return err
		}
		applyProgress(st.job, lease.Job)
		deadline := q.clock().Add(q.cfg.VisibilityTimeout).UnixMilli()
		st.queue(func(pipe redis.Pipeliner) {
			pipe.ZAdd(ctx, q.activeKey(), redis.Z{Score: float64(deadline), Member: id})
		})
		return nil
	})
	return err
}

// Complete stores the final counters and moves the job to completed.
func (q *RedisQueue) Complete(ctx context.Context, lease *Lease) (*models.Job, error) {
	return q.mutate(ctx, lease.Job.ID, func(ctx context.Context, st *txState) error {
		if err := owned(st, lease); err != nil {
			return err
		}
		applyProgress(st.job, lease.Job)
		return q.finish(ctx, st, models.JobCompleted)
	})
}

// Fail moves the job to failed without retrying.
func (q *RedisQueue) Fail(ctx context.Context, lease *Lease, rowErrors []models.RowError) (*models.Job, error) {
	return q.mutate(ctx, lease.Job.ID, func(ctx context.Context, st *txState) error {
		if err := owned(st, lease); err != nil {
			return err
		}
		applyProgress(st.job, lease.Job)
		st.job.Errors = append(st.job.Errors, rowErrors...)
		return q.finish(ctx, st, models.JobFailed)
	})
}

// Retry schedules another attempt after an exponential backoff, or fails
// the job once its attempts are used up. Progress since the last checkpoint
// is discarded; the next attempt resumes from the checkpoint.
func (q *RedisQueue) Retry(ctx context.Context, lease *Lease, cause error) (*models.Job, error) {
	id := lease.Job.ID
	return q.mutate(ctx, id, func(ctx context.Context, st *txState) error {
		if err := owned(st, lease); err != nil {
			return err
		}
		if st.job.Attempts >= q.cfg.MaxAttempts {
			st.job.Errors = append(st.job.Errors,
				models.SystemError(fmt.Sprintf("import failed after %d attempts: %v", st.job.Attempts, cause)))
			return q.finish(ctx, st, models.JobFailed)
		}

		delay := q.backoff(st.job.Attempts)
		readyAt := q.clock().Add(delay).UnixMilli()
		if err := moveTo(st.job, models.JobPending); err != nil {
			return err
		}
		st.queue(func(pipe redis.Pipeliner) {
			pipe.ZRem(ctx, q.activeKey(), id)
			pipe.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(readyAt), Member: id})
			pipe.HDel(ctx, q.jobKey(id), fieldLeaseToken)
		})
		q.logger.Warn("Import job scheduled for retry",
			"job_id", id,
			"attempt", st.job.Attempts,
			"max_attempts", q.cfg.MaxAttempts,
			"delay", delay,
			"error", cause)
		return nil
	})
}

// Release hands an interrupted job back to the waiting set without
// consuming an attempt.
func (q *RedisQueue) Release(ctx context.Context, lease *Lease) error {
	id := lease.Job.ID
	_, err := q.mutate(ctx, id, func(ctx context.Context, st *txState) error {
		if err := owned(st, lease); err != nil {
			return err
		}
		if err := moveTo(st.job, models.JobPending); err != nil {
			return err
		}
		if st.job.Attempts > 0 {
			st.job.Attempts--
		}
		score := waitingScore(st.job.ImportType, st.seq)
		st.queue(func(pipe redis.Pipeliner) {
			pipe.ZRem(ctx, q.activeKey(), id)
			pipe.ZAdd(ctx, q.waitingKey(), redis.Z{Score: score, Member: id})
			pipe.HDel(ctx, q.jobKey(id), fieldLeaseToken)
		})
		return nil
	})
	return err
}

// ===== CONTROL =====

// Cancel fails a pending or processing job with a cancellation error. It
// reports false when the job does not exist or has already finished. A
// worker holding the job notices at its next checkpoint.
func (q *RedisQueue) Cancel(ctx context.Context, id string) (*models.Job, bool, error) {
	job, err := q.mutate(ctx, id, func(ctx context.Context, st *txState) error {
		if st.job.IsTerminal() {
			st.write = false
			st.outcome = errAlreadyTerminal
			return nil
		}
		st.job.Errors = append(st.job.Errors, models.SystemError(CancellationMessage))
		return q.finish(ctx, st, models.JobFailed)
	})
	switch {
	case errors.Is(err, ErrJobNotFound):
		return nil, false, nil
	case errors.Is(err, errAlreadyTerminal):
		return job, false, nil
	case err != nil:
		return nil, false, err
	}
	q.logger.Info("Import job cancelled", "job_id", id, "tenant_id", job.TenantID)
	return job, true, nil
}

// Get reads the job record. A processing job whose lease has expired is
// reported as pending since it is waiting for redelivery.
func (q *RedisQueue) Get(ctx context.Context, id string) (*models.Job, error) {
	fields, err := q.client.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read import job: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}
	job, err := q.serializer.Deserialize(fromHash(fields))
	if err != nil {
		return nil, err
	}

	if job.State == models.JobProcessing {
		score, err := q.client.ZScore(ctx, q.activeKey(), id).Result()
		expired := errors.Is(err, redis.Nil) || (err == nil && int64(score) < q.clock().UnixMilli())
		if expired {
			q.logger.Warn("Reporting abandoned import job as pending", "job_id", id)
			job.State = models.JobPending
		}
	}
	return job, nil
}

// ListByTenant scans every set and filters by tenant, newest first. A
// non-positive limit returns everything after offset.
func (q *RedisQueue) ListByTenant(ctx context.Context, tenantID uint, limit, offset int) ([]*models.Job, error) {
	sets := []string{q.activeKey(), q.waitingKey(), q.delayedKey(), q.completedKey(), q.failedKey()}
	seen := make(map[string]bool)
	var ids []string
	for _, set := range sets {
		members, err := q.client.ZRange(ctx, set, 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", set, err)
		}
		for _, id := range members {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return []*models.Job{}, nil
	}

	pipe := q.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, q.jobKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to load import jobs: %w", err)
	}

	jobs := make([]*models.Job, 0)
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		job, err := q.serializer.Deserialize(fromHash(fields))
		if err != nil {
			q.logger.Warn("Skipping unreadable import job", "error", err)
			continue
		}
		if job.TenantID == tenantID {
			jobs = append(jobs, job)
		}
	}

	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(jobs) {
		return []*models.Job{}, nil
	}
	jobs = jobs[offset:]
	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// PurgeOlderThan deletes finished jobs older than days. Failures are logged
// and skipped.
func (q *RedisQueue) PurgeOlderThan(ctx context.Context, days int) int {
	cutoff := q.clock().AddDate(0, 0, -days).UnixMilli()
	purged := 0

	for _, set := range []string{q.completedKey(), q.failedKey()} {
		ids, err := q.client.ZRangeByScore(ctx, set, &redis.ZRangeBy{
			Min: "-inf",
			Max: strconv.FormatInt(cutoff, 10),
		}).Result()
		if err != nil {
			q.logger.Error("Failed to scan finished import jobs", "set", set, "error", err)
			continue
		}
		for _, id := range ids {
			_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, q.jobKey(id))
				pipe.ZRem(ctx, set, id)
				return nil
			})
			if err != nil {
				q.logger.Error("Failed to purge import job", "job_id", id, "error", err)
				continue
			}
			q.mirror.ForgetJob(ctx, id)
			purged++
		}
	}

	if purged > 0 {
		q.logger.Info("Purged finished import jobs", "count", purged, "older_than_days", days)
	}
	return purged
}

// ===== MAINTENANCE =====

// PromoteDelayed moves retries whose backoff has elapsed to the waiting set.
func (q *RedisQueue) PromoteDelayed(ctx context.Context) (int, error) {
	now := q.clock().UnixMilli()
	ids, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan delayed jobs: %w", err)
	}

	promoted := 0
	for _, id := range ids {
		_, err := q.mutate(ctx, id, func(ctx context.Context, st *txState) error {
			st.write = false
			score, err := st.tx.ZScore(ctx, q.delayedKey(), id).Result()
			if errors.Is(err, redis.Nil) || (err == nil && int64(score) > now) {
				st.outcome = errSkipMutation
				return nil
			}
			if err != nil {
				return err
			}
			st.queue(func(pipe redis.Pipeliner) {
				pipe.ZRem(ctx, q.delayedKey(), id)
			})
			if st.job.State != models.JobPending {
				st.outcome = errSkipMutation
				return nil
			}
			waiting := waitingScore(st.job.ImportType, st.seq)
			st.queue(func(pipe redis.Pipeliner) {
				pipe.ZAdd(ctx, q.waitingKey(), redis.Z{Score: waiting, Member: id})
			})
			return nil
		}, q.delayedKey())
		switch {
		case err == nil:
			promoted++
		case errors.Is(err, errSkipMutation):
		case errors.Is(err, ErrJobNotFound):
			q.client.ZRem(ctx, q.delayedKey(), id)
		default:
			q.logger.Error("Failed to promote delayed import job", "job_id", id, "error", err)
		}
	}
	return promoted, nil
}

// RequeueExpired returns jobs whose lease ran out to the waiting set. The
// abandoned execution keeps its attempt; a job out of attempts fails.
func (q *RedisQueue) RequeueExpired(ctx context.Context) (int, error) {
	now := q.clock().UnixMilli()
	ids, err := q.client.ZRangeByScore(ctx, q.activeKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan active jobs: %w", err)
	}

	requeued := 0
	for _, id := range ids {
		_, err := q.mutate(ctx, id, func(ctx context.Context, st *txState) error {
			score, err := st.tx.ZScore(ctx, q.activeKey(), id).Result()
			if errors.Is(err, redis.Nil) || (err == nil && int64(score) > now) {
				st.write = false
				st.outcome = errSkipMutation
				return nil
			}
			if err != nil {
				return err
			}
			if st.job.IsTerminal() {
				st.write = false
				st.queue(func(pipe redis.Pipeliner) {
					pipe.ZRem(ctx, q.activeKey(), id)
				})
				st.outcome = errSkipMutation
				return nil
			}
			if st.job.State == models.JobProcessing && st.job.Attempts >= q.cfg.MaxAttempts {
				st.job.Errors = append(st.job.Errors,
					models.SystemError(fmt.Sprintf("lease expired after %d attempts", st.job.Attempts)))
				return q.finish(ctx, st, models.JobFailed)
			}
			// a claim that died before marking the job processing leaves it pending
			if st.job.State != models.JobPending {
				if err := moveTo(st.job, models.JobPending); err != nil {
					return err
				}
			}
			waiting := waitingScore(st.job.ImportType, st.seq)
			st.queue(func(pipe redis.Pipeliner) {
				pipe.ZRem(ctx, q.activeKey(), id)
				pipe.ZAdd(ctx, q.waitingKey(), redis.Z{Score: waiting, Member: id})
				pipe.HDel(ctx, q.jobKey(id), fieldLeaseToken)
			})
			return nil
		}, q.activeKey())
		switch {
		case err == nil:
			requeued++
			q.logger.Warn("Requeued import job with expired lease", "job_id", id)
		case errors.Is(err, errSkipMutation):
		case errors.Is(err, ErrJobNotFound):
			q.client.ZRem(ctx, q.activeKey(), id)
		default:
			q.logger.Error("Failed to requeue expired import job", "job_id", id, "error", err)
		}
	}
	return requeued, nil
}

func (q *RedisQueue) Counts(ctx context.Context) (Counts, error) {
	pipe := q.client.Pipeline()
	waiting := pipe.ZCard(ctx, q.waitingKey())
	active := pipe.ZCard(ctx, q.activeKey())
	delayed := pipe.ZCard(ctx, q.delayedKey())
	completed := pipe.ZCard(ctx, q.completedKey())
	failed := pipe.ZCard(ctx, q.failedKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return Counts{}, fmt.Errorf("failed to count import jobs: %w", err)
	}
	return Counts{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Delayed:   delayed.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}, nil
}

// ===== TRANSACTIONS =====

// txState is the view a mutation gets of one job inside WATCH/MULTI.
type txState struct {
	job   *models.Job
	token string
	seq   int64
	tx    *redis.Tx
	ops   []func(pipe redis.Pipeliner)

	// write persists job back to the hash and mirrors it.
	write bool
	// outcome is returned to the caller after the transaction commits.
	outcome error
}

func (s *txState) queue(op func(pipe redis.Pipeliner)) {
	s.ops = append(s.ops, op)
}

// mutate loads a job under WATCH, lets fn change it and commits the result
// atomically, retrying on concurrent modification. An error from fn aborts
// without writing.
func (q *RedisQueue) mutate(ctx context.Context, id string, fn func(ctx context.Context, st *txState) error, watch ...string) (*models.Job, error) {
	key := q.jobKey(id)
	var st *txState

	txf := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return ErrJobNotFound
		}
		job, err := q.serializer.Deserialize(fromHash(fields))
		if err != nil {
			return err
		}
		st = &txState{
			job:   job,
			token: fields[fieldLeaseToken],
			seq:   asInt(fields[fieldSeq]),
			tx:    tx,
			write: true,
		}
		if err := fn(ctx, st); err != nil {
			return err
		}

		var record PrimitiveRecord
		if st.write {
			record, err = q.serializer.Serialize(st.job)
			if err != nil {
				return err
			}
		}
		if record == nil && len(st.ops) == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if record != nil {
				pipe.HSet(ctx, key, map[string]interface{}(record))
			}
			for _, op := range st.ops {
				op(pipe)
			}
			return nil
		})
		return err
	}

	keys := append([]string{key}, watch...)
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := q.client.Watch(ctx, txf, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if st.write {
			q.mirror.MirrorJob(ctx, st.job)
		}
		return st.job, st.outcome
	}
	return nil, ErrTxContention
}

// finish moves the job into a terminal state and its id into the matching
// finished set.
func (q *RedisQueue) finish(ctx context.Context, st *txState, state models.JobState) error {
	if !st.job.State.CanTransitionTo(state) {
		return transitionError(st.job, state)
	}
	now := q.clock().UTC()
	st.job.Finish(state, now)
	id := st.job.ID
	target := q.failedKey()
	if state == models.JobCompleted {
		target = q.completedKey()
	}
	st.queue(func(pipe redis.Pipeliner) {
		pipe.ZRem(ctx, q.waitingKey(), id)
		pipe.ZRem(ctx, q.activeKey(), id)
		pipe.ZRem(ctx, q.delayedKey(), id)
		pipe.ZAdd(ctx, target, redis.Z{Score: float64(now.UnixMilli()), Member: id})
		pipe.HDel(ctx, q.jobKey(id), fieldLeaseToken)
	})
	return nil
}

// moveTo applies a non terminal state change the job state machine allows.
func moveTo(job *models.Job, next models.JobState) error {
	if !job.State.CanTransitionTo(next) {
		return transitionError(job, next)
	}
	job.State = next
	return nil
}

func transitionError(job *models.Job, next models.JobState) error {
	return fmt.Errorf("%w: job %s %s -> %s", ErrInvalidTransition, job.ID, job.State, next)
}

// failPoisoned fails a job whose record cannot be trusted. The record may not
// serialize, so the terminal fields are written directly.
func (q *RedisQueue) failPoisoned(ctx context.Context, st *txState, cause error) {
	st.write = false
	now := q.clock().UTC()
	id := st.job.ID
	errs, _ := marshalRowErrors(append(st.job.Errors, models.SystemError(cause.Error())))
	st.queue(func(pipe redis.Pipeliner) {
		pipe.HSet(ctx, q.jobKey(id),
			fieldState, string(models.JobFailed),
			fieldProgress, 100,
			fieldErrors, errs,
			fieldFinishedAt, formatTime(now))
		pipe.HDel(ctx, q.jobKey(id), fieldLeaseToken)
		pipe.ZRem(ctx, q.activeKey(), id)
		pipe.ZAdd(ctx, q.failedKey(), redis.Z{Score: float64(now.UnixMilli()), Member: id})
	})
	q.logger.Error("Failing poisoned import job", "job_id", id, "error", cause)
}

func (q *RedisQueue) backoff(failedAttempts int) time.Duration {
	if failedAttempts < 1 {
		failedAttempts = 1
	}
	if failedAttempts > 16 {
		failedAttempts = 16
	}
	return q.cfg.BackoffBase * time.Duration(1<<uint(failedAttempts-1))
}

func owned(st *txState, lease *Lease) error {
	if st.job.State != models.JobProcessing {
		return ErrJobNotActive
	}
	if st.token != lease.Token {
		return ErrLeaseLost
	}
	return nil
}

// applyProgress copies checkpointed counters from the worker's copy. Counters
// never move backwards.
func applyProgress(stored, current *models.Job) {
	if current.TotalRecords >= stored.ProcessedRecords {
		stored.TotalRecords = current.TotalRecords
	}
	if current.ProcessedRecords >= stored.ProcessedRecords {
		stored.ProcessedRecords = current.ProcessedRecords
		stored.SuccessRecords = current.SuccessRecords
		stored.ErrorRecords = current.ErrorRecords
		stored.Errors = append([]models.RowError(nil), current.Errors...)
	}
	stored.AdvanceProgress(current.Progress)
	if current.ErrorReportRef != "" {
		stored.ErrorReportRef = current.ErrorReportRef
	}
}
