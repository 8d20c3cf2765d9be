package services

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ServiceLogger writes one structured line per import service operation,
// plus audit lines for the job mutations a user triggered.
type ServiceLogger struct {
	logger *slog.Logger
	clock  func() time.Time
}

func NewServiceLogger(logger *slog.Logger, component string) *ServiceLogger {
	return &ServiceLogger{
		logger: logger.With("component", component),
		clock:  time.Now,
	}
}

// AuditAction names a user triggered change to a job.
type AuditAction string

const (
	AuditJobEnqueued  AuditAction = "job_enqueued"
	AuditJobCancelled AuditAction = "job_cancelled"
)

// Operation times one service call. Finish must be called exactly once.
type Operation struct {
	sl       *ServiceLogger
	ctx      context.Context
	name     string
	tenantID uint
	started  time.Time
}

func (l *ServiceLogger) Start(ctx context.Context, name string, tenantID uint) *Operation {
	return &Operation{
		sl:       l,
		ctx:      ctx,
		name:     name,
		tenantID: tenantID,
		started:  l.clock(),
	}
}

// Finish logs the outcome at the level classify picks for err.
func (o *Operation) Finish(jobID string, err error) {
	level, status := classify(err)
	attrs := []slog.Attr{
		slog.String("operation", o.name),
		slog.String("job_id", jobID),
		slog.String("status", status),
		slog.Duration("duration", o.sl.clock().Sub(o.started)),
	}
	if o.tenantID != 0 {
		attrs = append(attrs, slog.Uint64("tenant_id", uint64(o.tenantID)))
	}

	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))

		var verrs ValidationErrors
		var rule *BusinessRuleError
		switch {
		case errors.As(err, &verrs):
			fields := make([]string, len(verrs))
			for i, e := range verrs {
				fields[i] = e.Field
			}
			attrs = append(attrs, slog.Any("invalid_fields", fields))
		case errors.As(err, &rule):
			attrs = append(attrs, slog.String("rule", rule.Rule))
			if len(rule.Context) > 0 {
				attrs = append(attrs, slog.Any("rule_context", rule.Context))
			}
		}
	}

	o.sl.logger.LogAttrs(o.ctx, level, o.name+" "+status, attrs...)
}

// Audit records who did what to which job.
func (o *Operation) Audit(action AuditAction, userID uint, jobID string, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("audit", string(action)),
		slog.String("job_id", jobID),
		slog.Uint64("user_id", uint64(userID)),
		slog.Time("at", o.sl.clock().UTC()),
	}
	if o.tenantID != 0 {
		base = append(base, slog.Uint64("tenant_id", uint64(o.tenantID)))
	}
	o.sl.logger.LogAttrs(o.ctx, slog.LevelInfo, "Audit: "+string(action), append(base, attrs...)...)
}

func classify(err error) (slog.Level, string) {
	switch {
	case err == nil:
		return slog.LevelInfo, "success"
	case IsValidation(err), IsBusinessRule(err):
		return slog.LevelWarn, "rejected"
	case IsNotFound(err):
		return slog.LevelInfo, "not_found"
	case IsConflict(err):
		return slog.LevelWarn, "conflict"
	default:
		return slog.LevelError, "error"
	}
}
