package queue

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/SAP-F-2025/inventory-import-service/internal/models"
)

// Field names of the primitive job record.
const (
	fieldID               = "id"
	fieldImportType       = "import_type"
	fieldTenantID         = "tenant_id"
	fieldUserID           = "user_id"
	fieldSourceFileRef    = "source_file_ref"
	fieldOptions          = "options"
	fieldTotalRecords     = "total_records"
	fieldProcessedRecords = "processed_records"
	fieldSuccessRecords   = "success_records"
	fieldErrorRecords     = "error_records"
	fieldErrors           = "errors"
	fieldProgress         = "progress"
	fieldState            = "state"
	fieldAttempts         = "attempts"
	fieldErrorReportRef   = "error_report_ref"
	fieldCreatedAt        = "created_at"
	fieldStartedAt        = "started_at"
	fieldFinishedAt       = "finished_at"
)

const defaultClockSkew = 5 * time.Minute

// PrimitiveRecord is the queue representation of a job: string and int64
// values only. Options and errors are JSON strings, timestamps RFC 3339.
type PrimitiveRecord map[string]interface{}

// SerializationError rejects a job that cannot be written to the queue.
type SerializationError struct {
	Field  string
	Reason string
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("cannot serialize job: %s %s", e.Field, e.Reason)
}

// Serializer converts jobs to and from PrimitiveRecord. Writes are strict;
// reads coerce bad enum values to defaults and log a warning.
type Serializer struct {
	logger    *slog.Logger
	clock     func() time.Time
	clockSkew time.Duration
}

func NewSerializer(logger *slog.Logger) *Serializer {
	return &Serializer{logger: logger, clock: time.Now, clockSkew: defaultClockSkew}
}

func (s *Serializer) Serialize(job *models.Job) (PrimitiveRecord, error) {
	if job == nil {
		return nil, &SerializationError{Field: "job", Reason: "is nil"}
	}
	switch {
	case strings.TrimSpace(job.ID) == "":
		return nil, &SerializationError{Field: fieldID, Reason: "is required"}
	case !job.ImportType.IsValid():
		return nil, &SerializationError{Field: fieldImportType, Reason: fmt.Sprintf("%q is not a valid import type", job.ImportType)}
	case job.TenantID == 0:
		return nil, &SerializationError{Field: fieldTenantID, Reason: "is required"}
	case job.UserID == 0:
		return nil, &SerializationError{Field: fieldUserID, Reason: "is required"}
	case strings.TrimSpace(job.SourceFileRef) == "":
		return nil, &SerializationError{Field: fieldSourceFileRef, Reason: "is required"}
	case !job.State.IsValid():
		return nil, &SerializationError{Field: fieldState, Reason: fmt.Sprintf("%q is not a valid state", job.State)}
	case job.CreatedAt.IsZero():
		return nil, &SerializationError{Field: fieldCreatedAt, Reason: "is required"}
	}

	options, err := json.Marshal(job.Options)
	if err != nil {
		return nil, &SerializationError{Field: fieldOptions, Reason: err.Error()}
	}
	errs, err := marshalRowErrors(job.Errors)
	if err != nil {
		return nil, &SerializationError{Field: fieldErrors, Reason: err.Error()}
	}

	record := PrimitiveRecord{
		fieldID:               job.ID,
		fieldImportType:       string(job.ImportType),
		fieldTenantID:         int64(job.TenantID),
		fieldUserID:           int64(job.UserID),
		fieldSourceFileRef:    job.SourceFileRef,
		fieldOptions:          string(options),
		fieldTotalRecords:     int64(job.TotalRecords),
		fieldProcessedRecords: int64(job.ProcessedRecords),
		fieldSuccessRecords:   int64(job.SuccessRecords),
		fieldErrorRecords:     int64(job.ErrorRecords),
		fieldErrors:           errs,
		fieldProgress:         int64(job.Progress),
		fieldState:            string(job.State),
		fieldAttempts:         int64(job.Attempts),
		fieldErrorReportRef:   job.ErrorReportRef,
		fieldCreatedAt:        formatTime(job.CreatedAt),
	}
	if job.StartedAt != nil {
		record[fieldStartedAt] = formatTime(*job.StartedAt)
	}
	if job.FinishedAt != nil {
		record[fieldFinishedAt] = formatTime(*job.FinishedAt)
	}
	return record, nil
}

// Deserialize rebuilds a job. Only a record without an id is rejected.
func (s *Serializer) Deserialize(record PrimitiveRecord) (*models.Job, error) {
	id := asString(record[fieldID])
	if id == "" {
		return nil, &SerializationError{Field: fieldID, Reason: "is missing from record"}
	}
	log := s.logger.With("job_id", id)

	job := &models.Job{
		ID:               id,
		SourceFileRef:    asString(record[fieldSourceFileRef]),
		TenantID:         uint(nonNegative(asInt(record[fieldTenantID]))),
		UserID:           uint(nonNegative(asInt(record[fieldUserID]))),
		TotalRecords:     int(asInt(record[fieldTotalRecords])),
		ProcessedRecords: int(asInt(record[fieldProcessedRecords])),
		SuccessRecords:   int(asInt(record[fieldSuccessRecords])),
		ErrorRecords:     int(asInt(record[fieldErrorRecords])),
		Progress:         int(asInt(record[fieldProgress])),
		Attempts:         int(asInt(record[fieldAttempts])),
		ErrorReportRef:   asString(record[fieldErrorReportRef]),
	}

	job.ImportType = models.ImportType(asString(record[fieldImportType]))
	if !job.ImportType.IsValid() {
		log.Warn("Coercing unknown import type", "import_type", job.ImportType, "coerced_to", models.ImportTypeProducts)
		job.ImportType = models.ImportTypeProducts
	}

	job.State = models.JobState(asString(record[fieldState]))
	if !job.State.IsValid() {
		log.Warn("Coercing unknown job state", "state", job.State, "coerced_to", models.JobPending)
		job.State = models.JobPending
	}

	if raw := asString(record[fieldOptions]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &job.Options); err != nil {
			log.Warn("Discarding unreadable job options", "error", err)
			job.Options = models.JobOptions{}
		}
	}
	if raw := asString(record[fieldErrors]); raw != "" {
		var rowErrors []models.RowError
		if err := json.Unmarshal([]byte(raw), &rowErrors); err != nil {
			log.Warn("Discarding unreadable row errors", "error", err)
		} else if len(rowErrors) > 0 {
			job.Errors = rowErrors
		}
	}

	job.CreatedAt = s.parseTime(log, fieldCreatedAt, record[fieldCreatedAt])
	if t := s.parseTime(log, fieldStartedAt, record[fieldStartedAt]); !t.IsZero() {
		job.StartedAt = &t
	}
	if t := s.parseTime(log, fieldFinishedAt, record[fieldFinishedAt]); !t.IsZero() {
		job.FinishedAt = &t
	}
	return job, nil
}

// Validate reports the first integrity problem of a job, or nil.
func (s *Serializer) Validate(job *models.Job) error {
	if job == nil {
		return &SerializationError{Field: "job", Reason: "is nil"}
	}
	switch {
	case strings.TrimSpace(job.ID) == "":
		return &SerializationError{Field: fieldID, Reason: "is required"}
	case job.TenantID == 0:
		return &SerializationError{Field: fieldTenantID, Reason: "must be a positive integer"}
	case job.UserID == 0:
		return &SerializationError{Field: fieldUserID, Reason: "must be a positive integer"}
	case strings.TrimSpace(job.SourceFileRef) == "":
		return &SerializationError{Field: fieldSourceFileRef, Reason: "is required"}
	case job.CreatedAt.IsZero():
		return &SerializationError{Field: fieldCreatedAt, Reason: "is not a valid timestamp"}
	case job.CreatedAt.After(s.clock().Add(s.clockSkew)):
		return &SerializationError{Field: fieldCreatedAt, Reason: "is in the future"}
	}
	if err := job.CheckCounters(); err != nil {
		return &SerializationError{Field: "counters", Reason: err.Error()}
	}
	return nil
}

// ValidateIntegrity is the boolean guard used before trusting a job read back
// from the queue or the cache.
func (s *Serializer) ValidateIntegrity(job *models.Job) bool {
	return s.Validate(job) == nil
}

func (s *Serializer) parseTime(log *slog.Logger, field string, v interface{}) time.Time {
	raw := asString(v)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		log.Warn("Ignoring unreadable timestamp", "field", field, "value", raw)
		return time.Time{}
	}
	return t
}

func marshalRowErrors(rowErrors []models.RowError) (string, error) {
	if rowErrors == nil {
		rowErrors = []models.RowError{}
	}
	data, err := json.Marshal(rowErrors)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// fromHash adapts a Redis HGETALL reply.
func fromHash(fields map[string]string) PrimitiveRecord {
	record := make(PrimitiveRecord, len(fields))
	for k, v := range fields {
		record[k] = v
	}
	return record
}

func asString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

// asInt accepts the numeric shapes a record can come back in: strings from
// Redis, float64 from JSON, int64 from Serialize.
func asInt(v interface{}) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case float64:
		return int64(x)
	case json.Number:
		n, _ := x.Int64()
		return n
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

func nonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
