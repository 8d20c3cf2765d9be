package models

import (
	"fmt"
	"math"
	"time"
)

type JobState string

const (
	JobPending    JobState = "pending"
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
	JobCancelled  JobState = "cancelled"
)

var jobTransitions = map[JobState][]JobState{
	JobPending:    {JobProcessing, JobFailed, JobCancelled},
	JobProcessing: {JobCompleted, JobFailed, JobCancelled, JobPending},
}

func (s JobState) IsValid() bool {
	switch s {
	case JobPending, JobProcessing, JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s JobState) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// CanTransitionTo reports whether s -> next is allowed. Terminal states are
// sticky; processing -> pending is the requeue path for abandoned or
// interrupted work.
func (s JobState) CanTransitionTo(next JobState) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindDuplicate  ErrorKind = "duplicate"
	ErrorKindReference  ErrorKind = "reference"
	ErrorKindSystem     ErrorKind = "system"
)

// RowError describes a problem with one source row. Row is the line number in
// the sheet (the header is line 1); file-level errors use Row 0.
type RowError struct {
	Row      int       `json:"row"`
	Column   string    `json:"column,omitempty"`
	RawValue string    `json:"raw_value,omitempty"`
	Message  string    `json:"message"`
	Kind     ErrorKind `json:"kind"`
}

func (e RowError) String() string {
	if e.Column == "" {
		return fmt.Sprintf("row %d: %s (%s)", e.Row, e.Message, e.Kind)
	}
	return fmt.Sprintf("row %d, column %s: %s (%s)", e.Row, e.Column, e.Message, e.Kind)
}

// SystemError builds a file-level error of kind system.
func SystemError(message string) RowError {
	return RowError{Row: 0, Message: message, Kind: ErrorKindSystem}
}

type JobOptions struct {
	OverwriteExisting bool              `json:"overwrite_existing"`
	ValidateOnly      bool              `json:"validate_only"`
	NotifyEmail       bool              `json:"notify_email"`
	TypeOptions       map[string]string `json:"type_options,omitempty"`
}

// TypeOption returns a type specific setting or "".
func (o JobOptions) TypeOption(key string) string {
	if o.TypeOptions == nil {
		return ""
	}
	return o.TypeOptions[key]
}

// Job is one request to import a spreadsheet of a given type for a tenant.
type Job struct {
	ID            string     `json:"id"`
	ImportType    ImportType `json:"import_type"`
	TenantID      uint       `json:"tenant_id"`
	UserID        uint       `json:"user_id"`
	SourceFileRef string     `json:"source_file_ref"`
	Options       JobOptions `json:"options"`

	TotalRecords     int `json:"total_records"`
	ProcessedRecords int `json:"processed_records"`
	SuccessRecords   int `json:"success_records"`
	ErrorRecords     int `json:"error_records"`

	Errors   []RowError `json:"errors"`
	Progress int        `json:"progress"`
	State    JobState   `json:"state"`

	// Attempts counts executions that consumed a retry; a release on shutdown
	// gives its attempt back.
	Attempts       int    `json:"attempts"`
	ErrorReportRef string `json:"error_report_ref,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func (j *Job) IsTerminal() bool {
	return j.State.IsTerminal()
}

// HasPartialErrors reports a completed job with rejected rows.
func (j *Job) HasPartialErrors() bool {
	return j.State == JobCompleted && j.ErrorRecords > 0
}

// RecordRow accounts for one processed row. A row with any error counts once
// towards ErrorRecords.
func (j *Job) RecordRow(errs []RowError) {
	j.ProcessedRecords++
	if len(errs) == 0 {
		j.SuccessRecords++
		return
	}
	j.ErrorRecords++
	j.Errors = append(j.Errors, errs...)
}

// ComputeProgress returns round(processed/total*100) clamped to [0,100].
func (j *Job) ComputeProgress() int {
	if j.TotalRecords <= 0 {
		return 0
	}
	p := int(math.Round(float64(j.ProcessedRecords) / float64(j.TotalRecords) * 100))
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}

// AdvanceProgress moves progress forward only.
func (j *Job) AdvanceProgress(p int) {
	if p > 100 {
		p = 100
	}
	if p > j.Progress {
		j.Progress = p
	}
}

// Finish moves the job into a terminal state. Progress jumps to 100.
func (j *Job) Finish(state JobState, at time.Time) {
	j.State = state
	j.Progress = 100
	finished := at
	j.FinishedAt = &finished
}

// CheckCounters verifies the record counter invariants.
func (j *Job) CheckCounters() error {
	switch {
	case j.TotalRecords < 0 || j.ProcessedRecords < 0 || j.SuccessRecords < 0 || j.ErrorRecords < 0:
		return fmt.Errorf("record counters must be non-negative")
	case j.ProcessedRecords > j.TotalRecords:
		return fmt.Errorf("processed records %d exceed total %d", j.ProcessedRecords, j.TotalRecords)
	case j.SuccessRecords+j.ErrorRecords > j.ProcessedRecords:
		return fmt.Errorf("success %d + error %d records exceed processed %d",
			j.SuccessRecords, j.ErrorRecords, j.ProcessedRecords)
	case j.Progress < 0 || j.Progress > 100:
		return fmt.Errorf("progress %d out of range", j.Progress)
	}
	return nil
}

// Clone returns a deep copy.
func (j *Job) Clone() *Job {
	c := *j
	if j.Errors != nil {
		c.Errors = append([]RowError(nil), j.Errors...)
	}
	if j.Options.TypeOptions != nil {
		c.Options.TypeOptions = make(map[string]string, len(j.Options.TypeOptions))
		for k, v := range j.Options.TypeOptions {
			c.Options.TypeOptions[k] = v
		}
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
