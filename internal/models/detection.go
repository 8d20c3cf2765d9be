package models

import "time"

// TypeDetectionResult scores how well a header row matches one import type.
type TypeDetectionResult struct {
	ImportType             ImportType `json:"import_type"`
	Confidence             int        `json:"confidence"`
	MatchedColumns         []string   `json:"matched_columns"`
	MissingRequiredColumns []string   `json:"missing_required_columns"`
	Rationale              string     `json:"rationale"`
}

type TemplateColumn struct {
	Name     string   `json:"name"`
	Aliases  []string `json:"aliases,omitempty"`
	Required bool     `json:"required"`
	Weight   int      `json:"weight"`
}

// TemplateInfo describes the columns an import type understands.
type TemplateInfo struct {
	ImportType ImportType       `json:"import_type"`
	ChunkSize  int              `json:"chunk_size"`
	Columns    []TemplateColumn `json:"columns"`
}

// FileValidationResult is the dry check of a file before it is enqueued.
type FileValidationResult struct {
	ContentHash     string                `json:"content_hash"`
	ImportType      ImportType            `json:"import_type"`
	Detection       []TypeDetectionResult `json:"detection"`
	StructureErrors []RowError            `json:"structure_errors"`
	TotalRecords    int                   `json:"total_records"`
	Valid           bool                  `json:"valid"`
}

// ImportStats aggregates a tenant's jobs.
type ImportStats struct {
	TenantID       uint             `json:"tenant_id"`
	TotalJobs      int              `json:"total_jobs"`
	ByState        map[JobState]int `json:"by_state"`
	TotalRecords   int              `json:"total_records"`
	SuccessRecords int              `json:"success_records"`
	ErrorRecords   int              `json:"error_records"`
	GeneratedAt    time.Time        `json:"generated_at"`
}
