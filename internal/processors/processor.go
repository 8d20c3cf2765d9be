// Package processors implements the per import type strategies and the
// batch processor that drives them over a spreadsheet.
package processors

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/SAP-F-2025/inventory-import-service/internal/models"
	"github.com/SAP-F-2025/inventory-import-service/internal/schema"
	"github.com/SAP-F-2025/inventory-import-service/internal/spreadsheet"
)

// Processor is the strategy for one import type. Rows handed to it are keyed
// by canonical column name (see schema.Bind).
type Processor interface {
	Type() models.ImportType
	ChunkSize() int
	Columns() []schema.ColumnSpec

	// ValidateFileStructure returns one error per missing required column,
	// or a single error for an empty file.
	ValidateFileStructure(sheet *spreadsheet.Sheet) []models.RowError
	// ValidateRow runs field level checks that need no I/O.
	ValidateRow(row spreadsheet.Row) []models.RowError
	// ResolveExisting looks up the entity the row refers to. It returns nil
	// when there is none, or a *RowFailure for a dangling reference.
	ResolveExisting(ctx context.Context, scope *Scope, row spreadsheet.Row) (interface{}, error)
	// Apply writes the row. A *RowFailure reports a row level problem; any
	// other error is recorded as a system error for the row.
	Apply(ctx context.Context, scope *Scope, row spreadsheet.Row, existing interface{}) error
}

// Finalizer is implemented by processors that need a hook once every row of
// a job has been applied.
type Finalizer interface {
	AfterImport(ctx context.Context, scope *Scope) error
}

// Scope is the per job state shared by the rows of one run.
type Scope struct {
	Job    *models.Job
	Logger *slog.Logger

	index *ProductIndex
	seen  map[string]int
	// stock a validate-only run has projected per product id
	projected map[uint]int
}

func NewScope(job *models.Job, logger *slog.Logger) *Scope {
	return &Scope{
		Job:       job,
		Logger:    logger.With("job_id", job.ID, "tenant_id", job.TenantID),
		seen:      make(map[string]int),
		projected: make(map[uint]int),
	}
}

// ProjectedStock returns the stock earlier rows of this run left the product
// at, or stored when no row touched it yet.
func (s *Scope) ProjectedStock(productID uint, stored int) int {
	if stock, ok := s.projected[productID]; ok {
		return stock
	}
	return stored
}

func (s *Scope) SetProjectedStock(productID uint, stock int) {
	s.projected[productID] = stock
}

func (s *Scope) TenantID() uint {
	return s.Job.TenantID
}

func (s *Scope) Options() models.JobOptions {
	return s.Job.Options
}

func (s *Scope) ValidateOnly() bool {
	return s.Job.Options.ValidateOnly
}

// firstSeen records key for line and returns the earlier line that used the
// same key, if any.
func (s *Scope) firstSeen(key string, line int) (int, bool) {
	if prev, ok := s.seen[key]; ok && prev != line {
		return prev, true
	}
	s.seen[key] = line
	return 0, false
}

// RowFailure carries classified errors for a single row.
type RowFailure struct {
	Errors []models.RowError
}

func (f *RowFailure) Error() string {
	msgs := make([]string, len(f.Errors))
	for i, e := range f.Errors {
		msgs[i] = e.String()
	}
	return strings.Join(msgs, "; ")
}

func rowFailure(row spreadsheet.Row, column string, kind models.ErrorKind, format string, args ...interface{}) *RowFailure {
	return &RowFailure{Errors: []models.RowError{fieldError(row, column, kind, format, args...)}}
}

func fieldError(row spreadsheet.Row, column string, kind models.ErrorKind, format string, args ...interface{}) models.RowError {
	return models.RowError{
		Row:      row.Line,
		Column:   column,
		RawValue: row.Value(column),
		Message:  fmt.Sprintf(format, args...),
		Kind:     kind,
	}
}

// StructuralError aborts a job before any row is processed.
type StructuralError struct {
	Errors []models.RowError
}

func (e *StructuralError) Error() string {
	if len(e.Errors) == 1 {
		return "invalid file: " + e.Errors[0].Message
	}
	return fmt.Sprintf("invalid file: %d structural errors", len(e.Errors))
}

// ValidateStructure is the shared structure check: the sheet must have data
// rows and every required column. Its errors are file level, so they carry
// the system kind the failed job reports.
func ValidateStructure(specs []schema.ColumnSpec, sheet *spreadsheet.Sheet) []models.RowError {
	if sheet == nil || len(sheet.Headers) == 0 || len(sheet.Rows) == 0 {
		return []models.RowError{models.SystemError("file is empty")}
	}
	var errs []models.RowError
	for _, name := range schema.MissingRequired(specs, sheet.Headers) {
		errs = append(errs, models.RowError{
			Row:     0,
			Column:  name,
			Message: fmt.Sprintf("missing required column %q", name),
			Kind:    models.ErrorKindSystem,
		})
	}
	return errs
}

// columnSet provides Columns and ValidateFileStructure from a column table.
type columnSet struct {
	specs []schema.ColumnSpec
}

func (c columnSet) Columns() []schema.ColumnSpec {
	out := make([]schema.ColumnSpec, len(c.specs))
	copy(out, c.specs)
	return out
}

func (c columnSet) ValidateFileStructure(sheet *spreadsheet.Sheet) []models.RowError {
	return ValidateStructure(c.specs, sheet)
}
