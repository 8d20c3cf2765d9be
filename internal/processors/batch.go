package processors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/SAP-F-2025/inventory-import-service/internal/models"
	"github.com/SAP-F-2025/inventory-import-service/internal/schema"
	"github.com/SAP-F-2025/inventory-import-service/internal/spreadsheet"
)

// Checkpoint persists the job counters at a chunk boundary. An error stops
// the run; the worker decides whether it is fatal.
type Checkpoint func(ctx context.Context, job *models.Job) error

// BatchProcessor drives one job through its type processor chunk by chunk.
type BatchProcessor struct {
	registry *Registry
	reader   spreadsheet.Reader
	reports  spreadsheet.ReportWriter
	logger   *slog.Logger
}

func NewBatchProcessor(registry *Registry, reader spreadsheet.Reader, reports spreadsheet.ReportWriter, logger *slog.Logger) *BatchProcessor {
	return &BatchProcessor{
		registry: registry,
		reader:   reader,
		reports:  reports,
		logger:   logger.With("component", "batch_processor"),
	}
}

// Process runs every row after job.ProcessedRecords and mutates the job's
// counters, errors and progress in place. Row problems never abort the
// run. A *StructuralError means the file cannot be imported at all; any other
// error is worth retrying from the last checkpoint.
func (b *BatchProcessor) Process(ctx context.Context, job *models.Job, checkpoint Checkpoint) error {
	processor, ok := b.registry.Get(job.ImportType)
	if !ok {
		return systemFailure("unsupported import type %q", job.ImportType)
	}

	sheet, err := b.reader.Read(ctx, job.SourceFileRef)
	switch {
	case errors.Is(err, spreadsheet.ErrInvalidFile),
		errors.Is(err, spreadsheet.ErrUnsupportedFormat),
		errors.Is(err, spreadsheet.ErrFileNotFound):
		return systemFailure("cannot read %s: %v", job.SourceFileRef, err)
	case err != nil:
		return fmt.Errorf("failed to read source file: %w", err)
	}

	if errs := processor.ValidateFileStructure(sheet); len(errs) > 0 {
		return &StructuralError{Errors: errs}
	}

	rows := schema.Bind(processor.Columns(), sheet)
	if job.TotalRecords != len(rows) {
		if job.ProcessedRecords > len(rows) {
			return systemFailure("source file changed: %d rows already processed but only %d present", job.ProcessedRecords, len(rows))
		}
		job.TotalRecords = len(rows)
		if err := checkpoint(ctx, job); err != nil {
			return err
		}
	}

	scope := NewScope(job, b.logger)
	logger := scope.Logger.With("import_type", job.ImportType)
	if job.ProcessedRecords > 0 {
		logger.Info("Resuming import from checkpoint", "processed", job.ProcessedRecords, "total", job.TotalRecords)
	}

	size := processor.ChunkSize()
	if size <= 0 {
		size = 50
	}
	for start := job.ProcessedRecords; start < len(rows); start += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}

		for _, row := range rows[start:end] {
			rowErrs, err := b.processRow(ctx, processor, scope, row)
			if err != nil {
				return err
			}
			job.RecordRow(rowErrs)
		}

		job.AdvanceProgress(job.ComputeProgress())
		if err := checkpoint(ctx, job); err != nil {
			return err
		}
		logger.Debug("Chunk processed", "processed", job.ProcessedRecords, "total", job.TotalRecords, "progress", job.Progress)
	}

	if finalizer, ok := processor.(Finalizer); ok {
		if err := finalizer.AfterImport(ctx, scope); err != nil {
			logger.Warn("Import finalizer failed", "error", err)
		}
	}

	if len(job.Errors) > 0 && b.reports != nil {
		ref, err := b.reports.WriteErrorReport(ctx, reportHint(job), job.Errors)
		if err != nil {
			logger.Error("Failed to write error report", "error", err)
		} else {
			job.ErrorReportRef = ref
		}
	}

	logger.Info("Import batch finished",
		"total", job.TotalRecords,
		"success", job.SuccessRecords,
		"errors", job.ErrorRecords,
		"validate_only", job.Options.ValidateOnly)
	return nil
}

// processRow returns the row's errors, or an error when the run itself was
// interrupted and the row must not be counted.
func (b *BatchProcessor) processRow(ctx context.Context, p Processor, scope *Scope, row spreadsheet.Row) (rowErrs []models.RowError, err error) {
	defer func() {
		if r := recover(); r != nil {
			scope.Logger.Error("Recovered panic while processing row", "row", row.Line, "panic", r)
			rowErrs = []models.RowError{{
				Row:     row.Line,
				Message: fmt.Sprintf("unexpected error: %v", r),
				Kind:    models.ErrorKindSystem,
			}}
			err = nil
		}
	}()

	if errs := p.ValidateRow(row); len(errs) > 0 {
		return errs, nil
	}

	existing, err := p.ResolveExisting(ctx, scope, row)
	if err != nil {
		return b.rowErrors(ctx, scope, row, err)
	}
	if err := p.Apply(ctx, scope, row, existing); err != nil {
		return b.rowErrors(ctx, scope, row, err)
	}
	return nil, nil
}

func (b *BatchProcessor) rowErrors(ctx context.Context, scope *Scope, row spreadsheet.Row, err error) ([]models.RowError, error) {
	var failure *RowFailure
	if errors.As(err, &failure) {
		return failure.Errors, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	scope.Logger.Warn("Row failed with system error", "row", row.Line, "error", err)
	return []models.RowError{{
		Row:     row.Line,
		Message: err.Error(),
		Kind:    models.ErrorKindSystem,
	}}, nil
}

func systemFailure(format string, args ...interface{}) *StructuralError {
	return &StructuralError{Errors: []models.RowError{models.SystemError(fmt.Sprintf(format, args...))}}
}

func reportHint(job *models.Job) string {
	id := job.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s_%s", job.ImportType, id)
}
