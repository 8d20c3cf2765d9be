package spreadsheet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/SAP-F-2025/inventory-import-service/internal/models"
	"github.com/xuri/excelize/v2"
)

const reportSheet = "Errores"

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// ReportWriter stores the error report of a finished import and returns a
// reference to it.
type ReportWriter interface {
	WriteErrorReport(ctx context.Context, nameHint string, rowErrors []models.RowError) (string, error)
}

// ExcelReportWriter writes .xlsx reports into a directory.
type ExcelReportWriter struct {
	dir   string
	clock func() time.Time
}

func NewExcelReportWriter(dir string) *ExcelReportWriter {
	return &ExcelReportWriter{dir: dir, clock: time.Now}
}

func (w *ExcelReportWriter) WriteErrorReport(ctx context.Context, nameHint string, rowErrors []models.RowError) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return "", fmt.Errorf("failed to prepare report sheet: %w", err)
	}

	headers := []string{"Fila", "Columna", "Valor", "Tipo", "Mensaje"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(reportSheet, cell, h)
	}

	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C0392B"}, Pattern: 1},
	})
	if err == nil {
		f.SetCellStyle(reportSheet, "A1", "E1", style)
	}

	for i, rowErr := range rowErrors {
		row := i + 2
		values := []interface{}{rowErr.Row, rowErr.Column, rowErr.RawValue, string(rowErr.Kind), rowErr.Message}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(reportSheet, cell, v)
		}
	}
	f.SetColWidth(reportSheet, "A", "A", 8)
	f.SetColWidth(reportSheet, "B", "D", 18)
	f.SetColWidth(reportSheet, "E", "E", 60)

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	name := fmt.Sprintf("errores_%s_%s.xlsx", unsafeNameChars.ReplaceAllString(nameHint, "_"), w.clock().Format("20060102150405"))
	path := filepath.Join(w.dir, name)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save error report: %w", err)
	}
	return name, nil
}
