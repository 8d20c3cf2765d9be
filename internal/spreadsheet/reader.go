package spreadsheet

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	ErrInvalidFile       = errors.New("invalid spreadsheet file")
	ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")
	ErrFileNotFound      = errors.New("spreadsheet file not found")
)

// Row is one data row keyed by header. Line is the 1-based line in the sheet,
// so the first data row is line 2.
type Row struct {
	Line   int
	Values map[string]string
}

// Value returns the trimmed cell under key, or "".
func (r Row) Value(key string) string {
	return strings.TrimSpace(r.Values[key])
}

// Sheet is the first worksheet of a file: its header row and non-blank data rows.
type Sheet struct {
	Name    string
	Headers []string
	Rows    []Row
}

// Reader resolves a source file reference into rows.
type Reader interface {
	Read(ctx context.Context, ref string) (*Sheet, error)
	// Fingerprint returns the hex SHA-256 of the file content.
	Fingerprint(ctx context.Context, ref string) (string, error)
}

// LocalFileReader reads uploads stored under a base directory.
type LocalFileReader struct {
	baseDir string
}

func NewLocalFileReader(baseDir string) *LocalFileReader {
	return &LocalFileReader{baseDir: baseDir}
}

func (r *LocalFileReader) Read(ctx context.Context, ref string) (*Sheet, error) {
	data, err := r.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	return Parse(ref, data)
}

func (r *LocalFileReader) Fingerprint(ctx context.Context, ref string) (string, error) {
	data, err := r.load(ctx, ref)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func (r *LocalFileReader) load(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := r.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref, err)
	}
	return data, nil
}

// resolve keeps references inside baseDir.
func (r *LocalFileReader) resolve(ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", fmt.Errorf("%w: empty file reference", ErrInvalidFile)
	}
	if r.baseDir == "" {
		return filepath.Clean(ref), nil
	}
	base, err := filepath.Abs(r.baseDir)
	if err != nil {
		return "", err
	}
	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, ref)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(base, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside the upload directory", ErrInvalidFile, ref)
	}
	return path, nil
}

// Parse picks a parser from the file extension.
func Parse(name string, data []byte) (*Sheet, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm", ".xltx":
		return ParseXLSX(bytes.NewReader(data))
	case ".csv", ".txt":
		return ParseCSV(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

func ParseCSV(reader io.Reader) (*Sheet, error) {
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	return build("csv", records), nil
}

func ParseXLSX(reader io.Reader) (*Sheet, error) {
	f, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrInvalidFile)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	return build(sheets[0], rows), nil
}

func build(name string, records [][]string) *Sheet {
	sheet := &Sheet{Name: name}
	if len(records) == 0 {
		return sheet
	}

	// Strip a UTF-8 BOM left by spreadsheet exports.
	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		headers[i] = strings.TrimSpace(h)
	}
	sheet.Headers = headers

	for i, record := range records[1:] {
		if blank(record) {
			continue
		}
		values := make(map[string]string, len(headers))
		for col, header := range headers {
			if header == "" {
				continue
			}
			if col < len(record) {
				values[header] = record[col]
			} else {
				values[header] = ""
			}
		}
		sheet.Rows = append(sheet.Rows, Row{Line: i + 2, Values: values})
	}
	return sheet
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
