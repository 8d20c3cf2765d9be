package services

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/SAP-F-2025/inventory-import-service/internal/models"
	"github.com/SAP-F-2025/inventory-import-service/internal/schema"
)

// minPartialKeyLen keeps very short aliases from matching inside unrelated
// headers.
const minPartialKeyLen = 3

// TypeDetector scores a header row against the column table of every import
// type. It does no I/O.
type TypeDetector struct {
	types []models.ImportType
}

func NewTypeDetector() *TypeDetector {
	return &TypeDetector{types: models.AllImportTypes()}
}

// Detect returns one result per import type, best first. Ties on confidence
// go to the type with more required columns, then to canonical order.
func (d *TypeDetector) Detect(columns []string) []models.TypeDetectionResult {
	headers := make([]string, 0, len(columns))
	for _, c := range columns {
		if key := schema.Normalize(c); key != "" {
			headers = append(headers, key)
		}
	}

	type scored struct {
		result   models.TypeDetectionResult
		required int
		order    int
	}
	all := make([]scored, 0, len(d.types))
	for i, t := range d.types {
		specs := schema.Columns(t)
		all = append(all, scored{
			result:   score(t, specs, headers),
			required: len(schema.RequiredColumns(specs)),
			order:    i,
		})
	}

	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.result.Confidence != b.result.Confidence {
			return a.result.Confidence > b.result.Confidence
		}
		if a.required != b.required {
			return a.required > b.required
		}
		return a.order < b.order
	})

	results := make([]models.TypeDetectionResult, len(all))
	for i, s := range all {
		results[i] = s.result
	}
	return results
}

func score(t models.ImportType, specs []schema.ColumnSpec, headers []string) models.TypeDetectionResult {
	claimed := make([]bool, len(headers))
	exact := make(map[string]bool, len(specs))
	partial := make(map[string]bool)
	var total, earned float64

	for _, spec := range specs {
		total += float64(spec.Weight)
		if i := findExact(spec, headers, claimed); i >= 0 {
			claimed[i] = true
			exact[spec.Name] = true
			earned += float64(spec.Weight)
		}
	}
	for _, spec := range specs {
		if exact[spec.Name] {
			continue
		}
		if i := findPartial(spec, headers, claimed); i >= 0 {
			claimed[i] = true
			partial[spec.Name] = true
			earned += float64(spec.Weight) / 2
		}
	}

	result := models.TypeDetectionResult{
		ImportType:             t,
		MatchedColumns:         []string{},
		MissingRequiredColumns: []string{},
	}
	if total > 0 {
		result.Confidence = int(math.Round(earned / total * 100))
	}
	for _, spec := range specs {
		if exact[spec.Name] || partial[spec.Name] {
			result.MatchedColumns = append(result.MatchedColumns, spec.Name)
		}
		// Only an exact header can be bound to a required column.
		if spec.Required && !exact[spec.Name] {
			result.MissingRequiredColumns = append(result.MissingRequiredColumns, spec.Name)
		}
	}
	result.Rationale = rationale(len(specs), len(exact), len(partial), result.MissingRequiredColumns)
	return result
}

func findExact(spec schema.ColumnSpec, headers []string, claimed []bool) int {
	for _, key := range spec.Keys() {
		for i, h := range headers {
			if !claimed[i] && h == key {
				return i
			}
		}
	}
	return -1
}

func findPartial(spec schema.ColumnSpec, headers []string, claimed []bool) int {
	for _, key := range spec.Keys() {
		if len(key) < minPartialKeyLen {
			continue
		}
		for i, h := range headers {
			if !claimed[i] && strings.Contains(h, key) {
				return i
			}
		}
	}
	return -1
}

func rationale(columns, exact, partial int, missing []string) string {
	msg := fmt.Sprintf("matched %d of %d columns (%d exact, %d partial)", exact+partial, columns, exact, partial)
	if len(missing) == 0 {
		return msg + "; all required columns present"
	}
	return msg + "; missing required: " + strings.Join(missing, ", ")
}

// BestMatch returns the top result when it clears minConfidence and has every
// required column.
func BestMatch(results []models.TypeDetectionResult, minConfidence int) (models.TypeDetectionResult, bool) {
	if len(results) == 0 {
		return models.TypeDetectionResult{}, false
	}
	best := results[0]
	return best, best.Confidence >= minConfidence && len(best.MissingRequiredColumns) == 0
}
