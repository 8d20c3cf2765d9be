package models

import (
	"errors"
	"strings"
)

var ErrUnknownImportType = errors.New("unknown import type")

// ImportType identifies which kind of records a spreadsheet carries.
type ImportType string

const (
	ImportTypeProducts  ImportType = "products"
	ImportTypeSuppliers ImportType = "suppliers"
	ImportTypeMovements ImportType = "movements"

	// ImportTypeAuto is only valid on requests; it is resolved to a concrete
	// type by the detector before a job is enqueued.
	ImportTypeAuto ImportType = "auto"
)

var importTypeAliases = map[string]ImportType{
	"products":     ImportTypeProducts,
	"product":      ImportTypeProducts,
	"productos":    ImportTypeProducts,
	"suppliers":    ImportTypeSuppliers,
	"supplier":     ImportTypeSuppliers,
	"proveedores":  ImportTypeSuppliers,
	"movements":    ImportTypeMovements,
	"movement":     ImportTypeMovements,
	"movimientos":  ImportTypeMovements,
	"auto":         ImportTypeAuto,
	"autodetectar": ImportTypeAuto,
}

// AllImportTypes returns the concrete import types in their canonical order.
func AllImportTypes() []ImportType {
	return []ImportType{ImportTypeProducts, ImportTypeSuppliers, ImportTypeMovements}
}

// ParseImportType accepts canonical names, the Spanish names used by
// operators and "auto".
func ParseImportType(s string) (ImportType, error) {
	t, ok := importTypeAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", ErrUnknownImportType
	}
	return t, nil
}

// IsValid reports whether t is one of the concrete import types.
func (t ImportType) IsValid() bool {
	switch t {
	case ImportTypeProducts, ImportTypeSuppliers, ImportTypeMovements:
		return true
	}
	return false
}

// Priority is the queue priority of the type; lower runs first.
func (t ImportType) Priority() int {
	switch t {
	case ImportTypeMovements:
		return 1
	case ImportTypeProducts:
		return 2
	case ImportTypeSuppliers:
		return 3
	default:
		return 9
	}
}
