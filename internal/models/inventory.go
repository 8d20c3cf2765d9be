package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Product is a tenant scoped catalogue entry. NameKey is the normalised name
// used for duplicate detection.
type Product struct {
	ID            uint    `json:"id" gorm:"primaryKey"`
	TenantID      uint    `json:"tenant_id" gorm:"not null;uniqueIndex:idx_products_tenant_name,priority:1"`
	Name          string  `json:"name" gorm:"not null;size:255"`
	NameKey       string  `json:"-" gorm:"not null;size:255;uniqueIndex:idx_products_tenant_name,priority:2"`
	SKU           string  `json:"sku,omitempty" gorm:"size:100;index"`
	Barcode       string  `json:"barcode,omitempty" gorm:"size:100;index"`
	Description   string  `json:"description,omitempty" gorm:"type:text"`
	Category      string  `json:"category,omitempty" gorm:"size:100"`
	PurchasePrice float64 `json:"purchase_price" gorm:"not null;default:0"`
	SalePrice     float64 `json:"sale_price" gorm:"not null;default:0"`
	Stock         int     `json:"stock" gorm:"not null;default:0"`
	MinStock      int     `json:"min_stock" gorm:"not null;default:0"`

	// Provenance of the last import write; used to recognise replayed rows.
	SourceJobID string `json:"source_job_id,omitempty" gorm:"size:36;index"`
	SourceRow   int    `json:"source_row,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WrittenBy reports whether the product was last written by the given job row.
func (p *Product) WrittenBy(jobID string, row int) bool {
	return p.SourceJobID != "" && p.SourceJobID == jobID && p.SourceRow == row
}

func (p *Product) Ref() ProductRef {
	return ProductRef{ID: p.ID, Name: p.Name, SKU: p.SKU, Barcode: p.Barcode}
}

// ProductRef is the lookup projection cached per tenant.
type ProductRef struct {
	ID      uint   `json:"id"`
	Name    string `json:"name"`
	SKU     string `json:"sku,omitempty"`
	Barcode string `json:"barcode,omitempty"`
}

type Supplier struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	TenantID uint   `json:"tenant_id" gorm:"not null;uniqueIndex:idx_suppliers_tenant_name,priority:1"`
	Name     string `json:"name" gorm:"not null;size:255"`
	NameKey  string `json:"-" gorm:"not null;size:255;uniqueIndex:idx_suppliers_tenant_name,priority:2"`
	Document string `json:"document,omitempty" gorm:"size:50"`
	Phone    string `json:"phone,omitempty" gorm:"size:50"`
	Email    string `json:"email,omitempty" gorm:"size:255"`
	Address  string `json:"address,omitempty" gorm:"size:255"`
	Contact  string `json:"contact,omitempty" gorm:"size:255"`
	City     string `json:"city,omitempty" gorm:"size:100"`
	Notes    string `json:"notes,omitempty" gorm:"type:text"`

	SourceJobID string `json:"source_job_id,omitempty" gorm:"size:36;index"`
	SourceRow   int    `json:"source_row,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Supplier) WrittenBy(jobID string, row int) bool {
	return s.SourceJobID != "" && s.SourceJobID == jobID && s.SourceRow == row
}

type MovementType string

const (
	MovementIn         MovementType = "entrada"
	MovementOut        MovementType = "salida"
	MovementAdjustment MovementType = "ajuste"
)

var movementTypeAliases = map[string]MovementType{
	"entrada":    MovementIn,
	"ingreso":    MovementIn,
	"in":         MovementIn,
	"entry":      MovementIn,
	"salida":     MovementOut,
	"egreso":     MovementOut,
	"out":        MovementOut,
	"exit":       MovementOut,
	"ajuste":     MovementAdjustment,
	"adjustment": MovementAdjustment,
}

// ParseMovementType returns false for values outside the known set.
func ParseMovementType(s string) (MovementType, bool) {
	t, ok := movementTypeAliases[strings.ToLower(strings.TrimSpace(s))]
	return t, ok
}

// Movement records a stock change for a product. StockBefore/StockAfter are
// the values observed inside the write transaction.
type Movement struct {
	ID          uint         `json:"id" gorm:"primaryKey"`
	TenantID    uint         `json:"tenant_id" gorm:"not null;index"`
	ProductID   uint         `json:"product_id" gorm:"not null;index"`
	Type        MovementType `json:"type" gorm:"not null;size:20"`
	Quantity    int          `json:"quantity" gorm:"not null"`
	StockBefore int          `json:"stock_before"`
	StockAfter  int          `json:"stock_after"`
	UnitPrice   *float64     `json:"unit_price,omitempty"`
	Reason      string       `json:"reason,omitempty" gorm:"size:255"`
	Reference   string       `json:"reference,omitempty" gorm:"size:100"`
	OccurredAt  time.Time    `json:"occurred_at" gorm:"not null"`
	UserID      uint         `json:"user_id" gorm:"not null"`

	SourceJobID string `json:"source_job_id,omitempty" gorm:"size:36;index:idx_movements_source,priority:1"`
	SourceRow   int    `json:"source_row,omitempty" gorm:"index:idx_movements_source,priority:2"`

	Details datatypes.JSON `json:"details,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	Product *Product `json:"product,omitempty" gorm:"foreignKey:ProductID"`
}
