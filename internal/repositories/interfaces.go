package repositories

import (
	"context"

	"github.com/SAP-F-2025/inventory-import-service/internal/models"
	"gorm.io/gorm"
)

// Every method takes an optional transaction. A nil tx runs on the base
// connection.

// ProductRepository interface for tenant product operations
type ProductRepository interface {
	Create(ctx context.Context, tx *gorm.DB, product *models.Product) error
	Update(ctx context.Context, tx *gorm.DB, product *models.Product) error
	GetByID(ctx context.Context, tx *gorm.DB, tenantID, id uint) (*models.Product, error)

	// Lookups return (nil, nil) when nothing matches.
	FindByNameKey(ctx context.Context, tx *gorm.DB, tenantID uint, nameKey string) (*models.Product, error)
	FindBySKU(ctx context.Context, tx *gorm.DB, tenantID uint, sku string) (*models.Product, error)
	FindByBarcode(ctx context.Context, tx *gorm.DB, tenantID uint, barcode string) (*models.Product, error)
	ListRefs(ctx context.Context, tx *gorm.DB, tenantID uint) ([]models.ProductRef, error)

	// AdjustStock adds delta to the stock unless the result would be
	// negative, in which case it returns ErrInsufficientStock.
	AdjustStock(ctx context.Context, tx *gorm.DB, tenantID, id uint, delta int) (before, after int, err error)
	// SetStock writes value only if the stock still equals expected;
	// otherwise it returns ErrStockConflict.
	SetStock(ctx context.Context, tx *gorm.DB, tenantID, id uint, expected, value int) error
}

// SupplierRepository interface for tenant supplier operations
type SupplierRepository interface {
	Create(ctx context.Context, tx *gorm.DB, supplier *models.Supplier) error
	Update(ctx context.Context, tx *gorm.DB, supplier *models.Supplier) error
	FindByNameKey(ctx context.Context, tx *gorm.DB, tenantID uint, nameKey string) (*models.Supplier, error)
}

// MovementRepository interface for stock movement operations
type MovementRepository interface {
	Create(ctx context.Context, tx *gorm.DB, movement *models.Movement) error
	// FindBySource returns the movement written by a job row, or (nil, nil).
	FindBySource(ctx context.Context, tx *gorm.DB, tenantID uint, jobID string, row int) (*models.Movement, error)
	ListByProduct(ctx context.Context, tx *gorm.DB, tenantID, productID uint) ([]models.Movement, error)
}

// Repository bundles the record store used by the import processors.
type Repository interface {
	Products() ProductRepository
	Suppliers() SupplierRepository
	Movements() MovementRepository

	// Transaction runs fn in a database transaction. Returning an error from
	// fn rolls back.
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}
