package postgres

import (
	"context"

	"github.com/SAP-F-2025/inventory-import-service/internal/repositories"
	"gorm.io/gorm"
)

type Repository struct {
	db        *gorm.DB
	products  repositories.ProductRepository
	suppliers repositories.SupplierRepository
	movements repositories.MovementRepository
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:        db,
		products:  NewProductPostgreSQL(db),
		suppliers: NewSupplierPostgreSQL(db),
		movements: NewMovementPostgreSQL(db),
	}
}

var _ repositories.Repository = (*Repository)(nil)

func (r *Repository) Products() repositories.ProductRepository   { return r.products }
func (r *Repository) Suppliers() repositories.SupplierRepository { return r.suppliers }
func (r *Repository) Movements() repositories.MovementRepository { return r.movements }

func (r *Repository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}
