package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SAP-F-2025/inventory-import-service/internal/models"
	"github.com/SAP-F-2025/inventory-import-service/internal/repositories"
	"gorm.io/gorm"
)

type SupplierPostgreSQL struct {
	db *gorm.DB
}

func NewSupplierPostgreSQL(db *gorm.DB) repositories.SupplierRepository {
	return &SupplierPostgreSQL{db: db}
}

func (s *SupplierPostgreSQL) Create(ctx context.Context, tx *gorm.DB, supplier *models.Supplier) error {
	db := s.getDB(tx)
	if err := db.WithContext(ctx).Create(supplier).Error; err != nil {
		return fmt.Errorf("failed to create supplier: %w", repositories.Translate(err))
	}
	return nil
}

func (s *SupplierPostgreSQL) Update(ctx context.Context, tx *gorm.DB, supplier *models.Supplier) error {
	db := s.getDB(tx)
	result := db.WithContext(ctx).
		Model(&models.Supplier{}).
		Where("id = ? AND tenant_id = ?", supplier.ID, supplier.TenantID).
		Updates(map[string]interface{}{
			"name":          supplier.Name,
			"name_key":      supplier.NameKey,
			"document":      supplier.Document,
			"phone":         supplier.Phone,
			"email":         supplier.Email,
			"address":       supplier.Address,
			"contact":       supplier.Contact,
			"city":          supplier.City,
			"notes":         supplier.Notes,
			"source_job_id": supplier.SourceJobID,
			"source_row":    supplier.SourceRow,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update supplier: %w", repositories.Translate(result.Error))
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (s *SupplierPostgreSQL) FindByNameKey(ctx context.Context, tx *gorm.DB, tenantID uint, nameKey string) (*models.Supplier, error) {
	db := s.getDB(tx)
	var supplier models.Supplier
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND name_key = ?", tenantID, nameKey).
		First(&supplier).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find supplier: %w", err)
	}
	return &supplier, nil
}

func (s *SupplierPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}
