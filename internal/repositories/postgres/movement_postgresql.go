package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/SAP-F-2025/inventory-import-service/internal/models"
	"github.com/SAP-F-2025/inventory-import-service/internal/repositories"
	"gorm.io/gorm"
)

type MovementPostgreSQL struct {
	db *gorm.DB
}

func NewMovementPostgreSQL(db *gorm.DB) repositories.MovementRepository {
	return &MovementPostgreSQL{db: db}
}

func (m *MovementPostgreSQL) Create(ctx context.Context, tx *gorm.DB, movement *models.Movement) error {
	db := m.getDB(tx)
	if err := db.WithContext(ctx).Omit("Product").Create(movement).Error; err != nil {
		return fmt.Errorf("failed to create movement: %w", repositories.Translate(err))
	}
	return nil
}

func (m *MovementPostgreSQL) FindBySource(ctx context.Context, tx *gorm.DB, tenantID uint, jobID string, row int) (*models.Movement, error) {
	db := m.getDB(tx)
	var movement models.Movement
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND source_job_id = ? AND source_row = ?", tenantID, jobID, row).
		First(&movement).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find movement: %w", err)
	}
	return &movement, nil
}

func (m *MovementPostgreSQL) ListByProduct(ctx context.Context, tx *gorm.DB, tenantID, productID uint) ([]models.Movement, error) {
	db := m.getDB(tx)
	var movements []models.Movement
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND product_id = ?", tenantID, productID).
		Order("occurred_at ASC, id ASC").
		Find(&movements).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list movements: %w", err)
	}
	return movements, nil
}

func (m *MovementPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return m.db
}
