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

type ProductPostgreSQL struct {
	db *gorm.DB
}

func NewProductPostgreSQL(db *gorm.DB) repositories.ProductRepository {
	return &ProductPostgreSQL{db: db}
}

func (p *ProductPostgreSQL) Create(ctx context.Context, tx *gorm.DB, product *models.Product) error {
	db := p.getDB(tx)
	if err := db.WithContext(ctx).Create(product).Error; err != nil {
		return fmt.Errorf("failed to create product: %w", repositories.Translate(err))
	}
	return nil
}

func (p *ProductPostgreSQL) Update(ctx context.Context, tx *gorm.DB, product *models.Product) error {
	db := p.getDB(tx)
	result := db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND tenant_id = ?", product.ID, product.TenantID).
		Updates(map[string]interface{}{
			"name":           product.Name,
			"name_key":       product.NameKey,
			"sku":            product.SKU,
			"barcode":        product.Barcode,
			"description":    product.Description,
			"category":       product.Category,
			"purchase_price": product.PurchasePrice,
			"sale_price":     product.SalePrice,
			"stock":          product.Stock,
			"min_stock":      product.MinStock,
			"source_job_id":  product.SourceJobID,
			"source_row":     product.SourceRow,
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update product: %w", repositories.Translate(result.Error))
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (p *ProductPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, tenantID, id uint) (*models.Product, error) {
	db := p.getDB(tx)
	var product models.Product
	err := db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&product, id).Error
	if err != nil {
		return nil, repositories.Translate(err)
	}
	return &product, nil
}

func (p *ProductPostgreSQL) FindByNameKey(ctx context.Context, tx *gorm.DB, tenantID uint, nameKey string) (*models.Product, error) {
	return p.findOne(ctx, tx, "tenant_id = ? AND name_key = ?", tenantID, nameKey)
}

func (p *ProductPostgreSQL) FindBySKU(ctx context.Context, tx *gorm.DB, tenantID uint, sku string) (*models.Product, error) {
	if sku == "" {
		return nil, nil
	}
	return p.findOne(ctx, tx, "tenant_id = ? AND sku = ?", tenantID, sku)
}

func (p *ProductPostgreSQL) FindByBarcode(ctx context.Context, tx *gorm.DB, tenantID uint, barcode string) (*models.Product, error) {
	if barcode == "" {
		return nil, nil
	}
	return p.findOne(ctx, tx, "tenant_id = ? AND barcode = ?", tenantID, barcode)
}

func (p *ProductPostgreSQL) ListRefs(ctx context.Context, tx *gorm.DB, tenantID uint) ([]models.ProductRef, error) {
	db := p.getDB(tx)
	var refs []models.ProductRef
	err := db.WithContext(ctx).
		Model(&models.Product{}).
		Select("id", "name", "sku", "barcode").
		Where("tenant_id = ?", tenantID).
		Order("id ASC").
		Scan(&refs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return refs, nil
}

func (p *ProductPostgreSQL) AdjustStock(ctx context.Context, tx *gorm.DB, tenantID, id uint, delta int) (int, int, error) {
	db := p.getDB(tx)
	result := db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND tenant_id = ? AND stock + ? >= 0", id, tenantID, delta).
		Updates(map[string]interface{}{
			"stock":      gorm.Expr("stock + ?", delta),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, 0, fmt.Errorf("failed to adjust stock: %w", result.Error)
	}

	var stocks []int
	err := db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Pluck("stock", &stocks).Error
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read stock: %w", err)
	}
	if len(stocks) == 0 {
		return 0, 0, repositories.ErrNotFound
	}
	after := stocks[0]
	if result.RowsAffected == 0 {
		return after, after, repositories.ErrInsufficientStock
	}
	return after - delta, after, nil
}

func (p *ProductPostgreSQL) SetStock(ctx context.Context, tx *gorm.DB, tenantID, id uint, expected, value int) error {
	db := p.getDB(tx)
	result := db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND tenant_id = ? AND stock = ?", id, tenantID, expected).
		Updates(map[string]interface{}{
			"stock":      value,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to set stock: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		exists, err := p.exists(ctx, db, tenantID, id)
		if err != nil {
			return err
		}
		if !exists {
			return repositories.ErrNotFound
		}
		return repositories.ErrStockConflict
	}
	return nil
}

func (p *ProductPostgreSQL) findOne(ctx context.Context, tx *gorm.DB, query string, args ...interface{}) (*models.Product, error) {
	db := p.getDB(tx)
	var product models.Product
	err := db.WithContext(ctx).Where(query, args...).Order("id ASC").First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find product: %w", err)
	}
	return &product, nil
}

func (p *ProductPostgreSQL) exists(ctx context.Context, db *gorm.DB, tenantID, id uint) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check product: %w", err)
	}
	return count > 0, nil
}

func (p *ProductPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return p.db
}
