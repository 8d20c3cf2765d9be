package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SAP-F-2025/inventory-import-service/internal/models"
	"github.com/SAP-F-2025/inventory-import-service/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.Product{}, &models.Supplier{}, &models.Movement{}))
	return db
}

func seedProduct(t *testing.T, repo *Repository, tenantID uint, name string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{
		TenantID:      tenantID,
		Name:          name,
		NameKey:       name,
		SKU:           "SKU-" + name,
		Barcode:       "779" + name,
		PurchasePrice: 10,
		SalePrice:     15,
		Stock:         stock,
	}
	require.NoError(t, repo.Products().Create(context.Background(), nil, p))
	return p
}

func TestProductLookups(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	p := seedProduct(t, repo, 1, "arroz", 10)

	byName, err := repo.Products().FindByNameKey(ctx, nil, 1, "arroz")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, p.ID, byName.ID)

	bySKU, err := repo.Products().FindBySKU(ctx, nil, 1, "SKU-arroz")
	require.NoError(t, err)
	require.NotNil(t, bySKU)

	byBarcode, err := repo.Products().FindByBarcode(ctx, nil, 1, "779arroz")
	require.NoError(t, err)
	require.NotNil(t, byBarcode)

	other, err := repo.Products().FindByNameKey(ctx, nil, 2, "arroz")
	require.NoError(t, err)
	assert.Nil(t, other)

	empty, err := repo.Products().FindBySKU(ctx, nil, 1, "")
	require.NoError(t, err)
	assert.Nil(t, empty)

	_, err = repo.Products().GetByID(ctx, nil, 2, p.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	refs, err := repo.Products().ListRefs(ctx, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, []models.ProductRef{p.Ref()}, refs)
}

func TestProductDuplicateNameKey(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	seedProduct(t, repo, 1, "arroz", 0)

	err := repo.Products().Create(context.Background(), nil, &models.Product{TenantID: 1, Name: "Arroz", NameKey: "arroz"})
	assert.ErrorIs(t, err, repositories.ErrDuplicate)

	err = repo.Products().Create(context.Background(), nil, &models.Product{TenantID: 2, Name: "Arroz", NameKey: "arroz"})
	assert.NoError(t, err)
}

func TestProductUpdate(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	p := seedProduct(t, repo, 1, "arroz", 10)

	p.SalePrice = 18
	p.SourceJobID = "job-1"
	p.SourceRow = 4
	require.NoError(t, repo.Products().Update(ctx, nil, p))

	stored, err := repo.Products().GetByID(ctx, nil, 1, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 18.0, stored.SalePrice)
	assert.True(t, stored.WrittenBy("job-1", 4))

	assert.ErrorIs(t, repo.Products().Update(ctx, nil, &models.Product{ID: 999, TenantID: 1}), repositories.ErrNotFound)
}

func TestAdjustStock(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	p := seedProduct(t, repo, 1, "arroz", 10)

	before, after, err := repo.Products().AdjustStock(ctx, nil, 1, p.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 10, before)
	assert.Equal(t, 15, after)

	before, after, err = repo.Products().AdjustStock(ctx, nil, 1, p.ID, -15)
	require.NoError(t, err)
	assert.Equal(t, 15, before)
	assert.Equal(t, 0, after)

	_, after, err = repo.Products().AdjustStock(ctx, nil, 1, p.ID, -1)
	assert.ErrorIs(t, err, repositories.ErrInsufficientStock)
	assert.Equal(t, 0, after)

	_, _, err = repo.Products().AdjustStock(ctx, nil, 2, p.ID, 1)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestSetStockCompareAndSet(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	p := seedProduct(t, repo, 1, "arroz", 10)

	require.NoError(t, repo.Products().SetStock(ctx, nil, 1, p.ID, 10, 3))
	assert.ErrorIs(t, repo.Products().SetStock(ctx, nil, 1, p.ID, 10, 7), repositories.ErrStockConflict)
	assert.ErrorIs(t, repo.Products().SetStock(ctx, nil, 1, 999, 0, 7), repositories.ErrNotFound)

	stored, err := repo.Products().GetByID(ctx, nil, 1, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Stock)
}

func TestSupplierRepository(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	s := &models.Supplier{TenantID: 1, Name: "Distribuidora Sur", NameKey: "distribuidorasur", Email: "ventas@sur.com"}
	require.NoError(t, repo.Suppliers().Create(ctx, nil, s))

	found, err := repo.Suppliers().FindByNameKey(ctx, nil, 1, "distribuidorasur")
	require.NoError(t, err)
	require.NotNil(t, found)

	found.Phone = "555-1234"
	require.NoError(t, repo.Suppliers().Update(ctx, nil, found))

	again, err := repo.Suppliers().FindByNameKey(ctx, nil, 1, "distribuidorasur")
	require.NoError(t, err)
	assert.Equal(t, "555-1234", again.Phone)

	missing, err := repo.Suppliers().FindByNameKey(ctx, nil, 1, "otro")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMovementsAndTransactionRollback(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	p := seedProduct(t, repo, 1, "arroz", 10)

	err := repo.Transaction(ctx, func(tx *gorm.DB) error {
		before, after, err := repo.Products().AdjustStock(ctx, tx, 1, p.ID, -4)
		if err != nil {
			return err
		}
		return repo.Movements().Create(ctx, tx, &models.Movement{
			TenantID:    1,
			ProductID:   p.ID,
			Type:        models.MovementOut,
			Quantity:    4,
			StockBefore: before,
			StockAfter:  after,
			OccurredAt:  time.Now(),
			UserID:      1,
			SourceJobID: "job-1",
			SourceRow:   2,
		})
	})
	require.NoError(t, err)

	m, err := repo.Movements().FindBySource(ctx, nil, 1, "job-1", 2)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 10, m.StockBefore)
	assert.Equal(t, 6, m.StockAfter)

	none, err := repo.Movements().FindBySource(ctx, nil, 1, "job-1", 3)
	require.NoError(t, err)
	assert.Nil(t, none)

	boom := errors.New("boom")
	err = repo.Transaction(ctx, func(tx *gorm.DB) error {
		if _, _, err := repo.Products().AdjustStock(ctx, tx, 1, p.ID, 100); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	stored, err := repo.Products().GetByID(ctx, nil, 1, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, stored.Stock)

	list, err := repo.Movements().ListByProduct(ctx, nil, 1, p.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
