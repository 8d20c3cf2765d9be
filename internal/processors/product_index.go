package processors

import (
	"context"
	"log/slog"

	"github.com/SAP-F-2025/inventory-import-service/internal/cache"
	"github.com/SAP-F-2025/inventory-import-service/internal/models"
	"github.com/SAP-F-2025/inventory-import-service/internal/repositories"
	"github.com/SAP-F-2025/inventory-import-service/internal/schema"
)

// ProductIndex resolves a product reference from a spreadsheet cell by name,
// SKU or barcode.
type ProductIndex struct {
	byName    map[string]models.ProductRef
	bySKU     map[string]models.ProductRef
	byBarcode map[string]models.ProductRef
}

func NewProductIndex(refs []models.ProductRef) *ProductIndex {
	idx := &ProductIndex{
		byName:    make(map[string]models.ProductRef, len(refs)),
		bySKU:     make(map[string]models.ProductRef, len(refs)),
		byBarcode: make(map[string]models.ProductRef, len(refs)),
	}
	for _, ref := range refs {
		idx.Add(ref)
	}
	return idx
}

// Add indexes ref. The first product keeps a contested key.
func (i *ProductIndex) Add(ref models.ProductRef) {
	if key := schema.NameKey(ref.Name); key != "" {
		if _, ok := i.byName[key]; !ok {
			i.byName[key] = ref
		}
	}
	if ref.SKU != "" {
		if _, ok := i.bySKU[ref.SKU]; !ok {
			i.bySKU[ref.SKU] = ref
		}
	}
	if ref.Barcode != "" {
		if _, ok := i.byBarcode[ref.Barcode]; !ok {
			i.byBarcode[ref.Barcode] = ref
		}
	}
}

func (i *ProductIndex) Lookup(value string) (models.ProductRef, bool) {
	value = cleanCell(value)
	if ref, ok := i.byName[schema.NameKey(value)]; ok {
		return ref, true
	}
	if ref, ok := i.bySKU[value]; ok {
		return ref, true
	}
	ref, ok := i.byBarcode[value]
	return ref, ok
}

func (i *ProductIndex) Len() int {
	return len(i.byName)
}

// ProductIndexLoader reads a tenant's product index through the
// productosEmpresa cache namespace.
type ProductIndexLoader struct {
	products repositories.ProductRepository
	cache    cache.CacheService
	logger   *slog.Logger
}

func NewProductIndexLoader(products repositories.ProductRepository, cacheService cache.CacheService, logger *slog.Logger) *ProductIndexLoader {
	return &ProductIndexLoader{products: products, cache: cacheService, logger: logger}
}

func (l *ProductIndexLoader) Load(ctx context.Context, tenantID uint) (*ProductIndex, error) {
	key := cache.TenantProductsKey(tenantID)

	var refs []models.ProductRef
	if err := l.cache.Get(ctx, key, &refs); err == nil {
		return NewProductIndex(refs), nil
	}

	refs, err := l.products.ListRefs(ctx, nil, tenantID)
	if err != nil {
		return nil, err
	}
	if refs == nil {
		refs = []models.ProductRef{}
	}
	_ = l.cache.Set(ctx, key, refs)
	l.logger.Debug("Loaded product index", "tenant_id", tenantID, "products", len(refs))
	return NewProductIndex(refs), nil
}

func (l *ProductIndexLoader) Invalidate(ctx context.Context, tenantID uint) {
	_ = l.cache.Delete(ctx, cache.TenantProductsKey(tenantID))
}

// productIndex loads the index once per scope.
func (s *Scope) productIndex(ctx context.Context, loader *ProductIndexLoader) (*ProductIndex, error) {
	if s.index != nil {
		return s.index, nil
	}
	idx, err := loader.Load(ctx, s.TenantID())
	if err != nil {
		return nil, err
	}
	s.index = idx
	return idx, nil
}
