package processors

import (
	"context"
	"errors"
	"log/slog"
	"unicode/utf8"

	"github.com/SAP-F-2025/inventory-import-service/internal/models"
	"github.com/SAP-F-2025/inventory-import-service/internal/repositories"
	"github.com/SAP-F-2025/inventory-import-service/internal/schema"
	"github.com/SAP-F-2025/inventory-import-service/internal/spreadsheet"
)

// OptionDefaultCategory is the products type option applied to rows without
// a categoria.
const OptionDefaultCategory = "categoriaPorDefecto"

type productRow struct {
	name          string
	sku           string
	barcode       string
	description   string
	category      string
	purchasePrice float64
	salePrice     float64
	stock         int
	minStock      int
}

type ProductProcessor struct {
	columnSet
	repo    repositories.Repository
	indexes *ProductIndexLoader
	logger  *slog.Logger
}

func NewProductProcessor(repo repositories.Repository, indexes *ProductIndexLoader, logger *slog.Logger) *ProductProcessor {
	return &ProductProcessor{
		columnSet: columnSet{specs: schema.Columns(models.ImportTypeProducts)},
		repo:      repo,
		indexes:   indexes,
		logger:    logger.With("processor", models.ImportTypeProducts),
	}
}

func (p *ProductProcessor) Type() models.ImportType { return models.ImportTypeProducts }

func (p *ProductProcessor) ChunkSize() int { return 100 }

func (p *ProductProcessor) ValidateRow(row spreadsheet.Row) []models.RowError {
	_, errs := parseProductRow(row)
	return errs
}

func parseProductRow(row spreadsheet.Row) (productRow, []models.RowError) {
	var (
		out  productRow
		errs []models.RowError
	)

	out.name = cleanCell(row.Value(schema.ColNombre))
	switch {
	case out.name == "":
		errs = append(errs, fieldError(row, schema.ColNombre, models.ErrorKindValidation, "name is required"))
	case utf8.RuneCountInString(out.name) > 255:
		errs = append(errs, fieldError(row, schema.ColNombre, models.ErrorKindValidation, "name must be at most 255 characters"))
	}

	out.purchasePrice = requiredAmount(row, schema.ColPrecioCompra, "purchase price", &errs)
	out.salePrice = requiredAmount(row, schema.ColPrecioVenta, "sale price", &errs)

	if raw := row.Value(schema.ColStock); raw == "" {
		errs = append(errs, fieldError(row, schema.ColStock, models.ErrorKindValidation, "stock is required"))
	} else if v, err := parseInt(raw); err != nil {
		errs = append(errs, fieldError(row, schema.ColStock, models.ErrorKindValidation, "stock must be a whole number"))
	} else if v < 0 {
		errs = append(errs, fieldError(row, schema.ColStock, models.ErrorKindValidation, "stock cannot be negative"))
	} else {
		out.stock = v
	}

	if raw := row.Value(schema.ColStockMinimo); raw != "" {
		v, err := parseInt(raw)
		switch {
		case err != nil:
			errs = append(errs, fieldError(row, schema.ColStockMinimo, models.ErrorKindValidation, "minimum stock must be a whole number"))
		case v < 0:
			errs = append(errs, fieldError(row, schema.ColStockMinimo, models.ErrorKindValidation, "minimum stock cannot be negative"))
		default:
			out.minStock = v
		}
	}

	out.sku = cleanCell(row.Value(schema.ColSKU))
	if len(out.sku) > 100 {
		errs = append(errs, fieldError(row, schema.ColSKU, models.ErrorKindValidation, "sku must be at most 100 characters"))
	}
	out.barcode = cleanCell(row.Value(schema.ColCodigoBarras))
	if len(out.barcode) > 100 {
		errs = append(errs, fieldError(row, schema.ColCodigoBarras, models.ErrorKindValidation, "barcode must be at most 100 characters"))
	}
	out.description = row.Value(schema.ColDescripcion)
	out.category = cleanCell(row.Value(schema.ColCategoria))

	if len(errs) == 0 && out.salePrice < out.purchasePrice {
		errs = append(errs, fieldError(row, schema.ColPrecioVenta, models.ErrorKindValidation,
			"sale price %.2f is lower than purchase price %.2f", out.salePrice, out.purchasePrice))
	}
	return out, errs
}

// requiredAmount parses a mandatory non-negative amount, appending to errs
// on failure.
func requiredAmount(row spreadsheet.Row, column, label string, errs *[]models.RowError) float64 {
	raw := row.Value(column)
	if raw == "" {
		*errs = append(*errs, fieldError(row, column, models.ErrorKindValidation, "%s is required", label))
		return 0
	}
	v, err := parseDecimal(raw)
	if err != nil {
		*errs = append(*errs, fieldError(row, column, models.ErrorKindValidation, "%s must be a number", label))
		return 0
	}
	if v < 0 {
		*errs = append(*errs, fieldError(row, column, models.ErrorKindValidation, "%s cannot be negative", label))
		return 0
	}
	return v
}

// ResolveExisting matches by normalised name, then SKU, then barcode.
func (p *ProductProcessor) ResolveExisting(ctx context.Context, scope *Scope, row spreadsheet.Row) (interface{}, error) {
	products := p.repo.Products()
	tenantID := scope.TenantID()

	product, err := products.FindByNameKey(ctx, nil, tenantID, schema.NameKey(row.Value(schema.ColNombre)))
	if err != nil || product != nil {
		return product, err
	}
	if product, err = products.FindBySKU(ctx, nil, tenantID, cleanCell(row.Value(schema.ColSKU))); err != nil || product != nil {
		return product, err
	}
	if product, err = products.FindByBarcode(ctx, nil, tenantID, cleanCell(row.Value(schema.ColCodigoBarras))); err != nil || product != nil {
		return product, err
	}
	return nil, nil
}

func (p *ProductProcessor) Apply(ctx context.Context, scope *Scope, row spreadsheet.Row, existing interface{}) error {
	data, errs := parseProductRow(row)
	if len(errs) > 0 {
		return &RowFailure{Errors: errs}
	}
	if data.category == "" {
		data.category = scope.Options().TypeOption(OptionDefaultCategory)
	}
	nameKey := schema.NameKey(data.name)

	current, _ := existing.(*models.Product)
	if current != nil && current.WrittenBy(scope.Job.ID, row.Line) {
		return nil
	}
	if prev, dup := scope.firstSeen("product:"+nameKey, row.Line); dup && (current == nil || !scope.Options().OverwriteExisting) {
		return rowFailure(row, schema.ColNombre, models.ErrorKindDuplicate, "product %q is repeated in this file (first at row %d)", data.name, prev)
	}
	if current != nil && !scope.Options().OverwriteExisting {
		return rowFailure(row, schema.ColNombre, models.ErrorKindDuplicate, "product %q already exists", current.Name)
	}
	if scope.ValidateOnly() {
		return nil
	}

	if current != nil {
		current.Name = data.name
		current.NameKey = nameKey
		current.SKU = data.sku
		current.Barcode = data.barcode
		current.Description = data.description
		current.Category = data.category
		current.PurchasePrice = data.purchasePrice
		current.SalePrice = data.salePrice
		current.Stock = data.stock
		current.MinStock = data.minStock
		current.SourceJobID = scope.Job.ID
		current.SourceRow = row.Line
		if err := p.repo.Products().Update(ctx, nil, current); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return rowFailure(row, schema.ColNombre, models.ErrorKindDuplicate, "another product is already named %q", data.name)
			}
			return err
		}
		return nil
	}

	product := &models.Product{
		TenantID:      scope.TenantID(),
		Name:          data.name,
		NameKey:       nameKey,
		SKU:           data.sku,
		Barcode:       data.barcode,
		Description:   data.description,
		Category:      data.category,
		PurchasePrice: data.purchasePrice,
		SalePrice:     data.salePrice,
		Stock:         data.stock,
		MinStock:      data.minStock,
		SourceJobID:   scope.Job.ID,
		SourceRow:     row.Line,
	}
	if err := p.repo.Products().Create(ctx, nil, product); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return rowFailure(row, schema.ColNombre, models.ErrorKindDuplicate, "product %q already exists", data.name)
		}
		return err
	}
	return nil
}

// AfterImport drops the tenant's cached product index so movement imports
// see the new catalogue.
func (p *ProductProcessor) AfterImport(ctx context.Context, scope *Scope) error {
	if scope.ValidateOnly() {
		return nil
	}
	p.indexes.Invalidate(ctx, scope.TenantID())
	return nil
}
