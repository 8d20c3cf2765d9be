package processors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/inventory-import-service/internal/models"
	"github.com/SAP-F-2025/inventory-import-service/internal/repositories"
	"github.com/SAP-F-2025/inventory-import-service/internal/schema"
	"github.com/SAP-F-2025/inventory-import-service/internal/spreadsheet"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OptionDefaultReason is the movements type option applied to rows without
// a motivo.
const OptionDefaultReason = "motivoPorDefecto"

const (
	maxFutureSkew   = 24 * time.Hour
	maxStockRetries = 3
)

type movementRow struct {
	product    string
	kind       models.MovementType
	rawKind    string
	quantity   int
	occurredAt time.Time
	reason     string
	reference  string
	unitPrice  *float64
}

type MovementProcessor struct {
	columnSet
	repo    repositories.Repository
	indexes *ProductIndexLoader
	logger  *slog.Logger
	clock   func() time.Time
}

func NewMovementProcessor(repo repositories.Repository, indexes *ProductIndexLoader, logger *slog.Logger) *MovementProcessor {
	return &MovementProcessor{
		columnSet: columnSet{specs: schema.Columns(models.ImportTypeMovements)},
		repo:      repo,
		indexes:   indexes,
		logger:    logger.With("processor", models.ImportTypeMovements),
		clock:     time.Now,
	}
}

func (p *MovementProcessor) Type() models.ImportType { return models.ImportTypeMovements }

func (p *MovementProcessor) ChunkSize() int { return 50 }

func (p *MovementProcessor) ValidateRow(row spreadsheet.Row) []models.RowError {
	_, errs := p.parseRow(row)
	return errs
}

func (p *MovementProcessor) parseRow(row spreadsheet.Row) (movementRow, []models.RowError) {
	var errs []models.RowError
	out := movementRow{
		product:   cleanCell(row.Value(schema.ColProducto)),
		rawKind:   row.Value(schema.ColTipo),
		reason:    row.Value(schema.ColMotivo),
		reference: cleanCell(row.Value(schema.ColReferencia)),
	}

	if out.product == "" {
		errs = append(errs, fieldError(row, schema.ColProducto, models.ErrorKindValidation, "product is required"))
	}

	kindOK := false
	if out.rawKind == "" {
		errs = append(errs, fieldError(row, schema.ColTipo, models.ErrorKindValidation, "movement type is required"))
	} else if out.kind, kindOK = models.ParseMovementType(out.rawKind); !kindOK {
		errs = append(errs, fieldError(row, schema.ColTipo, models.ErrorKindValidation,
			"movement type must be one of %s, %s, %s", models.MovementIn, models.MovementOut, models.MovementAdjustment))
	}

	if raw := row.Value(schema.ColCantidad); raw == "" {
		errs = append(errs, fieldError(row, schema.ColCantidad, models.ErrorKindValidation, "quantity is required"))
	} else if q, err := parseInt(raw); err != nil {
		errs = append(errs, fieldError(row, schema.ColCantidad, models.ErrorKindValidation, "quantity must be a whole number"))
	} else if kindOK && out.kind == models.MovementAdjustment && q < 0 {
		errs = append(errs, fieldError(row, schema.ColCantidad, models.ErrorKindValidation, "adjusted stock cannot be negative"))
	} else if kindOK && out.kind != models.MovementAdjustment && q <= 0 {
		errs = append(errs, fieldError(row, schema.ColCantidad, models.ErrorKindValidation, "quantity must be greater than zero"))
	} else {
		out.quantity = q
	}

	now := p.clock()
	out.occurredAt = now.UTC()
	if raw := row.Value(schema.ColFecha); raw != "" {
		t, err := parseDate(raw)
		switch {
		case err != nil:
			errs = append(errs, fieldError(row, schema.ColFecha, models.ErrorKindValidation, "date is not in a recognised format"))
		case t.After(now.Add(maxFutureSkew)):
			errs = append(errs, fieldError(row, schema.ColFecha, models.ErrorKindValidation, "date cannot be more than one day in the future"))
		default:
			out.occurredAt = t
		}
	}

	if raw := row.Value(schema.ColPrecioUnitario); raw != "" {
		v, err := parseDecimal(raw)
		switch {
		case err != nil:
			errs = append(errs, fieldError(row, schema.ColPrecioUnitario, models.ErrorKindValidation, "unit price must be a number"))
		case v < 0:
			errs = append(errs, fieldError(row, schema.ColPrecioUnitario, models.ErrorKindValidation, "unit price cannot be negative"))
		default:
			out.unitPrice = &v
		}
	}
	return out, errs
}

// ResolveExisting finds the referenced product through the tenant index,
// falling back to the record store when the index is stale.
func (p *MovementProcessor) ResolveExisting(ctx context.Context, scope *Scope, row spreadsheet.Row) (interface{}, error) {
	value := cleanCell(row.Value(schema.ColProducto))
	products := p.repo.Products()

	idx, err := scope.productIndex(ctx, p.indexes)
	if err != nil {
		return nil, err
	}
	if ref, ok := idx.Lookup(value); ok {
		product, err := products.GetByID(ctx, nil, scope.TenantID(), ref.ID)
		if err == nil {
			return product, nil
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return nil, err
		}
	}

	tenantID := scope.TenantID()
	for _, find := range []func() (*models.Product, error){
		func() (*models.Product, error) { return products.FindByNameKey(ctx, nil, tenantID, schema.NameKey(value)) },
		func() (*models.Product, error) { return products.FindBySKU(ctx, nil, tenantID, value) },
		func() (*models.Product, error) { return products.FindByBarcode(ctx, nil, tenantID, value) },
	} {
		product, err := find()
		if err != nil {
			return nil, err
		}
		if product != nil {
			idx.Add(product.Ref())
			return product, nil
		}
	}
	return nil, rowFailure(row, schema.ColProducto, models.ErrorKindReference, "product %q not found", value)
}

// Apply writes the movement and the stock change in one transaction. A row
// already written by this job is skipped so redelivery never counts stock
// twice.
func (p *MovementProcessor) Apply(ctx context.Context, scope *Scope, row spreadsheet.Row, existing interface{}) error {
	data, errs := p.parseRow(row)
	if len(errs) > 0 {
		return &RowFailure{Errors: errs}
	}
	product, ok := existing.(*models.Product)
	if !ok || product == nil {
		return rowFailure(row, schema.ColProducto, models.ErrorKindReference, "product %q not found", data.product)
	}
	if data.reason == "" {
		data.reason = scope.Options().TypeOption(OptionDefaultReason)
	}

	if scope.ValidateOnly() {
		return projectStock(scope, row, product, data)
	}

	tenantID := scope.TenantID()
	return p.repo.Transaction(ctx, func(tx *gorm.DB) error {
		prior, err := p.repo.Movements().FindBySource(ctx, tx, tenantID, scope.Job.ID, row.Line)
		if err != nil {
			return err
		}
		if prior != nil {
			return nil
		}

		before, after, err := p.applyStock(ctx, tx, tenantID, product.ID, data)
		if errors.Is(err, repositories.ErrInsufficientStock) {
			return insufficientStock(row, after, data.quantity)
		}
		if errors.Is(err, repositories.ErrNotFound) {
			return rowFailure(row, schema.ColProducto, models.ErrorKindReference, "product %q not found", data.product)
		}
		if err != nil {
			return err
		}

		details, err := json.Marshal(map[string]interface{}{
			"product_cell": data.product,
			"type_cell":    data.rawKind,
			"import_type":  models.ImportTypeMovements,
		})
		if err != nil {
			return err
		}

		return p.repo.Movements().Create(ctx, tx, &models.Movement{
			TenantID:    tenantID,
			ProductID:   product.ID,
			Type:        data.kind,
			Quantity:    data.quantity,
			StockBefore: before,
			StockAfter:  after,
			UnitPrice:   data.unitPrice,
			Reason:      data.reason,
			Reference:   data.reference,
			OccurredAt:  data.occurredAt,
			UserID:      scope.Job.UserID,
			SourceJobID: scope.Job.ID,
			SourceRow:   row.Line,
			Details:     datatypes.JSON(details),
		})
	})
}

// applyStock changes the stock with a conditional update. An adjustment sets
// an absolute value and retries when the stock moved under it.
func (p *MovementProcessor) applyStock(ctx context.Context, tx *gorm.DB, tenantID, productID uint, data movementRow) (int, int, error) {
	products := p.repo.Products()
	switch data.kind {
	case models.MovementIn:
		return products.AdjustStock(ctx, tx, tenantID, productID, data.quantity)
	case models.MovementOut:
		return products.AdjustStock(ctx, tx, tenantID, productID, -data.quantity)
	}

	for attempt := 0; attempt < maxStockRetries; attempt++ {
		current, err := products.GetByID(ctx, tx, tenantID, productID)
		if err != nil {
			return 0, 0, err
		}
		err = products.SetStock(ctx, tx, tenantID, productID, current.Stock, data.quantity)
		if errors.Is(err, repositories.ErrStockConflict) {
			continue
		}
		if err != nil {
			return 0, 0, err
		}
		return current.Stock, data.quantity, nil
	}
	return 0, 0, fmt.Errorf("stock adjustment for product %d: %w", productID, repositories.ErrStockConflict)
}

// projectStock runs a movement against the scope's running balance, so a dry
// run rejects the same rows a real run would.
func projectStock(scope *Scope, row spreadsheet.Row, product *models.Product, data movementRow) error {
	current := scope.ProjectedStock(product.ID, product.Stock)
	next := data.quantity
	switch data.kind {
	case models.MovementIn:
		next = current + data.quantity
	case models.MovementOut:
		if current < data.quantity {
			return insufficientStock(row, current, data.quantity)
		}
		next = current - data.quantity
	}
	scope.SetProjectedStock(product.ID, next)
	return nil
}

func insufficientStock(row spreadsheet.Row, available, requested int) *RowFailure {
	return rowFailure(row, schema.ColCantidad, models.ErrorKindValidation,
		"insufficient stock: available %d, requested %d", available, requested)
}
