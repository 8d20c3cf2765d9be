package processors

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/SAP-F-2025/inventory-import-service/internal/models"
	"github.com/SAP-F-2025/inventory-import-service/internal/repositories"
	"github.com/SAP-F-2025/inventory-import-service/internal/schema"
	"github.com/SAP-F-2025/inventory-import-service/internal/spreadsheet"
	"github.com/SAP-F-2025/inventory-import-service/internal/validator"
)

type supplierRow struct {
	name     string
	document string
	phone    string
	email    string
	address  string
	contact  string
	city     string
	notes    string
}

type SupplierProcessor struct {
	columnSet
	repo      repositories.Repository
	validator *validator.Validator
	logger    *slog.Logger
}

func NewSupplierProcessor(repo repositories.Repository, v *validator.Validator, logger *slog.Logger) *SupplierProcessor {
	return &SupplierProcessor{
		columnSet: columnSet{specs: schema.Columns(models.ImportTypeSuppliers)},
		repo:      repo,
		validator: v,
		logger:    logger.With("processor", models.ImportTypeSuppliers),
	}
}

func (p *SupplierProcessor) Type() models.ImportType { return models.ImportTypeSuppliers }

func (p *SupplierProcessor) ChunkSize() int { return 50 }

func (p *SupplierProcessor) ValidateRow(row spreadsheet.Row) []models.RowError {
	_, errs := p.parseRow(row)
	return errs
}

func (p *SupplierProcessor) parseRow(row spreadsheet.Row) (supplierRow, []models.RowError) {
	var errs []models.RowError
	out := supplierRow{
		name:     cleanCell(row.Value(schema.ColNombre)),
		document: cleanCell(row.Value(schema.ColDocumento)),
		phone:    cleanCell(row.Value(schema.ColTelefono)),
		email:    strings.ToLower(cleanCell(row.Value(schema.ColEmail))),
		address:  row.Value(schema.ColDireccion),
		contact:  row.Value(schema.ColContacto),
		city:     row.Value(schema.ColCiudad),
		notes:    row.Value(schema.ColNotas),
	}

	switch {
	case out.name == "":
		errs = append(errs, fieldError(row, schema.ColNombre, models.ErrorKindValidation, "name is required"))
	case utf8.RuneCountInString(out.name) > 255:
		errs = append(errs, fieldError(row, schema.ColNombre, models.ErrorKindValidation, "name must be at most 255 characters"))
	}
	if len(out.document) > 50 {
		errs = append(errs, fieldError(row, schema.ColDocumento, models.ErrorKindValidation, "document must be at most 50 characters"))
	}
	if out.email != "" {
		if err := p.validator.Var(out.email, "email,max=255"); err != nil {
			errs = append(errs, fieldError(row, schema.ColEmail, models.ErrorKindValidation, "email is not a valid address"))
		}
	}
	if out.phone != "" && !validPhone(out.phone) {
		errs = append(errs, fieldError(row, schema.ColTelefono, models.ErrorKindValidation, "phone must contain 7 to 15 digits"))
	}
	return out, errs
}

// validPhone allows digits with the usual separators and a leading +.
func validPhone(s string) bool {
	digits := 0
	for i, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return false
		}
	}
	return digits >= 7 && digits <= 15
}

func (p *SupplierProcessor) ResolveExisting(ctx context.Context, scope *Scope, row spreadsheet.Row) (interface{}, error) {
	supplier, err := p.repo.Suppliers().FindByNameKey(ctx, nil, scope.TenantID(), schema.NameKey(row.Value(schema.ColNombre)))
	if err != nil || supplier == nil {
		return nil, err
	}
	return supplier, nil
}

func (p *SupplierProcessor) Apply(ctx context.Context, scope *Scope, row spreadsheet.Row, existing interface{}) error {
	data, errs := p.parseRow(row)
	if len(errs) > 0 {
		return &RowFailure{Errors: errs}
	}
	nameKey := schema.NameKey(data.name)

	current, _ := existing.(*models.Supplier)
	if current != nil && current.WrittenBy(scope.Job.ID, row.Line) {
		return nil
	}
	if prev, dup := scope.firstSeen("supplier:"+nameKey, row.Line); dup && (current == nil || !scope.Options().OverwriteExisting) {
		return rowFailure(row, schema.ColNombre, models.ErrorKindDuplicate, "supplier %q is repeated in this file (first at row %d)", data.name, prev)
	}
	if current != nil && !scope.Options().OverwriteExisting {
		return rowFailure(row, schema.ColNombre, models.ErrorKindDuplicate, "supplier %q already exists", current.Name)
	}
	if scope.ValidateOnly() {
		return nil
	}

	supplier := current
	if supplier == nil {
		supplier = &models.Supplier{TenantID: scope.TenantID()}
	}
	supplier.Name = data.name
	supplier.NameKey = nameKey
	supplier.Document = data.document
	supplier.Phone = data.phone
	supplier.Email = data.email
	supplier.Address = data.address
	supplier.Contact = data.contact
	supplier.City = data.city
	supplier.Notes = data.notes
	supplier.SourceJobID = scope.Job.ID
	supplier.SourceRow = row.Line

	var err error
	if current != nil {
		err = p.repo.Suppliers().Update(ctx, nil, supplier)
	} else {
		err = p.repo.Suppliers().Create(ctx, nil, supplier)
	}
	if errors.Is(err, repositories.ErrDuplicate) {
		return rowFailure(row, schema.ColNombre, models.ErrorKindDuplicate, "supplier %q already exists", data.name)
	}
	return err
}
