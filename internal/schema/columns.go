// Package schema holds the column tables of each import type. The detector
// scores headers against them and the processors bind rows through them.
package schema

import (
	"strings"
	"unicode"

	"github.com/SAP-F-2025/inventory-import-service/internal/models"
	"github.com/SAP-F-2025/inventory-import-service/internal/spreadsheet"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Canonical column names.
const (
	ColNombre         = "nombre"
	ColPrecioCompra   = "precioCompra"
	ColPrecioVenta    = "precioVenta"
	ColStock          = "stock"
	ColSKU            = "sku"
	ColCodigoBarras   = "codigoBarras"
	ColDescripcion    = "descripcion"
	ColCategoria      = "categoria"
	ColStockMinimo    = "stockMinimo"
	ColDocumento      = "documento"
	ColTelefono       = "telefono"
	ColEmail          = "email"
	ColDireccion      = "direccion"
	ColContacto       = "contacto"
	ColCiudad         = "ciudad"
	ColNotas          = "notas"
	ColProducto       = "producto"
	ColTipo           = "tipo"
	ColCantidad       = "cantidad"
	ColFecha          = "fecha"
	ColMotivo         = "motivo"
	ColReferencia     = "referencia"
	ColPrecioUnitario = "precioUnitario"
)

// ColumnSpec is one expected column of an import type.
type ColumnSpec struct {
	Name     string
	Aliases  []string
	Weight   int
	Required bool
}

// Keys returns the normalised name and aliases.
func (c ColumnSpec) Keys() []string {
	keys := make([]string, 0, len(c.Aliases)+1)
	keys = append(keys, Normalize(c.Name))
	for _, a := range c.Aliases {
		keys = append(keys, Normalize(a))
	}
	return keys
}

var tables = map[models.ImportType][]ColumnSpec{
	models.ImportTypeProducts: {
		{Name: ColNombre, Aliases: []string{"name", "nombre del producto", "product name", "articulo"}, Weight: 25, Required: true},
		{Name: ColPrecioCompra, Aliases: []string{"precio de compra", "costo", "cost", "purchase price"}, Weight: 20, Required: true},
		{Name: ColPrecioVenta, Aliases: []string{"precio de venta", "precio", "price", "sale price"}, Weight: 20, Required: true},
		{Name: ColStock, Aliases: []string{"existencias", "inventario", "stock actual", "quantity on hand"}, Weight: 15, Required: true},
		{Name: ColSKU, Aliases: []string{"codigo", "code"}, Weight: 5},
		{Name: ColCodigoBarras, Aliases: []string{"codigo de barras", "barcode", "ean", "upc"}, Weight: 5},
		{Name: ColDescripcion, Aliases: []string{"description", "detalle"}, Weight: 4},
		{Name: ColCategoria, Aliases: []string{"category", "familia", "rubro"}, Weight: 3},
		{Name: ColStockMinimo, Aliases: []string{"minimo", "min stock", "minimum stock"}, Weight: 3},
	},
	models.ImportTypeSuppliers: {
		{Name: ColNombre, Aliases: []string{"name", "razon social", "proveedor", "nombre proveedor", "supplier"}, Weight: 30, Required: true},
		{Name: ColDocumento, Aliases: []string{"nit", "rut", "ruc", "cuit", "tax id", "identificacion"}, Weight: 15},
		{Name: ColTelefono, Aliases: []string{"phone", "tel", "celular", "movil"}, Weight: 15},
		{Name: ColEmail, Aliases: []string{"correo", "correo electronico", "mail", "e-mail"}, Weight: 10},
		{Name: ColDireccion, Aliases: []string{"address", "domicilio"}, Weight: 10},
		{Name: ColContacto, Aliases: []string{"contact", "persona de contacto", "nombre contacto"}, Weight: 10},
		{Name: ColCiudad, Aliases: []string{"city", "municipio"}, Weight: 5},
		{Name: ColNotas, Aliases: []string{"notes", "observaciones", "comentarios"}, Weight: 5},
	},
	models.ImportTypeMovements: {
		{Name: ColProducto, Aliases: []string{"product", "nombre producto", "codigo producto"}, Weight: 25, Required: true},
		{Name: ColTipo, Aliases: []string{"type", "tipo movimiento", "movimiento", "operacion"}, Weight: 20, Required: true},
		{Name: ColCantidad, Aliases: []string{"quantity", "qty", "unidades"}, Weight: 25, Required: true},
		{Name: ColFecha, Aliases: []string{"date", "fecha movimiento"}, Weight: 10},
		{Name: ColMotivo, Aliases: []string{"reason", "concepto"}, Weight: 8},
		{Name: ColReferencia, Aliases: []string{"reference", "factura", "documento referencia"}, Weight: 7},
		{Name: ColPrecioUnitario, Aliases: []string{"costo unitario", "unit price", "unit cost"}, Weight: 5},
	},
}

// Columns returns a copy of the column table for t, or nil.
func Columns(t models.ImportType) []ColumnSpec {
	specs := tables[t]
	if specs == nil {
		return nil
	}
	out := make([]ColumnSpec, len(specs))
	copy(out, specs)
	return out
}

// RequiredColumns lists the canonical names of the required columns.
func RequiredColumns(specs []ColumnSpec) []string {
	var names []string
	for _, s := range specs {
		if s.Required {
			names = append(names, s.Name)
		}
	}
	return names
}

// Template converts a column table into its public description.
func Template(specs []ColumnSpec) []models.TemplateColumn {
	cols := make([]models.TemplateColumn, len(specs))
	for i, s := range specs {
		cols[i] = models.TemplateColumn{
			Name:     s.Name,
			Aliases:  append([]string(nil), s.Aliases...),
			Required: s.Required,
			Weight:   s.Weight,
		}
	}
	return cols
}

// Normalize lower-cases s, folds accents and drops everything that is not a
// letter or digit, so "Precio de Compra" and "precio_de_compra" compare equal.
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(fold(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NameKey is the duplicate detection key of an entity name: accents folded,
// lower case, inner whitespace collapsed. Punctuation is kept.
func NameKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(fold(s))), " ")
}

func fold(s string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, s)
	if err != nil {
		return s
	}
	return folded
}

// ResolveHeaders maps canonical names to the header that matches them exactly
// (name or alias, after normalisation). The first matching header wins.
func ResolveHeaders(specs []ColumnSpec, headers []string) map[string]string {
	byKey := make(map[string]string, len(headers))
	for _, h := range headers {
		key := Normalize(h)
		if key == "" {
			continue
		}
		if _, seen := byKey[key]; !seen {
			byKey[key] = h
		}
	}

	resolved := make(map[string]string, len(specs))
	claimed := make(map[string]bool, len(headers))
	for _, spec := range specs {
		for _, key := range spec.Keys() {
			header, ok := byKey[key]
			if ok && !claimed[header] {
				resolved[spec.Name] = header
				claimed[header] = true
				break
			}
		}
	}
	return resolved
}

// MissingRequired returns the required columns absent from headers.
func MissingRequired(specs []ColumnSpec, headers []string) []string {
	resolved := ResolveHeaders(specs, headers)
	var missing []string
	for _, name := range RequiredColumns(specs) {
		if _, ok := resolved[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Bind rewrites the rows of sheet so they are keyed by canonical column
// name. Unknown columns are dropped.
func Bind(specs []ColumnSpec, sheet *spreadsheet.Sheet) []spreadsheet.Row {
	resolved := ResolveHeaders(specs, sheet.Headers)
	rows := make([]spreadsheet.Row, len(sheet.Rows))
	for i, row := range sheet.Rows {
		values := make(map[string]string, len(resolved))
		for name, header := range resolved {
			values[name] = row.Values[header]
		}
		rows[i] = spreadsheet.Row{Line: row.Line, Values: values}
	}
	return rows
}
