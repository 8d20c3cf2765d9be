package validator

import (
	"reflect"
	"strings"

	apperrors "github.com/SAP-F-2025/inventory-import-service/internal/errors"
	"github.com/SAP-F-2025/inventory-import-service/internal/models"
	"github.com/go-playground/validator/v10"
)

// Validator checks request structs and single cell values. Beyond the
// built in rules it knows import_type, movement_type and job_state.
type Validator struct {
	structValidator *validator.Validate
}

func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)
	for tag, fn := range map[string]validator.Func{
		"import_type":   isImportType,
		"movement_type": isMovementType,
		"job_state":     isJobState,
	} {
		// only fails on an empty tag or a nil func
		_ = v.RegisterValidation(tag, fn)
	}
	return &Validator{structValidator: v}
}

// ValidateStruct returns errors.ValidationErrors keyed by JSON field name.
func (v *Validator) ValidateStruct(s interface{}) error {
	return apperrors.FromValidator(v.structValidator.Struct(s))
}

// Var checks one value against a tag expression such as "email,max=255".
func (v *Validator) Var(field interface{}, tag string) error {
	return v.structValidator.Var(field, tag)
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

func isImportType(fl validator.FieldLevel) bool {
	_, err := models.ParseImportType(fl.Field().String())
	return err == nil
}

func isMovementType(fl validator.FieldLevel) bool {
	_, ok := models.ParseMovementType(fl.Field().String())
	return ok
}

func isJobState(fl validator.FieldLevel) bool {
	return models.JobState(fl.Field().String()).IsValid()
}
