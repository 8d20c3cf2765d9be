package services

import (
	"errors"
	"fmt"

	apperrors "github.com/SAP-F-2025/inventory-import-service/internal/errors"
	"github.com/SAP-F-2025/inventory-import-service/internal/queue"
)

var (
	ErrJobNotFound           = errors.New("import job not found")
	ErrUnsupportedImportType = errors.New("unsupported import type")
	ErrTypeNotDetected       = errors.New("import type could not be detected from the file columns")
	ErrSourceFileUnreadable  = errors.New("source file cannot be read")
)

type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

// BusinessRuleError rejects a well formed request the import pipeline still
// cannot act on, such as a low confidence auto detection.
type BusinessRuleError struct {
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Message)
}

func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

func NewBusinessRuleError(rule, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{Rule: rule, Message: message, Context: context}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrJobNotFound) || errors.Is(err, queue.ErrJobNotFound)
}

// IsValidation reports errors the caller can fix by changing the request.
func IsValidation(err error) bool {
	if errors.Is(err, ErrUnsupportedImportType) || errors.Is(err, ErrSourceFileUnreadable) {
		return true
	}
	var (
		many   apperrors.ValidationErrors
		single *apperrors.ValidationError
		serial *queue.SerializationError
	)
	return errors.As(err, &many) || errors.As(err, &single) || errors.As(err, &serial)
}

func IsBusinessRule(err error) bool {
	var bre *BusinessRuleError
	return errors.As(err, &bre)
}

func IsConflict(err error) bool {
	return errors.Is(err, queue.ErrJobExists)
}
