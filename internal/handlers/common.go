package handlers

import (
	"errors"
	"net/http"

	"github.com/SAP-F-2025/inventory-import-service/internal/services"
	"github.com/SAP-F-2025/inventory-import-service/internal/utils"
	"github.com/gin-gonic/gin"
)

// ===== COMMON RESPONSE STRUCTURES =====

// ErrorResponse represents an error response
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ===== BASE HANDLER STRUCT =====

// BaseHandler provides common logging functionality for all handlers
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{
		logger: logger,
	}
}

func (h *BaseHandler) log(c *gin.Context) utils.Logger {
	return utils.RequestLogger(c, h.logger)
}

// LogRequest logs an accepted request with the caller's address.
func (h *BaseHandler) LogRequest(c *gin.Context, message string, additionalFields ...interface{}) {
	h.log(c).Info(message, append([]interface{}{"remote_addr", c.ClientIP()}, additionalFields...)...)
}

func (h *BaseHandler) LogError(c *gin.Context, err error, message string, additionalFields ...interface{}) {
	h.log(c).LogError(err, message, additionalFields...)
}

func (h *BaseHandler) LogWarn(c *gin.Context, message string, additionalFields ...interface{}) {
	h.log(c).Warn(message, additionalFields...)
}

// Error codes returned in ErrorResponse.Code. A business rule rejection uses
// the rule name instead.
const (
	CodeInvalidRequest  = "invalid_request"
	CodeUnsupportedType = "unsupported_import_type"
	CodeFileUnreadable  = "source_file_unreadable"
	CodeJobNotFound     = "job_not_found"
	CodeJobExists       = "job_exists"
	CodeInternal        = "internal_error"
)

// RespondWithError writes an invalid_request error. Service failures go
// through handleServiceError instead.
func (h *BaseHandler) RespondWithError(c *gin.Context, statusCode int, message string, err error, details ...interface{}) {
	var d interface{}
	if len(details) > 0 {
		d = details[0]
	}
	h.respond(c, statusCode, ErrorResponse{Message: message, Code: CodeInvalidRequest, Details: d}, err)
}

func (h *BaseHandler) respond(c *gin.Context, statusCode int, body ErrorResponse, err error) {
	if err != nil && statusCode >= http.StatusInternalServerError {
		h.LogError(c, err, body.Message, "status_code", statusCode, "code", body.Code)
	} else {
		h.LogWarn(c, body.Message, "status_code", statusCode, "code", body.Code)
	}
	c.JSON(statusCode, body)
}

// RespondWithSuccess sends a consistent success response
func (h *BaseHandler) RespondWithSuccess(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, SuccessResponse{
		Message: message,
		Data:    data,
	})
}

// handleServiceError maps service errors onto an HTTP status and error code.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	status, body := classifyServiceError(err)
	h.respond(c, status, body, err)
}

func classifyServiceError(err error) (int, ErrorResponse) {
	var verrs services.ValidationErrors
	var rule *services.BusinessRuleError
	switch {
	case errors.As(err, &verrs):
		return http.StatusBadRequest, ErrorResponse{Message: "Validation failed", Code: CodeInvalidRequest, Details: verrs}
	case errors.As(err, &rule):
		return http.StatusUnprocessableEntity, ErrorResponse{
			Message: rule.Message,
			Code:    rule.Rule,
			Details: map[string]interface{}{"rule": rule.Rule, "context": rule.Context},
		}
	case services.IsNotFound(err):
		return http.StatusNotFound, ErrorResponse{Message: "Import job not found", Code: CodeJobNotFound}
	case errors.Is(err, services.ErrUnsupportedImportType):
		return http.StatusBadRequest, ErrorResponse{Message: "Unsupported import type", Code: CodeUnsupportedType, Details: err.Error()}
	case errors.Is(err, services.ErrSourceFileUnreadable):
		return http.StatusUnprocessableEntity, ErrorResponse{Message: "Source file cannot be read", Code: CodeFileUnreadable, Details: err.Error()}
	case services.IsValidation(err):
		return http.StatusBadRequest, ErrorResponse{Message: "Validation failed", Code: CodeInvalidRequest, Details: err.Error()}
	case services.IsConflict(err):
		return http.StatusConflict, ErrorResponse{Message: "Import job already exists", Code: CodeJobExists}
	default:
		return http.StatusInternalServerError, ErrorResponse{Message: "Internal server error", Code: CodeInternal}
	}
}
