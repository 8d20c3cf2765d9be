package handlers

import (
	"net/http"

	"github.com/SAP-F-2025/inventory-import-service/internal/services"
	"github.com/SAP-F-2025/inventory-import-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type ImportHandler struct {
	BaseHandler
	importService services.ImportService
}

func NewImportHandler(importService services.ImportService, logger utils.Logger) *ImportHandler {
	return &ImportHandler{
		BaseHandler:   NewBaseHandler(logger),
		importService: importService,
	}
}

// CreateImport enqueues an import job
// @Summary Enqueue import
// @Description Enqueues a spreadsheet import; import_type may be "auto"
// @Tags imports
// @Accept json
// @Produce json
// @Param import body services.EnqueueRequest true "Import request"
// @Success 202 {object} SuccessResponse{data=services.EnqueueResponse}
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /imports [post]
func (h *ImportHandler) CreateImport(c *gin.Context) {
	var req services.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err, err.Error())
		return
	}

	h.LogRequest(c, "Enqueueing import", "tenant_id", req.TenantID, "import_type", req.ImportType)

	resp, err := h.importService.Enqueue(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	status := http.StatusAccepted
	if resp.Existing {
		status = http.StatusOK
	}
	h.RespondWithSuccess(c, status, "Import enqueued", resp)
}

// GetImport returns the job record
// @Summary Get import status
// @Tags imports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} models.Job
// @Failure 404 {object} ErrorResponse
// @Router /imports/{id} [get]
func (h *ImportHandler) GetImport(c *gin.Context) {
	jobID := ParseStringIDParam(c, "id")
	if jobID == "" {
		return
	}

	job, err := h.importService.GetStatus(c.Request.Context(), jobID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// CancelImport cancels a pending or running job
// @Summary Cancel import
// @Tags imports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} map[string]bool
// @Router /imports/{id}/cancel [post]
func (h *ImportHandler) CancelImport(c *gin.Context) {
	jobID := ParseStringIDParam(c, "id")
	if jobID == "" {
		return
	}

	h.LogRequest(c, "Cancelling import", "job_id", jobID)

	cancelled, err := h.importService.Cancel(c.Request.Context(), jobID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": cancelled})
}

// ListImports lists the jobs of a tenant, newest first
// @Summary List imports
// @Tags imports
// @Produce json
// @Param tenant_id query int true "Tenant ID"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} map[string]interface{}
// @Router /imports [get]
func (h *ImportHandler) ListImports(c *gin.Context) {
	tenantID := ParseUintQuery(c, "tenant_id")
	if tenantID == 0 {
		return
	}
	limit, ok := ParseIntQuery(c, "limit", 0)
	if !ok {
		return
	}
	offset, ok := ParseIntQuery(c, "offset", 0)
	if !ok {
		return
	}

	jobs, err := h.importService.ListByTenant(c.Request.Context(), tenantID, limit, offset)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":   jobs,
		"count":  len(jobs),
		"offset": offset,
	})
}

// DetectType scores a header row against every import type
// @Summary Detect import type
// @Tags imports
// @Accept json
// @Produce json
// @Param columns body services.DetectTypeRequest true "Header row"
// @Success 200 {array} models.TypeDetectionResult
// @Router /imports/detect [post]
func (h *ImportHandler) DetectType(c *gin.Context) {
	var req services.DetectTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err, err.Error())
		return
	}

	results, err := h.importService.DetectType(c.Request.Context(), req.Columns)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// ValidateFile checks a stored file without enqueueing it
// @Summary Validate import file
// @Tags imports
// @Accept json
// @Produce json
// @Param file body services.ValidateFileRequest true "File reference"
// @Success 200 {object} models.FileValidationResult
// @Router /imports/validate [post]
func (h *ImportHandler) ValidateFile(c *gin.Context) {
	var req services.ValidateFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err, err.Error())
		return
	}

	result, err := h.importService.ValidateFile(c.Request.Context(), req.SourceFileRef, req.ImportType)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetTemplate describes the columns of an import type
// @Summary Get import template
// @Tags imports
// @Produce json
// @Param type path string true "Import type"
// @Success 200 {object} models.TemplateInfo
// @Router /imports/templates/{type} [get]
func (h *ImportHandler) GetTemplate(c *gin.Context) {
	info, err := h.importService.TemplateInfo(c.Request.Context(), c.Param("type"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// GetStats aggregates the jobs of a tenant
// @Summary Get import statistics
// @Tags imports
// @Produce json
// @Param tenant_id query int true "Tenant ID"
// @Success 200 {object} models.ImportStats
// @Router /imports/stats [get]
func (h *ImportHandler) GetStats(c *gin.Context) {
	tenantID := ParseUintQuery(c, "tenant_id")
	if tenantID == 0 {
		return
	}

	stats, err := h.importService.Stats(c.Request.Context(), tenantID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetQueueCounts reports the size of every queue set
// @Summary Get queue counts
// @Tags imports
// @Produce json
// @Success 200 {object} queue.Counts
// @Router /imports/queue [get]
func (h *ImportHandler) GetQueueCounts(c *gin.Context) {
	counts, err := h.importService.Counts(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}
