package handlers

import (
	"net/http"

	"github.com/SAP-F-2025/inventory-import-service/internal/services"
	"github.com/SAP-F-2025/inventory-import-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type HandlerManager struct {
	importHandler *ImportHandler
}

func NewHandlerManager(importService services.ImportService, logger utils.Logger) *HandlerManager {
	return &HandlerManager{
		importHandler: NewImportHandler(importService, logger),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", HealthCheck)

	v1 := router.Group("/api/v1")
	{
		imports := v1.Group("/imports")
		{
			imports.POST("", hm.importHandler.CreateImport)
			imports.GET("", hm.importHandler.ListImports)
			imports.GET("/:id", hm.importHandler.GetImport)
			imports.POST("/:id/cancel", hm.importHandler.CancelImport)

			// File inspection
			imports.POST("/detect", hm.importHandler.DetectType)
			imports.POST("/validate", hm.importHandler.ValidateFile)
			imports.GET("/templates/:type", hm.importHandler.GetTemplate)

			// Reporting
			imports.GET("/stats", hm.importHandler.GetStats)
			imports.GET("/queue", hm.importHandler.GetQueueCounts)
		}
	}
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "inventory-import-service",
	})
}
