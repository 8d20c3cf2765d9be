package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SAP-F-2025/inventory-import-service/internal/models"
	"github.com/SAP-F-2025/inventory-import-service/internal/queue"
	"github.com/SAP-F-2025/inventory-import-service/internal/services"
	"github.com/SAP-F-2025/inventory-import-service/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockImportService struct {
	mock.Mock
}

func (m *mockImportService) Enqueue(ctx context.Context, req *services.EnqueueRequest) (*services.EnqueueResponse, error) {
	args := m.Called(ctx, req)
	if resp, ok := args.Get(0).(*services.EnqueueResponse); ok {
		return resp, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockImportService) GetStatus(ctx context.Context, jobID string) (*models.Job, error) {
	args := m.Called(ctx, jobID)
	if job, ok := args.Get(0).(*models.Job); ok {
		return job, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockImportService) Cancel(ctx context.Context, jobID string) (bool, error) {
	args := m.Called(ctx, jobID)
	return args.Bool(0), args.Error(1)
}

func (m *mockImportService) ListByTenant(ctx context.Context, tenantID uint, limit, offset int) ([]*models.Job, error) {
	args := m.Called(ctx, tenantID, limit, offset)
	jobs, _ := args.Get(0).([]*models.Job)
	return jobs, args.Error(1)
}

func (m *mockImportService) PurgeOlderThan(ctx context.Context, days int) int {
	return m.Called(ctx, days).Int(0)
}

func (m *mockImportService) DetectType(ctx context.Context, columns []string) ([]models.TypeDetectionResult, error) {
	args := m.Called(ctx, columns)
	results, _ := args.Get(0).([]models.TypeDetectionResult)
	return results, args.Error(1)
}

func (m *mockImportService) ValidateFile(ctx context.Context, ref string, importType string) (*models.FileValidationResult, error) {
	args := m.Called(ctx, ref, importType)
	result, _ := args.Get(0).(*models.FileValidationResult)
	return result, args.Error(1)
}

func (m *mockImportService) TemplateInfo(ctx context.Context, importType string) (*models.TemplateInfo, error) {
	args := m.Called(ctx, importType)
	info, _ := args.Get(0).(*models.TemplateInfo)
	return info, args.Error(1)
}

func (m *mockImportService) Stats(ctx context.Context, tenantID uint) (*models.ImportStats, error) {
	args := m.Called(ctx, tenantID)
	stats, _ := args.Get(0).(*models.ImportStats)
	return stats, args.Error(1)
}

func (m *mockImportService) Counts(ctx context.Context) (queue.Counts, error) {
	args := m.Called(ctx)
	return args.Get(0).(queue.Counts), args.Error(1)
}

func newTestRouter(svc services.ImportService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	logger := utils.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	NewHandlerManager(svc, logger).SetupRoutes(router)
	return router
}

func doRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateImport(t *testing.T) {
	svc := &mockImportService{}
	router := newTestRouter(svc)

	svc.On("Enqueue", mock.Anything, mock.MatchedBy(func(req *services.EnqueueRequest) bool {
		return req.ImportType == "auto" && req.TenantID == 3 && req.Options.OverwriteExisting
	})).Return(&services.EnqueueResponse{JobID: "job-1", ImportType: models.ImportTypeProducts}, nil)

	w := doRequest(router, http.MethodPost, "/api/v1/imports", map[string]interface{}{
		"import_type":     "auto",
		"tenant_id":       3,
		"user_id":         5,
		"source_file_ref": "uploads/p.xlsx",
		"options":         map[string]interface{}{"overwrite_existing": true},
	})

	assert.Equal(t, http.StatusAccepted, w.Code)
	var resp struct {
		Data services.EnqueueResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp.Data.JobID)
	svc.AssertExpectations(t)
}

func TestCreateImportErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", services.ValidationErrors{{Field: "tenant_id", Message: "is required"}}, http.StatusBadRequest, CodeInvalidRequest},
		{"undetected type", services.NewBusinessRuleError("import_type_detection", "no match", nil), http.StatusUnprocessableEntity, "import_type_detection"},
		{"unreadable file", services.ErrSourceFileUnreadable, http.StatusUnprocessableEntity, CodeFileUnreadable},
		{"unsupported type", services.ErrUnsupportedImportType, http.StatusBadRequest, CodeUnsupportedType},
		{"serialization", &queue.SerializationError{Field: "tenant_id", Reason: "must be a positive integer"}, http.StatusBadRequest, CodeInvalidRequest},
		{"queue down", assert.AnError, http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockImportService{}
			svc.On("Enqueue", mock.Anything, mock.Anything).Return(nil, tt.err)

			w := doRequest(newTestRouter(svc), http.MethodPost, "/api/v1/imports", map[string]interface{}{"import_type": "products"})
			assert.Equal(t, tt.status, w.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

func TestCreateImportRejectsMalformedJSON(t *testing.T) {
	svc := &mockImportService{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()

	newTestRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestGetImport(t *testing.T) {
	svc := &mockImportService{}
	router := newTestRouter(svc)
	svc.On("GetStatus", mock.Anything, "job-1").Return(&models.Job{ID: "job-1", State: models.JobProcessing, Progress: 40}, nil)
	svc.On("GetStatus", mock.Anything, "missing").Return(nil, services.ErrJobNotFound)

	w := doRequest(router, http.MethodGet, "/api/v1/imports/job-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var job models.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, 40, job.Progress)

	w = doRequest(router, http.MethodGet, "/api/v1/imports/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelImport(t *testing.T) {
	svc := &mockImportService{}
	svc.On("Cancel", mock.Anything, "job-1").Return(true, nil)

	w := doRequest(newTestRouter(svc), http.MethodPost, "/api/v1/imports/job-1/cancel", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"cancelled":true}`, w.Body.String())
}

func TestListImports(t *testing.T) {
	svc := &mockImportService{}
	router := newTestRouter(svc)
	svc.On("ListByTenant", mock.Anything, uint(3), 10, 20).Return([]*models.Job{{ID: "a"}, {ID: "b"}}, nil)

	w := doRequest(router, http.MethodGet, "/api/v1/imports?tenant_id=3&limit=10&offset=20", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)

	w = doRequest(router, http.MethodGet, "/api/v1/imports?tenant_id=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doRequest(router, http.MethodGet, "/api/v1/imports?tenant_id=3&limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInspectionRoutes(t *testing.T) {
	svc := &mockImportService{}
	router := newTestRouter(svc)

	svc.On("DetectType", mock.Anything, []string{"nombre", "stock"}).
		Return([]models.TypeDetectionResult{{ImportType: models.ImportTypeProducts, Confidence: 40}}, nil)
	svc.On("ValidateFile", mock.Anything, "uploads/p.csv", "auto").
		Return(&models.FileValidationResult{Valid: true, ImportType: models.ImportTypeProducts}, nil)
	svc.On("TemplateInfo", mock.Anything, "suppliers").
		Return(&models.TemplateInfo{ImportType: models.ImportTypeSuppliers, ChunkSize: 50}, nil)
	svc.On("Stats", mock.Anything, uint(3)).
		Return(&models.ImportStats{TenantID: 3, TotalJobs: 4}, nil)
	svc.On("Counts", mock.Anything).Return(queue.Counts{Waiting: 2}, nil)

	w := doRequest(router, http.MethodPost, "/api/v1/imports/detect", map[string]interface{}{"columns": []string{"nombre", "stock"}})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodPost, "/api/v1/imports/validate", map[string]interface{}{
		"source_file_ref": "uploads/p.csv",
		"import_type":     "auto",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/imports/templates/suppliers", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"chunk_size":50`)

	w = doRequest(router, http.MethodGet, "/api/v1/imports/stats?tenant_id=3", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/imports/queue", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"waiting":2`)

	svc.AssertExpectations(t)
}

func TestHealthCheck(t *testing.T) {
	w := doRequest(newTestRouter(&mockImportService{}), http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}
