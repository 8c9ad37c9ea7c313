package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-enrollment-api/internal/dto"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

type fakeExportService struct {
	path        string
	openErr     error
	lastDataset string
	lastFormat  string
}

func (f *fakeExportService) Export(_ context.Context, dataset, format string) (*dto.ExportResult, error) {
	f.lastDataset, f.lastFormat = dataset, format
	if dataset == "grades" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown export dataset")
	}
	return &dto.ExportResult{Success: true, File: "/exports/" + dataset + ".csv", URL: "/api/exports/download?token=t", Format: "csv", Rows: 2}, nil
}

func (f *fakeExportService) Open(token string) (*os.File, string, string, error) {
	if f.openErr != nil {
		return nil, "", "", f.openErr
	}
	file, err := os.Open(f.path)
	if err != nil {
		return nil, "", "", err
	}
	return file, filepath.Base(f.path), "text/csv", nil
}

func TestExportHandlerExport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &fakeExportService{}
	handler := NewExportHandler(svc)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/exports/students?format=csv", nil)
	c.Params = gin.Params{{Key: "dataset", Value: "students"}}

	handler.Export(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "students", svc.lastDataset)
	assert.Equal(t, "csv", svc.lastFormat)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, true, envelope.object()["success"])
	assert.Equal(t, "/exports/students.csv", envelope.object()["file"])
}

func TestExportHandlerUnknownDataset(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewExportHandler(&fakeExportService{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/exports/grades", nil)
	c.Params = gin.Params{{Key: "dataset", Value: "grades"}}

	handler.Export(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportHandlerDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	path := filepath.Join(t.TempDir(), "students.csv")
	require.NoError(t, os.WriteFile(path, []byte("ID,Name\n1,Ada\n"), 0o600))
	handler := NewExportHandler(&fakeExportService{path: path})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/exports/download?token=abc", nil)

	handler.Download(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="students.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "ID,Name\n1,Ada\n", rec.Body.String())
}

func TestExportHandlerDownloadRequiresToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewExportHandler(&fakeExportService{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/exports/download", nil)

	handler.Download(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportHandlerDownloadBadToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewExportHandler(&fakeExportService{openErr: appErrors.Clone(appErrors.ErrForbidden, "invalid download token")})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/exports/download?token=forged", nil)

	handler.Download(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
