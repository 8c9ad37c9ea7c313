package handler

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-enrollment-api/internal/dto"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
	"github.com/noah-isme/course-enrollment-api/pkg/response"
)

type exportService interface {
	Export(ctx context.Context, dataset, format string) (*dto.ExportResult, error)
	Open(token string) (*os.File, string, string, error)
}

// ExportHandler serves snapshot exports and their signed downloads.
type ExportHandler struct {
	exports exportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(exports exportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Export godoc
// @Summary Write a snapshot export
// @Tags Exports
// @Produce json
// @Param dataset path string true "students, courses or enrollments"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exports/{dataset} [get]
func (h *ExportHandler) Export(c *gin.Context) {
	result, err := h.exports.Export(c.Request.Context(), c.Param("dataset"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Download godoc
// @Summary Download an export through a signed link
// @Tags Exports
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /exports/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, name, contentType, err := h.exports.Open(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Header("Cache-Control", "no-store")
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}
