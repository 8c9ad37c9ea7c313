package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-enrollment-api/internal/dto"
	"github.com/noah-isme/course-enrollment-api/internal/middleware"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
	"github.com/noah-isme/course-enrollment-api/pkg/response"
)

type dashboardService interface {
	Admin(ctx context.Context) (*dto.AdminDashboardResponse, bool, error)
}

// DashboardHandler wires dashboard service to HTTP endpoints.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Admin godoc
// @Summary Admin dashboard summary
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard [get]
func (h *DashboardHandler) Admin(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	summary, cacheHit, err := h.service.Admin(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ExtractMeta(c))
}
