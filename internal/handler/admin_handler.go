package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-enrollment-api/internal/dto"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
	"github.com/noah-isme/course-enrollment-api/pkg/response"
)

type notificationToggle interface {
	Enabled(ctx context.Context) (bool, error)
	SetEnabled(ctx context.Context, enabled bool, actor string) (bool, error)
}

// AdminHandler exposes administrator preferences.
type AdminHandler struct {
	notifications notificationToggle
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(notifications notificationToggle) *AdminHandler {
	return &AdminHandler{notifications: notifications}
}

// GetNotifications godoc
// @Summary Read the admin email notification toggle
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/notifications [get]
func (h *AdminHandler) GetNotifications(c *gin.Context) {
	enabled, err := h.notifications.Enabled(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NotificationSettingResponse{Enabled: enabled})
}

// SetNotifications godoc
// @Summary Enable or disable admin email notifications
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body dto.UpdateNotificationSettingRequest true "Toggle"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/notifications [post]
func (h *AdminHandler) SetNotifications(c *gin.Context) {
	var req dto.UpdateNotificationSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	if req.Enabled == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "'enabled' must be a boolean"))
		return
	}
	enabled, err := h.notifications.SetEnabled(c.Request.Context(), *req.Enabled, actorEmail(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NotificationSettingResponse{Enabled: enabled})
}
