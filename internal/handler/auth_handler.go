package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-enrollment-api/internal/middleware"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
	"github.com/noah-isme/course-enrollment-api/pkg/response"
)

type authService interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
}

// AuthHandler wires HTTP endpoints to the auth service.
type AuthHandler struct {
	service authService
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc authService) *AuthHandler {
	return &AuthHandler{service: svc}
}

// Login godoc
// @Summary Authenticate the administrator
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}

	res, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Me returns the claims of the calling administrator.
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := currentAdmin(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.OK(c, gin.H{"email": claims.Email, "role": claims.Role})
}

func currentAdmin(c *gin.Context) (*models.AdminClaims, bool) {
	return middleware.CurrentAdmin(c)
}
