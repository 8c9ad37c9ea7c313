package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
	"github.com/noah-isme/course-enrollment-api/pkg/response"
)

// ContextAdminKey is the gin context key storing the admin's JWT claims.
const ContextAdminKey = "currentAdmin"

// TokenValidator verifies bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*models.AdminClaims, error)
}

// RequireAdmin rejects requests without a valid admin bearer token.
func RequireAdmin(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing bearer token"))
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if claims.Role != models.RoleAdmin {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}

		c.Set(ContextAdminKey, claims)
		c.Next()
	}
}

// CurrentAdmin returns the authenticated admin's claims, if any.
func CurrentAdmin(c *gin.Context) (*models.AdminClaims, bool) {
	value, ok := c.Get(ContextAdminKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*models.AdminClaims)
	return claims, ok
}
