package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

func newAuthServiceForTest(t *testing.T) *AuthService {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	return NewAuthService(nil, nil, AuthConfig{
		AccessTokenSecret: "secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "course-enrollment-api",
		AdminEmail:        "Admin@Example.com",
		AdminPasswordHash: string(hash),
	})
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	svc := newAuthServiceForTest(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, models.RoleAdmin, resp.Role)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", claims.Email)
	assert.Equal(t, "course-enrollment-api", claims.Issuer)
}

func TestAuthServiceLoginRejectsBadCredentials(t *testing.T) {
	svc := newAuthServiceForTest(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@example.com", Password: "wrong"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "other@example.com", Password: "password123"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email", Password: "x"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestAuthServiceLoginWithoutConfiguredHash(t *testing.T) {
	svc := NewAuthService(nil, nil, AuthConfig{AccessTokenSecret: "secret", AdminEmail: "admin@example.com"})
	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@example.com", Password: ""})
	require.Error(t, err)
}

func TestValidateToken(t *testing.T) {
	svc := newAuthServiceForTest(t)
	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@example.com", Password: "password123"})
	require.NoError(t, err)

	_, err = svc.ValidateToken("garbage")
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.ValidateToken(resp.AccessToken)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized), "expired token")

	svc.now = time.Now
	other := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.AdminClaims{
		Email: "x@example.com",
		Role:  "viewer",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := other.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}
