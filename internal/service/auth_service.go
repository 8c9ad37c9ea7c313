package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

// AuthConfig defines configuration for the administrator login flow.
type AuthConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	Issuer            string
	AdminEmail        string
	AdminPasswordHash string
}

// AuthService authenticates the single configured administrator.
type AuthService struct {
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = 12 * time.Hour
	}
	config.AdminEmail = strings.ToLower(strings.TrimSpace(config.AdminEmail))
	return &AuthService{validator: validate, logger: logger, config: config, now: time.Now}
}

// Login checks the credentials and issues an access token.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}
	if s.config.AdminPasswordHash == "" {
		s.logger.Warn("admin login attempted but no admin password hash is configured")
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(s.config.AdminEmail)) == 1
	passErr := bcrypt.CompareHashAndPassword([]byte(s.config.AdminPasswordHash), []byte(req.Password))
	if !emailOK || passErr != nil {
		s.logger.Info("admin login rejected", zap.String("email", email))
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}

	token, issuedAt, err := s.generateAccessToken(email)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to create access token")
	}
	s.logger.Info("admin logged in", zap.String("email", email))

	return &models.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:    issuedAt,
		Email:       email,
		Role:        models.RoleAdmin,
	}, nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.AdminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.AdminClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if claims.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}
	return claims, nil
}

func (s *AuthService) generateAccessToken(email string) (string, time.Time, error) {
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.config.AccessTokenExpiry)
	claims := &models.AdminClaims{
		Email: email,
		Role:  models.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.Issuer,
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.AccessTokenSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, issuedAt, nil
}
