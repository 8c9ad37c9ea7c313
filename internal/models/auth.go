package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the only role issued by the login endpoint.
const RoleAdmin = "admin"

// LoginRequest holds the administrator credentials.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse returns the issued access token.
type LoginResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresIn   int64     `json:"expiresIn"`
	IssuedAt    time.Time `json:"issuedAt"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
}

// AdminClaims is the JWT payload for admin access tokens.
type AdminClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}
