package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Username  string `json:"username" validate:"required,max=64"`
	Password  string `json:"password" validate:"required,max=128"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued token and principal.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	IssuedAt    time.Time `json:"issued_at"`
	Principal   Principal `json:"principal"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	Username string   `json:"username"`
	IsAdmin  bool     `json:"is_admin"`
	Role     UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Principal projects the claims onto the session identity.
func (c *JWTClaims) Principal() Principal {
	return Principal{Username: c.Username, IsAdmin: c.IsAdmin, Role: c.Role}
}
