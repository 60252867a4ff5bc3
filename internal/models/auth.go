package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating an account.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse returns the issued token and account info.
type LoginResponse struct {
	AccessToken        string      `json:"access_token"`
	ExpiresIn          int64       `json:"expires_in"`
	MustChangePassword bool        `json:"must_change_password"`
	Account            AccountInfo `json:"account"`
	IssuedAt           time.Time   `json:"issued_at"`
}

// ChangePasswordRequest payload for updating the account password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// AccountInfo describes the authenticated account in responses.
type AccountInfo struct {
	ID     string        `json:"id"`
	Email  string        `json:"email"`
	Role   Role          `json:"role"`
	Status AccountStatus `json:"status"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	AccountID string `json:"account_id"`
	Role      Role   `json:"role"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}
