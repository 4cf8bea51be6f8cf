package models

import "github.com/golang-jwt/jwt/v5"

// UserRole is the caller role asserted by the identity service.
type UserRole string

const (
	RoleAdmin     UserRole = "ADMIN"
	RoleAgent     UserRole = "AGENT"
	RoleApplicant UserRole = "APPLICANT"
)

// JWTClaims is the token payload issued by the external identity service.
// This core only validates and reads it.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	TenantID string   `json:"tenant_id"`
	Role     UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Actor identifies who performs a workflow operation.
type Actor struct {
	ID   string
	Role UserRole
}
