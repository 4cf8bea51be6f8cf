package service

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/ozpath/ozpath-api/internal/models"
	"github.com/ozpath/ozpath-api/pkg/config"
	appErrors "github.com/ozpath/ozpath-api/pkg/errors"
)

// AuthService validates access tokens issued by the external identity
// service. Credential issuance lives outside this system.
type AuthService struct {
	secret []byte
}

// NewAuthService constructs AuthService.
func NewAuthService(cfg config.JWTConfig) *AuthService {
	return &AuthService{secret: []byte(cfg.Secret)}
}

// ValidateToken parses and verifies an access token, returning its claims.
func (s *AuthService) ValidateToken(token string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired token")
	}
	if claims.UserID == "" || claims.TenantID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token missing identity claims")
	}
	switch claims.Role {
	case models.RoleAdmin, models.RoleAgent, models.RoleApplicant:
	default:
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token carries unknown role")
	}
	return claims, nil
}
