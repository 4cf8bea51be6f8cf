package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozpath/ozpath-api/internal/models"
	"github.com/ozpath/ozpath-api/pkg/config"
)

const testSecret = "test_secret"

func issueToken(t *testing.T, claims *models.JWTClaims, secret string) string {
	t.Helper()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestValidateToken(t *testing.T) {
	svc := NewAuthService(config.JWTConfig{Secret: testSecret})
	token := issueToken(t, &models.JWTClaims{UserID: "user-1", TenantID: "tenant-1", Role: models.RoleAgent}, testSecret)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "tenant-1", claims.TenantID)
	assert.Equal(t, models.RoleAgent, claims.Role)
}

func TestValidateTokenRejectsBadSignature(t *testing.T) {
	svc := NewAuthService(config.JWTConfig{Secret: testSecret})
	token := issueToken(t, &models.JWTClaims{UserID: "user-1", TenantID: "tenant-1", Role: models.RoleAgent}, "other_secret")

	_, err := svc.ValidateToken(token)
	require.Error(t, err)
}

func TestValidateTokenRejectsMissingClaims(t *testing.T) {
	svc := NewAuthService(config.JWTConfig{Secret: testSecret})

	token := issueToken(t, &models.JWTClaims{UserID: "user-1", Role: models.RoleAgent}, testSecret)
	_, err := svc.ValidateToken(token)
	require.Error(t, err)

	token = issueToken(t, &models.JWTClaims{UserID: "user-1", TenantID: "tenant-1", Role: "SUPERUSER"}, testSecret)
	_, err = svc.ValidateToken(token)
	require.Error(t, err)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := NewAuthService(config.JWTConfig{Secret: testSecret})
	claims := &models.JWTClaims{UserID: "user-1", TenantID: "tenant-1", Role: models.RoleAdmin}
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
}
