package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ozpath/ozpath-api/internal/models"
	"github.com/ozpath/ozpath-api/internal/service"
	appErrors "github.com/ozpath/ozpath-api/pkg/errors"
	"github.com/ozpath/ozpath-api/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

// JWT protects routes by requiring a valid access token.
func JWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// CurrentClaims returns the validated claims for the request, if any.
func CurrentClaims(c *gin.Context) (*models.JWTClaims, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*models.JWTClaims)
	return claims, ok
}

// CurrentActor builds the workflow actor from the request claims.
func CurrentActor(c *gin.Context) (models.Actor, bool) {
	claims, ok := CurrentClaims(c)
	if !ok {
		return models.Actor{}, false
	}
	return models.Actor{ID: claims.UserID, Role: claims.Role}, true
}
