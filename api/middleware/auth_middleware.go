// api/middleware/auth_middleware.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Annany2002/dataspace-backend/api/models"
	"github.com/Annany2002/dataspace-backend/internal/errs"
)

// Context keys set by AuthMiddleware.
const (
	UserIDKey = "userId"
	EmailKey  = "email"
)

// TokenValidator parses and verifies a bearer token.
type TokenValidator interface {
	ValidateJWT(tokenString string) (*models.CustomClaims, error)
}

// AuthMiddleware creates a gin middleware for checking JWT authentication.
func AuthMiddleware(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			_ = c.Error(errs.Unauthorized("AUTH_HEADER_MISSING", "Authorization header required."))
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			_ = c.Error(errs.Unauthorized("AUTH_HEADER_MALFORMED", "Authorization header format must be Bearer {token}."))
			c.Abort()
			return
		}

		claims, err := tokens.ValidateJWT(strings.TrimSpace(parts[1]))
		if err != nil {
			customLog.Printf("AuthMiddleware: Token validation failed: %v", err)
			_ = c.Error(err)
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(EmailKey, claims.Email)
		c.Next()
	}
}
