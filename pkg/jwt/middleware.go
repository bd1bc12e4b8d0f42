package jwt

import (
	"strings"

	"im-social/pkg/logger"
	"im-social/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ContextUserIDKey = "user_id"
	ContextRoleKey   = "role"
	ContextClaimsKey = "jwt_claims"
)

// AuthMiddleware reads "Authorization: Bearer <token>", validates it and
// stores the user in the gin.Context.
func (s *JWTService) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "missing Authorization header")
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			response.Unauthorized(c, "Authorization must be Bearer <token>")
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := s.ValidateToken(tokenString)
		if err != nil {
			logger.Warn("jwt validation failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
			response.Unauthorized(c, "token invalid or expired")
			c.Abort()
			return
		}

		userID, err := claims.UserID()
		if err != nil {
			response.Unauthorized(c, "token subject invalid")
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, userID)
		c.Set(ContextRoleKey, claims.Role())
		c.Set(ContextClaimsKey, claims)

		c.Next()
	}
}

// RequireRole must run after AuthMiddleware
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetRole(c) != role {
			response.Forbidden(c, "insufficient role")
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetUserID returns 0 when the request is not authenticated
func GetUserID(c *gin.Context) uint {
	if v, ok := c.Get(ContextUserIDKey); ok {
		if id, ok := v.(uint); ok {
			return id
		}
	}
	return 0
}

// GetRole returns the role claim set by AuthMiddleware
func GetRole(c *gin.Context) string {
	return c.GetString(ContextRoleKey)
}

// GetClaims returns the claims set by AuthMiddleware, or nil
func GetClaims(c *gin.Context) *CustomClaims {
	if v, ok := c.Get(ContextClaimsKey); ok {
		if claims, ok := v.(*CustomClaims); ok {
			return claims
		}
	}
	return nil
}
