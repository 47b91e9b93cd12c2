package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ddtcorpus/internal/service"
)

const ContextKeyReviewer = "reviewer"

// Auth returns Gin middleware that validates the reviewer's JWT and injects
// the reviewer name into the request context.
func Auth(authService service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   gin.H{"code": "UNAUTHORIZED", "message": "missing or invalid authorization header"},
			})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := authService.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   gin.H{"code": "UNAUTHORIZED", "message": "invalid or expired token"},
			})
			return
		}

		c.Set(ContextKeyReviewer, claims.Username)
		c.Next()
	}
}

// GetReviewer extracts the authenticated reviewer name from the Gin context.
func GetReviewer(c *gin.Context) string {
	val, exists := c.Get(ContextKeyReviewer)
	if !exists {
		return ""
	}
	return val.(string)
}
