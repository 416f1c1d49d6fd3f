package auth

import (
	"net/http"
	"strings"
	"time"

	"tieredmemory/internal/config"
	"tieredmemory/internal/user"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// AuthMiddleware validates the bearer token against both the JWT
// signature and the redis session keyed by the claim's owner id, then
// attaches the caller's identity to the gin context. Handlers scope
// every memory operation by the "ownerId" value set here, never by a
// caller-supplied field.
func AuthMiddleware(cfg *config.Config, rdb *redis.Client, requireAdmin bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Missing or invalid Authorization header"}})
			return
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := ParseJWT(cfg.Server.JWTSecret, tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Invalid or expired token"}})
			return
		}

		ctx := c.Request.Context()
		sessionToken, err := GetSession(ctx, rdb, claims.OwnerID)
		if err != nil || sessionToken != tokenStr {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Session expired or invalid"}})
			return
		}
		// Refresh the inactivity window on every authenticated request.
		_ = SetSession(ctx, rdb, claims.OwnerID, tokenStr, 30*time.Minute)

		c.Set("userId", claims.UserID)
		c.Set("ownerId", claims.OwnerID)
		c.Set("username", claims.Username)
		c.Set("role", claims.Role)
		c.Set("userRole", claims.Role)

		if requireAdmin && claims.Role != string(user.RoleAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": gin.H{"message": "Admin only"}})
			return
		}
		c.Next()
	}
}
