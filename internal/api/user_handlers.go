package api

import (
	"net/http"
	"time"

	"tieredmemory/internal/auth"
	"tieredmemory/internal/config"
	"tieredmemory/internal/db"
	"tieredmemory/internal/user"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the owner id alongside the token so clients
// can label locally cached memories with the same identifier the
// engine files them under.
type LoginResponse struct {
	Token    string `json:"token"`
	UserID   uint   `json:"userId"`
	OwnerID  string `json:"ownerId"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func LoginHandler(cfg *config.Config, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		// If no users exist, indicate need for setup
		var count int64
		if err := db.DB.Model(&user.User{}).Count(&count).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "DB error"}})
			return
		}
		if count == 0 {
			c.JSON(http.StatusForbidden, gin.H{"error": gin.H{"message": "Initial setup required", "need_setup": true}})
			return
		}
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "Invalid request"}})
			return
		}
		var u user.User
		if err := db.DB.Where("username = ?", req.Username).First(&u).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Invalid username or password"}})
			return
		}
		if err := user.CheckPassword(u.PasswordHash, req.Password); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Invalid username or password"}})
			return
		}
		token, err := auth.GenerateJWT(cfg.Server.JWTSecret, &u, 7*24*time.Hour)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "Failed to generate token"}})
			return
		}
		_ = auth.SetSession(c.Request.Context(), rdb, u.MemoryOwnerID(), token, 7*24*time.Hour)
		c.JSON(http.StatusOK, LoginResponse{
			Token:    token,
			UserID:   u.ID,
			OwnerID:  u.MemoryOwnerID(),
			Username: u.Username,
			Role:     string(u.Role),
		})
	}
}

func LogoutHandler(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID := c.GetString("ownerId")
		if ownerID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Not authenticated"}})
			return
		}
		_ = auth.DeleteSession(c.Request.Context(), rdb, ownerID)
		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	}
}

func MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userId, _ := c.Get("userId")
		var u user.User
		if err := db.DB.First(&u, userId.(uint)).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "User not found"}})
			return
		}
		c.JSON(http.StatusOK, userJSON(&u))
	}
}

// OnlineUserCountHandler returns the number of memory owners with an
// active session.
func OnlineUserCountHandler(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := auth.OnlineOwnerCount(c.Request.Context(), rdb)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "Failed to count online users"}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"online": count})
	}
}
