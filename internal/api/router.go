package api

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"tieredmemory/internal/auth"
	"tieredmemory/internal/config"
)

func SetupRouter(cfg *config.Config, rdb *redis.Client) *gin.Engine {
	r := gin.Default()
	subpath := cfg.Server.Subpath // e.g. "/memories-api" or any custom path, always starts with '/'

	// API routes
	group := r.Group(subpath)
	{
		group.GET("/health", healthHandler)
		group.GET("/config", configHandler(cfg))

		// Setup: only if no users
		group.POST("/setup", SetupHandler())

		// Auth
		group.POST("/auth/login", LoginHandler(cfg, rdb))
		group.POST("/auth/logout", auth.AuthMiddleware(cfg, rdb, false), LogoutHandler(rdb))
		group.GET("/auth/me", auth.AuthMiddleware(cfg, rdb, false), MeHandler())

		// Admin: users
		group.GET("/users", auth.AuthMiddleware(cfg, rdb, true), ListUsersHandler())
		group.POST("/users", auth.AuthMiddleware(cfg, rdb, true), CreateUserHandler())

		// User self-service
		group.GET("/users/me", auth.AuthMiddleware(cfg, rdb, false), GetMeHandler())
		group.PUT("/users/me", auth.AuthMiddleware(cfg, rdb, false), UpdateMeHandler())
		group.DELETE("/users/me", auth.AuthMiddleware(cfg, rdb, false), DeleteMeHandler())

		// Admin: user by id
		group.GET("/users/:id", auth.AuthMiddleware(cfg, rdb, true), GetUserByIdHandler())
		group.PUT("/users/:id", auth.AuthMiddleware(cfg, rdb, true), UpdateUserByIdHandler())
		group.DELETE("/users/:id", auth.AuthMiddleware(cfg, rdb, true), DeleteUserByIdHandler())

		// --- Online users count ---
		group.GET("/users/online", OnlineUserCountHandler(rdb))

		// --- Tiered Memory Engine ---
		group.POST("/memories", auth.AuthMiddleware(cfg, rdb, false), StoreMemoryHandler())
		group.GET("/memories", auth.AuthMiddleware(cfg, rdb, false), RetrieveMemoriesHandler())
		group.PUT("/memories/:id", auth.AuthMiddleware(cfg, rdb, false), UpdateMemoryHandler())
		group.DELETE("/memories/:id", auth.AuthMiddleware(cfg, rdb, false), DeleteMemoryHandler())
		group.POST("/memories/:id/transition", auth.AuthMiddleware(cfg, rdb, false), TransitionMemoryTierHandler())
		group.POST("/memories/consolidate", auth.AuthMiddleware(cfg, rdb, true), ConsolidateMemoriesHandler())
		group.GET("/memories/stats", auth.AuthMiddleware(cfg, rdb, false), MemoryStatsHandler())
	}
	return r
}
