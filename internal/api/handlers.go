package api

import (
	"net/http"

	"tieredmemory/internal/config"

	"github.com/gin-gonic/gin"
)

// GET /health
func healthHandler(c *gin.Context) {
	engine := "initialising"
	if memSvc != nil {
		engine = "ready"
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"engine": engine,
	})
}

// GET /config
// Exposes the non-sensitive engine settings a client needs to shape
// its requests: the embedding dimension stored vectors must match,
// the default tier, and the per-tier capacities.
func configHandler(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		m := cfg.Memory
		c.JSON(http.StatusOK, gin.H{
			"server": gin.H{
				"host":    cfg.Server.Host,
				"port":    cfg.Server.Port,
				"subpath": cfg.Server.Subpath,
			},
			"memory": gin.H{
				"embeddingDimension": m.General.EmbeddingDimension,
				"defaultTier":        m.General.DefaultTier,
				"tiers": gin.H{
					"core":       gin.H{"capacity": m.Tiers.Core.Capacity},
					"active":     gin.H{"capacity": m.Tiers.Active.Capacity},
					"background": gin.H{"capacity": m.Tiers.Background.Capacity},
				},
			},
		})
	}
}
