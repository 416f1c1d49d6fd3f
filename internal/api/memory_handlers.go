package api

import (
	"net/http"
	"strconv"

	"tieredmemory/internal/memory"

	"github.com/gin-gonic/gin"
)

// memSvc and lifecycleMgr are the package-level handles to the Tiered
// Memory Engine, set once at startup by InitMemory, mirroring the
// db.DB global-handle pattern used for the gorm connection.
var (
	memSvc       *memory.Service
	lifecycleMgr *memory.LifecycleManager
)

// InitMemory wires the Memory Service and Lifecycle Manager built in
// main into the package's HTTP handlers.
func InitMemory(svc *memory.Service, lm *memory.LifecycleManager) {
	memSvc = svc
	lifecycleMgr = lm
}

// callerOwnerID is the owner id the auth middleware derived from the
// verified token. Memory handlers scope every operation by it; the
// request body's say is never trusted for ownership.
func callerOwnerID(c *gin.Context) string {
	return c.GetString("ownerId")
}

// callerIsAdmin mirrors the middleware's role claim.
func callerIsAdmin(c *gin.Context) bool {
	return c.GetString("userRole") == "admin"
}

type storeMemoryRequest struct {
	Content          string    `json:"content" binding:"required"`
	Embedding        []float32 `json:"embedding" binding:"required"`
	EmotionalValue   float64   `json:"emotionalValue"`
	ContextRelevance float64   `json:"contextRelevance"`
	Tags             []string  `json:"tags"`
	Source           string    `json:"source"`
}

// POST /memories
func StoreMemoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := callerOwnerID(c)
		if owner == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Not authenticated"}})
			return
		}
		var req storeMemoryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}
		id, err := memSvc.Store(c.Request.Context(), memory.Draft{
			OwnerID:   owner,
			Content:   req.Content,
			Embedding: req.Embedding,
			Metadata: memory.Metadata{
				EmotionalValue:   req.EmotionalValue,
				ContextRelevance: req.ContextRelevance,
				Tags:             req.Tags,
				Source:           req.Source,
			},
		})
		if err != nil {
			respondMemoryError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": id, "ownerId": owner})
	}
}

// GET /memories?query=...&k=...
func RetrieveMemoriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := callerOwnerID(c)
		if owner == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Not authenticated"}})
			return
		}
		queryText := c.Query("query")
		k, _ := strconv.Atoi(c.DefaultQuery("k", "5"))

		found, err := memSvc.Retrieve(c.Request.Context(), owner, queryText, nil, k)
		if err != nil {
			respondMemoryError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"memories": found})
	}
}

type updateMemoryRequest struct {
	Content          *string  `json:"content"`
	EmotionalValue   *float64 `json:"emotionalValue"`
	ContextRelevance *float64 `json:"contextRelevance"`
	Tags             []string `json:"tags"`
}

// PUT /memories/:id
func UpdateMemoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		existing, err := memSvc.GetByID(c.Request.Context(), id)
		if err != nil {
			respondMemoryError(c, err)
			return
		}
		if existing.OwnerID != callerOwnerID(c) && !callerIsAdmin(c) {
			// Report foreign memories as absent rather than forbidden.
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "memory not found"}})
			return
		}

		var req updateMemoryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}
		if req.Content != nil {
			existing.Content = *req.Content
		}
		if req.EmotionalValue != nil {
			existing.Metadata.EmotionalValue = *req.EmotionalValue
		}
		if req.ContextRelevance != nil {
			existing.Metadata.ContextRelevance = *req.ContextRelevance
		}
		if req.Tags != nil {
			existing.Metadata.Tags = req.Tags
		}

		if err := memSvc.Update(c.Request.Context(), existing); err != nil {
			respondMemoryError(c, err)
			return
		}
		c.JSON(http.StatusOK, existing)
	}
}

// DELETE /memories/:id
func DeleteMemoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		existing, err := memSvc.GetByID(c.Request.Context(), id)
		if err != nil {
			respondMemoryError(c, err)
			return
		}
		if existing.OwnerID != callerOwnerID(c) && !callerIsAdmin(c) {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "memory not found"}})
			return
		}
		if err := memSvc.Delete(c.Request.Context(), id, existing.Tier); err != nil {
			respondMemoryError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type transitionTierRequest struct {
	Tier string `json:"tier" binding:"required"`
}

// POST /memories/:id/transition
func TransitionMemoryTierHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		var req transitionTierRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}
		newTier := memory.Tier(req.Tier)
		if !newTier.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "unknown tier"}})
			return
		}

		existing, err := memSvc.GetByID(c.Request.Context(), id)
		if err != nil {
			respondMemoryError(c, err)
			return
		}
		if existing.OwnerID != callerOwnerID(c) && !callerIsAdmin(c) {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "memory not found"}})
			return
		}
		if err := memSvc.TransitionTier(c.Request.Context(), existing, newTier); err != nil {
			respondMemoryError(c, err)
			return
		}
		c.JSON(http.StatusOK, existing)
	}
}

// POST /memories/consolidate
func ConsolidateMemoriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := lifecycleMgr.ForceConsolidation(c.Request.Context())
		if err != nil {
			respondMemoryError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

// GET /memories/stats
func MemoryStatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := memSvc.GetStats(c.Request.Context())
		if err != nil {
			respondMemoryError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

// respondMemoryError maps the memory package's error taxonomy onto an
// HTTP status, so handlers don't each repeat the same switch.
func respondMemoryError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch memory.KindOf(err) {
	case memory.KindInvalidInput, memory.KindInvalidTransition:
		status = http.StatusBadRequest
	case memory.KindNotFound:
		status = http.StatusNotFound
	case memory.KindTransient:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": gin.H{"message": err.Error()}})
}
