package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"transit-aggregator/internal/cache"
)

// CacheHandler exposes health and cache management
type CacheHandler struct {
	co     *cache.Coordinator
	logger *zap.Logger
}

// NewCacheHandler creates a new handler
func NewCacheHandler(co *cache.Coordinator, logger *zap.Logger) *CacheHandler {
	return &CacheHandler{
		co:     co,
		logger: logger,
	}
}

// Clear maneja DELETE /cache
func (h *CacheHandler) Clear(c *gin.Context) {
	h.co.Store().Clear(c.Request.Context())

	h.logger.Info("cache cleared via API")
	c.JSON(http.StatusOK, gin.H{"message": "cache cleared successfully"})
}

// GetStats maneja GET /cache/stats
func (h *CacheHandler) GetStats(c *gin.Context) {
	stats := gin.H{
		"store":       h.co.Store().Stats(c.Request.Context()),
		"coordinator": h.co.Stats(),
	}

	c.JSON(http.StatusOK, stats)
}

// Health maneja GET /health
func (h *CacheHandler) Health(c *gin.Context) {
	err := h.co.Store().Ping(c.Request.Context())
	if err != nil {
		h.logger.Error("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}
