package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts every endpoint on router
func RegisterRoutes(router *gin.Engine, transit *TransitHandler, cacheHandler *CacheHandler) {
	// Health routes
	router.GET("/health", cacheHandler.Health)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	api := router.Group("/api/v1")
	{
		// Cross-mode routes
		api.GET("/nearby", transit.GetNearby)
		api.GET("/alerts", transit.GetAlerts)

		// Management operations
		api.GET("/cache/stats", cacheHandler.GetStats)
		api.DELETE("/cache", cacheHandler.Clear)

		mode := api.Group("/:mode")
		{
			mode.GET("/lines", transit.GetLines)
			mode.GET("/lines/:code", transit.GetLine)
			mode.GET("/lines/:code/stations", transit.GetLineStations)
			mode.GET("/stations", transit.GetStations)
			mode.GET("/stations/:code", transit.GetStation)
			mode.GET("/stations/:code/routes", transit.GetStationRoutes)
			mode.DELETE("/cache", transit.InvalidateMode)
		}
	}
}
