package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"transit-aggregator/internal/alerts"
	"transit-aggregator/internal/proximity"
	"transit-aggregator/internal/style"
	"transit-aggregator/pkg/models"
)

// ModeService is the read contract of one mode aggregator
type ModeService interface {
	TransportType() models.TransportType
	GetAllLines(ctx context.Context) []models.Line
	GetLineByCode(ctx context.Context, code string) (models.Line, bool)
	GetStationsByLine(ctx context.Context, lineCode string) []models.Station
	GetStationByCode(ctx context.Context, code string) (models.Station, bool)
	GetStationsByName(ctx context.Context, query string) []models.Station
	GetStationRoutes(ctx context.Context, stationCode string) []models.Route
	Invalidate(ctx context.Context)
}

// NearbyLimits bounds the nearby query parameters
type NearbyLimits struct {
	DefaultRadius float64
	DefaultLimit  int
	MaxLimit      int
}

// TransitHandler serves lines, stations, routes, alerts and nearby stops
type TransitHandler struct {
	services map[models.TransportType]ModeService
	composer *proximity.Composer
	registry *alerts.Registry
	policy   *style.Policy
	limits   NearbyLimits
	clock    clock.Clock
	logger   *zap.Logger
}

// NewTransitHandler creates a new handler. Only modes present in services
// are routable.
func NewTransitHandler(
	services []ModeService,
	composer *proximity.Composer,
	registry *alerts.Registry,
	policy *style.Policy,
	limits NearbyLimits,
	clk clock.Clock,
	logger *zap.Logger,
) *TransitHandler {
	if clk == nil {
		clk = clock.New()
	}
	byMode := make(map[models.TransportType]ModeService, len(services))
	for _, svc := range services {
		byMode[svc.TransportType()] = svc
	}
	return &TransitHandler{
		services: byMode,
		composer: composer,
		registry: registry,
		policy:   policy,
		limits:   limits,
		clock:    clk,
		logger:   logger,
	}
}

// service resolves the :mode parameter, answering 404 when unknown
func (h *TransitHandler) service(c *gin.Context) (ModeService, bool) {
	mode, ok := models.ParseTransportType(strings.ToLower(c.Param("mode")))
	if ok {
		if svc, enabled := h.services[mode]; enabled {
			return svc, true
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "unknown transport mode"})
	return nil, false
}

// GetLines maneja GET /:mode/lines
func (h *TransitHandler) GetLines(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}

	lines := svc.GetAllLines(c.Request.Context())
	c.JSON(http.StatusOK, h.lineViews(lines))
}

// GetLine maneja GET /:mode/lines/:code
func (h *TransitHandler) GetLine(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}

	line, found := svc.GetLineByCode(c.Request.Context(), c.Param("code"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "line not found"})
		return
	}
	c.JSON(http.StatusOK, h.lineView(line))
}

// GetLineStations maneja GET /:mode/lines/:code/stations
func (h *TransitHandler) GetLineStations(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	line, found := svc.GetLineByCode(ctx, c.Param("code"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "line not found"})
		return
	}
	c.JSON(http.StatusOK, h.stationViews(svc.GetStationsByLine(ctx, line.Code)))
}

// GetStations maneja GET /:mode/stations?q=
func (h *TransitHandler) GetStations(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}

	stations := svc.GetStationsByName(c.Request.Context(), c.Query("q"))
	c.JSON(http.StatusOK, h.stationViews(stations))
}

// GetStation maneja GET /:mode/stations/:code
func (h *TransitHandler) GetStation(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}

	station, found := svc.GetStationByCode(c.Request.Context(), c.Param("code"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "station not found"})
		return
	}
	c.JSON(http.StatusOK, h.stationView(station))
}

// GetStationRoutes maneja GET /:mode/stations/:code/routes
func (h *TransitHandler) GetStationRoutes(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}

	routes := svc.GetStationRoutes(c.Request.Context(), c.Param("code"))
	c.JSON(http.StatusOK, h.routeViews(routes))
}

// InvalidateMode maneja DELETE /:mode/cache
func (h *TransitHandler) InvalidateMode(c *gin.Context) {
	svc, ok := h.service(c)
	if !ok {
		return
	}

	svc.Invalidate(c.Request.Context())
	h.logger.Info("mode cache invalidated via API", zap.String("mode", string(svc.TransportType())))
	c.JSON(http.StatusOK, gin.H{"message": "cache invalidated successfully"})
}

// GetNearby maneja GET /nearby?lat=&lon=&radius=&limit=
func (h *TransitHandler) GetNearby(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
	if errLat != nil || errLon != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lon are required coordinates"})
		return
	}

	radius := h.limits.DefaultRadius
	if r := c.Query("radius"); r != "" {
		parsed, err := strconv.ParseFloat(r, 64)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid radius"})
			return
		}
		radius = parsed
	}

	limit := h.limits.DefaultLimit
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}
	if h.limits.MaxLimit > 0 && limit > h.limits.MaxLimit {
		limit = h.limits.MaxLimit
	}

	nearby := h.composer.Nearby(c.Request.Context(), lat, lon, radius, limit)
	c.JSON(http.StatusOK, gin.H{
		"count":    len(nearby),
		"radius":   radius,
		"stations": h.nearbyViews(nearby),
	})
}

// GetAlerts maneja GET /alerts?mode=
func (h *TransitHandler) GetAlerts(c *gin.Context) {
	var mode models.TransportType
	if m := c.Query("mode"); m != "" {
		parsed, ok := models.ParseTransportType(strings.ToLower(m))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown transport mode"})
			return
		}
		mode = parsed
	}

	active := h.registry.Active(mode)
	c.JSON(http.StatusOK, gin.H{
		"count":  len(active),
		"alerts": alertViews(active),
	})
}
