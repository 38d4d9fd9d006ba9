package aggregator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"transit-aggregator/internal/alerts"
	"transit-aggregator/internal/cache"
	"transit-aggregator/internal/gateway"
	"transit-aggregator/pkg/models"
)

// RefResolver links a station to a station of another mode
type RefResolver interface {
	Resolve(ctx context.Context, station models.Station) (string, bool)
}

// Service aggregates the lines, stations and routes of one mode. Static
// topology and alerts are cached under separate keys and merged on every
// read into fresh copies.
type Service struct {
	mode     Mode
	gateway  gateway.Gateway
	co       *cache.Coordinator
	registry *alerts.Registry
	resolver RefResolver
	clock    clock.Clock
	logger   *zap.Logger
}

// Option configures a Service
type Option func(*Service)

// WithClock sets the clock used to drop ended alerts at merge time
func WithClock(clk clock.Clock) Option {
	return func(s *Service) { s.clock = clk }
}

// WithRegistry publishes every alert refresh to registry
func WithRegistry(registry *alerts.Registry) Option {
	return func(s *Service) { s.registry = registry }
}

// WithResolver fills Station.ExternalRef during the station rebuild
func WithResolver(resolver RefResolver) Option {
	return func(s *Service) { s.resolver = resolver }
}

// NewService creates the aggregator for mode
func NewService(mode Mode, gw gateway.Gateway, co *cache.Coordinator, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		mode:    mode,
		gateway: gw,
		co:      co,
		clock:   clock.New(),
		logger:  logger.With(zap.String("mode", string(mode.TransportType))),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TransportType returns the mode served
func (s *Service) TransportType() models.TransportType {
	return s.mode.TransportType
}

// GetAllLines returns every line with its active alerts, ordered by code
func (s *Service) GetAllLines(ctx context.Context) []models.Line {
	lines, _ := s.linesWithAlerts(ctx)
	return lines
}

// linesWithAlerts merges the cached lines with the current alert index
func (s *Service) linesWithAlerts(ctx context.Context) ([]models.Line, alerts.Index) {
	var (
		lines []models.Line
		idx   alerts.Index
	)

	var eg errgroup.Group
	eg.Go(func() error {
		lines = cache.GetOrFetch(ctx, s.co, LinesStaticKey(s.mode.TransportType), s.mode.StaticTTL, s.fetchLines)
		return nil
	})
	eg.Go(func() error {
		idx = cache.GetOrFetch(ctx, s.co, LinesAlertsKey(s.mode.TransportType), s.mode.AlertsTTL, s.fetchLineAlerts)
		return nil
	})
	eg.Wait()

	return s.mergeLines(lines, idx.ByLine), idx
}

// GetLineByCode finds a line by code or name, case-insensitively
func (s *Service) GetLineByCode(ctx context.Context, code string) (models.Line, bool) {
	for _, line := range s.GetAllLines(ctx) {
		if strings.EqualFold(line.Code, code) || strings.EqualFold(line.Name, code) {
			return line, true
		}
	}
	return models.Line{}, false
}

// GetAllStations returns one record per (line, station), with connections
// and active alerts, ordered by line code then position on the line
func (s *Service) GetAllStations(ctx context.Context) []models.Station {
	var (
		stations  []models.Station
		byStation map[string][]models.Alert
	)

	var eg errgroup.Group
	eg.Go(func() error {
		stations = cache.GetOrFetch(ctx, s.co, StationsStaticKey(s.mode.TransportType), s.mode.StaticTTL, s.fetchAllStations)
		return nil
	})
	eg.Go(func() error {
		byStation = s.stationAlerts(ctx)
		return nil
	})
	eg.Wait()

	return s.mergeStations(stations, byStation)
}

// GetStationsByLine returns the stations of one line in line order
func (s *Service) GetStationsByLine(ctx context.Context, lineCode string) []models.Station {
	line, ok := s.GetLineByCode(ctx, lineCode)
	if !ok {
		return nil
	}

	var stations []models.Station
	if all, ok := cache.Lookup[[]models.Station](ctx, s.co, StationsStaticKey(s.mode.TransportType)); ok {
		var filtered []models.Station
		for _, st := range all {
			if st.LineCode == line.Code {
				filtered = append(filtered, st)
			}
		}
		stations = cache.GetOrUse(ctx, s.co, LineStationsKey(s.mode.TransportType, line.Code), filtered, s.mode.StaticTTL)
	}
	if len(stations) == 0 {
		// the full list may be a partial rebuild that lacks this line
		stations = s.lineStations(ctx, line)
	}

	return s.mergeStations(stations, s.stationAlerts(ctx))
}

// GetStationByCode returns the first record of a station code. Stations
// served by several lines have one record per line; the lowest line wins.
func (s *Service) GetStationByCode(ctx context.Context, code string) (models.Station, bool) {
	for _, st := range s.GetAllStations(ctx) {
		if st.Code == code {
			return st, true
		}
	}
	return models.Station{}, false
}

// GetStationsByName matches query against station names ignoring case and
// accents. An empty query returns every station.
func (s *Service) GetStationsByName(ctx context.Context, query string) []models.Station {
	all := s.GetAllStations(ctx)
	query = strings.TrimSpace(query)
	if query == "" {
		return all
	}

	needle := fold(query)
	var out []models.Station
	for _, st := range all {
		if strings.Contains(fold(st.Name), needle) {
			out = append(out, st)
		}
	}
	return out
}

// GetStationRoutes returns the next arrivals at a station, soonest first
func (s *Service) GetStationRoutes(ctx context.Context, stationCode string) []models.Route {
	return cache.GetOrFetch(ctx, s.co, RoutesKey(s.mode.TransportType, stationCode), s.mode.RoutesTTL,
		func(ctx context.Context) ([]models.Route, error) {
			dtos, err := s.gateway.GetNextArrivals(ctx, stationCode)
			if err != nil {
				return nil, err
			}

			routes := make([]models.Route, 0, len(dtos))
			for _, d := range dtos {
				routes = append(routes, models.Route{
					ID:             d.ID,
					LineCode:       d.LineCode,
					LineName:       d.LineName,
					Destination:    d.Destination,
					TransportType:  s.mode.TransportType,
					ArrivalTime:    d.ArrivalTime,
					DelayInMinutes: d.DelayInMinutes,
					Platform:       d.Platform,
				})
			}
			sortRoutes(routes)
			return routes, nil
		})
}

// Warmup populates the line and station caches
func (s *Service) Warmup(ctx context.Context) {
	start := s.clock.Now()
	lines := s.GetAllLines(ctx)
	stations := s.GetAllStations(ctx)

	s.logger.Info("cache warmed up",
		zap.Int("lines", len(lines)),
		zap.Int("stations", len(stations)),
		zap.Duration("duration", s.clock.Since(start)))
}

// Invalidate drops the mode's aggregated keys. Per-line and per-station
// entries expire on their own.
func (s *Service) Invalidate(ctx context.Context) {
	mode := s.mode.TransportType
	s.co.Invalidate(ctx,
		LinesStaticKey(mode),
		LinesAlertsKey(mode),
		StationsStaticKey(mode),
		StationsAlertsKey(mode),
	)
	s.logger.Info("cache invalidated")
}

func (s *Service) fetchLines(ctx context.Context) ([]models.Line, error) {
	dtos, err := s.gateway.GetLines(ctx)
	if err != nil {
		return nil, err
	}

	lines := make([]models.Line, 0, len(dtos))
	for _, d := range dtos {
		lines = append(lines, models.Line{
			ID:            d.ID,
			Code:          d.Code,
			Name:          d.Name,
			Description:   d.Description,
			Origin:        d.Origin,
			Destination:   d.Destination,
			Color:         d.Color,
			TransportType: s.mode.TransportType,
		})
	}
	sortLines(lines)
	return lines, nil
}

func (s *Service) fetchLineAlerts(ctx context.Context) (alerts.Index, error) {
	raws, err := s.gateway.GetGlobalAlerts(ctx)
	if err != nil {
		return alerts.Index{}, err
	}

	list, err := alerts.Normalize(raws)
	if err != nil {
		if len(list) == 0 && len(raws) > 0 {
			return alerts.Index{}, err
		}
		s.logger.Warn("skipped malformed alert payloads", zap.Error(err))
	}

	if s.registry != nil {
		s.registry.Replace(s.mode.TransportType, list)
	}
	return alerts.NewIndex(list), nil
}

// fetchAllStations is the two-level fan-out: lines, then stations of each
// line. Lines that yield no stations make the result partial.
func (s *Service) fetchAllStations(ctx context.Context) ([]models.Station, error) {
	lines := s.GetAllLines(ctx)
	if len(lines) == 0 {
		return nil, errors.New("no lines available")
	}

	perLine := make([][]models.Station, len(lines))
	var eg errgroup.Group
	eg.SetLimit(s.mode.LineConcurrency)
	for i, line := range lines {
		i, line := i, line
		eg.Go(func() error {
			perLine[i] = s.lineStations(ctx, line)
			return nil
		})
	}
	eg.Wait()

	var (
		out     []models.Station
		missing []string
	)
	for i, stations := range perLine {
		if len(stations) == 0 {
			missing = append(missing, lines[i].Code)
			continue
		}
		out = append(out, stations...)
	}
	sortStations(out)

	if len(missing) > 0 {
		return out, cache.Partial(fmt.Errorf("no stations for lines %s", strings.Join(missing, ", ")), s.mode.AlertsTTL)
	}
	return out, nil
}

// lineStations returns the stations of one line with their connections
func (s *Service) lineStations(ctx context.Context, line models.Line) []models.Station {
	key := LineStationsKey(s.mode.TransportType, line.Code)
	return cache.GetOrFetch(ctx, s.co, key, s.mode.StaticTTL, func(ctx context.Context) ([]models.Station, error) {
		return s.fetchLineStations(ctx, line)
	})
}

func (s *Service) fetchLineStations(ctx context.Context, line models.Line) ([]models.Station, error) {
	dtos, err := s.gateway.GetStationsByLine(ctx, line.ID)
	if err != nil {
		return nil, err
	}

	stations := make([]models.Station, len(dtos))
	unresolved := make([]bool, len(dtos))

	var eg errgroup.Group
	eg.SetLimit(s.mode.StationConcurrency)
	for i, dto := range dtos {
		i, dto := i, dto
		eg.Go(func() error {
			st := models.Station{
				ID:            dto.ID,
				Code:          dto.Code,
				Name:          dto.Name,
				Latitude:      dto.Latitude,
				Longitude:     dto.Longitude,
				Order:         dto.Order,
				TransportType: s.mode.TransportType,
				LineID:        line.ID,
				LineCode:      line.Code,
				LineName:      line.Name,
				LineColor:     line.Color,
				ExternalRef:   dto.ExternalRef,
				Bike:          dto.Bike,
			}
			st.Connections = s.connections(ctx, line, dto.Code)

			if s.resolver != nil && st.ExternalRef == "" {
				if ref, ok := s.resolver.Resolve(ctx, st); ok {
					st.ExternalRef = ref
				} else {
					unresolved[i] = true
				}
			}
			stations[i] = st
			return nil
		})
	}
	eg.Wait()

	var names []string
	for i, miss := range unresolved {
		if miss {
			names = append(names, stations[i].Code+" "+stations[i].Name)
		}
	}
	if len(names) > 0 {
		s.logger.Warn("stations without external reference",
			zap.String("line", line.Code),
			zap.Strings("stations", names))
	}

	sortStations(stations)
	return stations, nil
}

func (s *Service) connections(ctx context.Context, line models.Line, stationCode string) []models.LineSummary {
	key := ConnectionsKey(s.mode.TransportType, line.Code, stationCode)
	return cache.GetOrFetch(ctx, s.co, key, s.mode.StaticTTL, func(ctx context.Context) ([]models.LineSummary, error) {
		dtos, err := s.gateway.GetStationConnections(ctx, line.ID, stationCode)
		if err != nil {
			return nil, err
		}

		out := make([]models.LineSummary, 0, len(dtos))
		for _, d := range dtos {
			if d.TransportType == s.mode.TransportType && d.Code == line.Code {
				continue
			}
			out = append(out, models.LineSummary{
				Code:          d.Code,
				Name:          d.Name,
				Color:         d.Color,
				TransportType: d.TransportType,
			})
		}
		return out, nil
	})
}

// stationAlertIndex is the per-station view of one alert index generation
type stationAlertIndex struct {
	Generation string                    `json:"generation"`
	ByStation  map[string][]models.Alert `json:"by_station"`
}

// stationAlerts returns the station map of the current line alerts. A
// cached map built from an earlier alerts refresh is discarded.
func (s *Service) stationAlerts(ctx context.Context) map[string][]models.Alert {
	lines, idx := s.linesWithAlerts(ctx)
	if idx.Generation == "" {
		return nil
	}

	key := StationsAlertsKey(s.mode.TransportType)
	if cached, ok := cache.Lookup[stationAlertIndex](ctx, s.co, key); ok {
		if cached.Generation == idx.Generation {
			return cached.ByStation
		}
		s.co.Invalidate(ctx, key)
	}

	built := cache.GetOrFetch(ctx, s.co, key, s.mode.AlertsTTL, func(ctx context.Context) (stationAlertIndex, error) {
		return s.fetchStationAlerts(ctx, lines, idx), nil
	})
	if built.Generation != idx.Generation {
		// a concurrent rebuild raced with an alerts refresh
		return s.fetchStationAlerts(ctx, lines, idx).ByStation
	}
	return built.ByStation
}

// fetchStationAlerts maps station code to the alerts naming it. Line alerts
// are matched against the stations of alerted lines only; stop-only alerts
// attach to the stations they name.
func (s *Service) fetchStationAlerts(ctx context.Context, lines []models.Line, idx alerts.Index) stationAlertIndex {
	var alerted []models.Line
	for _, line := range lines {
		if line.HasAlerts {
			alerted = append(alerted, line)
		}
	}

	perLine := make([][]models.Station, len(alerted))
	var eg errgroup.Group
	eg.SetLimit(s.mode.LineConcurrency)
	for i, line := range alerted {
		i, line := i, line
		eg.Go(func() error {
			perLine[i] = s.lineStations(ctx, line)
			return nil
		})
	}
	eg.Wait()

	byStation := make(map[string][]models.Alert)
	seen := make(map[string]map[string]struct{})
	attach := func(code string, alert models.Alert) {
		if seen[code] == nil {
			seen[code] = make(map[string]struct{})
		}
		if _, dup := seen[code][alert.ID]; dup {
			return
		}
		seen[code][alert.ID] = struct{}{}
		byStation[code] = append(byStation[code], alert)
	}

	for i, line := range alerted {
		for _, st := range perLine[i] {
			for _, alert := range line.Alerts {
				if alert.AffectsStation(st.Code) {
					attach(st.Code, alert)
				}
			}
		}
	}
	for _, alert := range idx.StopOnly {
		for _, code := range alerts.StopOnlyStations(alert) {
			attach(code, alert)
		}
	}

	return stationAlertIndex{Generation: idx.Generation, ByStation: byStation}
}

func (s *Service) mergeLines(lines []models.Line, byLine map[string][]models.Alert) []models.Line {
	now := s.clock.Now()
	out := make([]models.Line, len(lines))
	for i, line := range lines {
		line.Alerts = lineAlerts(byLine, line, now)
		line.HasAlerts = len(line.Alerts) > 0
		out[i] = line
	}
	return out
}

// lineAlerts collects the active alerts grouped under the line's name, or
// its code when upstream names lines by code
func lineAlerts(byLine map[string][]models.Alert, line models.Line, now time.Time) []models.Alert {
	candidates := byLine[line.Name]
	if line.Code != line.Name {
		candidates = append(candidates[:len(candidates):len(candidates)], byLine[line.Code]...)
	}

	var out []models.Alert
	seen := make(map[string]struct{}, len(candidates))
	for _, a := range alerts.Active(candidates, now) {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	return out
}

func (s *Service) mergeStations(stations []models.Station, byStation map[string][]models.Alert) []models.Station {
	now := s.clock.Now()
	out := make([]models.Station, len(stations))
	for i, st := range stations {
		st.Alerts = alerts.Active(byStation[st.Code], now)
		st.HasAlerts = len(st.Alerts) > 0
		out[i] = st
	}
	return out
}
