package gateway

import (
	"context"
	"fmt"
	"net/url"

	"transit-aggregator/internal/alerts"
	"transit-aggregator/pkg/models"
)

// FGCGateway reads the FGC open data portal (Opendatasoft records API).
// FGC publishes no alert feed.
type FGCGateway struct {
	client *Client
	config EndpointConfig
}

// NewFGC creates the FGC gateway
func NewFGC(client *Client, config EndpointConfig) *FGCGateway {
	return &FGCGateway{client: client, config: config}
}

type fgcRecords[T any] struct {
	TotalCount int `json:"total_count"`
	Results    []T `json:"results"`
}

type fgcLine struct {
	RouteID        string `json:"route_id"`
	RouteShortName string `json:"route_short_name"`
	RouteLongName  string `json:"route_long_name"`
	RouteColor     string `json:"route_color"`
	Origin         string `json:"origin"`
	Destination    string `json:"destination"`
}

type fgcStation struct {
	StopID       string   `json:"stop_id"`
	StopName     string   `json:"stop_name"`
	StopLat      *float64 `json:"stop_lat"`
	StopLon      *float64 `json:"stop_lon"`
	StopSequence int      `json:"stop_sequence"`
	Lines        []string `json:"lines"`
}

type fgcDeparture struct {
	TripID             string `json:"trip_id"`
	RouteShortName     string `json:"route_short_name"`
	TripHeadsign       string `json:"trip_headsign"`
	DepartureTimestamp int64  `json:"departure_timestamp"`
	Platform           string `json:"platform"`
}

func (g *FGCGateway) TransportType() models.TransportType {
	return models.TransportFGC
}

func (g *FGCGateway) records(dataset, where, orderBy string) string {
	q := url.Values{}
	q.Set("limit", "100")
	if where != "" {
		q.Set("where", where)
	}
	if orderBy != "" {
		q.Set("order_by", orderBy)
	}
	return join(g.config.BaseURL, dataset, "records") + "?" + q.Encode()
}

func (g *FGCGateway) GetLines(ctx context.Context) ([]LineDTO, error) {
	recs, err := getJSON[fgcRecords[fgcLine]](ctx, g.client, g.records("lineas-red-fgc", "", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to get FGC lines: %w", err)
	}

	out := make([]LineDTO, 0, len(recs.Results))
	for _, l := range recs.Results {
		out = append(out, LineDTO{
			ID:          l.RouteID,
			Code:        l.RouteShortName,
			Name:        l.RouteShortName,
			Description: l.RouteLongName,
			Origin:      l.Origin,
			Destination: l.Destination,
			Color:       l.RouteColor,
		})
	}
	return out, nil
}

func (g *FGCGateway) GetGlobalAlerts(context.Context) ([]alerts.RawAlert, error) {
	return nil, nil
}

func (g *FGCGateway) GetStationsByLine(ctx context.Context, lineID string) ([]StationDTO, error) {
	recs, err := getJSON[fgcRecords[fgcStation]](ctx, g.client,
		g.records("estacions-fgc", fmt.Sprintf("lines=%q", lineID), "stop_sequence"))
	if err != nil {
		return nil, fmt.Errorf("failed to get stations of FGC line %s: %w", lineID, err)
	}

	out := make([]StationDTO, 0, len(recs.Results))
	for _, s := range recs.Results {
		out = append(out, StationDTO{
			ID:        s.StopID,
			Code:      s.StopID,
			Name:      s.StopName,
			Latitude:  s.StopLat,
			Longitude: s.StopLon,
			Order:     s.StopSequence,
		})
	}
	return out, nil
}

// GetStationConnections returns the other FGC lines calling at the station
func (g *FGCGateway) GetStationConnections(ctx context.Context, lineID, stationID string) ([]ConnectionDTO, error) {
	recs, err := getJSON[fgcRecords[fgcStation]](ctx, g.client,
		g.records("estacions-fgc", fmt.Sprintf("stop_id=%q", stationID), ""))
	if err != nil {
		return nil, fmt.Errorf("failed to get FGC station %s: %w", stationID, err)
	}
	if len(recs.Results) == 0 {
		return nil, nil
	}

	var out []ConnectionDTO
	for _, code := range recs.Results[0].Lines {
		if code == lineID {
			continue
		}
		out = append(out, ConnectionDTO{Code: code, Name: code, TransportType: models.TransportFGC})
	}
	return out, nil
}

func (g *FGCGateway) GetNextArrivals(ctx context.Context, stationID string) ([]RouteDTO, error) {
	recs, err := getJSON[fgcRecords[fgcDeparture]](ctx, g.client,
		g.records("proximes-sortides", fmt.Sprintf("stop_id=%q", stationID), "departure_timestamp"))
	if err != nil {
		return nil, fmt.Errorf("failed to get departures at FGC station %s: %w", stationID, err)
	}

	out := make([]RouteDTO, 0, len(recs.Results))
	for _, d := range recs.Results {
		out = append(out, RouteDTO{
			ID:          d.TripID,
			LineCode:    d.RouteShortName,
			LineName:    d.RouteShortName,
			Destination: d.TripHeadsign,
			ArrivalTime: d.DepartureTimestamp,
			Platform:    d.Platform,
		})
	}
	return out, nil
}
