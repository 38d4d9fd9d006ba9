package gateway

import (
	"context"
	"fmt"
	"strconv"

	"transit-aggregator/internal/alerts"
	"transit-aggregator/pkg/models"
)

// TramGateway talks to the TRAM (Trambaix/Trambesòs) open data API
type TramGateway struct {
	client *Client
	config EndpointConfig
}

// NewTram creates the tram gateway
func NewTram(client *Client, config EndpointConfig) *TramGateway {
	return &TramGateway{client: client, config: config}
}

type tramLine struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Color       string `json:"color"`
}

type tramStop struct {
	ID        int64    `json:"id"`
	Code      string   `json:"code"`
	Name      string   `json:"name"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Order     int      `json:"order"`
}

type tramConnection struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Color   string `json:"color"`
	Network string `json:"network"`
}

type tramArrival struct {
	TripID      string `json:"tripId"`
	LineCode    string `json:"lineCode"`
	LineName    string `json:"lineName"`
	Destination string `json:"destination"`
	ArrivalTime int64  `json:"arrivalTime"`
	Delay       int    `json:"delay"`
}

func (g *TramGateway) TransportType() models.TransportType {
	return models.TransportTram
}

func (g *TramGateway) GetLines(ctx context.Context) ([]LineDTO, error) {
	lines, err := getJSON[[]tramLine](ctx, g.client, join(g.config.BaseURL, "lines"))
	if err != nil {
		return nil, fmt.Errorf("failed to get tram lines: %w", err)
	}

	out := make([]LineDTO, 0, len(lines))
	for _, l := range lines {
		out = append(out, LineDTO{
			ID:          strconv.FormatInt(l.ID, 10),
			Code:        l.Code,
			Name:        l.Name,
			Description: l.Description,
			Origin:      l.Origin,
			Destination: l.Destination,
			Color:       l.Color,
		})
	}
	return out, nil
}

func (g *TramGateway) GetGlobalAlerts(ctx context.Context) ([]alerts.RawAlert, error) {
	body, err := g.client.Get(ctx, join(g.config.BaseURL, "networkIncidents"))
	if err != nil {
		return nil, fmt.Errorf("failed to get tram incidents: %w", err)
	}
	return []alerts.RawAlert{{Format: alerts.FormatTram, Payload: body}}, nil
}

func (g *TramGateway) GetStationsByLine(ctx context.Context, lineID string) ([]StationDTO, error) {
	stops, err := getJSON[[]tramStop](ctx, g.client, join(g.config.BaseURL, "lines", lineID, "stops"))
	if err != nil {
		return nil, fmt.Errorf("failed to get stops of tram line %s: %w", lineID, err)
	}

	out := make([]StationDTO, 0, len(stops))
	for _, s := range stops {
		out = append(out, StationDTO{
			ID:        strconv.FormatInt(s.ID, 10),
			Code:      s.Code,
			Name:      s.Name,
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
			Order:     s.Order,
		})
	}
	return out, nil
}

func (g *TramGateway) GetStationConnections(ctx context.Context, lineID, stationID string) ([]ConnectionDTO, error) {
	conns, err := getJSON[[]tramConnection](ctx, g.client, join(g.config.BaseURL, "stops", stationID, "connections"))
	if err != nil {
		return nil, fmt.Errorf("failed to get connections of tram stop %s: %w", stationID, err)
	}

	out := make([]ConnectionDTO, 0, len(conns))
	for _, c := range conns {
		transport, ok := models.ParseTransportType(c.Network)
		if !ok {
			transport = models.TransportTram
		}
		out = append(out, ConnectionDTO{
			Code:          c.Code,
			Name:          c.Name,
			Color:         c.Color,
			TransportType: transport,
		})
	}
	return out, nil
}

func (g *TramGateway) GetNextArrivals(ctx context.Context, stationID string) ([]RouteDTO, error) {
	arrivals, err := getJSON[[]tramArrival](ctx, g.client, join(g.config.BaseURL, "stops", stationID, "arrivals"))
	if err != nil {
		return nil, fmt.Errorf("failed to get arrivals at tram stop %s: %w", stationID, err)
	}

	out := make([]RouteDTO, 0, len(arrivals))
	for _, a := range arrivals {
		out = append(out, RouteDTO{
			ID:             a.TripID,
			LineCode:       a.LineCode,
			LineName:       a.LineName,
			Destination:    a.Destination,
			ArrivalTime:    a.ArrivalTime,
			DelayInMinutes: a.Delay,
		})
	}
	return out, nil
}
