package gateway

import (
	"context"
	"fmt"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"transit-aggregator/internal/alerts"
	"transit-aggregator/pkg/models"
)

// RodaliesGateway combines the Rodalies de Catalunya topology API with
// Renfe's GTFS-Realtime alert and trip update feeds.
type RodaliesGateway struct {
	client *Client
	config RodaliesConfig
}

// NewRodalies creates the Rodalies gateway
func NewRodalies(client *Client, config RodaliesConfig) *RodaliesGateway {
	return &RodaliesGateway{client: client, config: config}
}

type rodaliesLines struct {
	Lines []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		LongName    string `json:"longName"`
		Origin      string `json:"origin"`
		Destination string `json:"destination"`
		Color       string `json:"color"`
	} `json:"lines"`
}

type rodaliesStations struct {
	Stations []rodaliesStation `json:"stations"`
}

type rodaliesStation struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Latitude  *float64          `json:"latitude"`
	Longitude *float64          `json:"longitude"`
	Order     int               `json:"order"`
	Lines     []rodaliesLineRef `json:"lines"`
}

type rodaliesLineRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (g *RodaliesGateway) TransportType() models.TransportType {
	return models.TransportRodalies
}

func (g *RodaliesGateway) GetLines(ctx context.Context) ([]LineDTO, error) {
	resp, err := getJSON[rodaliesLines](ctx, g.client, join(g.config.BaseURL, "lines"))
	if err != nil {
		return nil, fmt.Errorf("failed to get rodalies lines: %w", err)
	}

	out := make([]LineDTO, 0, len(resp.Lines))
	for _, l := range resp.Lines {
		out = append(out, LineDTO{
			ID:          l.ID,
			Code:        l.ID,
			Name:        l.Name,
			Description: l.LongName,
			Origin:      l.Origin,
			Destination: l.Destination,
			Color:       l.Color,
		})
	}
	return out, nil
}

func (g *RodaliesGateway) GetGlobalAlerts(ctx context.Context) ([]alerts.RawAlert, error) {
	body, err := g.client.Get(ctx, g.config.AlertsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get rodalies alerts feed: %w", err)
	}
	return []alerts.RawAlert{{Format: alerts.FormatRodalies, Payload: body}}, nil
}

func (g *RodaliesGateway) GetStationsByLine(ctx context.Context, lineID string) ([]StationDTO, error) {
	resp, err := getJSON[rodaliesStations](ctx, g.client, join(g.config.BaseURL, "lines", lineID, "stations"))
	if err != nil {
		return nil, fmt.Errorf("failed to get stations of rodalies line %s: %w", lineID, err)
	}

	out := make([]StationDTO, 0, len(resp.Stations))
	for _, s := range resp.Stations {
		out = append(out, StationDTO{
			ID:        s.ID,
			Code:      s.ID,
			Name:      s.Name,
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
			Order:     s.Order,
		})
	}
	return out, nil
}

func (g *RodaliesGateway) GetStationConnections(ctx context.Context, lineID, stationID string) ([]ConnectionDTO, error) {
	st, err := getJSON[rodaliesStation](ctx, g.client, join(g.config.BaseURL, "stations", stationID))
	if err != nil {
		return nil, fmt.Errorf("failed to get rodalies station %s: %w", stationID, err)
	}

	var out []ConnectionDTO
	for _, l := range st.Lines {
		if l.ID == lineID {
			continue
		}
		out = append(out, ConnectionDTO{
			Code:          l.ID,
			Name:          l.Name,
			Color:         l.Color,
			TransportType: models.TransportRodalies,
		})
	}
	return out, nil
}

// GetNextArrivals scans the GTFS-RT trip updates for the station's stop id
func (g *RodaliesGateway) GetNextArrivals(ctx context.Context, stationID string) ([]RouteDTO, error) {
	body, err := g.client.Get(ctx, g.config.TripUpdatesURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get rodalies trip updates: %w", err)
	}

	feed := &gtfsrt.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return nil, fmt.Errorf("failed to decode rodalies trip updates: %w", err)
	}

	var out []RouteDTO
	for _, entity := range feed.GetEntity() {
		tu := entity.GetTripUpdate()
		if tu == nil {
			continue
		}
		for _, stu := range tu.GetStopTimeUpdate() {
			if stu.GetStopId() != stationID {
				continue
			}
			event := stu.GetArrival()
			if event.GetTime() == 0 {
				event = stu.GetDeparture()
			}
			if event.GetTime() == 0 {
				continue
			}
			out = append(out, RouteDTO{
				ID:             tu.GetTrip().GetTripId(),
				LineCode:       tu.GetTrip().GetRouteId(),
				LineName:       tu.GetTrip().GetRouteId(),
				ArrivalTime:    event.GetTime(),
				DelayInMinutes: int(event.GetDelay()) / 60,
			})
		}
	}
	return out, nil
}
