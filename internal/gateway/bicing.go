package gateway

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"transit-aggregator/internal/alerts"
	"transit-aggregator/pkg/models"
)

// BicingLineCode is the single pseudo-line every Bicing dock belongs to
const BicingLineCode = "BICING"

// BicingGateway reads the Bicing GBFS feeds. Docks are modelled as the
// stations of one pseudo-line.
type BicingGateway struct {
	client *Client
	config EndpointConfig
}

// NewBicing creates the Bicing gateway
func NewBicing(client *Client, config EndpointConfig) *BicingGateway {
	return &BicingGateway{client: client, config: config}
}

type gbfsInformation struct {
	Data struct {
		Stations []struct {
			StationID string  `json:"station_id"`
			Name      string  `json:"name"`
			Lat       float64 `json:"lat"`
			Lon       float64 `json:"lon"`
			Capacity  int     `json:"capacity"`
		} `json:"stations"`
	} `json:"data"`
}

type gbfsStatus struct {
	Data struct {
		Stations []gbfsStationStatus `json:"stations"`
	} `json:"data"`
}

type gbfsStationStatus struct {
	StationID          string        `json:"station_id"`
	NumBikesAvailable  int           `json:"num_bikes_available"`
	NumDocksAvailable  int           `json:"num_docks_available"`
	IsRenting          int           `json:"is_renting"`
	BikesAvailableType gbfsBikeTypes `json:"num_bikes_available_types"`
}

type gbfsBikeTypes struct {
	Mechanical int `json:"mechanical"`
	Ebike      int `json:"ebike"`
}

func (g *BicingGateway) TransportType() models.TransportType {
	return models.TransportBicing
}

func (g *BicingGateway) GetLines(context.Context) ([]LineDTO, error) {
	return []LineDTO{{
		ID:          BicingLineCode,
		Code:        BicingLineCode,
		Name:        "Bicing",
		Description: "Bicing bike-share docks",
		Color:       "E30613",
	}}, nil
}

func (g *BicingGateway) GetGlobalAlerts(context.Context) ([]alerts.RawAlert, error) {
	return nil, nil
}

// GetStationsByLine joins station_information with station_status
func (g *BicingGateway) GetStationsByLine(ctx context.Context, lineID string) ([]StationDTO, error) {
	if lineID != BicingLineCode {
		return nil, fmt.Errorf("bicing line %s: %w", lineID, ErrNotFound)
	}

	var (
		info   gbfsInformation
		status gbfsStatus
	)
	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		info, err = getJSON[gbfsInformation](gctx, g.client, join(g.config.BaseURL, "station_information"))
		return err
	})
	eg.Go(func() (err error) {
		status, err = getJSON[gbfsStatus](gctx, g.client, join(g.config.BaseURL, "station_status"))
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("failed to get bicing feeds: %w", err)
	}

	byID := make(map[string]gbfsStationStatus, len(status.Data.Stations))
	for _, s := range status.Data.Stations {
		byID[s.StationID] = s
	}

	out := make([]StationDTO, 0, len(info.Data.Stations))
	for i, s := range info.Data.Stations {
		st := StationDTO{
			ID:        s.StationID,
			Code:      s.StationID,
			Name:      s.Name,
			Latitude:  ptr(s.Lat),
			Longitude: ptr(s.Lon),
			Order:     i + 1,
		}
		if live, ok := byID[s.StationID]; ok {
			st.Bike = &models.BikeAvailability{
				Slots:           live.NumDocksAvailable,
				MechanicalBikes: live.BikesAvailableType.Mechanical,
				ElectricalBikes: live.BikesAvailableType.Ebike,
				Renting:         live.IsRenting == 1,
			}
		}
		out = append(out, st)
	}
	return out, nil
}

func (g *BicingGateway) GetStationConnections(context.Context, string, string) ([]ConnectionDTO, error) {
	return nil, nil
}

func (g *BicingGateway) GetNextArrivals(context.Context, string) ([]RouteDTO, error) {
	return nil, nil
}
