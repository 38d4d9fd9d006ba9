package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"transit-aggregator/internal/alerts"
	"transit-aggregator/pkg/models"
)

// TMBGateway talks to the TMB developer API, which serves both the metro
// and the bus network under different paths.
type TMBGateway struct {
	client    *Client
	config    TMBConfig
	transport models.TransportType
}

// NewTMBMetro creates the metro gateway
func NewTMBMetro(client *Client, config TMBConfig) *TMBGateway {
	return &TMBGateway{client: client, config: config, transport: models.TransportMetro}
}

// NewTMBBus creates the bus gateway
func NewTMBBus(client *Client, config TMBConfig) *TMBGateway {
	return &TMBGateway{client: client, config: config, transport: models.TransportBus}
}

type tmbCollection struct {
	Features []tmbFeature `json:"features"`
}

type tmbFeature struct {
	Geometry   tmbGeometry   `json:"geometry"`
	Properties tmbProperties `json:"properties"`
}

type tmbGeometry struct {
	Coordinates []float64 `json:"coordinates"`
}

type tmbProperties struct {
	IDLinia      int64  `json:"ID_LINIA"`
	CodiLinia    int64  `json:"CODI_LINIA"`
	NomLinia     string `json:"NOM_LINIA"`
	DescLinia    string `json:"DESC_LINIA"`
	OrigenLinia  string `json:"ORIGEN_LINIA"`
	DestiLinia   string `json:"DESTI_LINIA"`
	ColorLinia   string `json:"COLOR_LINIA"`
	IDEstacio    int64  `json:"ID_ESTACIO"`
	CodiEstacio  int64  `json:"CODI_ESTACIO"`
	NomEstacio   string `json:"NOM_ESTACIO"`
	OrdreEstacio int    `json:"ORDRE_ESTACIO"`
	IDParada     int64  `json:"ID_PARADA"`
	CodiParada   int64  `json:"CODI_PARADA"`
	NomParada    string `json:"NOM_PARADA"`
	Ordre        int    `json:"ORDRE"`
}

type tmbArrivals struct {
	Parades []struct {
		CodiParada      string `json:"codi_parada"`
		LiniesTrajectes []struct {
			CodiLinia     string `json:"codi_linia"`
			NomLinia      string `json:"nom_linia"`
			DestiTrajecte string `json:"desti_trajecte"`
			Propers       []struct {
				ID            string `json:"id"`
				TempsArribada int64  `json:"temps_arribada"`
				Andana        string `json:"andana"`
			} `json:"propers"`
		} `json:"linies_trajectes"`
	} `json:"parades"`
}

func (g *TMBGateway) TransportType() models.TransportType {
	return g.transport
}

func (g *TMBGateway) network() string {
	if g.transport == models.TransportBus {
		return "bus"
	}
	return "metro"
}

func (g *TMBGateway) stopsPath() string {
	if g.transport == models.TransportBus {
		return "parades"
	}
	return "estacions"
}

func (g *TMBGateway) url(elems ...string) string {
	q := url.Values{}
	q.Set("app_id", g.config.AppID)
	q.Set("app_key", g.config.AppKey)
	return join(g.config.BaseURL, elems...) + "?" + q.Encode()
}

func (g *TMBGateway) GetLines(ctx context.Context) ([]LineDTO, error) {
	coll, err := getJSON[tmbCollection](ctx, g.client, g.url("transit", "linies", g.network()))
	if err != nil {
		return nil, fmt.Errorf("failed to get %s lines: %w", g.network(), err)
	}

	out := make([]LineDTO, 0, len(coll.Features))
	for _, f := range coll.Features {
		p := f.Properties
		out = append(out, LineDTO{
			ID:          strconv.FormatInt(p.CodiLinia, 10),
			Code:        strconv.FormatInt(p.CodiLinia, 10),
			Name:        p.NomLinia,
			Description: p.DescLinia,
			Origin:      p.OrigenLinia,
			Destination: p.DestiLinia,
			Color:       p.ColorLinia,
		})
	}
	return out, nil
}

func (g *TMBGateway) GetGlobalAlerts(ctx context.Context) ([]alerts.RawAlert, error) {
	body, err := g.client.Get(ctx, g.url("alerts", g.network(), "channels", "WEB"))
	if err != nil {
		return nil, fmt.Errorf("failed to get %s alerts: %w", g.network(), err)
	}

	format := alerts.FormatMetro
	if g.transport == models.TransportBus {
		format = alerts.FormatBus
	}
	return []alerts.RawAlert{{Format: format, Payload: body}}, nil
}

func (g *TMBGateway) GetStationsByLine(ctx context.Context, lineID string) ([]StationDTO, error) {
	coll, err := getJSON[tmbCollection](ctx, g.client, g.url("transit", "linies", g.network(), lineID, g.stopsPath()))
	if err != nil {
		return nil, fmt.Errorf("failed to get stations of %s line %s: %w", g.network(), lineID, err)
	}

	out := make([]StationDTO, 0, len(coll.Features))
	for _, f := range coll.Features {
		p := f.Properties
		st := StationDTO{
			ID:    strconv.FormatInt(p.IDEstacio, 10),
			Code:  strconv.FormatInt(p.CodiEstacio, 10),
			Name:  p.NomEstacio,
			Order: p.OrdreEstacio,
		}
		if g.transport == models.TransportBus {
			st.ID = strconv.FormatInt(p.IDParada, 10)
			st.Code = strconv.FormatInt(p.CodiParada, 10)
			st.Name = p.NomParada
			st.Order = p.Ordre
		}
		// GeoJSON order is lon, lat
		if c := f.Geometry.Coordinates; len(c) >= 2 {
			st.Longitude = ptr(c[0])
			st.Latitude = ptr(c[1])
		}
		out = append(out, st)
	}
	return out, nil
}

func (g *TMBGateway) GetStationConnections(ctx context.Context, lineID, stationID string) ([]ConnectionDTO, error) {
	coll, err := getJSON[tmbCollection](ctx, g.client,
		g.url("transit", "linies", g.network(), lineID, g.stopsPath(), stationID, "corresp"))
	if err != nil {
		return nil, fmt.Errorf("failed to get connections of %s station %s: %w", g.network(), stationID, err)
	}

	out := make([]ConnectionDTO, 0, len(coll.Features))
	for _, f := range coll.Features {
		p := f.Properties
		out = append(out, ConnectionDTO{
			Code:          strconv.FormatInt(p.CodiLinia, 10),
			Name:          p.NomLinia,
			Color:         p.ColorLinia,
			TransportType: g.transport,
		})
	}
	return out, nil
}

func (g *TMBGateway) GetNextArrivals(ctx context.Context, stationID string) ([]RouteDTO, error) {
	resp, err := getJSON[tmbArrivals](ctx, g.client, g.url("itransit", g.network(), g.stopsPath(), stationID))
	if err != nil {
		return nil, fmt.Errorf("failed to get arrivals at %s station %s: %w", g.network(), stationID, err)
	}

	var out []RouteDTO
	for _, parada := range resp.Parades {
		for _, lt := range parada.LiniesTrajectes {
			for _, next := range lt.Propers {
				out = append(out, RouteDTO{
					ID:          next.ID,
					LineCode:    lt.CodiLinia,
					LineName:    lt.NomLinia,
					Destination: lt.DestiTrajecte,
					// upstream reports milliseconds
					ArrivalTime: next.TempsArribada / 1000,
					Platform:    next.Andana,
				})
			}
		}
	}
	return out, nil
}
