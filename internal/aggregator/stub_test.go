package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"transit-aggregator/internal/alerts"
	"transit-aggregator/internal/gateway"
	"transit-aggregator/pkg/models"
)

var errUpstream = errors.New("upstream timeout")

// stubGateway serves canned data and counts calls per method
type stubGateway struct {
	transport models.TransportType

	mu          sync.Mutex
	lines       []gateway.LineDTO
	stations    map[string][]gateway.StationDTO
	connections map[string][]gateway.ConnectionDTO
	alerts      []alerts.RawAlert
	arrivals    map[string][]gateway.RouteDTO
	failLines   map[string]bool
	delay       time.Duration

	lineCalls       atomic.Int32
	alertCalls      atomic.Int32
	stationCalls    atomic.Int32
	connectionCalls atomic.Int32
	arrivalCalls    atomic.Int32
}

func newStubGateway(lineCount, stationsPerLine int) *stubGateway {
	g := &stubGateway{
		transport:   models.TransportMetro,
		stations:    make(map[string][]gateway.StationDTO),
		connections: make(map[string][]gateway.ConnectionDTO),
		arrivals:    make(map[string][]gateway.RouteDTO),
		failLines:   make(map[string]bool),
	}
	for l := 1; l <= lineCount; l++ {
		code := fmt.Sprint(l)
		g.lines = append(g.lines, gateway.LineDTO{
			ID:    code,
			Code:  code,
			Name:  "L" + code,
			Color: "DC242E",
		})
		for s := 1; s <= stationsPerLine; s++ {
			lat, lon := 41.38+float64(l)/100, 2.17+float64(s)/100
			g.stations[code] = append(g.stations[code], gateway.StationDTO{
				ID:        fmt.Sprintf("%d%02d", l, s),
				Code:      fmt.Sprintf("%d%02d", l, s),
				Name:      fmt.Sprintf("Station %d-%d", l, s),
				Latitude:  &lat,
				Longitude: &lon,
				Order:     s,
			})
		}
	}
	return g
}

func (g *stubGateway) setAlerts(raws []alerts.RawAlert) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.alerts = raws
}

func (g *stubGateway) TransportType() models.TransportType { return g.transport }

func (g *stubGateway) GetLines(context.Context) ([]gateway.LineDTO, error) {
	g.lineCalls.Add(1)
	time.Sleep(g.delay)
	return g.lines, nil
}

func (g *stubGateway) GetGlobalAlerts(context.Context) ([]alerts.RawAlert, error) {
	g.alertCalls.Add(1)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.alerts, nil
}

func (g *stubGateway) GetStationsByLine(_ context.Context, lineID string) ([]gateway.StationDTO, error) {
	g.stationCalls.Add(1)
	if g.failLines[lineID] {
		return nil, errUpstream
	}
	return g.stations[lineID], nil
}

func (g *stubGateway) GetStationConnections(_ context.Context, lineID, stationID string) ([]gateway.ConnectionDTO, error) {
	g.connectionCalls.Add(1)
	return g.connections[lineID+"/"+stationID], nil
}

func (g *stubGateway) GetNextArrivals(_ context.Context, stationID string) ([]gateway.RouteDTO, error) {
	g.arrivalCalls.Add(1)
	return g.arrivals[stationID], nil
}

// testAlert describes one TMB metro alert touching (line, station) pairs.
// An empty line names the station alone.
type testAlert struct {
	id       int64
	end      time.Time
	affected [][2]string
}

func metroAlerts(list ...testAlert) []alerts.RawAlert {
	type entity struct {
		LineCode    string `json:"line_code"`
		LineName    string `json:"line_name"`
		StationCode string `json:"station_code"`
	}
	type publication struct {
		HeaderEn         string   `json:"headerEn"`
		AffectedEntities []entity `json:"affected_entities"`
	}
	type alert struct {
		ID           int64         `json:"id"`
		EndDate      int64         `json:"end_date"`
		Publications []publication `json:"publications"`
	}

	var out []alert
	for _, a := range list {
		pub := publication{HeaderEn: fmt.Sprintf("Alert %d", a.id)}
		for _, pair := range a.affected {
			e := entity{StationCode: pair[1]}
			if pair[0] != "" {
				e.LineCode, e.LineName = pair[0], "L"+pair[0]
			}
			pub.AffectedEntities = append(pub.AffectedEntities, e)
		}
		var end int64
		if !a.end.IsZero() {
			end = a.end.UnixMilli()
		}
		out = append(out, alert{ID: a.id, EndDate: end, Publications: []publication{pub}})
	}

	var body struct {
		Data struct {
			Alerts []alert `json:"alerts"`
		} `json:"data"`
	}
	body.Data.Alerts = out
	payload, _ := json.Marshal(body)
	return []alerts.RawAlert{{Format: alerts.FormatMetro, Payload: payload}}
}
