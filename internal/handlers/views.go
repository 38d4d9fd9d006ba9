package handlers

import (
	"transit-aggregator/internal/proximity"
	"transit-aggregator/internal/timeutil"
	"transit-aggregator/pkg/models"
)

// Views are the flat JSON shapes of the API. Empty lists render as [].

type lineView struct {
	models.Line
	Emoji         string `json:"emoji"`
	NameWithEmoji string `json:"name_with_emoji"`
}

type stationView struct {
	models.Station
	LineNameWithEmoji string `json:"line_name_with_emoji"`
}

type routeView struct {
	models.Route
	Remaining timeutil.Remaining `json:"remaining"`
}

type nearbyView struct {
	stationView
	DistanceMeters *float64 `json:"distance_meters"`
}

func (h *TransitHandler) lineView(line models.Line) lineView {
	s := h.policy.Lookup(line.TransportType, line.Name, line.Color)
	line.Color = s.Color
	line.Alerts = alertViews(line.Alerts)
	return lineView{
		Line:          line,
		Emoji:         s.Emoji,
		NameWithEmoji: h.policy.NameWithEmoji(line),
	}
}

func (h *TransitHandler) lineViews(lines []models.Line) []lineView {
	out := make([]lineView, 0, len(lines))
	for _, l := range lines {
		out = append(out, h.lineView(l))
	}
	return out
}

func (h *TransitHandler) stationView(st models.Station) stationView {
	line := models.Line{Name: st.LineName, Color: st.LineColor, TransportType: st.TransportType}
	st.LineColor = h.policy.Lookup(st.TransportType, st.LineName, st.LineColor).Color
	st.Alerts = alertViews(st.Alerts)
	if st.Connections == nil {
		st.Connections = []models.LineSummary{}
	}
	return stationView{
		Station:           st,
		LineNameWithEmoji: h.policy.NameWithEmoji(line),
	}
}

func (h *TransitHandler) stationViews(stations []models.Station) []stationView {
	out := make([]stationView, 0, len(stations))
	for _, st := range stations {
		out = append(out, h.stationView(st))
	}
	return out
}

func (h *TransitHandler) routeViews(routes []models.Route) []routeView {
	now := h.clock.Now()
	out := make([]routeView, 0, len(routes))
	for _, r := range routes {
		out = append(out, routeView{
			Route:     r,
			Remaining: timeutil.RemainingUntil(now, r.ArrivalTime),
		})
	}
	return out
}

func (h *TransitHandler) nearbyViews(nearby []proximity.NearbyStation) []nearbyView {
	out := make([]nearbyView, 0, len(nearby))
	for _, n := range nearby {
		out = append(out, nearbyView{
			stationView:    h.stationView(n.Station),
			DistanceMeters: n.DistanceMeters,
		})
	}
	return out
}

func alertViews(list []models.Alert) []models.Alert {
	out := make([]models.Alert, 0, len(list))
	for _, a := range list {
		if a.Publications == nil {
			a.Publications = []models.Publication{}
		}
		if a.AffectedEntities == nil {
			a.AffectedEntities = []models.AffectedEntity{}
		}
		out = append(out, a)
	}
	return out
}
