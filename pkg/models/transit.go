package models

import (
	"time"
)

// TransportType identifies one transport mode
type TransportType string

const (
	TransportMetro    TransportType = "metro"
	TransportBus      TransportType = "bus"
	TransportTram     TransportType = "tram"
	TransportRodalies TransportType = "rodalies"
	TransportFGC      TransportType = "fgc"
	TransportBicing   TransportType = "bicing"
)

// TransportTypes lists every supported mode in display order
var TransportTypes = []TransportType{
	TransportMetro,
	TransportBus,
	TransportTram,
	TransportRodalies,
	TransportFGC,
	TransportBicing,
}

// ParseTransportType resolves a mode name as used in URLs and config keys
func ParseTransportType(s string) (TransportType, bool) {
	for _, t := range TransportTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Line is one transport line. HasAlerts and Alerts are recomputed on every
// merge; cached lines are never mutated.
type Line struct {
	ID            string        `json:"id"`
	Code          string        `json:"code"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	Origin        string        `json:"origin"`
	Destination   string        `json:"destination"`
	Color         string        `json:"color"`
	TransportType TransportType `json:"transport_type"`
	HasAlerts     bool          `json:"has_alerts"`
	Alerts        []Alert       `json:"alerts"`
}

// Summary returns the acyclic form used for station connections
func (l Line) Summary() LineSummary {
	return LineSummary{
		Code:          l.Code,
		Name:          l.Name,
		Color:         l.Color,
		TransportType: l.TransportType,
	}
}

// LineSummary is a plain reference to a line without alerts
type LineSummary struct {
	Code          string        `json:"code"`
	Name          string        `json:"name"`
	Color         string        `json:"color"`
	TransportType TransportType `json:"transport_type"`
}

// BikeAvailability carries Bicing dock state
type BikeAvailability struct {
	Slots           int  `json:"slots"`
	MechanicalBikes int  `json:"mechanical_bikes"`
	ElectricalBikes int  `json:"electrical_bikes"`
	Renting         bool `json:"renting"`
}

// Station is one stop of one line. A physical stop served by several lines
// appears once per line.
type Station struct {
	ID            string            `json:"id"`
	Code          string            `json:"code"`
	Name          string            `json:"name"`
	Latitude      *float64          `json:"latitude"`
	Longitude     *float64          `json:"longitude"`
	Order         int               `json:"order"`
	TransportType TransportType     `json:"transport_type"`
	LineID        string            `json:"line_id"`
	LineCode      string            `json:"line_code"`
	LineName      string            `json:"line_name"`
	LineColor     string            `json:"line_color"`
	HasAlerts     bool              `json:"has_alerts"`
	Alerts        []Alert           `json:"alerts"`
	Connections   []LineSummary     `json:"connections"`
	ExternalRef   string            `json:"external_ref,omitempty"`
	Bike          *BikeAvailability `json:"bike,omitempty"`
}

// HasLocation reports whether both coordinates are known
func (s Station) HasLocation() bool {
	return s.Latitude != nil && s.Longitude != nil
}

// Publication is one localized text of an alert
type Publication struct {
	Language string `json:"language"`
	Header   string `json:"header"`
	Text     string `json:"text"`
}

// AffectedEntity is a weak reference, by code, to something an alert touches
type AffectedEntity struct {
	LineCode    string `json:"line_code"`
	LineName    string `json:"line_name"`
	StationCode string `json:"station_code"`
	StationName string `json:"station_name"`
	Direction   string `json:"direction"`
	Entrance    string `json:"entrance"`
}

// Alert is the canonical incident shape. Dates are UTC.
type Alert struct {
	ID               string           `json:"id"`
	TransportType    TransportType    `json:"transport_type"`
	BeginDate        *time.Time       `json:"begin_date"`
	EndDate          *time.Time       `json:"end_date"`
	Status           string           `json:"status"`
	Cause            string           `json:"cause"`
	Publications     []Publication    `json:"publications"`
	AffectedEntities []AffectedEntity `json:"affected_entities"`
}

// IsExpired reports whether the alert has ended before now
func (a Alert) IsExpired(now time.Time) bool {
	return a.EndDate != nil && a.EndDate.Before(now)
}

// AffectsStation reports whether any affected entity names the station
func (a Alert) AffectsStation(code string) bool {
	for _, e := range a.AffectedEntities {
		if e.StationCode != "" && e.StationCode == code {
			return true
		}
	}
	return false
}

// Route is one upcoming arrival at a station
type Route struct {
	ID             string        `json:"id"`
	LineCode       string        `json:"line_code"`
	LineName       string        `json:"line_name"`
	Destination    string        `json:"destination"`
	TransportType  TransportType `json:"transport_type"`
	ArrivalTime    int64         `json:"arrival_time"` // epoch seconds
	DelayInMinutes int           `json:"delay_in_minutes"`
	Platform       string        `json:"platform,omitempty"`
}
