package proximity

import (
	"context"

	"transit-aggregator/pkg/models"
)

// NearestResolver links a station to the closest station of another mode,
// e.g. a Rodalies station to the metro station it interchanges with
type NearestResolver struct {
	target StationSource
	radius float64
}

// NewNearestResolver resolves against target within radius meters
func NewNearestResolver(target StationSource, radius float64) *NearestResolver {
	return &NearestResolver{target: target, radius: radius}
}

// Resolve returns "<mode>:<code>" of the nearest target station
func (r *NearestResolver) Resolve(ctx context.Context, station models.Station) (string, bool) {
	if !station.HasLocation() {
		return "", false
	}

	ranked := Rank(r.target.GetStationsByName(ctx, ""), *station.Latitude, *station.Longitude, r.radius)
	if len(ranked) == 0 || ranked[0].DistanceMeters == nil {
		return "", false
	}
	nearest := ranked[0]
	return string(nearest.TransportType) + ":" + nearest.Code, true
}
