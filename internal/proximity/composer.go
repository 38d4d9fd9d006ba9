package proximity

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"transit-aggregator/pkg/models"
)

// StationSource is anything that lists stations by name; an empty query
// lists every station
type StationSource interface {
	GetStationsByName(ctx context.Context, query string) []models.Station
}

// NearbyStation is a station with its distance to the query point.
// DistanceMeters is nil when the station has no location.
type NearbyStation struct {
	models.Station
	DistanceMeters *float64 `json:"distance_meters"`
}

// Composer merges the stations of several sources into a nearby view.
// It holds no state and caches nothing.
type Composer struct {
	sources []StationSource
}

// NewComposer creates a composer over sources
func NewComposer(sources ...StationSource) *Composer {
	return &Composer{sources: sources}
}

// Nearby returns up to limit stations closest to (lat, lon). With a
// positive radius only located stations within it are returned; otherwise
// every station is returned, those without a location last. limit <= 0
// means no limit.
func (c *Composer) Nearby(ctx context.Context, lat, lon, radius float64, limit int) []NearbyStation {
	perSource := make([][]models.Station, len(c.sources))
	var eg errgroup.Group
	for i, src := range c.sources {
		i, src := i, src
		eg.Go(func() error {
			perSource[i] = src.GetStationsByName(ctx, "")
			return nil
		})
	}
	eg.Wait()

	var candidates []models.Station
	for _, stations := range perSource {
		candidates = append(candidates, stations...)
	}
	out := Rank(candidates, lat, lon, radius)

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Rank computes distances, applies the radius and sorts ascending with
// unlocated stations last
func Rank(stations []models.Station, lat, lon, radius float64) []NearbyStation {
	filter := radius > 0
	var minLat, maxLat, minLon, maxLon float64
	if filter {
		minLat, maxLat, minLon, maxLon = boundingBox(lat, lon, radius)
	}

	out := make([]NearbyStation, 0, len(stations))
	for _, st := range stations {
		if !st.HasLocation() {
			if !filter {
				out = append(out, NearbyStation{Station: st})
			}
			continue
		}

		sLat, sLon := *st.Latitude, *st.Longitude
		if filter && (sLat < minLat || sLat > maxLat || sLon < minLon || sLon > maxLon) {
			continue
		}
		d := HaversineMeters(lat, lon, sLat, sLon)
		if filter && d > radius {
			continue
		}
		out = append(out, NearbyStation{Station: st, DistanceMeters: &d})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].DistanceMeters, out[j].DistanceMeters
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
	return out
}
