package proximity

import "math"

const earthRadiusMeters = 6371000.0

// boundingBox returns the lat/lon window around a point that contains every
// point within radius meters
func boundingBox(lat, lon, radius float64) (minLat, maxLat, minLon, maxLon float64) {
	latDelta := radius / 111320.0
	lonDelta := radius / (111320.0 * math.Cos(degreesToRadians(lat)))
	return lat - latDelta, lat + latDelta, lon - lonDelta, lon + lonDelta
}

// HaversineMeters is the great-circle distance between two points
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLon := degreesToRadians(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(degreesToRadians(lat1))*math.Cos(degreesToRadians(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
