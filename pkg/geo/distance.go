package geo

import "math"

// Equatorial radius in metres. Trajectory proximity checks depend on this
// exact constant; do not swap in the mean radius.
const earthRadiusMeters = 6378.137 * 1000

// HaversineMeters calculates the great-circle distance in metres between two
// coordinates.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180.0
	dLon := (lon2 - lon1) * math.Pi / 180.0

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180.0)*math.Cos(lat2*math.Pi/180.0)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// HaversineKm returns the distance in kilometres rounded to two decimals,
// for display purposes.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	return math.Round(HaversineMeters(lat1, lon1, lat2, lon2)/10) / 100
}
