package search

import (
	"math"

	"github.com/iop-labs/profiled/pkg/profile"
)

// EarthRadiusMeters is the spherical earth radius the haversine formula
// uses. Precision tolerance of the location filter is ±10 m.
const EarthRadiusMeters = 6_371_000.0

// Distance returns the great-circle distance between two locations in
// meters, computed with the haversine formula on a spherical earth.
func Distance(a, b profile.Location) float64 {
	lat1 := a.LatDegrees() * math.Pi / 180
	lat2 := b.LatDegrees() * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.LonDegrees() - a.LonDegrees()) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon

	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}
