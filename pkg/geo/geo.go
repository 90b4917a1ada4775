package geo

import (
	"math"
	"time"
)

// earthRadiusM is the mean Earth radius in meters
const earthRadiusM = 6371000.0

// Point is a WGS84 coordinate pair
type Point struct {
	Lat float64
	Lon float64
}

// DistanceM returns the great-circle distance between two points in meters,
// using the haversine formula.
func DistanceM(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusM * math.Asin(math.Sqrt(h))
}

// Containment describes where a point sits relative to a circular geofence
type Containment int

const (
	// Inside means within the hard radius
	Inside Containment = iota
	// Boundary means outside the radius but within radius*tolerance
	Boundary
	// Outside means beyond the tolerance band
	Outside
)

// Contains classifies a distance against a geofence radius and tolerance
// factor. tolerance must be >= 1; a distance exactly at the radius is Inside
// and a distance exactly at radius*tolerance is Boundary.
func Contains(distanceM, radiusM, tolerance float64) Containment {
	switch {
	case distanceM <= radiusM:
		return Inside
	case distanceM <= radiusM*tolerance:
		return Boundary
	default:
		return Outside
	}
}

// SpeedKmh returns the implied speed in km/h between two positions observed
// at the given instants. Returns 0 when the elapsed time is not positive.
func SpeedKmh(from, to Point, fromAt, toAt time.Time) float64 {
	elapsed := toAt.Sub(fromAt)
	if elapsed <= 0 {
		return 0
	}
	meters := DistanceM(from, to)
	return meters / elapsed.Seconds() * 3.6
}
