// Package geo provides the great-circle primitives shared by the traffic
// simulator and the collision detector.
package geo

import (
	"math"
	"time"
)

// EarthRadiusNM is the mean Earth radius in nautical miles.
const EarthRadiusNM = 3440.065

// DistanceNM returns the haversine great-circle distance between two points
// in nautical miles.
func DistanceNM(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dlat := (lat2 - lat1) * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusNM * c
}

// InitialBearing returns the initial great-circle bearing from point 1 to
// point 2, in degrees 0-360.
func InitialBearing(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180

	y := math.Sin(dlon) * math.Cos(rlat2)
	x := math.Cos(rlat1)*math.Sin(rlat2) - math.Sin(rlat1)*math.Cos(rlat2)*math.Cos(dlon)

	bearing := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(bearing+360, 360)
}

// DeadReckon displaces a position along a course at a given speed for the
// elapsed time. Flat-earth approximation, adequate for the per-tick distances
// the simulator covers.
func DeadReckon(lat, lon, speedKn, course float64, dt time.Duration) (newLat, newLon float64) {
	hours := dt.Hours()
	distanceNM := speedKn * hours

	courseRad := course * math.Pi / 180
	dLat := distanceNM * math.Cos(courseRad) / 60
	dLon := distanceNM * math.Sin(courseRad) / (60 * math.Cos(lat*math.Pi/180))

	return lat + dLat, lon + dLon
}

// NormalizeCourse folds a course into [0, 360).
func NormalizeCourse(course float64) float64 {
	c := math.Mod(course, 360)
	if c < 0 {
		c += 360
	}
	return c
}
