package geo

import "math"

const (
	// EarthRadiusMeters is the mean earth radius used for every distance in the engine.
	EarthRadiusMeters = 6371000.0

	// WalkSpeedMetersPerMinute is 4 km/h.
	WalkSpeedMetersPerMinute = 4000.0 / 60.0
)

// CoordinateBounds represents a bounding box with min/max latitude and longitude
type CoordinateBounds struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// Distance returns the great-circle distance in meters between two points
// using the haversine formula.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * (math.Pi / 180)
	lat2Rad := lat2 * (math.Pi / 180)
	dLat := (lat2 - lat1) * (math.Pi / 180)
	dLon := (lon2 - lon1) * (math.Pi / 180)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	a := sinLat*sinLat + math.Cos(lat1Rad)*math.Cos(lat2Rad)*sinLon*sinLon
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// WalkMinutes converts a distance to whole walking minutes, rounding up.
func WalkMinutes(distanceMeters float64) int {
	if distanceMeters <= 0 || math.IsNaN(distanceMeters) {
		return 0
	}
	return int(math.Ceil(distanceMeters / WalkSpeedMetersPerMinute))
}

// WalkMinutesBetween is Distance followed by WalkMinutes.
func WalkMinutesBetween(lat1, lon1, lat2, lon2 float64) int {
	return WalkMinutes(Distance(lat1, lon1, lat2, lon2))
}

// CalculateBounds returns a box that contains every point within distance
// meters of (lat, lon).
func CalculateBounds(lat, lon, distance float64) CoordinateBounds {
	latRadians := lat * math.Pi / 180
	lonRadians := lon * math.Pi / 180

	latRadius := EarthRadiusMeters
	lonRadius := math.Cos(latRadians) * EarthRadiusMeters

	latOffset := distance / latRadius
	lonOffset := distance / lonRadius

	return CoordinateBounds{
		MinLat: (latRadians - latOffset) * 180 / math.Pi,
		MaxLat: (latRadians + latOffset) * 180 / math.Pi,
		MinLon: (lonRadians - lonOffset) * 180 / math.Pi,
		MaxLon: (lonRadians + lonOffset) * 180 / math.Pi,
	}
}

// ValidCoordinate reports whether lat/lon are finite and in range.
func ValidCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
