package security

import (
	"math"
	"time"

	"github.com/example/nepgrocery/internal/models"
)

const (
	earthRadiusKm = 6371

	// VelocityThresholdKmh is the implied travel speed above which a login is
	// flagged; roughly commercial-flight cruise speed.
	VelocityThresholdKmh = 800

	// zeroElapsedDistanceKm guards the division when two logins land in the
	// same instant: beyond this distance the velocity is treated as huge
	// rather than undefined.
	zeroElapsedDistanceKm = 50

	implausibleVelocity = 9999
)

// Coordinates is an approximate geographic position resolved from an IP.
type Coordinates struct {
	Lat float64
	Lon float64
}

// Haversine returns the great-circle distance between two coordinates in km.
func Haversine(a, b Coordinates) float64 {
	dLat := deg2rad(b.Lat - a.Lat)
	dLon := deg2rad(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(deg2rad(a.Lat))*math.Cos(deg2rad(b.Lat))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

func deg2rad(deg float64) float64 {
	return deg * (math.Pi / 180)
}

// TravelVelocity returns the implied speed in km/h. When no time has elapsed
// the velocity is implausibly large for any real move and zero otherwise.
func TravelVelocity(distanceKm, elapsedHours float64) float64 {
	if elapsedHours > 0 {
		return distanceKm / elapsedHours
	}
	if distanceKm > zeroElapsedDistanceKm {
		return implausibleVelocity
	}
	return 0
}

// AssessLogin reports whether a login from current coordinates is suspicious
// given the most recent login record. The check is skipped, never flagged,
// when geolocation failed, no history exists, or the last record lacks
// coordinates.
func AssessLogin(last *models.LoginRecord, now time.Time, current *Coordinates) bool {
	if current == nil || last == nil || last.Lat == nil || last.Lon == nil {
		return false
	}

	distance := Haversine(Coordinates{Lat: *last.Lat, Lon: *last.Lon}, *current)
	elapsed := now.Sub(last.Timestamp).Hours()

	return TravelVelocity(distance, elapsed) > VelocityThresholdKmh
}
