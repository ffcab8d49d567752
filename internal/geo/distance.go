package geo

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean Earth radius used by the Haversine formula.
const EarthRadiusMeters = 6371000.0

// ErrInvalidCoordinates is returned for NaN/Inf or out-of-range points.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks that p is finite and within [-90,90] / [-180,180].
func Validate(p Point) error {
	if math.IsNaN(p.Latitude) || math.IsInf(p.Latitude, 0) || math.IsNaN(p.Longitude) || math.IsInf(p.Longitude, 0) {
		return fmt.Errorf("%w: non-finite value", ErrInvalidCoordinates)
	}
	if p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("%w: latitude %f", ErrInvalidCoordinates, p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("%w: longitude %f", ErrInvalidCoordinates, p.Longitude)
	}
	return nil
}

// DistanceMeters returns the great-circle distance between a and b.
// Inputs are not validated; use CheckRadius when they come from a client.
func DistanceMeters(a, b Point) float64 {
	φ1 := toRad(a.Latitude)
	φ2 := toRad(b.Latitude)
	Δφ := toRad(b.Latitude - a.Latitude)
	Δλ := toRad(b.Longitude - a.Longitude)

	h := math.Sin(Δφ/2)*math.Sin(Δφ/2) + math.Cos(φ1)*math.Cos(φ2)*math.Sin(Δλ/2)*math.Sin(Δλ/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// CheckRadius measures p against origin and reports whether it lies within
// radius+buffer meters. Invalid input is reported as outside with a non-nil error.
func CheckRadius(origin, p Point, radius, buffer float64) (distance float64, within bool, err error) {
	if err := Validate(origin); err != nil {
		return 0, false, fmt.Errorf("origin: %w", err)
	}
	if err := Validate(p); err != nil {
		return 0, false, err
	}
	distance = DistanceMeters(origin, p)
	return distance, distance <= radius+buffer, nil
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
