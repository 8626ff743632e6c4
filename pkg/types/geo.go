package types

import (
	"database/sql/driver"
	"fmt"
	"math"
	"time"
)

const earthRadiusKm = 6371.0

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

// Valid reports whether the point lies within WGS84 bounds.
func (p GeoPoint) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// DistanceKm returns the great-circle distance between two points.
func (p GeoPoint) DistanceKm(other GeoPoint) float64 {
	lat1 := toRadians(p.Lat)
	lat2 := toRadians(other.Lat)
	dLat := lat2 - lat1
	dLng := toRadians(other.Lng - p.Lng)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// LiveLocation is a point stamped with the device time it was reported at.
type LiveLocation struct {
	GeoPoint
	ReportedAt time.Time `json:"reported_at"`
}

// IsNewerThan reports whether l was reported after other. A zero other is always older.
func (l LiveLocation) IsNewerThan(other *LiveLocation) bool {
	if other == nil || other.ReportedAt.IsZero() {
		return true
	}
	return l.ReportedAt.After(other.ReportedAt)
}

// Value marshals the location into JSON.
func (l LiveLocation) Value() (driver.Value, error) {
	if l.ReportedAt.IsZero() {
		return nil, nil
	}
	return jsonValue(l)
}

// Scan decodes JSON into the location.
func (l *LiveLocation) Scan(value interface{}) error {
	if value == nil {
		*l = LiveLocation{}
		return nil
	}
	var decoded LiveLocation
	if err := scanJSON("live location", value, &decoded); err != nil {
		return err
	}
	*l = decoded
	return nil
}

func (l LiveLocation) String() string {
	return fmt.Sprintf("%.6f,%.6f@%s", l.Lat, l.Lng, l.ReportedAt.Format(time.RFC3339))
}
