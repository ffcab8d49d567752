package attendance

import (
	"time"

	"geoattend/internal/geo"
)

// Code is an issued attendance code.
type Code struct {
	ID           string     `json:"id"`
	IssuerID     string     `json:"issuer_id"`
	CourseID     string     `json:"course_id"`
	Token        string     `json:"token"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	Origin       *geo.Point `json:"origin,omitempty"`
	RadiusMeters float64    `json:"radius_meters"`
	LocationName string     `json:"location_name,omitempty"`
}

// Geofenced reports whether check-ins against c are distance-checked.
func (c Code) Geofenced() bool { return c.Origin != nil }

// ExpiredAt reports whether c is dead at now.
func (c Code) ExpiredAt(now time.Time) bool { return !now.Before(c.ExpiresAt) }

// Record is a student's check-in against a code.
type Record struct {
	ID              string     `json:"id"`
	StudentID       string     `json:"student_id"`
	CourseID        string     `json:"course_id"`
	CodeID          string     `json:"code_id"`
	StudentLocation *geo.Point `json:"student_location,omitempty"`
	DistanceMeters  *float64   `json:"distance_meters,omitempty"`
	AccuracyMeters  *float64   `json:"accuracy_meters,omitempty"`
	IsLate          bool       `json:"is_late"`
	CreatedAt       time.Time  `json:"created_at"`
	TimeIn          time.Time  `json:"time_in"`
	TimeOut         *time.Time `json:"time_out,omitempty"`
	LedgerTxHash    string     `json:"ledger_tx_hash,omitempty"`
}

// RecordFilter narrows ListRecords. Empty fields match everything.
type RecordFilter struct {
	StudentID string
	CourseID  string
	Limit     int
	Offset    int
}
