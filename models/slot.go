package models

import "time"

// Slot is a bookable unit of time on one court within one version.
// Slots are version-scoped and never shared across versions.
type Slot struct {
	ID           int       `json:"id" db:"id"`
	VersionID    int       `json:"version_id" db:"version_id"`
	Day          int       `json:"day" db:"day"`
	Court        int       `json:"court" db:"court"`
	CourtLabel   string    `json:"court_label" db:"court_label"`
	StartTime    time.Time `json:"start_time" db:"start_time"`
	EndTime      time.Time `json:"end_time" db:"end_time"`
	DurationMins int       `json:"duration_mins" db:"duration_mins"`
	Active       bool      `json:"active" db:"active"`
}

// SlotKey is the natural identity of a slot within a version. Rebuilds
// diff desired against existing slots by this key so that surviving
// slots keep their row IDs and any locks attached to them.
type SlotKey struct {
	Day       int
	Court     int
	StartUnix int64
}

func (s *Slot) Key() SlotKey {
	return SlotKey{Day: s.Day, Court: s.Court, StartUnix: s.StartTime.UTC().Unix()}
}

// Overlaps reports whether two slots intersect in time, regardless of court.
func (s *Slot) Overlaps(other *Slot) bool {
	return s.StartTime.Before(other.EndTime) && other.StartTime.Before(s.EndTime)
}
