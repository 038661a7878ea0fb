package models

import "time"

// AssignedBy records which actor produced an assignment.
type AssignedBy string

const (
	AssignedByAutomatic AssignedBy = "automatic"
	AssignedByManual    AssignedBy = "manual"
)

// Assignment binds exactly one match to exactly one slot within a version.
// Locked assignments are never altered by automatic placement.
type Assignment struct {
	ID         int        `json:"id" db:"id"`
	VersionID  int        `json:"version_id" db:"version_id"`
	MatchID    int        `json:"match_id" db:"match_id"`
	SlotID     int        `json:"slot_id" db:"slot_id"`
	Locked     bool       `json:"locked" db:"locked"`
	AssignedBy AssignedBy `json:"assigned_by" db:"assigned_by"`
	AssignedAt time.Time  `json:"assigned_at" db:"assigned_at"`
}
