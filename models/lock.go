package models

import "time"

// MatchLock pins a match to a specific slot, independent of whether an
// assignment currently exists. Created and removed only by operator action.
type MatchLock struct {
	ID        int       `json:"id" db:"id"`
	VersionID int       `json:"version_id" db:"version_id"`
	MatchID   int       `json:"match_id" db:"match_id"`
	SlotID    int       `json:"slot_id" db:"slot_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// SlotLock marks a slot as blocked, excluding it from all placement.
// Independent of any specific match.
type SlotLock struct {
	ID        int       `json:"id" db:"id"`
	VersionID int       `json:"version_id" db:"version_id"`
	SlotID    int       `json:"slot_id" db:"slot_id"`
	Reason    *string   `json:"reason,omitempty" db:"reason"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
