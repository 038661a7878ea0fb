package models

import "time"

// VersionStatus represents schedule version states, matching the ENUM in the DB.
type VersionStatus string

const (
	VersionStatusDraft VersionStatus = "draft"
	VersionStatusFinal VersionStatus = "final"
)

// ScheduleVersion identifies one snapshot of a tournament schedule.
// A draft version accepts mutations; a final version is immutable and
// can only be edited by cloning it into a new draft.
type ScheduleVersion struct {
	ID            int           `json:"id" db:"id"`
	TournamentID  int           `json:"tournament_id" db:"tournament_id"`
	VersionNumber int           `json:"version_number" db:"version_number"`
	Status        VersionStatus `json:"status" db:"status"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}

func (v *ScheduleVersion) IsFinal() bool {
	return v.Status == VersionStatusFinal
}
