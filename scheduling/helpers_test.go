package scheduling

import (
	"fmt"
	"time"

	"github.com/courtside/schedule-engine/models"
)

// day1Start anchors all test slots: day N starts at 09:00 UTC, N-1 days
// after June 6.
var day1Start = time.Date(2025, 6, 6, 9, 0, 0, 0, time.UTC)

func iptr(v int) *int { return &v }

func sptr(s string) *string { return &s }

// slotAt builds an active slot starting offsetMins after the day's baseline.
func slotAt(id, day, court, offsetMins, durMins int) models.Slot {
	start := day1Start.AddDate(0, 0, day-1).Add(time.Duration(offsetMins) * time.Minute)
	return models.Slot{
		ID:           id,
		VersionID:    1,
		Day:          day,
		Court:        court,
		CourtLabel:   fmt.Sprintf("Court %d", court),
		StartTime:    start,
		EndTime:      start.Add(time.Duration(durMins) * time.Minute),
		DurationMins: durMins,
		Active:       true,
	}
}

// matchOf builds a pending match in event 1. Up to two team IDs resolve the
// sides; fewer leaves the remaining side as a placeholder.
func matchOf(id int, stage models.MatchStage, round, seq, durMins int, teams ...int) models.Match {
	m := models.Match{
		ID:           id,
		VersionID:    1,
		EventID:      1,
		Stage:        stage,
		Round:        round,
		Sequence:     seq,
		DurationMins: durMins,
		PlaceholderA: sptr(fmt.Sprintf("W-%d-A", id)),
		PlaceholderB: sptr(fmt.Sprintf("W-%d-B", id)),
		Status:       models.MatchStatusPending,
	}
	if len(teams) > 0 {
		m.TeamAID = iptr(teams[0])
		m.PlaceholderA = nil
	}
	if len(teams) > 1 {
		m.TeamBID = iptr(teams[1])
		m.PlaceholderB = nil
	}
	return m
}

func inEvent(m models.Match, eventID int) models.Match {
	m.EventID = eventID
	return m
}

func assigned(id, matchID, slotID int, locked bool, by models.AssignedBy) models.Assignment {
	return models.Assignment{
		ID:         id,
		VersionID:  1,
		MatchID:    matchID,
		SlotID:     slotID,
		Locked:     locked,
		AssignedBy: by,
		AssignedAt: day1Start.Add(-24 * time.Hour),
	}
}

func pinned(id, matchID, slotID int) models.MatchLock {
	return models.MatchLock{
		ID:        id,
		VersionID: 1,
		MatchID:   matchID,
		SlotID:    slotID,
		CreatedAt: day1Start.Add(-24 * time.Hour),
	}
}

func blocked(id, slotID int) models.SlotLock {
	return models.SlotLock{
		ID:        id,
		VersionID: 1,
		SlotID:    slotID,
		Reason:    sptr("maintenance"),
		CreatedAt: day1Start.Add(-24 * time.Hour),
	}
}
