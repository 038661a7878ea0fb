package scheduling

import (
	"sort"

	"github.com/courtside/schedule-engine/models"
)

// MatchLess is the canonical match order used everywhere a match list is
// produced or consumed: stage precedence, then round, then sequence, then ID.
// Every report and plan sorts with it so identical input yields identical
// output regardless of container iteration order.
func MatchLess(a, b models.Match) bool {
	if pa, pb := a.Stage.Precedence(), b.Stage.Precedence(); pa != pb {
		return pa < pb
	}
	if a.Round != b.Round {
		return a.Round < b.Round
	}
	if a.Sequence != b.Sequence {
		return a.Sequence < b.Sequence
	}
	return a.ID < b.ID
}

// SlotLess is the canonical slot order: day, then start time, then court,
// then ID.
func SlotLess(a, b models.Slot) bool {
	if a.Day != b.Day {
		return a.Day < b.Day
	}
	if !a.StartTime.Equal(b.StartTime) {
		return a.StartTime.Before(b.StartTime)
	}
	if a.Court != b.Court {
		return a.Court < b.Court
	}
	return a.ID < b.ID
}

func SortMatches(ms []models.Match) {
	sort.SliceStable(ms, func(i, j int) bool { return MatchLess(ms[i], ms[j]) })
}

func SortSlots(ss []models.Slot) {
	sort.SliceStable(ss, func(i, j int) bool { return SlotLess(ss[i], ss[j]) })
}
