package scheduling

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/courtside/schedule-engine/models"
)

// ReportOptions narrows what BuildConflictReport considers. The zero value
// reports the full version including team conflicts.
type ReportOptions struct {
	EventID           *int
	SkipTeamConflicts bool
}

type ReportSummary struct {
	TotalSlots        int     `json:"total_slots"`
	OpenSlots         int     `json:"open_slots"`
	BlockedSlots      int     `json:"blocked_slots"`
	TotalMatches      int     `json:"total_matches"`
	AssignedMatches   int     `json:"assigned_matches"`
	UnassignedMatches int     `json:"unassigned_matches"`
	AssignmentRate    float64 `json:"assignment_rate"`
}

type UnassignedMatch struct {
	MatchID      int               `json:"match_id"`
	EventID      int               `json:"event_id"`
	Stage        models.MatchStage `json:"stage"`
	Round        int               `json:"round"`
	Sequence     int               `json:"sequence"`
	DurationMins int               `json:"duration_mins"`
	Sides        string            `json:"sides"`
	Pinned       bool              `json:"pinned"`
}

type SlotPressureEntry struct {
	SlotID    int       `json:"slot_id"`
	Day       int       `json:"day"`
	Court     int       `json:"court"`
	StartTime time.Time `json:"start_time"`
	Expected  int       `json:"expected"`
	Observed  int       `json:"observed"`
	Reason    string    `json:"reason"`
}

type SlotRef struct {
	SlotID    int       `json:"slot_id"`
	Day       int       `json:"day"`
	StartTime time.Time `json:"start_time"`
}

type StageWindow struct {
	Stage    models.MatchStage `json:"stage"`
	Matches  int               `json:"matches"`
	Assigned int               `json:"assigned"`
	Earliest *SlotRef          `json:"earliest,omitempty"`
	Latest   *SlotRef          `json:"latest,omitempty"`
}

type OrderingViolation struct {
	EventID     int    `json:"event_id"`
	MatchID     int    `json:"match_id"`
	DependsOnID int    `json:"depends_on_id"`
	Reason      string `json:"reason"`
}

type TeamConflict struct {
	TeamID   int    `json:"team_id"`
	MatchAID int    `json:"match_a_id"`
	MatchBID int    `json:"match_b_id"`
	SlotAID  int    `json:"slot_a_id"`
	SlotBID  int    `json:"slot_b_id"`
	Detail   string `json:"detail"`
}

// ConflictReport is the read-side diagnosis of one version's placement
// state. Identical state yields byte-identical JSON: every section is
// ordered by an explicit total sort key and the report carries no
// generation timestamps.
type ConflictReport struct {
	VersionID          int                 `json:"version_id"`
	EventID            *int                `json:"event_id,omitempty"`
	Summary            ReportSummary       `json:"summary"`
	Unassigned         []UnassignedMatch   `json:"unassigned_matches"`
	SlotPressure       []SlotPressureEntry `json:"slot_pressure"`
	StageTimeline      []StageWindow       `json:"stage_timeline"`
	OrderingViolations []OrderingViolation `json:"ordering_violations"`
	TeamConflicts      []TeamConflict      `json:"team_conflicts,omitempty"`
}

// placeable reports whether a match still expects a slot.
func placeable(m models.Match) bool {
	return m.Status == models.MatchStatusPending || m.Status == models.MatchStatusPlaced
}

// assignmentRate renders assigned/denominator as a percentage rounded to two
// decimals. An empty denominator counts as fully assigned.
func assignmentRate(assigned, denominator int) float64 {
	if denominator == 0 {
		return 100.0
	}
	return math.Round(float64(assigned)/float64(denominator)*10000) / 100
}

// BuildConflictReport diagnoses the given state. Pure computation: no side
// effects, no mutation of st. The optional event filter narrows the match
// sections; slot totals and slot pressure stay version-wide.
func BuildConflictReport(st *State, opts ReportOptions) *ConflictReport {
	ix := st.buildIndex()

	matches := make([]models.Match, 0, len(st.Matches))
	for _, m := range st.Matches {
		if opts.EventID != nil && m.EventID != *opts.EventID {
			continue
		}
		matches = append(matches, m)
	}
	SortMatches(matches)

	report := &ConflictReport{
		VersionID:          st.VersionID,
		EventID:            opts.EventID,
		Unassigned:         make([]UnassignedMatch, 0),
		SlotPressure:       make([]SlotPressureEntry, 0),
		StageTimeline:      make([]StageWindow, 0),
		OrderingViolations: make([]OrderingViolation, 0),
	}

	report.Summary = buildSummary(st, ix, matches)
	report.Unassigned = collectUnassigned(matches, ix)
	report.SlotPressure = collectSlotPressure(st, ix)
	report.StageTimeline = buildStageTimeline(matches, ix)
	report.OrderingViolations = collectOrderingViolations(matches, ix)
	if !opts.SkipTeamConflicts {
		report.TeamConflicts = collectTeamConflicts(matches, ix)
	}
	return report
}

func buildSummary(st *State, ix *index, matches []models.Match) ReportSummary {
	s := ReportSummary{TotalSlots: len(st.Slots), TotalMatches: len(matches)}
	for _, slot := range st.Slots {
		switch {
		case ix.blockedSlots[slot.ID]:
			s.BlockedSlots++
		case slot.Active:
			s.OpenSlots++
		}
	}
	for _, m := range matches {
		if _, ok := ix.assignByMatch[m.ID]; ok {
			s.AssignedMatches++
		} else if placeable(m) {
			s.UnassignedMatches++
		}
	}
	s.AssignmentRate = assignmentRate(s.AssignedMatches, s.AssignedMatches+s.UnassignedMatches)
	return s
}

func collectUnassigned(matches []models.Match, ix *index) []UnassignedMatch {
	out := make([]UnassignedMatch, 0)
	for _, m := range matches {
		if _, ok := ix.assignByMatch[m.ID]; ok || !placeable(m) {
			continue
		}
		_, pinned := ix.pinByMatch[m.ID]
		out = append(out, UnassignedMatch{
			MatchID:      m.ID,
			EventID:      m.EventID,
			Stage:        m.Stage,
			Round:        m.Round,
			Sequence:     m.Sequence,
			DurationMins: m.DurationMins,
			Sides:        m.Sides(),
			Pinned:       pinned,
		})
	}
	return out
}

// collectSlotPressure reports slots whose observed assignment count deviates
// from expectation: double bookings, and assignments sitting on blocked or
// inactive slots. Always version-wide, even under an event filter.
func collectSlotPressure(st *State, ix *index) []SlotPressureEntry {
	slots := append([]models.Slot(nil), st.Slots...)
	SortSlots(slots)

	out := make([]SlotPressureEntry, 0)
	for _, slot := range slots {
		expected := 0
		if slot.Active && !ix.blockedSlots[slot.ID] {
			expected = 1
		}
		observed := len(ix.assignBySlot[slot.ID])
		if observed <= expected {
			continue
		}
		var reason string
		switch {
		case observed > 1:
			reason = "slot double-booked"
		case ix.blockedSlots[slot.ID]:
			reason = "assignment on blocked slot"
		default:
			reason = "assignment on inactive slot"
		}
		out = append(out, SlotPressureEntry{
			SlotID:    slot.ID,
			Day:       slot.Day,
			Court:     slot.Court,
			StartTime: slot.StartTime.UTC(),
			Expected:  expected,
			Observed:  observed,
			Reason:    reason,
		})
	}
	return out
}

func buildStageTimeline(matches []models.Match, ix *index) []StageWindow {
	byStage := make(map[models.MatchStage]*StageWindow)
	present := make([]models.MatchStage, 0)
	for _, m := range matches {
		w, ok := byStage[m.Stage]
		if !ok {
			w = &StageWindow{Stage: m.Stage}
			byStage[m.Stage] = w
			present = append(present, m.Stage)
		}
		w.Matches++
		a, assigned := ix.assignByMatch[m.ID]
		if !assigned {
			continue
		}
		w.Assigned++
		slot, ok := ix.slotByID[a.SlotID]
		if !ok {
			continue
		}
		ref := SlotRef{SlotID: slot.ID, Day: slot.Day, StartTime: slot.StartTime.UTC()}
		if w.Earliest == nil || SlotLess(slot, ix.slotByID[w.Earliest.SlotID]) {
			r := ref
			w.Earliest = &r
		}
		if w.Latest == nil || SlotLess(ix.slotByID[w.Latest.SlotID], slot) {
			r := ref
			w.Latest = &r
		}
	}
	sort.SliceStable(present, func(i, j int) bool {
		return present[i].Precedence() < present[j].Precedence()
	})
	out := make([]StageWindow, 0, len(present))
	for _, stage := range present {
		out = append(out, *byStage[stage])
	}
	return out
}

// collectOrderingViolations lists every assigned pair within one event where
// a dependent match starts at or before a match it logically depends on:
// any earlier stage by precedence, or a lower round of the same stage.
func collectOrderingViolations(matches []models.Match, ix *index) []OrderingViolation {
	type placed struct {
		match models.Match
		start time.Time
	}
	byEvent := make(map[int][]placed)
	eventIDs := make([]int, 0)
	for _, m := range matches {
		a, ok := ix.assignByMatch[m.ID]
		if !ok {
			continue
		}
		slot, ok := ix.slotByID[a.SlotID]
		if !ok {
			continue
		}
		if _, seen := byEvent[m.EventID]; !seen {
			eventIDs = append(eventIDs, m.EventID)
		}
		byEvent[m.EventID] = append(byEvent[m.EventID], placed{match: m, start: slot.StartTime})
	}
	sort.Ints(eventIDs)

	out := make([]OrderingViolation, 0)
	for _, eventID := range eventIDs {
		ms := byEvent[eventID]
		// ms inherits canonical order from the caller's sorted matches.
		for _, dep := range ms {
			for _, pre := range ms {
				depPrec, prePrec := dep.match.Stage.Precedence(), pre.match.Stage.Precedence()
				prerequisite := prePrec < depPrec ||
					(prePrec == depPrec && pre.match.Round < dep.match.Round)
				if !prerequisite || dep.start.After(pre.start) {
					continue
				}
				out = append(out, OrderingViolation{
					EventID:     eventID,
					MatchID:     dep.match.ID,
					DependsOnID: pre.match.ID,
					Reason: fmt.Sprintf("match %d (%s r%d) starts %s, at or before prerequisite match %d (%s r%d) at %s",
						dep.match.ID, dep.match.Stage, dep.match.Round, dep.start.UTC().Format(time.RFC3339),
						pre.match.ID, pre.match.Stage, pre.match.Round, pre.start.UTC().Format(time.RFC3339)),
				})
			}
		}
	}
	return out
}

// collectTeamConflicts lists pairs of assignments binding the same resolved
// team to overlapping slot time ranges.
func collectTeamConflicts(matches []models.Match, ix *index) []TeamConflict {
	type span struct {
		match models.Match
		slot  models.Slot
	}
	byTeam := make(map[int][]span)
	teamIDs := make([]int, 0)
	for _, m := range matches {
		a, ok := ix.assignByMatch[m.ID]
		if !ok {
			continue
		}
		slot, ok := ix.slotByID[a.SlotID]
		if !ok {
			continue
		}
		for _, teamID := range m.TeamIDs() {
			if _, seen := byTeam[teamID]; !seen {
				teamIDs = append(teamIDs, teamID)
			}
			byTeam[teamID] = append(byTeam[teamID], span{match: m, slot: slot})
		}
	}
	sort.Ints(teamIDs)

	out := make([]TeamConflict, 0)
	for _, teamID := range teamIDs {
		spans := byTeam[teamID]
		for i := 0; i < len(spans); i++ {
			for j := i + 1; j < len(spans); j++ {
				a, b := spans[i], spans[j]
				if !a.slot.StartTime.Before(b.slot.EndTime) || !b.slot.StartTime.Before(a.slot.EndTime) {
					continue
				}
				out = append(out, TeamConflict{
					TeamID:   teamID,
					MatchAID: a.match.ID,
					MatchBID: b.match.ID,
					SlotAID:  a.slot.ID,
					SlotBID:  b.slot.ID,
					Detail: fmt.Sprintf("team %d booked for match %d (%s) and match %d (%s) in overlapping slots",
						teamID, a.match.ID, a.slot.StartTime.UTC().Format(time.RFC3339),
						b.match.ID, b.slot.StartTime.UTC().Format(time.RFC3339)),
				})
			}
		}
	}
	return out
}
