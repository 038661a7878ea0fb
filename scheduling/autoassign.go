package scheduling

import (
	"fmt"

	"github.com/courtside/schedule-engine/models"
)

// PlannedPlacement is one placement decided by a planner. Pinned marks a
// placement that materializes a match lock; applied rows keep the locked
// flag so later automatic runs never move them.
type PlannedPlacement struct {
	MatchID int  `json:"match_id"`
	SlotID  int  `json:"slot_id"`
	Pinned  bool `json:"pinned"`
}

// SkippedMatch explains why a planner left a match unplaced.
type SkippedMatch struct {
	MatchID int    `json:"match_id"`
	Code    string `json:"code"`
	Detail  string `json:"detail"`
}

// AutoAssignPlan is the full outcome of one orchestrator pass. Placements
// are ordered by the canonical match order, so applying them in sequence
// reproduces the planning decisions exactly.
type AutoAssignPlan struct {
	Placements []PlannedPlacement `json:"placements"`
	Skipped    []SkippedMatch     `json:"skipped"`
}

// PlanAutoAssign fills every unassigned placeable match of the version into
// an open compatible slot. Matches holding a locked assignment are never
// touched. Matches pinned by a MatchLock but not yet assigned are
// materialized first: placed exactly at their pinned slot or reported as
// skipped, never placed elsewhere. Deterministic: identical state and rules
// yield an identical plan. Does not mutate st.
func PlanAutoAssign(st *State, rules PlacementRules) *AutoAssignPlan {
	ix := st.buildIndex()
	view := newPlanView(st, ix)

	slots := append([]models.Slot(nil), st.Slots...)
	SortSlots(slots)

	pending := make([]models.Match, 0)
	for _, m := range st.Matches {
		if _, assigned := ix.assignByMatch[m.ID]; assigned || !placeable(m) {
			continue
		}
		pending = append(pending, m)
	}
	SortMatches(pending)

	plan := &AutoAssignPlan{
		Placements: make([]PlannedPlacement, 0, len(pending)),
		Skipped:    make([]SkippedMatch, 0),
	}

	// Pass 1: materialize pins at their exact slot.
	unpinned := make([]models.Match, 0, len(pending))
	for _, m := range pending {
		pin, ok := ix.pinByMatch[m.ID]
		if !ok {
			unpinned = append(unpinned, m)
			continue
		}
		slot, exists := ix.slotByID[pin.SlotID]
		if !exists {
			plan.Skipped = append(plan.Skipped, SkippedMatch{
				MatchID: m.ID,
				Code:    IssuePinSlotUnavailable,
				Detail:  fmt.Sprintf("pinned slot %d does not exist", pin.SlotID),
			})
			continue
		}
		if issue := view.check(m, slot, rules); issue != nil {
			plan.Skipped = append(plan.Skipped, SkippedMatch{
				MatchID: m.ID,
				Code:    IssuePinSlotUnavailable,
				Detail:  fmt.Sprintf("pinned slot %d unavailable: %s", pin.SlotID, issue.Detail),
			})
			continue
		}
		view.record(m.ID, slot.ID)
		plan.Placements = append(plan.Placements, PlannedPlacement{MatchID: m.ID, SlotID: slot.ID, Pinned: true})
	}

	// Pass 2: fill the rest, first compatible slot in canonical order.
	for _, m := range unpinned {
		placedAt, found := 0, false
		for _, slot := range slots {
			if !view.slotFree(slot.ID) {
				continue
			}
			if issue := view.check(m, slot, rules); issue != nil {
				continue
			}
			placedAt, found = slot.ID, true
			break
		}
		if !found {
			plan.Skipped = append(plan.Skipped, SkippedMatch{
				MatchID: m.ID,
				Code:    IssueNoCompatibleSlot,
				Detail:  fmt.Sprintf("no open compatible slot for match %d (%d min)", m.ID, m.DurationMins),
			})
			continue
		}
		view.record(m.ID, placedAt)
		plan.Placements = append(plan.Placements, PlannedPlacement{MatchID: m.ID, SlotID: placedAt})
	}
	return plan
}
