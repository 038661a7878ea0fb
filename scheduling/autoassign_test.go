package scheduling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtside/schedule-engine/models"
)

func noRules() PlacementRules {
	return PlacementRules{MinRestMins: 0, EnforceStageOrder: false}
}

func TestPlanAutoAssignFillsInCanonicalOrder(t *testing.T) {
	st := &State{
		VersionID: 1,
		Slots: []models.Slot{
			slotAt(1, 1, 1, 0, 60),
			slotAt(2, 1, 1, 60, 60),
			slotAt(3, 1, 1, 120, 60),
		},
		Matches: []models.Match{
			matchOf(12, models.StageBracketMain, 2, 1, 60),
			matchOf(11, models.StageBracketMain, 1, 1, 60),
			matchOf(10, models.StageRoundRobin, 1, 1, 60),
		},
	}

	plan := PlanAutoAssign(st, noRules())

	require.Len(t, plan.Placements, 3)
	assert.Equal(t, PlannedPlacement{MatchID: 10, SlotID: 1}, plan.Placements[0])
	assert.Equal(t, PlannedPlacement{MatchID: 11, SlotID: 2}, plan.Placements[1])
	assert.Equal(t, PlannedPlacement{MatchID: 12, SlotID: 3}, plan.Placements[2])
	assert.Empty(t, plan.Skipped)
}

func TestPlanAutoAssignLeavesExistingAssignmentsAlone(t *testing.T) {
	st := &State{
		VersionID: 1,
		Slots: []models.Slot{
			slotAt(1, 1, 1, 0, 60),
			slotAt(2, 1, 1, 60, 60),
		},
		Matches: []models.Match{
			matchOf(10, models.StageRoundRobin, 1, 1, 60),
			matchOf(11, models.StageRoundRobin, 1, 2, 60),
		},
		Assignments: []models.Assignment{
			assigned(1, 10, 2, true, models.AssignedByManual),
		},
	}

	plan := PlanAutoAssign(st, noRules())

	require.Len(t, plan.Placements, 1)
	assert.Equal(t, 11, plan.Placements[0].MatchID)
	assert.Equal(t, 1, plan.Placements[0].SlotID, "occupied slot 2 must be skipped")
}

func TestPlanAutoAssignMaterializesPinsExactly(t *testing.T) {
	st := &State{
		VersionID: 1,
		Slots: []models.Slot{
			slotAt(1, 1, 1, 0, 60),
			slotAt(2, 1, 1, 60, 60),
			slotAt(3, 1, 1, 120, 60),
		},
		Matches: []models.Match{
			matchOf(10, models.StageRoundRobin, 1, 1, 60),
			matchOf(11, models.StageRoundRobin, 1, 2, 60),
		},
		MatchLocks: []models.MatchLock{pinned(1, 11, 3)},
	}

	plan := PlanAutoAssign(st, noRules())

	require.Len(t, plan.Placements, 2)
	assert.Equal(t, PlannedPlacement{MatchID: 11, SlotID: 3, Pinned: true}, plan.Placements[0],
		"pins are materialized before ordinary filling")
	assert.Equal(t, PlannedPlacement{MatchID: 10, SlotID: 1}, plan.Placements[1])
}

func TestPlanAutoAssignPinnedSlotUnavailable(t *testing.T) {
	st := &State{
		VersionID: 1,
		Slots: []models.Slot{
			slotAt(1, 1, 1, 0, 60),
			slotAt(2, 1, 1, 60, 60),
		},
		Matches: []models.Match{
			matchOf(10, models.StageRoundRobin, 1, 1, 60),
			matchOf(11, models.StageRoundRobin, 1, 2, 60),
		},
		Assignments: []models.Assignment{
			assigned(1, 10, 2, false, models.AssignedByAutomatic),
		},
		MatchLocks: []models.MatchLock{pinned(1, 11, 2)},
	}

	plan := PlanAutoAssign(st, noRules())

	assert.Empty(t, plan.Placements, "a pinned match is never placed anywhere but its pin")
	require.Len(t, plan.Skipped, 1)
	assert.Equal(t, 11, plan.Skipped[0].MatchID)
	assert.Equal(t, IssuePinSlotUnavailable, plan.Skipped[0].Code)
}

func TestPlanAutoAssignReservesPinnedSlotsForTheirMatch(t *testing.T) {
	st := &State{
		VersionID: 1,
		Slots: []models.Slot{
			slotAt(1, 1, 1, 0, 60),
			slotAt(2, 1, 1, 60, 60),
		},
		Matches: []models.Match{
			matchOf(10, models.StageRoundRobin, 1, 1, 60),
			matchOf(11, models.StageRoundRobin, 1, 2, 60),
			matchOf(12, models.StageRoundRobin, 1, 3, 60),
		},
		MatchLocks: []models.MatchLock{pinned(1, 12, 1)},
	}

	plan := PlanAutoAssign(st, noRules())

	require.Len(t, plan.Placements, 2)
	assert.Equal(t, PlannedPlacement{MatchID: 12, SlotID: 1, Pinned: true}, plan.Placements[0])
	assert.Equal(t, PlannedPlacement{MatchID: 10, SlotID: 2}, plan.Placements[1])
	require.Len(t, plan.Skipped, 1)
	assert.Equal(t, 11, plan.Skipped[0].MatchID)
	assert.Equal(t, IssueNoCompatibleSlot, plan.Skipped[0].Code)
}

func TestPlanAutoAssignRespectsRestMinutes(t *testing.T) {
	st := &State{
		VersionID: 1,
		Slots: []models.Slot{
			slotAt(1, 1, 1, 0, 60),
			slotAt(2, 1, 1, 60, 60),
			slotAt(3, 1, 1, 120, 60),
		},
		Matches: []models.Match{
			matchOf(10, models.StageRoundRobin, 1, 1, 60, 1, 2),
			matchOf(11, models.StageRoundRobin, 1, 2, 60, 1, 3),
		},
	}

	plan := PlanAutoAssign(st, PlacementRules{MinRestMins: 60, EnforceStageOrder: false})

	require.Len(t, plan.Placements, 2)
	assert.Equal(t, 1, plan.Placements[0].SlotID)
	assert.Equal(t, 3, plan.Placements[1].SlotID,
		"team 1 needs 60 minutes between matches, slot 2 is too early")
}

func TestPlanAutoAssignStageOrderAcrossCourts(t *testing.T) {
	st := &State{
		VersionID: 1,
		Slots: []models.Slot{
			slotAt(1, 1, 1, 0, 60),
			slotAt(2, 1, 2, 0, 60),
			slotAt(3, 1, 1, 60, 60),
		},
		Matches: []models.Match{
			matchOf(10, models.StageBracketMain, 1, 1, 60),
			matchOf(11, models.StageBracketMain, 2, 1, 60),
		},
	}

	plan := PlanAutoAssign(st, PlacementRules{MinRestMins: 0, EnforceStageOrder: true})

	require.Len(t, plan.Placements, 2)
	assert.Equal(t, 1, plan.Placements[0].SlotID)
	assert.Equal(t, 3, plan.Placements[1].SlotID,
		"the final must start strictly after its semifinal, not beside it")
}

func TestPlanAutoAssignSkipsBlockedAndInactiveSlots(t *testing.T) {
	inactive := slotAt(2, 1, 1, 60, 60)
	inactive.Active = false
	st := &State{
		VersionID: 1,
		Slots: []models.Slot{
			slotAt(1, 1, 1, 0, 60),
			inactive,
			slotAt(3, 1, 1, 120, 60),
		},
		Matches: []models.Match{
			matchOf(10, models.StageRoundRobin, 1, 1, 60),
			matchOf(11, models.StageRoundRobin, 1, 2, 60),
		},
		SlotLocks: []models.SlotLock{blocked(1, 1)},
	}

	plan := PlanAutoAssign(st, noRules())

	require.Len(t, plan.Placements, 1)
	assert.Equal(t, PlannedPlacement{MatchID: 10, SlotID: 3}, plan.Placements[0])
	require.Len(t, plan.Skipped, 1)
	assert.Equal(t, 11, plan.Skipped[0].MatchID)
}

func TestPlanAutoAssignDurationMustFit(t *testing.T) {
	st := &State{
		VersionID: 1,
		Slots: []models.Slot{
			slotAt(1, 1, 1, 0, 30),
			slotAt(2, 1, 1, 60, 90),
		},
		Matches: []models.Match{
			matchOf(10, models.StageRoundRobin, 1, 1, 60),
		},
	}

	plan := PlanAutoAssign(st, noRules())

	require.Len(t, plan.Placements, 1)
	assert.Equal(t, 2, plan.Placements[0].SlotID)
}

func TestPlanAutoAssignDeterministic(t *testing.T) {
	st := &State{
		VersionID: 1,
		Slots: []models.Slot{
			slotAt(4, 1, 2, 60, 60),
			slotAt(1, 1, 1, 0, 60),
			slotAt(3, 1, 1, 60, 60),
			slotAt(2, 1, 2, 0, 60),
		},
		Matches: []models.Match{
			matchOf(13, models.StagePlacement, 1, 1, 60, 5, 6),
			matchOf(10, models.StageRoundRobin, 1, 1, 60, 1, 2),
			matchOf(12, models.StageBracketMain, 1, 1, 60, 3, 4),
			matchOf(11, models.StageRoundRobin, 1, 2, 60, 7, 8),
		},
	}

	first := PlanAutoAssign(st, noRules())
	second := PlanAutoAssign(st, noRules())

	require.Equal(t, first, second, "same input must reproduce the same plan")
}
