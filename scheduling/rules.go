package scheduling

import (
	"fmt"
	"time"

	"github.com/courtside/schedule-engine/models"
)

// PlacementRules holds the configurable constraints every placement must
// satisfy, whether it comes from an operator or from a planner.
type PlacementRules struct {
	// MinRestMins pads every occupied team span on both sides; a candidate
	// slot touching the padded span is refused.
	MinRestMins int `json:"min_rest_mins"`
	// EnforceStageOrder refuses placements starting at or before an
	// already-placed prerequisite of the same event.
	EnforceStageOrder bool `json:"enforce_stage_order"`
	// MaxPerTeamPerDay caps placed matches per team per day. Zero means
	// unlimited.
	MaxPerTeamPerDay int `json:"max_per_team_per_day"`
}

func DefaultPlacementRules() PlacementRules {
	return PlacementRules{
		MinRestMins:       60,
		EnforceStageOrder: true,
		MaxPerTeamPerDay:  0,
	}
}

// Issue codes surfaced by placement checks. Kept stable: the service layer
// maps them to sentinel errors and the HTTP layer exposes them verbatim.
const (
	IssueSlotMissing          = "slot_missing"
	IssueSlotInactive         = "slot_inactive"
	IssueSlotBlocked          = "slot_blocked"
	IssueSlotOccupied         = "slot_occupied"
	IssueSlotPinnedOther      = "slot_pinned_other_match"
	IssueDurationExceedsSlot  = "duration_exceeds_slot"
	IssueRestConstraint       = "rest_constraint"
	IssueStageOrder           = "stage_order"
	IssueTeamDailyLimit       = "team_daily_limit"
	IssueMatchPinnedElsewhere = "match_pinned_elsewhere"
	IssuePinSlotUnavailable   = "pin_slot_unavailable"
	IssueNoCompatibleSlot     = "no_compatible_slot"
)

// PlacementIssue names the first reason a candidate placement fails.
type PlacementIssue struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// CheckPlacement validates placing one match into one slot the way an
// operator move is validated: the match's current assignment, if any, is
// released first so it cannot conflict with itself. Returns nil when the
// placement is allowed, otherwise the first failing check.
func CheckPlacement(st *State, matchID, slotID int, rules PlacementRules) *PlacementIssue {
	ix := st.buildIndex()
	m, ok := ix.matchByID[matchID]
	if !ok {
		return &PlacementIssue{Code: IssueNoCompatibleSlot, Detail: fmt.Sprintf("match %d not in state", matchID)}
	}
	s, ok := ix.slotByID[slotID]
	if !ok {
		return &PlacementIssue{Code: IssueSlotMissing, Detail: fmt.Sprintf("slot %d not in state", slotID)}
	}
	view := newPlanView(st, ix)
	view.release(matchID)
	return view.check(m, s, rules)
}

// check runs the full compatibility sequence for placing match m into slot s,
// short-circuiting on the first failure. Order matters and mirrors manual
// validation: slot state, duration fit, then team and ordering rules.
func (v *planView) check(m models.Match, s models.Slot, rules PlacementRules) *PlacementIssue {
	if !s.Active {
		return &PlacementIssue{Code: IssueSlotInactive, Detail: fmt.Sprintf("slot %d is inactive", s.ID)}
	}
	if v.ix.blockedSlots[s.ID] {
		return &PlacementIssue{Code: IssueSlotBlocked, Detail: fmt.Sprintf("slot %d is blocked", s.ID)}
	}
	if holder, taken := v.slotTaken[s.ID]; taken {
		return &PlacementIssue{
			Code:   IssueSlotOccupied,
			Detail: fmt.Sprintf("slot %d already holds match %d", s.ID, holder),
		}
	}
	if pin, ok := v.ix.pinBySlot[s.ID]; ok && pin.MatchID != m.ID {
		return &PlacementIssue{
			Code:   IssueSlotPinnedOther,
			Detail: fmt.Sprintf("slot %d is pinned to match %d", s.ID, pin.MatchID),
		}
	}
	if m.DurationMins > s.DurationMins {
		return &PlacementIssue{
			Code:   IssueDurationExceedsSlot,
			Detail: fmt.Sprintf("match %d needs %d min, slot %d offers %d", m.ID, m.DurationMins, s.ID, s.DurationMins),
		}
	}
	if issue := v.checkTeamRules(m, s, rules); issue != nil {
		return issue
	}
	if rules.EnforceStageOrder {
		if issue := v.checkStageOrder(m, s); issue != nil {
			return issue
		}
	}
	return nil
}

func (v *planView) checkTeamRules(m models.Match, s models.Slot, rules PlacementRules) *PlacementIssue {
	rest := time.Duration(rules.MinRestMins) * time.Minute
	for _, teamID := range m.TeamIDs() {
		for _, span := range v.teamSpans[teamID] {
			if s.StartTime.Before(span.end.Add(rest)) && span.start.Add(-rest).Before(s.EndTime) {
				return &PlacementIssue{
					Code: IssueRestConstraint,
					Detail: fmt.Sprintf("team %d plays match %d at %s and needs %d min rest",
						teamID, span.matchID, span.start.UTC().Format(time.RFC3339), rules.MinRestMins),
				}
			}
		}
		if rules.MaxPerTeamPerDay > 0 && v.teamDays[teamID][s.Day] >= rules.MaxPerTeamPerDay {
			return &PlacementIssue{
				Code:   IssueTeamDailyLimit,
				Detail: fmt.Sprintf("team %d already has %d match(es) on day %d", teamID, v.teamDays[teamID][s.Day], s.Day),
			}
		}
	}
	return nil
}

// checkStageOrder refuses a start at or before any already-placed
// prerequisite: a same-event match of a strictly earlier stage, or of the
// same stage and a strictly lower round.
func (v *planView) checkStageOrder(m models.Match, s models.Slot) *PlacementIssue {
	prec := m.Stage.Precedence()
	for _, p := range v.events[m.EventID] {
		prerequisite := p.precedence < prec || (p.precedence == prec && p.round < m.Round)
		if prerequisite && !s.StartTime.After(p.start) {
			return &PlacementIssue{
				Code: IssueStageOrder,
				Detail: fmt.Sprintf("match %d would start at %s, not after prerequisite match %d at %s",
					m.ID, s.StartTime.UTC().Format(time.RFC3339), p.matchID, p.start.UTC().Format(time.RFC3339)),
			}
		}
	}
	return nil
}
