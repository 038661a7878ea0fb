package scheduling

import (
	"errors"
	"fmt"
	"sort"

	"github.com/courtside/schedule-engine/models"
)

// ErrDayHasNoSlots is returned when a policy run targets a day the version
// has no slots for.
var ErrDayHasNoSlots = errors.New("no slots exist for the requested day")

// PolicyConfig captures every knob that influences a policy run. The whole
// struct is embedded in the canonical input document, so two runs with
// different configuration always produce different input hashes.
type PolicyConfig struct {
	PolicyVersion    string         `json:"policy_version"`
	SpareSlotsPerDay int            `json:"spare_slots_per_day"`
	MaxTeamImbalance int            `json:"max_team_imbalance"`
	Rules            PlacementRules `json:"rules"`
}

func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		PolicyVersion:    "v1",
		SpareSlotsPerDay: 1,
		MaxTeamImbalance: 0,
		Rules:            DefaultPlacementRules(),
	}
}

// BatchResult accounts for one named batch of a policy run.
type BatchResult struct {
	Name      string `json:"name"`
	Attempted int    `json:"attempted"`
	Assigned  int    `json:"assigned"`
	Failed    int    `json:"failed"`
}

type InvariantViolation struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// InvariantReport is the post-run integrity verdict. OK is false exactly
// when Violations is non-empty; detected conditions are never dropped.
type InvariantReport struct {
	OK         bool                 `json:"ok"`
	Violations []InvariantViolation `json:"violations"`
}

// batchPinned is the leading batch that materializes match pins targeting
// the day before any stage batch runs.
const batchPinned = "pinned"

// DayPlan is the complete outcome of one policy invocation for one day.
type DayPlan struct {
	VersionID     int                `json:"version_id"`
	Day           int                `json:"day"`
	PolicyVersion string             `json:"policy_version"`
	InputHash     string             `json:"input_hash"`
	OutputHash    string             `json:"output_hash"`
	Batches       []BatchResult      `json:"batches"`
	Placements    []PlannedPlacement `json:"placements"`
	Failed        []SkippedMatch     `json:"failed"`
	SpareSlotIDs  []int              `json:"spare_slot_ids"`
	Invariants    InvariantReport    `json:"invariants"`
}

// PlanDay runs the daily placement policy for one day: reserve spare slots,
// materialize pins targeting the day, then fill stage batches in precedence
// order into the day's remaining open slots. Pure computation over st; the
// caller persists the placements and the snapshot. Deterministic: identical
// input state, day and config reproduce the identical plan and hashes.
func PlanDay(st *State, day int, cfg PolicyConfig) (*DayPlan, error) {
	inputDoc, err := EncodeRunInput(st, day, cfg)
	if err != nil {
		return nil, err
	}

	ix := st.buildIndex()
	view := newPlanView(st, ix)

	daySlots := make([]models.Slot, 0)
	for _, s := range st.Slots {
		if s.Day == day {
			daySlots = append(daySlots, s)
		}
	}
	if len(daySlots) == 0 {
		return nil, ErrDayHasNoSlots
	}
	SortSlots(daySlots)

	plan := &DayPlan{
		VersionID:     st.VersionID,
		Day:           day,
		PolicyVersion: cfg.PolicyVersion,
		InputHash:     Digest(inputDoc),
		Batches:       make([]BatchResult, 0),
		Placements:    make([]PlannedPlacement, 0),
		Failed:        make([]SkippedMatch, 0),
		SpareSlotIDs:  make([]int, 0),
	}

	spares := reserveSpares(daySlots, view, ix, cfg.SpareSlotsPerDay)
	for _, s := range daySlots {
		if spares[s.ID] {
			plan.SpareSlotIDs = append(plan.SpareSlotIDs, s.ID)
		}
	}

	pending := make([]models.Match, 0)
	for _, m := range st.Matches {
		if _, assigned := ix.assignByMatch[m.ID]; assigned || !placeable(m) {
			continue
		}
		pending = append(pending, m)
	}
	SortMatches(pending)

	unpinned := runPinnedBatch(plan, pending, daySlots, view, ix, cfg, day)
	runStageBatches(plan, unpinned, daySlots, view, spares, cfg, day)

	outputDoc, err := encodeRunOutput(postRunEntries(st, plan.Placements), plan.Failed)
	if err != nil {
		return nil, err
	}
	plan.OutputHash = Digest(outputDoc)
	plan.Invariants = checkInvariants(st, ix, plan, spares, cfg)
	return plan, nil
}

// reserveSpares marks the last n open, unpinned, currently-free slots of the
// day as deliberately held back from filling.
func reserveSpares(daySlots []models.Slot, view *planView, ix *index, n int) map[int]bool {
	spares := make(map[int]bool)
	if n <= 0 {
		return spares
	}
	candidates := make([]int, 0, len(daySlots))
	for _, s := range daySlots {
		if !s.Active || view.ix.blockedSlots[s.ID] || !view.slotFree(s.ID) {
			continue
		}
		if _, pinned := ix.pinBySlot[s.ID]; pinned {
			continue
		}
		candidates = append(candidates, s.ID)
	}
	if n > len(candidates) {
		n = len(candidates)
	}
	for _, id := range candidates[len(candidates)-n:] {
		spares[id] = true
	}
	return spares
}

// runPinnedBatch materializes pins that target one of the day's slots and
// returns the matches left for the stage batches.
func runPinnedBatch(plan *DayPlan, pending []models.Match, daySlots []models.Slot, view *planView, ix *index, cfg PolicyConfig, day int) []models.Match {
	daySlotIDs := make(map[int]bool, len(daySlots))
	for _, s := range daySlots {
		daySlotIDs[s.ID] = true
	}

	batch := BatchResult{Name: batchPinned}
	rest := make([]models.Match, 0, len(pending))
	for _, m := range pending {
		pin, ok := ix.pinByMatch[m.ID]
		if !ok {
			rest = append(rest, m)
			continue
		}
		if !daySlotIDs[pin.SlotID] {
			// Pinned to another day's slot: left for that day's run,
			// never placed elsewhere.
			continue
		}
		batch.Attempted++
		slot := ix.slotByID[pin.SlotID]
		if issue := view.check(m, slot, cfg.Rules); issue != nil {
			batch.Failed++
			plan.Failed = append(plan.Failed, SkippedMatch{
				MatchID: m.ID,
				Code:    IssuePinSlotUnavailable,
				Detail:  fmt.Sprintf("pinned slot %d unavailable on day %d: %s", pin.SlotID, day, issue.Detail),
			})
			continue
		}
		view.record(m.ID, slot.ID)
		plan.Placements = append(plan.Placements, PlannedPlacement{MatchID: m.ID, SlotID: slot.ID, Pinned: true})
		batch.Assigned++
	}
	if batch.Attempted > 0 {
		plan.Batches = append(plan.Batches, batch)
	}
	return rest
}

// runStageBatches partitions the remaining matches into one batch per stage
// present and fills them in precedence order.
func runStageBatches(plan *DayPlan, pending []models.Match, daySlots []models.Slot, view *planView, spares map[int]bool, cfg PolicyConfig, day int) {
	byStage := make(map[models.MatchStage][]models.Match)
	stages := make([]models.MatchStage, 0)
	for _, m := range pending {
		if _, seen := byStage[m.Stage]; !seen {
			stages = append(stages, m.Stage)
		}
		byStage[m.Stage] = append(byStage[m.Stage], m)
	}
	sort.SliceStable(stages, func(i, j int) bool {
		return stages[i].Precedence() < stages[j].Precedence()
	})

	for _, stage := range stages {
		batch := BatchResult{Name: string(stage)}
		for _, m := range byStage[stage] {
			batch.Attempted++
			placedAt, found := 0, false
			for _, slot := range daySlots {
				if spares[slot.ID] || !view.slotFree(slot.ID) {
					continue
				}
				if issue := view.check(m, slot, cfg.Rules); issue != nil {
					continue
				}
				placedAt, found = slot.ID, true
				break
			}
			if !found {
				batch.Failed++
				plan.Failed = append(plan.Failed, SkippedMatch{
					MatchID: m.ID,
					Code:    IssueNoCompatibleSlot,
					Detail:  fmt.Sprintf("no open compatible slot on day %d for match %d (%d min)", day, m.ID, m.DurationMins),
				})
				continue
			}
			view.record(m.ID, placedAt)
			plan.Placements = append(plan.Placements, PlannedPlacement{MatchID: m.ID, SlotID: placedAt})
			batch.Assigned++
		}
		plan.Batches = append(plan.Batches, batch)
	}
}

// postRunEntries renders the full post-run assignment set: every persisted
// assignment plus every placement this plan adds.
func postRunEntries(st *State, placements []PlannedPlacement) []outputEntry {
	entries := make([]outputEntry, 0, len(st.Assignments)+len(placements))
	for _, a := range st.Assignments {
		entries = append(entries, outputEntry{
			MatchID:    a.MatchID,
			SlotID:     a.SlotID,
			Locked:     a.Locked,
			AssignedBy: string(a.AssignedBy),
		})
	}
	for _, p := range placements {
		entries = append(entries, outputEntry{
			MatchID:    p.MatchID,
			SlotID:     p.SlotID,
			Locked:     p.Pinned,
			AssignedBy: string(models.AssignedByAutomatic),
		})
	}
	return entries
}

// postBinding is one match-slot pair of the combined post-run state.
type postBinding struct {
	matchID int
	slotID  int
}

// checkInvariants verifies the combined post-run state. Pre-existing
// corruption surfaces here too, not only defects introduced by this run.
func checkInvariants(st *State, ix *index, plan *DayPlan, spares map[int]bool, cfg PolicyConfig) InvariantReport {
	violations := make([]InvariantViolation, 0)

	bindings := make([]postBinding, 0, len(st.Assignments)+len(plan.Placements))
	for _, a := range st.Assignments {
		bindings = append(bindings, postBinding{matchID: a.MatchID, slotID: a.SlotID})
	}
	for _, p := range plan.Placements {
		bindings = append(bindings, postBinding{matchID: p.MatchID, slotID: p.SlotID})
	}
	sort.Slice(bindings, func(i, j int) bool {
		if bindings[i].matchID != bindings[j].matchID {
			return bindings[i].matchID < bindings[j].matchID
		}
		return bindings[i].slotID < bindings[j].slotID
	})

	perSlot := make(map[int][]int)
	perMatch := make(map[int][]int)
	for _, b := range bindings {
		perSlot[b.slotID] = append(perSlot[b.slotID], b.matchID)
		perMatch[b.matchID] = append(perMatch[b.matchID], b.slotID)
	}
	for _, slotID := range sortedKeys(perSlot) {
		if len(perSlot[slotID]) > 1 {
			violations = append(violations, InvariantViolation{
				Kind:   "slot_double_booked",
				Detail: fmt.Sprintf("slot %d holds matches %v", slotID, perSlot[slotID]),
			})
		}
	}
	for _, matchID := range sortedKeys(perMatch) {
		if len(perMatch[matchID]) > 1 {
			violations = append(violations, InvariantViolation{
				Kind:   "match_double_assigned",
				Detail: fmt.Sprintf("match %d assigned to slots %v", matchID, perMatch[matchID]),
			})
		}
	}

	violations = append(violations, teamOverlapViolations(bindingSpans(bindings, ix))...)

	for _, p := range plan.Placements {
		if spares[p.SlotID] {
			violations = append(violations, InvariantViolation{
				Kind:   "spare_slot_occupied",
				Detail: fmt.Sprintf("spare slot %d filled by match %d in this run", p.SlotID, p.MatchID),
			})
		}
	}

	if cfg.MaxTeamImbalance > 0 {
		if v := teamImbalanceViolation(st, bindings, ix, cfg.MaxTeamImbalance); v != nil {
			violations = append(violations, *v)
		}
	}

	sort.SliceStable(violations, func(i, j int) bool {
		if violations[i].Kind != violations[j].Kind {
			return violations[i].Kind < violations[j].Kind
		}
		return violations[i].Detail < violations[j].Detail
	})
	return InvariantReport{OK: len(violations) == 0, Violations: violations}
}

type invariantSpan struct {
	teamID  int
	matchID int
	slot    models.Slot
}

func bindingSpans(bindings []postBinding, ix *index) []invariantSpan {
	spans := make([]invariantSpan, 0, len(bindings))
	for _, b := range bindings {
		m, okMatch := ix.matchByID[b.matchID]
		slot, okSlot := ix.slotByID[b.slotID]
		if !okMatch || !okSlot {
			continue
		}
		for _, teamID := range m.TeamIDs() {
			spans = append(spans, invariantSpan{teamID: teamID, matchID: b.matchID, slot: slot})
		}
	}
	return spans
}

func teamOverlapViolations(spans []invariantSpan) []InvariantViolation {
	byTeam := make(map[int][]invariantSpan)
	for _, sp := range spans {
		byTeam[sp.teamID] = append(byTeam[sp.teamID], sp)
	}
	violations := make([]InvariantViolation, 0)
	for _, teamID := range sortedKeys(byTeam) {
		ts := byTeam[teamID]
		for i := 0; i < len(ts); i++ {
			for j := i + 1; j < len(ts); j++ {
				a, b := ts[i], ts[j]
				if a.slot.StartTime.Before(b.slot.EndTime) && b.slot.StartTime.Before(a.slot.EndTime) {
					violations = append(violations, InvariantViolation{
						Kind:   "team_overlap",
						Detail: fmt.Sprintf("team %d scheduled in overlapping slots %d and %d (matches %d, %d)", teamID, a.slot.ID, b.slot.ID, a.matchID, b.matchID),
					})
				}
			}
		}
	}
	return violations
}

// teamImbalanceViolation compares per-team placed-match counts across every
// team that still has a placeable match in the version.
func teamImbalanceViolation(st *State, bindings []postBinding, ix *index, maxImbalance int) *InvariantViolation {
	counts := make(map[int]int)
	for _, m := range st.Matches {
		if !placeable(m) {
			continue
		}
		for _, teamID := range m.TeamIDs() {
			if _, ok := counts[teamID]; !ok {
				counts[teamID] = 0
			}
		}
	}
	if len(counts) == 0 {
		return nil
	}
	for _, b := range bindings {
		m, ok := ix.matchByID[b.matchID]
		if !ok {
			continue
		}
		for _, teamID := range m.TeamIDs() {
			if _, tracked := counts[teamID]; tracked {
				counts[teamID]++
			}
		}
	}
	minCount, maxCount := -1, -1
	for _, c := range counts {
		if minCount == -1 || c < minCount {
			minCount = c
		}
		if c > maxCount {
			maxCount = c
		}
	}
	if maxCount-minCount <= maxImbalance {
		return nil
	}
	return &InvariantViolation{
		Kind: "team_imbalance",
		Detail: fmt.Sprintf("per-team placed counts spread %d exceeds max %d (min %d, max %d)",
			maxCount-minCount, maxImbalance, minCount, maxCount),
	}
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
