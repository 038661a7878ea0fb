package scheduling

import (
	"sort"
	"time"

	"github.com/courtside/schedule-engine/models"
)

// State is a snapshot of every placement-relevant row of one schedule
// version. The engine never mutates it; planners layer their tentative
// placements on top through a planView.
type State struct {
	VersionID   int                 `json:"version_id"`
	Slots       []models.Slot       `json:"slots"`
	Matches     []models.Match      `json:"matches"`
	Assignments []models.Assignment `json:"assignments"`
	MatchLocks  []models.MatchLock  `json:"match_locks"`
	SlotLocks   []models.SlotLock   `json:"slot_locks"`
}

// normalizedCopy returns a copy with every slice in canonical order and all
// timestamps converted to UTC. Encoding a normalized state is deterministic,
// which is what the run digests rely on.
func (st *State) normalizedCopy() *State {
	cp := &State{
		VersionID:   st.VersionID,
		Slots:       append([]models.Slot(nil), st.Slots...),
		Matches:     append([]models.Match(nil), st.Matches...),
		Assignments: append([]models.Assignment(nil), st.Assignments...),
		MatchLocks:  append([]models.MatchLock(nil), st.MatchLocks...),
		SlotLocks:   append([]models.SlotLock(nil), st.SlotLocks...),
	}
	for i := range cp.Slots {
		cp.Slots[i].StartTime = cp.Slots[i].StartTime.UTC()
		cp.Slots[i].EndTime = cp.Slots[i].EndTime.UTC()
	}
	for i := range cp.Assignments {
		cp.Assignments[i].AssignedAt = cp.Assignments[i].AssignedAt.UTC()
	}
	for i := range cp.MatchLocks {
		cp.MatchLocks[i].CreatedAt = cp.MatchLocks[i].CreatedAt.UTC()
	}
	for i := range cp.SlotLocks {
		cp.SlotLocks[i].CreatedAt = cp.SlotLocks[i].CreatedAt.UTC()
	}
	SortSlots(cp.Slots)
	SortMatches(cp.Matches)
	sort.SliceStable(cp.Assignments, func(i, j int) bool {
		return cp.Assignments[i].MatchID < cp.Assignments[j].MatchID
	})
	sort.SliceStable(cp.MatchLocks, func(i, j int) bool {
		return cp.MatchLocks[i].MatchID < cp.MatchLocks[j].MatchID
	})
	sort.SliceStable(cp.SlotLocks, func(i, j int) bool {
		return cp.SlotLocks[i].SlotID < cp.SlotLocks[j].SlotID
	})
	return cp
}

// MatchByID returns a pointer into the state's match slice, or nil.
func (st *State) MatchByID(id int) *models.Match {
	for i := range st.Matches {
		if st.Matches[i].ID == id {
			return &st.Matches[i]
		}
	}
	return nil
}

// SlotByID returns a pointer into the state's slot slice, or nil.
func (st *State) SlotByID(id int) *models.Slot {
	for i := range st.Slots {
		if st.Slots[i].ID == id {
			return &st.Slots[i]
		}
	}
	return nil
}

func (st *State) AssignmentForMatch(matchID int) *models.Assignment {
	for i := range st.Assignments {
		if st.Assignments[i].MatchID == matchID {
			return &st.Assignments[i]
		}
	}
	return nil
}

func (st *State) AssignmentForSlot(slotID int) *models.Assignment {
	for i := range st.Assignments {
		if st.Assignments[i].SlotID == slotID {
			return &st.Assignments[i]
		}
	}
	return nil
}

func (st *State) PinForMatch(matchID int) *models.MatchLock {
	for i := range st.MatchLocks {
		if st.MatchLocks[i].MatchID == matchID {
			return &st.MatchLocks[i]
		}
	}
	return nil
}

func (st *State) PinForSlot(slotID int) *models.MatchLock {
	for i := range st.MatchLocks {
		if st.MatchLocks[i].SlotID == slotID {
			return &st.MatchLocks[i]
		}
	}
	return nil
}

func (st *State) SlotBlocked(slotID int) bool {
	for _, l := range st.SlotLocks {
		if l.SlotID == slotID {
			return true
		}
	}
	return false
}

// Days lists the distinct slot days in ascending order.
func (st *State) Days() []int {
	seen := make(map[int]bool, len(st.Slots))
	days := []int{}
	for _, s := range st.Slots {
		if !seen[s.Day] {
			seen[s.Day] = true
			days = append(days, s.Day)
		}
	}
	sort.Ints(days)
	return days
}

// Binding is one match-slot link as the planners see it.
type Binding struct {
	MatchID int
	SlotID  int
}

// Ledger partitions a version's assignments into pinned and movable sets
// once, up front. Planner code ranges over the partitions instead of
// re-checking the locked flag on every assignment.
type Ledger struct {
	Pinned  []Binding
	Movable []Binding
}

func BuildLedger(assignments []models.Assignment) Ledger {
	var l Ledger
	for _, a := range assignments {
		b := Binding{MatchID: a.MatchID, SlotID: a.SlotID}
		if a.Locked {
			l.Pinned = append(l.Pinned, b)
		} else {
			l.Movable = append(l.Movable, b)
		}
	}
	sort.Slice(l.Pinned, func(i, j int) bool { return l.Pinned[i].MatchID < l.Pinned[j].MatchID })
	sort.Slice(l.Movable, func(i, j int) bool { return l.Movable[i].MatchID < l.Movable[j].MatchID })
	return l
}

type index struct {
	slotByID      map[int]models.Slot
	matchByID     map[int]models.Match
	blockedSlots  map[int]bool
	assignBySlot  map[int][]models.Assignment
	assignByMatch map[int]models.Assignment
	pinByMatch    map[int]models.MatchLock
	pinBySlot     map[int]models.MatchLock
}

func (st *State) buildIndex() *index {
	ix := &index{
		slotByID:      make(map[int]models.Slot, len(st.Slots)),
		matchByID:     make(map[int]models.Match, len(st.Matches)),
		blockedSlots:  make(map[int]bool, len(st.SlotLocks)),
		assignBySlot:  make(map[int][]models.Assignment, len(st.Assignments)),
		assignByMatch: make(map[int]models.Assignment, len(st.Assignments)),
		pinByMatch:    make(map[int]models.MatchLock, len(st.MatchLocks)),
		pinBySlot:     make(map[int]models.MatchLock, len(st.MatchLocks)),
	}
	for _, s := range st.Slots {
		ix.slotByID[s.ID] = s
	}
	for _, m := range st.Matches {
		ix.matchByID[m.ID] = m
	}
	for _, l := range st.SlotLocks {
		ix.blockedSlots[l.SlotID] = true
	}
	for _, a := range st.Assignments {
		ix.assignBySlot[a.SlotID] = append(ix.assignBySlot[a.SlotID], a)
		ix.assignByMatch[a.MatchID] = a
	}
	for _, l := range st.MatchLocks {
		ix.pinByMatch[l.MatchID] = l
		ix.pinBySlot[l.SlotID] = l
	}
	return ix
}

// teamSpan is one occupied time range of a team, tracked for rest and
// overlap checks.
type teamSpan struct {
	matchID int
	start   time.Time
	end     time.Time
}

// eventPlacement is one placed match of an event, tracked for stage-order
// checks.
type eventPlacement struct {
	matchID    int
	precedence int
	round      int
	start      time.Time
}

// planView layers tentative placements over an immutable state. All
// compatibility checks run against the view so that earlier plan entries
// constrain later ones exactly like persisted assignments do.
type planView struct {
	ix        *index
	slotTaken map[int]int // slot id -> match id
	matchSlot map[int]int // match id -> slot id
	teamSpans map[int][]teamSpan
	teamDays  map[int]map[int]int // team id -> day -> placed count
	events    map[int][]eventPlacement
}

func newPlanView(st *State, ix *index) *planView {
	v := &planView{
		ix:        ix,
		slotTaken: make(map[int]int, len(st.Assignments)),
		matchSlot: make(map[int]int, len(st.Assignments)),
		teamSpans: make(map[int][]teamSpan),
		teamDays:  make(map[int]map[int]int),
		events:    make(map[int][]eventPlacement),
	}
	for _, a := range st.Assignments {
		v.record(a.MatchID, a.SlotID)
	}
	return v
}

// record registers a match as occupying a slot, updating every occupancy
// index the compatibility checks consult.
func (v *planView) record(matchID, slotID int) {
	v.slotTaken[slotID] = matchID
	v.matchSlot[matchID] = slotID
	s, okSlot := v.ix.slotByID[slotID]
	m, okMatch := v.ix.matchByID[matchID]
	if !okSlot || !okMatch {
		return
	}
	for _, teamID := range m.TeamIDs() {
		v.teamSpans[teamID] = append(v.teamSpans[teamID], teamSpan{
			matchID: matchID,
			start:   s.StartTime,
			end:     s.EndTime,
		})
		if v.teamDays[teamID] == nil {
			v.teamDays[teamID] = make(map[int]int)
		}
		v.teamDays[teamID][s.Day]++
	}
	v.events[m.EventID] = append(v.events[m.EventID], eventPlacement{
		matchID:    matchID,
		precedence: m.Stage.Precedence(),
		round:      m.Round,
		start:      s.StartTime,
	})
}

// release drops a match's occupancy from the view. Used when validating a
// move, so the match's current placement does not conflict with itself.
func (v *planView) release(matchID int) {
	slotID, ok := v.matchSlot[matchID]
	if !ok {
		return
	}
	delete(v.matchSlot, matchID)
	if v.slotTaken[slotID] == matchID {
		delete(v.slotTaken, slotID)
	}
	s, okSlot := v.ix.slotByID[slotID]
	m, okMatch := v.ix.matchByID[matchID]
	if !okSlot || !okMatch {
		return
	}
	for _, teamID := range m.TeamIDs() {
		spans := v.teamSpans[teamID][:0]
		for _, sp := range v.teamSpans[teamID] {
			if sp.matchID != matchID {
				spans = append(spans, sp)
			}
		}
		v.teamSpans[teamID] = spans
		if days := v.teamDays[teamID]; days != nil {
			days[s.Day]--
		}
	}
	placements := v.events[m.EventID][:0]
	for _, p := range v.events[m.EventID] {
		if p.matchID != matchID {
			placements = append(placements, p)
		}
	}
	v.events[m.EventID] = placements
}

func (v *planView) slotFree(slotID int) bool {
	_, taken := v.slotTaken[slotID]
	return !taken
}
