package models

import "fmt"

// MatchStage represents draw stages, matching the ENUM in the DB.
type MatchStage string

const (
	StageWaterfallR1   MatchStage = "waterfall_r1"
	StageWaterfallR2   MatchStage = "waterfall_r2"
	StageRoundRobin    MatchStage = "round_robin"
	StageBracketMain   MatchStage = "bracket_main"
	StageConsolationT1 MatchStage = "consolation_t1"
	StageConsolationT2 MatchStage = "consolation_t2"
	StagePlacement     MatchStage = "placement"
)

// StageOrder lists every stage in scheduling precedence order. This table is
// the single source of truth for stage ordering; comparators and batch
// builders must go through it rather than comparing stage strings.
var StageOrder = []MatchStage{
	StageWaterfallR1,
	StageWaterfallR2,
	StageRoundRobin,
	StageBracketMain,
	StageConsolationT1,
	StageConsolationT2,
	StagePlacement,
}

var stagePrecedence = func() map[MatchStage]int {
	m := make(map[MatchStage]int, len(StageOrder))
	for i, s := range StageOrder {
		m[s] = i + 1
	}
	return m
}()

const unknownStagePrecedence = 1000

// Precedence returns the stage's position in the scheduling order.
// Unknown stages sort after every known stage.
func (s MatchStage) Precedence() int {
	if p, ok := stagePrecedence[s]; ok {
		return p
	}
	return unknownStagePrecedence
}

func (s MatchStage) Known() bool {
	_, ok := stagePrecedence[s]
	return ok
}

// MatchStatus represents match states, matching the ENUM in the DB.
type MatchStatus string

const (
	MatchStatusPending   MatchStatus = "pending"
	MatchStatusPlaced    MatchStatus = "placed"
	MatchStatusCompleted MatchStatus = "completed"
	MatchStatusCanceled  MatchStatus = "canceled"
)

// Match is a unit of competition to be placed into a slot, scoped to a
// version and an event. Sides are either resolved team references or
// unresolved placeholders produced by the draw generator.
type Match struct {
	ID           int         `json:"id" db:"id"`
	VersionID    int         `json:"version_id" db:"version_id"`
	EventID      int         `json:"event_id" db:"event_id"`
	Stage        MatchStage  `json:"stage" db:"stage"`
	Round        int         `json:"round" db:"round"`
	Sequence     int         `json:"sequence" db:"sequence"`
	DurationMins int         `json:"duration_mins" db:"duration_mins"`
	TeamAID      *int        `json:"team_a_id,omitempty" db:"team_a_id"`
	PlaceholderA *string     `json:"placeholder_a,omitempty" db:"placeholder_a"`
	TeamBID      *int        `json:"team_b_id,omitempty" db:"team_b_id"`
	PlaceholderB *string     `json:"placeholder_b,omitempty" db:"placeholder_b"`
	Status       MatchStatus `json:"status" db:"status"`
}

// MatchKey is the natural identity of a match within a version, used by
// inventory rebuilds to preserve surviving rows and their locks.
type MatchKey struct {
	EventID  int
	Stage    MatchStage
	Round    int
	Sequence int
}

func (m *Match) Key() MatchKey {
	return MatchKey{EventID: m.EventID, Stage: m.Stage, Round: m.Round, Sequence: m.Sequence}
}

// TeamIDs returns the resolved team references of the match, side A first.
// Placeholder sides are omitted.
func (m *Match) TeamIDs() []int {
	ids := make([]int, 0, 2)
	if m.TeamAID != nil {
		ids = append(ids, *m.TeamAID)
	}
	if m.TeamBID != nil {
		ids = append(ids, *m.TeamBID)
	}
	return ids
}

func (m *Match) HasTeam(teamID int) bool {
	if m.TeamAID != nil && *m.TeamAID == teamID {
		return true
	}
	return m.TeamBID != nil && *m.TeamBID == teamID
}

func sideLabel(teamID *int, placeholder *string) string {
	switch {
	case teamID != nil:
		return fmt.Sprintf("team:%d", *teamID)
	case placeholder != nil:
		return *placeholder
	default:
		return "tbd"
	}
}

// Sides renders both sides for diagnostics, e.g. "team:12 vs W-QF3".
func (m *Match) Sides() string {
	return sideLabel(m.TeamAID, m.PlaceholderA) + " vs " + sideLabel(m.TeamBID, m.PlaceholderB)
}
