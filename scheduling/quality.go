package scheduling

import (
	"fmt"
	"sort"

	"github.com/courtside/schedule-engine/models"
)

// QualityThresholds configures the pass/fail gates of the quality battery.
type QualityThresholds struct {
	// MinUtilization is the minimal share of open slots holding an
	// assignment, in percent.
	MinUtilization float64 `json:"min_utilization"`
	// MaxDailyImbalance caps the spread of assigned-match counts across
	// days that have slots.
	MaxDailyImbalance int `json:"max_daily_imbalance"`
}

func DefaultQualityThresholds() QualityThresholds {
	return QualityThresholds{MinUtilization: 50.0, MaxDailyImbalance: 3}
}

type QualityCheck struct {
	Name    string             `json:"name"`
	Passed  bool               `json:"passed"`
	Detail  string             `json:"detail"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// QualityReport is the verdict of the fixed check battery over one
// version's state. Read-only and deterministic.
type QualityReport struct {
	VersionID int            `json:"version_id"`
	Passed    bool           `json:"passed"`
	Checks    []QualityCheck `json:"checks"`
}

// BuildQualityReport runs the battery in its fixed order: utilization,
// daily balance, event completion, ordering integrity, team rest.
func BuildQualityReport(st *State, th QualityThresholds) *QualityReport {
	ix := st.buildIndex()
	matches := append([]models.Match(nil), st.Matches...)
	SortMatches(matches)

	report := &QualityReport{
		VersionID: st.VersionID,
		Checks: []QualityCheck{
			checkUtilization(st, ix, th),
			checkDailyBalance(st, ix, th),
			checkEventCompletion(matches, ix),
			checkOrderingIntegrity(matches, ix),
			checkTeamRest(matches, ix),
		},
	}
	report.Passed = true
	for _, c := range report.Checks {
		if !c.Passed {
			report.Passed = false
			break
		}
	}
	return report
}

func checkUtilization(st *State, ix *index, th QualityThresholds) QualityCheck {
	open, used := 0, 0
	for _, s := range st.Slots {
		if !s.Active || ix.blockedSlots[s.ID] {
			continue
		}
		open++
		if len(ix.assignBySlot[s.ID]) > 0 {
			used++
		}
	}
	rate := assignmentRate(used, open)
	return QualityCheck{
		Name:   "slot_utilization",
		Passed: rate >= th.MinUtilization,
		Detail: fmt.Sprintf("%d of %d open slots used (%.2f%%, minimum %.2f%%)", used, open, rate, th.MinUtilization),
		Metrics: map[string]float64{
			"open_slots": float64(open),
			"used_slots": float64(used),
			"rate":       rate,
		},
	}
}

func checkDailyBalance(st *State, ix *index, th QualityThresholds) QualityCheck {
	perDay := make(map[int]int)
	for _, s := range st.Slots {
		if _, ok := perDay[s.Day]; !ok {
			perDay[s.Day] = 0
		}
		perDay[s.Day] += len(ix.assignBySlot[s.ID])
	}
	if len(perDay) == 0 {
		return QualityCheck{
			Name:   "daily_balance",
			Passed: true,
			Detail: "no days with slots",
		}
	}
	minCount, maxCount := -1, -1
	for _, day := range sortedKeys(perDay) {
		c := perDay[day]
		if minCount == -1 || c < minCount {
			minCount = c
		}
		if c > maxCount {
			maxCount = c
		}
	}
	spread := maxCount - minCount
	return QualityCheck{
		Name:   "daily_balance",
		Passed: spread <= th.MaxDailyImbalance,
		Detail: fmt.Sprintf("assigned matches per day spread %d (min %d, max %d, allowed %d)", spread, minCount, maxCount, th.MaxDailyImbalance),
		Metrics: map[string]float64{
			"days":   float64(len(perDay)),
			"min":    float64(minCount),
			"max":    float64(maxCount),
			"spread": float64(spread),
		},
	}
}

func checkEventCompletion(matches []models.Match, ix *index) QualityCheck {
	type progress struct {
		total    int
		assigned int
	}
	perEvent := make(map[int]*progress)
	for _, m := range matches {
		if !placeable(m) {
			continue
		}
		p := perEvent[m.EventID]
		if p == nil {
			p = &progress{}
			perEvent[m.EventID] = p
		}
		p.total++
		if _, ok := ix.assignByMatch[m.ID]; ok {
			p.assigned++
		}
	}
	incomplete := make([]int, 0)
	for _, eventID := range sortedKeys(perEvent) {
		p := perEvent[eventID]
		if p.assigned < p.total {
			incomplete = append(incomplete, eventID)
		}
	}
	sort.Ints(incomplete)
	detail := fmt.Sprintf("all %d event(s) fully assigned", len(perEvent))
	if len(incomplete) > 0 {
		detail = fmt.Sprintf("%d of %d event(s) incomplete: %v", len(incomplete), len(perEvent), incomplete)
	}
	return QualityCheck{
		Name:   "event_completion",
		Passed: len(incomplete) == 0,
		Detail: detail,
		Metrics: map[string]float64{
			"events":     float64(len(perEvent)),
			"incomplete": float64(len(incomplete)),
		},
	}
}

func checkOrderingIntegrity(matches []models.Match, ix *index) QualityCheck {
	violations := collectOrderingViolations(matches, ix)
	detail := "no ordering violations"
	if len(violations) > 0 {
		detail = fmt.Sprintf("%d ordering violation(s), first: %s", len(violations), violations[0].Reason)
	}
	return QualityCheck{
		Name:    "ordering_integrity",
		Passed:  len(violations) == 0,
		Detail:  detail,
		Metrics: map[string]float64{"violations": float64(len(violations))},
	}
}

func checkTeamRest(matches []models.Match, ix *index) QualityCheck {
	conflicts := collectTeamConflicts(matches, ix)
	detail := "no overlapping team bookings"
	if len(conflicts) > 0 {
		detail = fmt.Sprintf("%d overlapping team booking(s), first: %s", len(conflicts), conflicts[0].Detail)
	}
	return QualityCheck{
		Name:    "team_rest",
		Passed:  len(conflicts) == 0,
		Detail:  detail,
		Metrics: map[string]float64{"conflicts": float64(len(conflicts))},
	}
}
