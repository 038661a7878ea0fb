package services

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sort"

	"github.com/courtside/schedule-engine/models"
	"github.com/courtside/schedule-engine/repositories"
	"github.com/courtside/schedule-engine/scheduling"
)

// GridCell is one slot of the schedule board together with everything
// currently attached to it.
type GridCell struct {
	Slot        models.Slot        `json:"slot"`
	Blocked     bool               `json:"blocked"`
	BlockReason *string            `json:"block_reason,omitempty"`
	Match       *models.Match      `json:"match,omitempty"`
	Assignment  *models.Assignment `json:"assignment,omitempty"`
	Pinned      bool               `json:"pinned"`
}

type GridCourt struct {
	Court int        `json:"court"`
	Label string     `json:"label,omitempty"`
	Cells []GridCell `json:"cells"`
}

type GridDay struct {
	Day    int         `json:"day"`
	Courts []GridCourt `json:"courts"`
}

// GridSnapshot is the full day-by-court-by-time view of one version,
// including matches that have no slot yet.
type GridSnapshot struct {
	VersionID  int            `json:"version_id"`
	Days       []GridDay      `json:"days"`
	Unassigned []models.Match `json:"unassigned"`
}

type ReportService interface {
	ConflictReport(ctx context.Context, versionID int, opts scheduling.ReportOptions) (*scheduling.ConflictReport, error)
	QualityReport(ctx context.Context, versionID int, thresholds *scheduling.QualityThresholds) (*scheduling.QualityReport, error)
	GridSnapshot(ctx context.Context, versionID int) (*GridSnapshot, error)
}

type reportService struct {
	db             *sql.DB
	versionRepo    repositories.ScheduleVersionRepository
	slotRepo       repositories.SlotRepository
	matchRepo      repositories.MatchRepository
	assignmentRepo repositories.AssignmentRepository
	lockRepo       repositories.LockRepository
	logger         *slog.Logger
}

func NewReportService(
	db *sql.DB,
	versionRepo repositories.ScheduleVersionRepository,
	slotRepo repositories.SlotRepository,
	matchRepo repositories.MatchRepository,
	assignmentRepo repositories.AssignmentRepository,
	lockRepo repositories.LockRepository,
	logger *slog.Logger,
) ReportService {
	return &reportService{
		db:             db,
		versionRepo:    versionRepo,
		slotRepo:       slotRepo,
		matchRepo:      matchRepo,
		assignmentRepo: assignmentRepo,
		lockRepo:       lockRepo,
		logger:         logger,
	}
}

// loadState assembles the version's state inside one read-only
// repeatable-read transaction, so every report sees a single consistent
// snapshot without taking the version mutex.
func (s *reportService) loadState(ctx context.Context, versionID int) (*scheduling.State, error) {
	var state *scheduling.State
	err := readTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := s.versionRepo.GetByID(ctx, tx, versionID); err != nil {
			if errors.Is(err, repositories.ErrScheduleVersionNotFound) {
				return ErrVersionNotFound
			}
			return err
		}
		var err error
		state, err = loadScheduleState(ctx, tx, versionID, s.slotRepo, s.matchRepo, s.assignmentRepo, s.lockRepo)
		return err
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (s *reportService) ConflictReport(ctx context.Context, versionID int, opts scheduling.ReportOptions) (*scheduling.ConflictReport, error) {
	state, err := s.loadState(ctx, versionID)
	if err != nil {
		return nil, err
	}
	return scheduling.BuildConflictReport(state, opts), nil
}

func (s *reportService) QualityReport(ctx context.Context, versionID int, thresholds *scheduling.QualityThresholds) (*scheduling.QualityReport, error) {
	state, err := s.loadState(ctx, versionID)
	if err != nil {
		return nil, err
	}
	th := scheduling.DefaultQualityThresholds()
	if thresholds != nil {
		th = *thresholds
	}
	return scheduling.BuildQualityReport(state, th), nil
}

// GridSnapshot renders the schedule board: slots grouped by day and court
// in time order, each cell annotated with its assignment, pin and block.
func (s *reportService) GridSnapshot(ctx context.Context, versionID int) (*GridSnapshot, error) {
	state, err := s.loadState(ctx, versionID)
	if err != nil {
		return nil, err
	}

	matchesByID := make(map[int]*models.Match, len(state.Matches))
	for i := range state.Matches {
		matchesByID[state.Matches[i].ID] = &state.Matches[i]
	}
	assignmentsBySlot := make(map[int]*models.Assignment, len(state.Assignments))
	assignedMatches := make(map[int]bool, len(state.Assignments))
	for i := range state.Assignments {
		assignmentsBySlot[state.Assignments[i].SlotID] = &state.Assignments[i]
		assignedMatches[state.Assignments[i].MatchID] = true
	}
	blocksBySlot := make(map[int]*models.SlotLock, len(state.SlotLocks))
	for i := range state.SlotLocks {
		blocksBySlot[state.SlotLocks[i].SlotID] = &state.SlotLocks[i]
	}
	pinnedSlots := make(map[int]bool, len(state.MatchLocks))
	for _, lock := range state.MatchLocks {
		pinnedSlots[lock.SlotID] = true
	}

	slots := append([]models.Slot(nil), state.Slots...)
	sort.Slice(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		if a.Court != b.Court {
			return a.Court < b.Court
		}
		return a.StartTime.Before(b.StartTime)
	})

	snapshot := &GridSnapshot{VersionID: versionID, Days: []GridDay{}, Unassigned: []models.Match{}}
	for _, slot := range slots {
		cell := GridCell{Slot: slot, Pinned: pinnedSlots[slot.ID]}
		if block, ok := blocksBySlot[slot.ID]; ok {
			cell.Blocked = true
			cell.BlockReason = block.Reason
		}
		if assignment, ok := assignmentsBySlot[slot.ID]; ok {
			cell.Assignment = assignment
			cell.Match = matchesByID[assignment.MatchID]
		}

		if len(snapshot.Days) == 0 || snapshot.Days[len(snapshot.Days)-1].Day != slot.Day {
			snapshot.Days = append(snapshot.Days, GridDay{Day: slot.Day, Courts: []GridCourt{}})
		}
		day := &snapshot.Days[len(snapshot.Days)-1]
		if len(day.Courts) == 0 || day.Courts[len(day.Courts)-1].Court != slot.Court {
			day.Courts = append(day.Courts, GridCourt{Court: slot.Court, Label: slot.CourtLabel})
		}
		court := &day.Courts[len(day.Courts)-1]
		court.Cells = append(court.Cells, cell)
	}

	unassigned := append([]models.Match(nil), state.Matches...)
	scheduling.SortMatches(unassigned)
	for _, match := range unassigned {
		if !assignedMatches[match.ID] {
			snapshot.Unassigned = append(snapshot.Unassigned, match)
		}
	}
	return snapshot, nil
}
