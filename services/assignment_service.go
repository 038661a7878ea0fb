package services

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/courtside/schedule-engine/models"
	"github.com/courtside/schedule-engine/repositories"
	"github.com/courtside/schedule-engine/scheduling"
)

// AssignResult carries the written assignment together with a conflict
// report computed over the schedule as it looks after the change.
type AssignResult struct {
	Assignment *models.Assignment         `json:"assignment"`
	Report     *scheduling.ConflictReport `json:"report"`
}

type UnassignResult struct {
	Report *scheduling.ConflictReport `json:"report"`
}

type AssignmentService interface {
	Assign(ctx context.Context, versionID, matchID, slotID int) (*AssignResult, error)
	Unassign(ctx context.Context, versionID, matchID int) (*UnassignResult, error)
}

type assignmentService struct {
	db             *sql.DB
	versionRepo    repositories.ScheduleVersionRepository
	slotRepo       repositories.SlotRepository
	matchRepo      repositories.MatchRepository
	assignmentRepo repositories.AssignmentRepository
	lockRepo       repositories.LockRepository
	versionLocks   *VersionLocks
	rules          scheduling.PlacementRules
	publisher      EventPublisher
	logger         *slog.Logger
}

// NewAssignmentService builds the manual placement service. rules carries
// the server-configured placement constraints; nil selects the engine
// defaults.
func NewAssignmentService(
	db *sql.DB,
	versionRepo repositories.ScheduleVersionRepository,
	slotRepo repositories.SlotRepository,
	matchRepo repositories.MatchRepository,
	assignmentRepo repositories.AssignmentRepository,
	lockRepo repositories.LockRepository,
	versionLocks *VersionLocks,
	rules *scheduling.PlacementRules,
	publisher EventPublisher,
	logger *slog.Logger,
) AssignmentService {
	effective := scheduling.DefaultPlacementRules()
	if rules != nil {
		effective = *rules
	}
	return &assignmentService{
		db:             db,
		versionRepo:    versionRepo,
		slotRepo:       slotRepo,
		matchRepo:      matchRepo,
		assignmentRepo: assignmentRepo,
		lockRepo:       lockRepo,
		versionLocks:   versionLocks,
		rules:          effective,
		publisher:      publisher,
		logger:         logger,
	}
}

// Assign places a match on a slot by hand. The full validation sequence
// runs before any write: draft version, slot state, pin consistency,
// duration fit, then the configured rest and ordering rules. Manual
// placements are always locked, so automatic runs will not move them.
func (s *assignmentService) Assign(ctx context.Context, versionID, matchID, slotID int) (*AssignResult, error) {
	unlock := s.versionLocks.Lock(versionID)
	defer unlock()

	result := &AssignResult{}
	err := execTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
		if err := requireDraftVersion(ctx, tx, s.versionRepo, versionID); err != nil {
			return err
		}

		state, err := loadScheduleState(ctx, tx, versionID, s.slotRepo, s.matchRepo, s.assignmentRepo, s.lockRepo)
		if err != nil {
			return err
		}

		match := state.MatchByID(matchID)
		if match == nil {
			return ErrMatchNotFound
		}
		if match.Status == models.MatchStatusCompleted || match.Status == models.MatchStatusCanceled {
			return ErrMatchNotSchedulable
		}
		slot := state.SlotByID(slotID)
		if slot == nil {
			return ErrSlotNotFound
		}
		if !slot.Active {
			return ErrSlotInactive
		}
		if state.SlotBlocked(slotID) {
			return ErrSlotBlocked
		}
		if pin := state.PinForMatch(matchID); pin != nil && pin.SlotID != slotID {
			return ErrMatchPinnedElsewhere
		}
		if pin := state.PinForSlot(slotID); pin != nil && pin.MatchID != matchID {
			return ErrSlotReservedForPin
		}
		if other := state.AssignmentForSlot(slotID); other != nil && other.MatchID != matchID {
			return ErrSlotOccupied
		}
		if match.DurationMins > slot.DurationMins {
			return ErrDurationExceedsSlot
		}
		if issue := scheduling.CheckPlacement(state, matchID, slotID, s.rules); issue != nil {
			return placementIssueError(issue)
		}

		now := time.Now().UTC()
		if existing := state.AssignmentForMatch(matchID); existing != nil {
			existing.SlotID = slotID
			existing.Locked = true
			existing.AssignedBy = models.AssignedByManual
			existing.AssignedAt = now
			if err := s.assignmentRepo.Update(ctx, tx, existing); err != nil {
				return err
			}
			result.Assignment = existing
		} else {
			created := models.Assignment{
				VersionID:  versionID,
				MatchID:    matchID,
				SlotID:     slotID,
				Locked:     true,
				AssignedBy: models.AssignedByManual,
				AssignedAt: now,
			}
			if err := s.assignmentRepo.Create(ctx, tx, &created); err != nil {
				return err
			}
			state.Assignments = append(state.Assignments, created)
			result.Assignment = &created
		}

		if match.Status == models.MatchStatusPending {
			if err := s.matchRepo.UpdateStatus(ctx, tx, matchID, models.MatchStatusPlaced); err != nil {
				return err
			}
			match.Status = models.MatchStatusPlaced
		}

		result.Report = scheduling.BuildConflictReport(state, scheduling.ReportOptions{})
		return nil
	})
	if err != nil {
		return nil, err
	}

	publish(s.publisher, versionID, EventAssignmentChanged, result.Assignment)
	s.logger.InfoContext(ctx, "match assigned",
		slog.Int("version_id", versionID),
		slog.Int("match_id", matchID),
		slog.Int("slot_id", slotID))
	return result, nil
}

// placementIssueError translates an engine placement refusal into the
// matching service sentinel, keeping the detail text.
func placementIssueError(issue *scheduling.PlacementIssue) error {
	switch issue.Code {
	case scheduling.IssueRestConstraint:
		return fmt.Errorf("%w: %s", ErrRestConstraint, issue.Detail)
	case scheduling.IssueStageOrder:
		return fmt.Errorf("%w: %s", ErrStageOrder, issue.Detail)
	case scheduling.IssueTeamDailyLimit:
		return fmt.Errorf("%w: %s", ErrTeamDailyLimit, issue.Detail)
	default:
		return fmt.Errorf("%w: %s", ErrValidationFailed, issue.Detail)
	}
}

// Unassign removes a match's assignment. Pins survive: an unassigned pinned
// match is re-placed on its pinned slot by the next automatic run.
func (s *assignmentService) Unassign(ctx context.Context, versionID, matchID int) (*UnassignResult, error) {
	unlock := s.versionLocks.Lock(versionID)
	defer unlock()

	result := &UnassignResult{}
	err := execTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
		if err := requireDraftVersion(ctx, tx, s.versionRepo, versionID); err != nil {
			return err
		}

		state, err := loadScheduleState(ctx, tx, versionID, s.slotRepo, s.matchRepo, s.assignmentRepo, s.lockRepo)
		if err != nil {
			return err
		}

		match := state.MatchByID(matchID)
		if match == nil {
			return ErrMatchNotFound
		}
		existing := state.AssignmentForMatch(matchID)
		if existing == nil {
			return ErrAssignmentMissing
		}

		if err := s.assignmentRepo.DeleteByMatch(ctx, tx, versionID, matchID); err != nil {
			return err
		}
		kept := state.Assignments[:0]
		for _, a := range state.Assignments {
			if a.MatchID != matchID {
				kept = append(kept, a)
			}
		}
		state.Assignments = kept

		if match.Status == models.MatchStatusPlaced {
			if err := s.matchRepo.UpdateStatus(ctx, tx, matchID, models.MatchStatusPending); err != nil {
				return err
			}
			match.Status = models.MatchStatusPending
		}

		result.Report = scheduling.BuildConflictReport(state, scheduling.ReportOptions{})
		return nil
	})
	if err != nil {
		return nil, err
	}

	publish(s.publisher, versionID, EventAssignmentChanged, map[string]int{"match_id": matchID})
	s.logger.InfoContext(ctx, "match unassigned",
		slog.Int("version_id", versionID),
		slog.Int("match_id", matchID))
	return result, nil
}
