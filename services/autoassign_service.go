package services

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/courtside/schedule-engine/models"
	"github.com/courtside/schedule-engine/repositories"
	"github.com/courtside/schedule-engine/scheduling"
)

type AutoAssignResult struct {
	Plan   *scheduling.AutoAssignPlan `json:"plan"`
	Report *scheduling.ConflictReport `json:"report"`
}

type AutoAssignService interface {
	// Preview plans a full fill without writing anything.
	Preview(ctx context.Context, versionID int, rules *scheduling.PlacementRules) (*scheduling.AutoAssignPlan, error)
	// Run plans and applies the fill in one transaction.
	Run(ctx context.Context, versionID int, rules *scheduling.PlacementRules) (*AutoAssignResult, error)
}

type autoAssignService struct {
	db             *sql.DB
	versionRepo    repositories.ScheduleVersionRepository
	slotRepo       repositories.SlotRepository
	matchRepo      repositories.MatchRepository
	assignmentRepo repositories.AssignmentRepository
	lockRepo       repositories.LockRepository
	versionLocks   *VersionLocks
	publisher      EventPublisher
	logger         *slog.Logger
}

func NewAutoAssignService(
	db *sql.DB,
	versionRepo repositories.ScheduleVersionRepository,
	slotRepo repositories.SlotRepository,
	matchRepo repositories.MatchRepository,
	assignmentRepo repositories.AssignmentRepository,
	lockRepo repositories.LockRepository,
	versionLocks *VersionLocks,
	publisher EventPublisher,
	logger *slog.Logger,
) AutoAssignService {
	return &autoAssignService{
		db:             db,
		versionRepo:    versionRepo,
		slotRepo:       slotRepo,
		matchRepo:      matchRepo,
		assignmentRepo: assignmentRepo,
		lockRepo:       lockRepo,
		versionLocks:   versionLocks,
		publisher:      publisher,
		logger:         logger,
	}
}

func (s *autoAssignService) Preview(ctx context.Context, versionID int, rules *scheduling.PlacementRules) (*scheduling.AutoAssignPlan, error) {
	effective := effectiveRules(rules)

	var plan *scheduling.AutoAssignPlan
	err := readTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.requireVersionExists(ctx, tx, versionID); err != nil {
			return err
		}
		state, err := loadScheduleState(ctx, tx, versionID, s.slotRepo, s.matchRepo, s.assignmentRepo, s.lockRepo)
		if err != nil {
			return err
		}
		plan = scheduling.PlanAutoAssign(state, effective)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *autoAssignService) Run(ctx context.Context, versionID int, rules *scheduling.PlacementRules) (*AutoAssignResult, error) {
	effective := effectiveRules(rules)

	unlock := s.versionLocks.Lock(versionID)
	defer unlock()

	result := &AutoAssignResult{}
	err := execTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
		if err := requireDraftVersion(ctx, tx, s.versionRepo, versionID); err != nil {
			return err
		}
		state, err := loadScheduleState(ctx, tx, versionID, s.slotRepo, s.matchRepo, s.assignmentRepo, s.lockRepo)
		if err != nil {
			return err
		}

		plan := scheduling.PlanAutoAssign(state, effective)
		if err := applyPlacements(ctx, tx, state, plan.Placements, s.assignmentRepo, s.matchRepo); err != nil {
			return err
		}

		result.Plan = plan
		result.Report = scheduling.BuildConflictReport(state, scheduling.ReportOptions{})
		return nil
	})
	if err != nil {
		return nil, err
	}

	publish(s.publisher, versionID, EventAutoAssignCompleted, map[string]int{
		"assigned": len(result.Plan.Placements),
		"skipped":  len(result.Plan.Skipped),
	})
	s.logger.InfoContext(ctx, "auto-assign completed",
		slog.Int("version_id", versionID),
		slog.Int("assigned", len(result.Plan.Placements)),
		slog.Int("skipped", len(result.Plan.Skipped)))
	return result, nil
}

func (s *autoAssignService) requireVersionExists(ctx context.Context, tx *sql.Tx, versionID int) error {
	_, err := s.versionRepo.GetByID(ctx, tx, versionID)
	if errors.Is(err, repositories.ErrScheduleVersionNotFound) {
		return ErrVersionNotFound
	}
	return err
}

func effectiveRules(rules *scheduling.PlacementRules) scheduling.PlacementRules {
	if rules == nil {
		return scheduling.DefaultPlacementRules()
	}
	return *rules
}

// applyPlacements persists planner output and mirrors it into the in-memory
// state, so reports built afterwards see the post-run schedule.
func applyPlacements(
	ctx context.Context,
	tx *sql.Tx,
	state *scheduling.State,
	placements []scheduling.PlannedPlacement,
	assignmentRepo repositories.AssignmentRepository,
	matchRepo repositories.MatchRepository,
) error {
	now := time.Now().UTC()
	for _, p := range placements {
		assignment := models.Assignment{
			VersionID:  state.VersionID,
			MatchID:    p.MatchID,
			SlotID:     p.SlotID,
			Locked:     p.Pinned,
			AssignedBy: models.AssignedByAutomatic,
			AssignedAt: now,
		}
		if err := assignmentRepo.Create(ctx, tx, &assignment); err != nil {
			return err
		}
		state.Assignments = append(state.Assignments, assignment)

		match := state.MatchByID(p.MatchID)
		if match != nil && match.Status == models.MatchStatusPending {
			if err := matchRepo.UpdateStatus(ctx, tx, p.MatchID, models.MatchStatusPlaced); err != nil {
				return err
			}
			match.Status = models.MatchStatusPlaced
		}
	}
	return nil
}
