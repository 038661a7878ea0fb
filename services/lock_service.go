package services

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/courtside/schedule-engine/models"
	"github.com/courtside/schedule-engine/repositories"
)

// LockSet is the full lock inventory of one version.
type LockSet struct {
	MatchLocks []models.MatchLock `json:"match_locks"`
	SlotLocks  []models.SlotLock  `json:"slot_locks"`
}

type LockService interface {
	PinMatch(ctx context.Context, versionID, matchID, slotID int) (*models.MatchLock, error)
	UnpinMatch(ctx context.Context, versionID, matchID int) error
	BlockSlot(ctx context.Context, versionID, slotID int, reason *string) (*models.SlotLock, error)
	UnblockSlot(ctx context.Context, versionID, slotID int) error
	ListLocks(ctx context.Context, versionID int) (*LockSet, error)
}

type lockService struct {
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

func NewLockService(
	db *sql.DB,
	versionRepo repositories.ScheduleVersionRepository,
	slotRepo repositories.SlotRepository,
	matchRepo repositories.MatchRepository,
	assignmentRepo repositories.AssignmentRepository,
	lockRepo repositories.LockRepository,
	versionLocks *VersionLocks,
	publisher EventPublisher,
	logger *slog.Logger,
) LockService {
	return &lockService{
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

// PinMatch declares that a match must land on exactly this slot. Automatic
// runs place it there or report failure, never anywhere else.
func (s *lockService) PinMatch(ctx context.Context, versionID, matchID, slotID int) (*models.MatchLock, error) {
	unlock := s.versionLocks.Lock(versionID)
	defer unlock()

	lock := &models.MatchLock{VersionID: versionID, MatchID: matchID, SlotID: slotID}
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
		if match.DurationMins > slot.DurationMins {
			return ErrDurationExceedsSlot
		}
		if pin := state.PinForSlot(slotID); pin != nil && pin.MatchID != matchID {
			return ErrSlotReservedForPin
		}
		if a := state.AssignmentForSlot(slotID); a != nil && a.MatchID != matchID {
			return ErrSlotOccupied
		}
		if a := state.AssignmentForMatch(matchID); a != nil && a.SlotID != slotID {
			return ErrPinConflictsAssignment
		}

		if err := s.lockRepo.CreateMatchLock(ctx, tx, lock); err != nil {
			if errors.Is(err, repositories.ErrMatchAlreadyPinned) {
				return ErrMatchAlreadyPinned
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	publish(s.publisher, versionID, EventAssignmentChanged, lock)
	s.logger.InfoContext(ctx, "match pinned",
		slog.Int("version_id", versionID),
		slog.Int("match_id", matchID),
		slog.Int("slot_id", slotID))
	return lock, nil
}

func (s *lockService) UnpinMatch(ctx context.Context, versionID, matchID int) error {
	unlock := s.versionLocks.Lock(versionID)
	defer unlock()

	err := execTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
		if err := requireDraftVersion(ctx, tx, s.versionRepo, versionID); err != nil {
			return err
		}
		if err := s.lockRepo.DeleteMatchLock(ctx, tx, versionID, matchID); err != nil {
			if errors.Is(err, repositories.ErrMatchLockNotFound) {
				return ErrLockMissing
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	publish(s.publisher, versionID, EventAssignmentChanged, map[string]int{"match_id": matchID})
	s.logger.InfoContext(ctx, "match unpinned",
		slog.Int("version_id", versionID),
		slog.Int("match_id", matchID))
	return nil
}

// BlockSlot withdraws a slot from scheduling. An assignment already sitting
// on the slot stays put; the conflict report flags it.
func (s *lockService) BlockSlot(ctx context.Context, versionID, slotID int, reason *string) (*models.SlotLock, error) {
	unlock := s.versionLocks.Lock(versionID)
	defer unlock()

	lock := &models.SlotLock{VersionID: versionID, SlotID: slotID, Reason: reason}
	err := execTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
		if err := requireDraftVersion(ctx, tx, s.versionRepo, versionID); err != nil {
			return err
		}

		slot, err := s.slotRepo.GetByID(ctx, tx, slotID)
		if err != nil {
			if errors.Is(err, repositories.ErrSlotNotFound) {
				return ErrSlotNotFound
			}
			return err
		}
		if slot.VersionID != versionID {
			return ErrSlotNotFound
		}

		if err := s.lockRepo.CreateSlotLock(ctx, tx, lock); err != nil {
			if errors.Is(err, repositories.ErrSlotAlreadyBlocked) {
				return ErrSlotAlreadyBlocked
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	publish(s.publisher, versionID, EventAssignmentChanged, lock)
	s.logger.InfoContext(ctx, "slot blocked",
		slog.Int("version_id", versionID),
		slog.Int("slot_id", slotID))
	return lock, nil
}

func (s *lockService) UnblockSlot(ctx context.Context, versionID, slotID int) error {
	unlock := s.versionLocks.Lock(versionID)
	defer unlock()

	err := execTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
		if err := requireDraftVersion(ctx, tx, s.versionRepo, versionID); err != nil {
			return err
		}
		if err := s.lockRepo.DeleteSlotLock(ctx, tx, versionID, slotID); err != nil {
			if errors.Is(err, repositories.ErrSlotLockNotFound) {
				return ErrLockMissing
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	publish(s.publisher, versionID, EventAssignmentChanged, map[string]int{"slot_id": slotID})
	s.logger.InfoContext(ctx, "slot unblocked",
		slog.Int("version_id", versionID),
		slog.Int("slot_id", slotID))
	return nil
}

func (s *lockService) ListLocks(ctx context.Context, versionID int) (*LockSet, error) {
	set := &LockSet{}
	err := readTx(ctx, s.db, func(tx *sql.Tx) error {
		matchLocks, err := s.lockRepo.ListMatchLocksByVersion(ctx, tx, versionID)
		if err != nil {
			return err
		}
		slotLocks, err := s.lockRepo.ListSlotLocksByVersion(ctx, tx, versionID)
		if err != nil {
			return err
		}
		set.MatchLocks = matchLocks
		set.SlotLocks = slotLocks
		return nil
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}
