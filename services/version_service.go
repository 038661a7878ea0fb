package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/courtside/schedule-engine/models"
	"github.com/courtside/schedule-engine/repositories"
)

// SlotInput describes one slot of the rebuilt slot grid. Slots are matched
// against existing rows by their natural key (day, court, start time).
type SlotInput struct {
	Day          int       `json:"day"`
	Court        int       `json:"court"`
	CourtLabel   string    `json:"court_label"`
	StartTime    time.Time `json:"start_time"`
	DurationMins int       `json:"duration_mins"`
	Active       *bool     `json:"active"`
}

// MatchInput describes one imported match, keyed by
// (event, stage, round, sequence).
type MatchInput struct {
	EventID      int               `json:"event_id"`
	Stage        models.MatchStage `json:"stage"`
	Round        int               `json:"round"`
	Sequence     int               `json:"sequence"`
	DurationMins int               `json:"duration_mins"`
	TeamAID      *int              `json:"team_a_id"`
	PlaceholderA *string           `json:"placeholder_a"`
	TeamBID      *int              `json:"team_b_id"`
	PlaceholderB *string           `json:"placeholder_b"`
}

type SlotRebuildResult struct {
	Created int           `json:"created"`
	Updated int           `json:"updated"`
	Deleted int           `json:"deleted"`
	Slots   []models.Slot `json:"slots"`
}

type MatchImportResult struct {
	Created int            `json:"created"`
	Updated int            `json:"updated"`
	Deleted int            `json:"deleted"`
	Matches []models.Match `json:"matches"`
}

type VersionService interface {
	Create(ctx context.Context, tournamentID int) (*models.ScheduleVersion, error)
	GetByID(ctx context.Context, id int) (*models.ScheduleVersion, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]models.ScheduleVersion, error)
	Clone(ctx context.Context, sourceVersionID int) (*models.ScheduleVersion, error)
	Finalize(ctx context.Context, id int) (*models.ScheduleVersion, error)
	RebuildSlots(ctx context.Context, versionID int, inputs []SlotInput) (*SlotRebuildResult, error)
	ImportMatches(ctx context.Context, versionID int, inputs []MatchInput) (*MatchImportResult, error)
}

type versionService struct {
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

func NewVersionService(
	db *sql.DB,
	versionRepo repositories.ScheduleVersionRepository,
	slotRepo repositories.SlotRepository,
	matchRepo repositories.MatchRepository,
	assignmentRepo repositories.AssignmentRepository,
	lockRepo repositories.LockRepository,
	versionLocks *VersionLocks,
	publisher EventPublisher,
	logger *slog.Logger,
) VersionService {
	return &versionService{
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

func (s *versionService) Create(ctx context.Context, tournamentID int) (*models.ScheduleVersion, error) {
	if tournamentID <= 0 {
		return nil, fmt.Errorf("%w: tournament id must be positive", ErrValidationFailed)
	}

	version := &models.ScheduleVersion{
		TournamentID: tournamentID,
		Status:       models.VersionStatusDraft,
	}
	err := execTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
		next, err := s.versionRepo.NextVersionNumber(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		version.VersionNumber = next
		return s.versionRepo.Create(ctx, tx, version)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "schedule version created",
		slog.Int("version_id", version.ID),
		slog.Int("tournament_id", tournamentID),
		slog.Int("version_number", version.VersionNumber))
	return version, nil
}

func (s *versionService) GetByID(ctx context.Context, id int) (*models.ScheduleVersion, error) {
	version, err := s.versionRepo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repositories.ErrScheduleVersionNotFound) {
			return nil, ErrVersionNotFound
		}
		return nil, err
	}
	return version, nil
}

func (s *versionService) ListByTournament(ctx context.Context, tournamentID int) ([]models.ScheduleVersion, error) {
	return s.versionRepo.ListByTournament(ctx, nil, tournamentID)
}

// Clone copies a version's slots, matches, assignments and locks into a new
// draft with fresh row ids. Lock flags and assignment provenance survive.
func (s *versionService) Clone(ctx context.Context, sourceVersionID int) (*models.ScheduleVersion, error) {
	unlock := s.versionLocks.Lock(sourceVersionID)
	defer unlock()

	clone := &models.ScheduleVersion{Status: models.VersionStatusDraft}
	err := execTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
		source, err := s.versionRepo.GetByID(ctx, tx, sourceVersionID)
		if err != nil {
			if errors.Is(err, repositories.ErrScheduleVersionNotFound) {
				return ErrVersionNotFound
			}
			return err
		}

		next, err := s.versionRepo.NextVersionNumber(ctx, tx, source.TournamentID)
		if err != nil {
			return err
		}
		clone.TournamentID = source.TournamentID
		clone.VersionNumber = next
		if err := s.versionRepo.Create(ctx, tx, clone); err != nil {
			return err
		}

		slots, err := s.slotRepo.ListByVersion(ctx, tx, sourceVersionID)
		if err != nil {
			return err
		}
		slotIDs := make(map[int]int, len(slots))
		for _, slot := range slots {
			copied := slot
			copied.ID = 0
			copied.VersionID = clone.ID
			if err := s.slotRepo.Create(ctx, tx, &copied); err != nil {
				return err
			}
			slotIDs[slot.ID] = copied.ID
		}

		matches, err := s.matchRepo.ListByVersion(ctx, tx, sourceVersionID)
		if err != nil {
			return err
		}
		matchIDs := make(map[int]int, len(matches))
		for _, match := range matches {
			copied := match
			copied.ID = 0
			copied.VersionID = clone.ID
			if err := s.matchRepo.Create(ctx, tx, &copied); err != nil {
				return err
			}
			matchIDs[match.ID] = copied.ID
		}

		assignments, err := s.assignmentRepo.ListByVersion(ctx, tx, sourceVersionID)
		if err != nil {
			return err
		}
		for _, assignment := range assignments {
			copied := assignment
			copied.ID = 0
			copied.VersionID = clone.ID
			copied.MatchID = matchIDs[assignment.MatchID]
			copied.SlotID = slotIDs[assignment.SlotID]
			if err := s.assignmentRepo.Create(ctx, tx, &copied); err != nil {
				return err
			}
		}

		matchLocks, err := s.lockRepo.ListMatchLocksByVersion(ctx, tx, sourceVersionID)
		if err != nil {
			return err
		}
		for _, lock := range matchLocks {
			copied := models.MatchLock{
				VersionID: clone.ID,
				MatchID:   matchIDs[lock.MatchID],
				SlotID:    slotIDs[lock.SlotID],
			}
			if err := s.lockRepo.CreateMatchLock(ctx, tx, &copied); err != nil {
				return err
			}
		}

		slotLocks, err := s.lockRepo.ListSlotLocksByVersion(ctx, tx, sourceVersionID)
		if err != nil {
			return err
		}
		for _, lock := range slotLocks {
			copied := models.SlotLock{
				VersionID: clone.ID,
				SlotID:    slotIDs[lock.SlotID],
				Reason:    lock.Reason,
			}
			if err := s.lockRepo.CreateSlotLock(ctx, tx, &copied); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "schedule version cloned",
		slog.Int("source_version_id", sourceVersionID),
		slog.Int("clone_version_id", clone.ID))
	return clone, nil
}

func (s *versionService) Finalize(ctx context.Context, id int) (*models.ScheduleVersion, error) {
	unlock := s.versionLocks.Lock(id)
	defer unlock()

	var version *models.ScheduleVersion
	err := execTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
		v, err := s.versionRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, repositories.ErrScheduleVersionNotFound) {
				return ErrVersionNotFound
			}
			return err
		}
		if v.IsFinal() {
			return ErrVersionFinalized
		}
		if err := s.versionRepo.UpdateStatus(ctx, tx, id, models.VersionStatusFinal); err != nil {
			return err
		}
		v.Status = models.VersionStatusFinal
		version = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	publish(s.publisher, id, EventVersionFinalized, version)
	s.logger.InfoContext(ctx, "schedule version finalized", slog.Int("version_id", id))
	return version, nil
}

// RebuildSlots reconciles the stored slot grid against inputs. Slots whose
// natural key survives are updated in place so assignments and locks keep
// pointing at them. Removed slots cascade their assignments and locks away.
func (s *versionService) RebuildSlots(ctx context.Context, versionID int, inputs []SlotInput) (*SlotRebuildResult, error) {
	if err := validateSlotInputs(inputs); err != nil {
		return nil, err
	}

	sorted := make([]SlotInput, len(inputs))
	copy(sorted, inputs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Day != sorted[j].Day {
			return sorted[i].Day < sorted[j].Day
		}
		if !sorted[i].StartTime.Equal(sorted[j].StartTime) {
			return sorted[i].StartTime.Before(sorted[j].StartTime)
		}
		return sorted[i].Court < sorted[j].Court
	})

	unlock := s.versionLocks.Lock(versionID)
	defer unlock()

	result := &SlotRebuildResult{}
	err := execTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
		if err := requireDraftVersion(ctx, tx, s.versionRepo, versionID); err != nil {
			return err
		}

		existing, err := s.slotRepo.ListByVersion(ctx, tx, versionID)
		if err != nil {
			return err
		}
		byKey := make(map[models.SlotKey]models.Slot, len(existing))
		for _, slot := range existing {
			byKey[slot.Key()] = slot
		}

		seen := make(map[models.SlotKey]bool, len(sorted))
		for _, input := range sorted {
			active := true
			if input.Active != nil {
				active = *input.Active
			}
			incoming := models.Slot{
				VersionID:    versionID,
				Day:          input.Day,
				Court:        input.Court,
				CourtLabel:   input.CourtLabel,
				StartTime:    input.StartTime.UTC(),
				EndTime:      input.StartTime.UTC().Add(time.Duration(input.DurationMins) * time.Minute),
				DurationMins: input.DurationMins,
				Active:       active,
			}
			key := incoming.Key()
			seen[key] = true

			if current, ok := byKey[key]; ok {
				incoming.ID = current.ID
				if slotNeedsUpdate(current, incoming) {
					if err := s.slotRepo.Update(ctx, tx, &incoming); err != nil {
						return err
					}
					result.Updated++
				}
				continue
			}
			if err := s.slotRepo.Create(ctx, tx, &incoming); err != nil {
				return err
			}
			result.Created++
		}

		for _, slot := range existing {
			if seen[slot.Key()] {
				continue
			}
			if err := s.slotRepo.Delete(ctx, tx, slot.ID); err != nil {
				return err
			}
			result.Deleted++
		}

		result.Slots, err = s.slotRepo.ListByVersion(ctx, tx, versionID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "slot grid rebuilt",
		slog.Int("version_id", versionID),
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("deleted", result.Deleted))
	return result, nil
}

// ImportMatches reconciles the match list the same way RebuildSlots does,
// keyed by (event, stage, round, sequence). Surviving matches keep their
// status and assignment.
func (s *versionService) ImportMatches(ctx context.Context, versionID int, inputs []MatchInput) (*MatchImportResult, error) {
	if err := validateMatchInputs(inputs); err != nil {
		return nil, err
	}

	sorted := make([]MatchInput, len(inputs))
	copy(sorted, inputs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].EventID != sorted[j].EventID {
			return sorted[i].EventID < sorted[j].EventID
		}
		if sorted[i].Stage.Precedence() != sorted[j].Stage.Precedence() {
			return sorted[i].Stage.Precedence() < sorted[j].Stage.Precedence()
		}
		if sorted[i].Round != sorted[j].Round {
			return sorted[i].Round < sorted[j].Round
		}
		return sorted[i].Sequence < sorted[j].Sequence
	})

	unlock := s.versionLocks.Lock(versionID)
	defer unlock()

	result := &MatchImportResult{}
	err := execTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
		if err := requireDraftVersion(ctx, tx, s.versionRepo, versionID); err != nil {
			return err
		}

		existing, err := s.matchRepo.ListByVersion(ctx, tx, versionID)
		if err != nil {
			return err
		}
		byKey := make(map[models.MatchKey]models.Match, len(existing))
		for _, match := range existing {
			byKey[match.Key()] = match
		}

		seen := make(map[models.MatchKey]bool, len(sorted))
		for _, input := range sorted {
			incoming := models.Match{
				VersionID:    versionID,
				EventID:      input.EventID,
				Stage:        input.Stage,
				Round:        input.Round,
				Sequence:     input.Sequence,
				DurationMins: input.DurationMins,
				TeamAID:      input.TeamAID,
				PlaceholderA: input.PlaceholderA,
				TeamBID:      input.TeamBID,
				PlaceholderB: input.PlaceholderB,
				Status:       models.MatchStatusPending,
			}
			key := incoming.Key()
			seen[key] = true

			if current, ok := byKey[key]; ok {
				incoming.ID = current.ID
				incoming.Status = current.Status
				if matchNeedsUpdate(current, incoming) {
					if err := s.matchRepo.Update(ctx, tx, &incoming); err != nil {
						return err
					}
					result.Updated++
				}
				continue
			}
			if err := s.matchRepo.Create(ctx, tx, &incoming); err != nil {
				return err
			}
			result.Created++
		}

		for _, match := range existing {
			if seen[match.Key()] {
				continue
			}
			if err := s.matchRepo.Delete(ctx, tx, match.ID); err != nil {
				return err
			}
			result.Deleted++
		}

		result.Matches, err = s.matchRepo.ListByVersion(ctx, tx, versionID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "matches imported",
		slog.Int("version_id", versionID),
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("deleted", result.Deleted))
	return result, nil
}

func validateSlotInputs(inputs []SlotInput) error {
	keys := make(map[models.SlotKey]bool, len(inputs))
	for i, input := range inputs {
		if input.Day < 1 {
			return fmt.Errorf("%w: slot %d: day must be >= 1", ErrValidationFailed, i)
		}
		if input.Court < 1 {
			return fmt.Errorf("%w: slot %d: court must be >= 1", ErrValidationFailed, i)
		}
		if input.StartTime.IsZero() {
			return fmt.Errorf("%w: slot %d: start time is required", ErrValidationFailed, i)
		}
		if input.DurationMins < 1 {
			return fmt.Errorf("%w: slot %d: duration must be >= 1 minute", ErrValidationFailed, i)
		}
		key := models.SlotKey{Day: input.Day, Court: input.Court, StartUnix: input.StartTime.UTC().Unix()}
		if keys[key] {
			return fmt.Errorf("%w: slot %d: duplicate day/court/start combination", ErrValidationFailed, i)
		}
		keys[key] = true
	}
	return nil
}

func validateMatchInputs(inputs []MatchInput) error {
	keys := make(map[models.MatchKey]bool, len(inputs))
	for i, input := range inputs {
		if input.EventID < 1 {
			return fmt.Errorf("%w: match %d: event id must be >= 1", ErrValidationFailed, i)
		}
		if !input.Stage.Known() {
			return fmt.Errorf("%w: match %d: unknown stage %q", ErrValidationFailed, i, input.Stage)
		}
		if input.Round < 1 {
			return fmt.Errorf("%w: match %d: round must be >= 1", ErrValidationFailed, i)
		}
		if input.Sequence < 1 {
			return fmt.Errorf("%w: match %d: sequence must be >= 1", ErrValidationFailed, i)
		}
		if input.DurationMins < 1 {
			return fmt.Errorf("%w: match %d: duration must be >= 1 minute", ErrValidationFailed, i)
		}
		if input.TeamAID != nil && input.PlaceholderA != nil {
			return fmt.Errorf("%w: match %d: side A has both team and placeholder", ErrValidationFailed, i)
		}
		if input.TeamBID != nil && input.PlaceholderB != nil {
			return fmt.Errorf("%w: match %d: side B has both team and placeholder", ErrValidationFailed, i)
		}
		key := models.MatchKey{EventID: input.EventID, Stage: input.Stage, Round: input.Round, Sequence: input.Sequence}
		if keys[key] {
			return fmt.Errorf("%w: match %d: duplicate event/stage/round/sequence combination", ErrValidationFailed, i)
		}
		keys[key] = true
	}
	return nil
}

func slotNeedsUpdate(current, incoming models.Slot) bool {
	return current.CourtLabel != incoming.CourtLabel ||
		!current.EndTime.Equal(incoming.EndTime) ||
		current.DurationMins != incoming.DurationMins ||
		current.Active != incoming.Active
}

func matchNeedsUpdate(current, incoming models.Match) bool {
	return current.DurationMins != incoming.DurationMins ||
		!intPtrEqual(current.TeamAID, incoming.TeamAID) ||
		!strPtrEqual(current.PlaceholderA, incoming.PlaceholderA) ||
		!intPtrEqual(current.TeamBID, incoming.TeamBID) ||
		!strPtrEqual(current.PlaceholderB, incoming.PlaceholderB)
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
