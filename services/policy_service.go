package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/courtside/schedule-engine/models"
	"github.com/courtside/schedule-engine/repositories"
	"github.com/courtside/schedule-engine/scheduling"
)

// RunArchiver pushes a committed run snapshot to long-term object storage.
// Archiving is best-effort: the database row is the source of truth and a
// failed upload never fails the run. A nil archiver disables uploads.
type RunArchiver interface {
	ArchiveRun(ctx context.Context, run *models.PolicyRunSnapshot) (string, error)
}

// PolicyRunResult pairs the persisted snapshot with the plan it recorded.
type PolicyRunResult struct {
	Run  *models.PolicyRunSnapshot `json:"run"`
	Plan *scheduling.DayPlan       `json:"plan"`
}

// ReplayResult reports whether re-running the engine on a snapshot's
// archived input reproduces the recorded digests bit for bit.
type ReplayResult struct {
	RunID              string `json:"run_id"`
	Deterministic      bool   `json:"deterministic"`
	InputHashMatch     bool   `json:"input_hash_match"`
	OutputHashMatch    bool   `json:"output_hash_match"`
	StoredInputHash    string `json:"stored_input_hash"`
	StoredOutputHash   string `json:"stored_output_hash"`
	ComputedInputHash  string `json:"computed_input_hash"`
	ComputedOutputHash string `json:"computed_output_hash"`
}

// PlacementDelta describes one match whose planned slot differs between two
// runs. SlotA or SlotB is nil when that run left the match unplaced.
type PlacementDelta struct {
	MatchID int  `json:"match_id"`
	SlotA   *int `json:"slot_a,omitempty"`
	SlotB   *int `json:"slot_b,omitempty"`
}

// RunDiff compares two snapshots of the same schedule version. Plans are
// recomputed from each snapshot's archived input, so the diff reflects what
// the engine decided, not what later mutations did to the live tables.
type RunDiff struct {
	RunA       string           `json:"run_a"`
	RunB       string           `json:"run_b"`
	VersionID  int              `json:"version_id"`
	DayA       int              `json:"day_a"`
	DayB       int              `json:"day_b"`
	SameInput  bool             `json:"same_input"`
	SameOutput bool             `json:"same_output"`
	Added      []PlacementDelta `json:"added"`
	Removed    []PlacementDelta `json:"removed"`
	Moved      []PlacementDelta `json:"moved"`
}

type PolicyService interface {
	PreviewDay(ctx context.Context, versionID, day int, cfg *scheduling.PolicyConfig) (*scheduling.DayPlan, error)
	PreviewAllDays(ctx context.Context, versionID int, cfg *scheduling.PolicyConfig) ([]*scheduling.DayPlan, error)
	RunDay(ctx context.Context, versionID, day int, cfg *scheduling.PolicyConfig) (*PolicyRunResult, error)
	RunAllDays(ctx context.Context, versionID int, cfg *scheduling.PolicyConfig) ([]*PolicyRunResult, error)
	GetRun(ctx context.Context, runID string) (*models.PolicyRunSnapshot, error)
	ListRuns(ctx context.Context, versionID int) ([]models.PolicyRunSnapshot, error)
	Replay(ctx context.Context, runID string) (*ReplayResult, error)
	Diff(ctx context.Context, runIDA, runIDB string) (*RunDiff, error)
}

type policyService struct {
	db             *sql.DB
	versionRepo    repositories.ScheduleVersionRepository
	slotRepo       repositories.SlotRepository
	matchRepo      repositories.MatchRepository
	assignmentRepo repositories.AssignmentRepository
	lockRepo       repositories.LockRepository
	policyRunRepo  repositories.PolicyRunRepository
	versionLocks   *VersionLocks
	signingKey     []byte
	archiver       RunArchiver
	publisher      EventPublisher
	logger         *slog.Logger
}

func NewPolicyService(
	db *sql.DB,
	versionRepo repositories.ScheduleVersionRepository,
	slotRepo repositories.SlotRepository,
	matchRepo repositories.MatchRepository,
	assignmentRepo repositories.AssignmentRepository,
	lockRepo repositories.LockRepository,
	policyRunRepo repositories.PolicyRunRepository,
	versionLocks *VersionLocks,
	signingKey []byte,
	archiver RunArchiver,
	publisher EventPublisher,
	logger *slog.Logger,
) PolicyService {
	return &policyService{
		db:             db,
		versionRepo:    versionRepo,
		slotRepo:       slotRepo,
		matchRepo:      matchRepo,
		assignmentRepo: assignmentRepo,
		lockRepo:       lockRepo,
		policyRunRepo:  policyRunRepo,
		versionLocks:   versionLocks,
		signingKey:     signingKey,
		archiver:       archiver,
		publisher:      publisher,
		logger:         logger,
	}
}

// PreviewDay computes the plan for one day without writing anything.
func (s *policyService) PreviewDay(ctx context.Context, versionID, day int, cfg *scheduling.PolicyConfig) (*scheduling.DayPlan, error) {
	effective := effectiveConfig(cfg)

	var plan *scheduling.DayPlan
	err := readTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := s.versionRepo.GetByID(ctx, tx, versionID); err != nil {
			if errors.Is(err, repositories.ErrScheduleVersionNotFound) {
				return ErrVersionNotFound
			}
			return err
		}
		state, err := loadScheduleState(ctx, tx, versionID, s.slotRepo, s.matchRepo, s.assignmentRepo, s.lockRepo)
		if err != nil {
			return err
		}
		plan, err = scheduling.PlanDay(state, day, effective)
		if errors.Is(err, scheduling.ErrDayHasNoSlots) {
			return fmt.Errorf("%w: day %d", ErrNoSlotsDefined, day)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// PreviewAllDays plans every day of the version over a single consistent
// snapshot. Each preview is independent: day N is planned as if days
// 1..N-1 had not run, which is what the plan board shows side by side.
func (s *policyService) PreviewAllDays(ctx context.Context, versionID int, cfg *scheduling.PolicyConfig) ([]*scheduling.DayPlan, error) {
	effective := effectiveConfig(cfg)

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

	days := state.Days()
	if len(days) == 0 {
		return nil, ErrNoSlotsDefined
	}

	// PlanDay is pure over the shared state, so the days fan out.
	plans := make([]*scheduling.DayPlan, len(days))
	var g errgroup.Group
	for i, day := range days {
		g.Go(func() error {
			plan, err := scheduling.PlanDay(state, day, effective)
			if err != nil {
				return fmt.Errorf("plan day %d: %w", day, err)
			}
			plans[i] = plan
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return plans, nil
}

// RunDay executes the placement policy for one day, persists the resulting
// assignments and an immutable signed snapshot in one transaction, then
// archives the snapshot and notifies subscribers.
func (s *policyService) RunDay(ctx context.Context, versionID, day int, cfg *scheduling.PolicyConfig) (*PolicyRunResult, error) {
	unlock := s.versionLocks.Lock(versionID)
	defer unlock()

	result, err := s.runDayLocked(ctx, versionID, day, effectiveConfig(cfg))
	if err != nil {
		return nil, err
	}
	s.afterRun(ctx, result)
	return result, nil
}

// RunAllDays runs the policy for every day of the version in ascending
// order, each day in its own transaction over the state the previous days
// produced. On failure the already-committed runs are returned alongside
// the error so callers can tell how far the chain got.
func (s *policyService) RunAllDays(ctx context.Context, versionID int, cfg *scheduling.PolicyConfig) ([]*PolicyRunResult, error) {
	effective := effectiveConfig(cfg)

	unlock := s.versionLocks.Lock(versionID)
	defer unlock()

	var days []int
	err := readTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := s.versionRepo.GetByID(ctx, tx, versionID); err != nil {
			if errors.Is(err, repositories.ErrScheduleVersionNotFound) {
				return ErrVersionNotFound
			}
			return err
		}
		slots, err := s.slotRepo.ListByVersion(ctx, tx, versionID)
		if err != nil {
			return err
		}
		seen := make(map[int]bool)
		for _, slot := range slots {
			if !seen[slot.Day] {
				seen[slot.Day] = true
				days = append(days, slot.Day)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(days) == 0 {
		return nil, ErrNoSlotsDefined
	}
	sort.Ints(days)

	results := make([]*PolicyRunResult, 0, len(days))
	for _, day := range days {
		result, err := s.runDayLocked(ctx, versionID, day, effective)
		if err != nil {
			return results, fmt.Errorf("run day %d: %w", day, err)
		}
		s.afterRun(ctx, result)
		results = append(results, result)
	}
	return results, nil
}

// runDayLocked plans one day and persists placements plus the snapshot in a
// single transaction. Callers hold the version mutex.
func (s *policyService) runDayLocked(ctx context.Context, versionID, day int, cfg scheduling.PolicyConfig) (*PolicyRunResult, error) {
	result := &PolicyRunResult{}
	err := execTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
		if err := requireDraftVersion(ctx, tx, s.versionRepo, versionID); err != nil {
			return err
		}
		state, err := loadScheduleState(ctx, tx, versionID, s.slotRepo, s.matchRepo, s.assignmentRepo, s.lockRepo)
		if err != nil {
			return err
		}

		// Captured before placements mutate the state: these are the exact
		// bytes the plan hashes over and the bytes replay will decode.
		inputState, err := scheduling.EncodeRunInput(state, day, cfg)
		if err != nil {
			return err
		}
		plan, err := scheduling.PlanDay(state, day, cfg)
		if err != nil {
			if errors.Is(err, scheduling.ErrDayHasNoSlots) {
				return fmt.Errorf("%w: day %d", ErrNoSlotsDefined, day)
			}
			return err
		}
		if err := applyPlacements(ctx, tx, state, plan.Placements, s.assignmentRepo, s.matchRepo); err != nil {
			return err
		}

		run, err := s.buildSnapshot(versionID, day, cfg, inputState, plan)
		if err != nil {
			return err
		}
		if err := s.policyRunRepo.Create(ctx, tx, run); err != nil {
			return err
		}

		result.Run = run
		result.Plan = plan
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// buildSnapshot assembles the audit row for a completed plan and signs the
// receipt binding the run ID to its digests.
func (s *policyService) buildSnapshot(versionID, day int, cfg scheduling.PolicyConfig, inputState []byte, plan *scheduling.DayPlan) (*models.PolicyRunSnapshot, error) {
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode run config: %w", err)
	}
	batchesJSON, err := json.Marshal(plan.Batches)
	if err != nil {
		return nil, fmt.Errorf("encode batch results: %w", err)
	}
	violationsJSON, err := json.Marshal(plan.Invariants.Violations)
	if err != nil {
		return nil, fmt.Errorf("encode violations: %w", err)
	}
	sparesJSON, err := json.Marshal(plan.SpareSlotIDs)
	if err != nil {
		return nil, fmt.Errorf("encode spare slot ids: %w", err)
	}

	run := &models.PolicyRunSnapshot{
		ID:            uuid.NewString(),
		VersionID:     versionID,
		Day:           day,
		PolicyVersion: cfg.PolicyVersion,
		Config:        configJSON,
		InputState:    inputState,
		InputHash:     plan.InputHash,
		OutputHash:    plan.OutputHash,
		AssignedCount: len(plan.Placements),
		FailedCount:   len(plan.Failed),
		InvariantOK:   plan.Invariants.OK,
		BatchResults:  batchesJSON,
		Violations:    violationsJSON,
		SpareSlotIDs:  sparesJSON,
	}
	signature, err := signRunReceipt(s.signingKey, run)
	if err != nil {
		return nil, fmt.Errorf("sign run receipt: %w", err)
	}
	run.Signature = signature
	return run, nil
}

// afterRun handles the post-commit side effects of a persisted run. Both
// are best-effort and never fail the request.
func (s *policyService) afterRun(ctx context.Context, result *PolicyRunResult) {
	run := result.Run
	if s.archiver != nil {
		if key, err := s.archiver.ArchiveRun(ctx, run); err != nil {
			s.logger.ErrorContext(ctx, "failed to archive policy run",
				slog.String("run_id", run.ID),
				slog.Any("error", err))
		} else {
			s.logger.InfoContext(ctx, "policy run archived",
				slog.String("run_id", run.ID),
				slog.String("object_key", key))
		}
	}
	publish(s.publisher, run.VersionID, EventPolicyRunCompleted, map[string]interface{}{
		"run_id":       run.ID,
		"day":          run.Day,
		"assigned":     run.AssignedCount,
		"failed":       run.FailedCount,
		"invariant_ok": run.InvariantOK,
	})
	s.logger.InfoContext(ctx, "policy run completed",
		slog.String("run_id", run.ID),
		slog.Int("version_id", run.VersionID),
		slog.Int("day", run.Day),
		slog.Int("assigned", run.AssignedCount),
		slog.Int("failed", run.FailedCount),
		slog.Bool("invariant_ok", run.InvariantOK))
}

func (s *policyService) GetRun(ctx context.Context, runID string) (*models.PolicyRunSnapshot, error) {
	run, err := s.policyRunRepo.GetByID(ctx, nil, runID)
	if err != nil {
		if errors.Is(err, repositories.ErrPolicyRunNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return run, nil
}

func (s *policyService) ListRuns(ctx context.Context, versionID int) ([]models.PolicyRunSnapshot, error) {
	if _, err := s.versionRepo.GetByID(ctx, nil, versionID); err != nil {
		if errors.Is(err, repositories.ErrScheduleVersionNotFound) {
			return nil, ErrVersionNotFound
		}
		return nil, err
	}
	return s.policyRunRepo.ListByVersion(ctx, nil, versionID)
}

// Replay verifies the snapshot's receipt, re-runs the engine on the
// archived input bytes, and compares the recomputed digests against the
// stored ones. A mismatch is a finding, not an error.
func (s *policyService) Replay(ctx context.Context, runID string) (*ReplayResult, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if err := verifyRunReceipt(s.signingKey, run); err != nil {
		return nil, err
	}

	input, err := scheduling.DecodeRunInput(run.InputState)
	if err != nil {
		return nil, err
	}
	plan, err := scheduling.PlanDay(input.State, input.Day, input.Config)
	if err != nil {
		return nil, fmt.Errorf("replay run %s: %w", runID, err)
	}

	result := &ReplayResult{
		RunID:              run.ID,
		InputHashMatch:     plan.InputHash == run.InputHash,
		OutputHashMatch:    plan.OutputHash == run.OutputHash,
		StoredInputHash:    run.InputHash,
		StoredOutputHash:   run.OutputHash,
		ComputedInputHash:  plan.InputHash,
		ComputedOutputHash: plan.OutputHash,
	}
	result.Deterministic = result.InputHashMatch && result.OutputHashMatch
	if !result.Deterministic {
		s.logger.ErrorContext(ctx, "policy run replay diverged",
			slog.String("run_id", run.ID),
			slog.Bool("input_hash_match", result.InputHashMatch),
			slog.Bool("output_hash_match", result.OutputHashMatch))
	}
	return result, nil
}

// Diff recomputes the plans of two runs of the same version from their
// archived inputs and reports how their placements differ.
func (s *policyService) Diff(ctx context.Context, runIDA, runIDB string) (*RunDiff, error) {
	var runA, runB *models.PolicyRunSnapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		runA, err = s.GetRun(gctx, runIDA)
		return err
	})
	g.Go(func() error {
		var err error
		runB, err = s.GetRun(gctx, runIDB)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if runA.VersionID != runB.VersionID {
		return nil, ErrRunVersionMismatch
	}

	planA, err := s.replan(runA)
	if err != nil {
		return nil, err
	}
	planB, err := s.replan(runB)
	if err != nil {
		return nil, err
	}

	diff := &RunDiff{
		RunA:       runA.ID,
		RunB:       runB.ID,
		VersionID:  runA.VersionID,
		DayA:       runA.Day,
		DayB:       runB.Day,
		SameInput:  runA.InputHash == runB.InputHash,
		SameOutput: runA.OutputHash == runB.OutputHash,
		Added:      []PlacementDelta{},
		Removed:    []PlacementDelta{},
		Moved:      []PlacementDelta{},
	}

	slotsA := placementSlots(planA)
	slotsB := placementSlots(planB)
	for matchID, slotA := range slotsA {
		slotB, ok := slotsB[matchID]
		switch {
		case !ok:
			a := slotA
			diff.Removed = append(diff.Removed, PlacementDelta{MatchID: matchID, SlotA: &a})
		case slotA != slotB:
			a, b := slotA, slotB
			diff.Moved = append(diff.Moved, PlacementDelta{MatchID: matchID, SlotA: &a, SlotB: &b})
		}
	}
	for matchID, slotB := range slotsB {
		if _, ok := slotsA[matchID]; !ok {
			b := slotB
			diff.Added = append(diff.Added, PlacementDelta{MatchID: matchID, SlotB: &b})
		}
	}
	sortDeltas(diff.Added)
	sortDeltas(diff.Removed)
	sortDeltas(diff.Moved)
	return diff, nil
}

// replan re-runs the engine on a snapshot's archived input document.
func (s *policyService) replan(run *models.PolicyRunSnapshot) (*scheduling.DayPlan, error) {
	input, err := scheduling.DecodeRunInput(run.InputState)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", run.ID, err)
	}
	plan, err := scheduling.PlanDay(input.State, input.Day, input.Config)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", run.ID, err)
	}
	return plan, nil
}

func placementSlots(plan *scheduling.DayPlan) map[int]int {
	slots := make(map[int]int, len(plan.Placements))
	for _, p := range plan.Placements {
		slots[p.MatchID] = p.SlotID
	}
	return slots
}

func sortDeltas(deltas []PlacementDelta) {
	sort.Slice(deltas, func(i, j int) bool {
		return deltas[i].MatchID < deltas[j].MatchID
	})
}

func effectiveConfig(cfg *scheduling.PolicyConfig) scheduling.PolicyConfig {
	if cfg == nil {
		return scheduling.DefaultPolicyConfig()
	}
	return *cfg
}

// signRunReceipt issues the snapshot's tamper-evidence token. The claims
// bind the run ID to its version, day and both digests, so neither the
// archived input nor the recorded outcome can be swapped without
// invalidating the signature.
func signRunReceipt(key []byte, run *models.PolicyRunSnapshot) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"run_id":         run.ID,
		"version_id":     run.VersionID,
		"day":            run.Day,
		"input_hash":     run.InputHash,
		"output_hash":    run.OutputHash,
		"policy_version": run.PolicyVersion,
		"iat":            time.Now().Unix(),
	})
	return token.SignedString(key)
}

func verifyRunReceipt(key []byte, run *models.PolicyRunSnapshot) error {
	token, err := jwt.Parse(run.Signature, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil || !token.Valid {
		return ErrRunSignatureInvalid
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ErrRunSignatureInvalid
	}
	// Numeric claims come back as float64 after JSON decoding.
	if claims["run_id"] != run.ID ||
		claims["version_id"] != float64(run.VersionID) ||
		claims["day"] != float64(run.Day) ||
		claims["input_hash"] != run.InputHash ||
		claims["output_hash"] != run.OutputHash {
		return ErrRunSignatureInvalid
	}
	return nil
}
