package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/courtside/schedule-engine/repositories"
	"github.com/courtside/schedule-engine/scheduling"
)

// execTx runs fn inside a read-write transaction, rolling back on error or
// panic and committing otherwise.
func execTx(ctx context.Context, db *sql.DB, logger *slog.Logger, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.ErrorContext(ctx, "transaction rollback failed",
					slog.Any("rollback_error", rbErr),
					slog.Any("cause", err))
			}
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", cErr)
		}
	}()
	err = fn(tx)
	return err
}

// readTx runs fn inside a read-only repeatable-read transaction so every
// query observes the same database snapshot.
func readTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(tx)
}

// loadScheduleState assembles the full scheduling state of a version. Pass
// the surrounding transaction as exec so all reads share one snapshot.
func loadScheduleState(
	ctx context.Context,
	exec repositories.SQLExecutor,
	versionID int,
	slotRepo repositories.SlotRepository,
	matchRepo repositories.MatchRepository,
	assignmentRepo repositories.AssignmentRepository,
	lockRepo repositories.LockRepository,
) (*scheduling.State, error) {
	slots, err := slotRepo.ListByVersion(ctx, exec, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load slots: %w", err)
	}
	matches, err := matchRepo.ListByVersion(ctx, exec, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load matches: %w", err)
	}
	assignments, err := assignmentRepo.ListByVersion(ctx, exec, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignments: %w", err)
	}
	matchLocks, err := lockRepo.ListMatchLocksByVersion(ctx, exec, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load match locks: %w", err)
	}
	slotLocks, err := lockRepo.ListSlotLocksByVersion(ctx, exec, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load slot locks: %w", err)
	}
	return &scheduling.State{
		VersionID:   versionID,
		Slots:       slots,
		Matches:     matches,
		Assignments: assignments,
		MatchLocks:  matchLocks,
		SlotLocks:   slotLocks,
	}, nil
}

// requireDraftVersion row-locks the version and rejects mutations once it
// has been finalized.
func requireDraftVersion(ctx context.Context, tx *sql.Tx, versionRepo repositories.ScheduleVersionRepository, versionID int) error {
	version, err := versionRepo.GetByIDForUpdate(ctx, tx, versionID)
	if err != nil {
		if errors.Is(err, repositories.ErrScheduleVersionNotFound) {
			return ErrVersionNotFound
		}
		return err
	}
	if version.IsFinal() {
		return ErrVersionFinalized
	}
	return nil
}

// EventPublisher is satisfied by the websocket hub. A nil publisher disables
// notifications.
type EventPublisher interface {
	Publish(versionID int, eventType string, payload interface{})
}

// Event types pushed to subscribed schedule boards.
const (
	EventAssignmentChanged   = "ASSIGNMENT_CHANGED"
	EventAutoAssignCompleted = "AUTO_ASSIGN_COMPLETED"
	EventPolicyRunCompleted  = "POLICY_RUN_COMPLETED"
	EventVersionFinalized    = "VERSION_FINALIZED"
)

func publish(p EventPublisher, versionID int, eventType string, payload interface{}) {
	if p == nil {
		return
	}
	p.Publish(versionID, eventType, payload)
}
