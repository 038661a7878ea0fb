package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/courtside/schedule-engine/models"
)

var (
	ErrMatchLockNotFound  = errors.New("match lock not found")
	ErrMatchAlreadyPinned = errors.New("match is already pinned")
	ErrSlotLockNotFound   = errors.New("slot lock not found")
	ErrSlotAlreadyBlocked = errors.New("slot is already blocked")
	ErrLockTargetInvalid  = errors.New("lock references unknown match or slot")
)

// LockRepository persists both lock kinds: match pins (match must land on a
// given slot) and slot blocks (slot is unavailable).
type LockRepository interface {
	CreateMatchLock(ctx context.Context, exec SQLExecutor, lock *models.MatchLock) error
	DeleteMatchLock(ctx context.Context, exec SQLExecutor, versionID, matchID int) error
	ListMatchLocksByVersion(ctx context.Context, exec SQLExecutor, versionID int) ([]models.MatchLock, error)
	CreateSlotLock(ctx context.Context, exec SQLExecutor, lock *models.SlotLock) error
	DeleteSlotLock(ctx context.Context, exec SQLExecutor, versionID, slotID int) error
	ListSlotLocksByVersion(ctx context.Context, exec SQLExecutor, versionID int) ([]models.SlotLock, error)
}

type postgresLockRepository struct {
	db *sql.DB
}

func NewPostgresLockRepository(db *sql.DB) LockRepository {
	return &postgresLockRepository{db: db}
}

func (r *postgresLockRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresLockRepository) CreateMatchLock(ctx context.Context, exec SQLExecutor, lock *models.MatchLock) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO match_locks (version_id, match_id, slot_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		lock.VersionID,
		lock.MatchID,
		lock.SlotID,
	).Scan(&lock.ID, &lock.CreatedAt)
	if err != nil {
		return handleLockError(err, ErrMatchAlreadyPinned)
	}
	return nil
}

func (r *postgresLockRepository) DeleteMatchLock(ctx context.Context, exec SQLExecutor, versionID, matchID int) error {
	executor := r.getExecutor(exec)
	query := `DELETE FROM match_locks WHERE version_id = $1 AND match_id = $2`

	result, err := executor.ExecContext(ctx, query, versionID, matchID)
	if err != nil {
		return fmt.Errorf("failed to delete match lock for match %d: %w", matchID, err)
	}
	return checkAffectedRows(result, ErrMatchLockNotFound)
}

func (r *postgresLockRepository) ListMatchLocksByVersion(ctx context.Context, exec SQLExecutor, versionID int) ([]models.MatchLock, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, version_id, match_id, slot_id, created_at
		FROM match_locks
		WHERE version_id = $1
		ORDER BY match_id ASC, id ASC`

	rows, err := executor.QueryContext(ctx, query, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list match locks for version %d: %w", versionID, err)
	}
	defer rows.Close()

	locks := []models.MatchLock{}
	for rows.Next() {
		var lock models.MatchLock
		err := rows.Scan(&lock.ID, &lock.VersionID, &lock.MatchID, &lock.SlotID, &lock.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match lock row: %w", err)
		}
		locks = append(locks, lock)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating match lock rows: %w", err)
	}
	return locks, nil
}

func (r *postgresLockRepository) CreateSlotLock(ctx context.Context, exec SQLExecutor, lock *models.SlotLock) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO slot_locks (version_id, slot_id, reason)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		lock.VersionID,
		lock.SlotID,
		lock.Reason,
	).Scan(&lock.ID, &lock.CreatedAt)
	if err != nil {
		return handleLockError(err, ErrSlotAlreadyBlocked)
	}
	return nil
}

func (r *postgresLockRepository) DeleteSlotLock(ctx context.Context, exec SQLExecutor, versionID, slotID int) error {
	executor := r.getExecutor(exec)
	query := `DELETE FROM slot_locks WHERE version_id = $1 AND slot_id = $2`

	result, err := executor.ExecContext(ctx, query, versionID, slotID)
	if err != nil {
		return fmt.Errorf("failed to delete slot lock for slot %d: %w", slotID, err)
	}
	return checkAffectedRows(result, ErrSlotLockNotFound)
}

func (r *postgresLockRepository) ListSlotLocksByVersion(ctx context.Context, exec SQLExecutor, versionID int) ([]models.SlotLock, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, version_id, slot_id, reason, created_at
		FROM slot_locks
		WHERE version_id = $1
		ORDER BY slot_id ASC, id ASC`

	rows, err := executor.QueryContext(ctx, query, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list slot locks for version %d: %w", versionID, err)
	}
	defer rows.Close()

	locks := []models.SlotLock{}
	for rows.Next() {
		var lock models.SlotLock
		err := rows.Scan(&lock.ID, &lock.VersionID, &lock.SlotID, &lock.Reason, &lock.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan slot lock row: %w", err)
		}
		locks = append(locks, lock)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating slot lock rows: %w", err)
	}
	return locks, nil
}

func handleLockError(err error, duplicateErr error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return duplicateErr
		case "23503":
			return ErrLockTargetInvalid
		}
	}
	return fmt.Errorf("database error on lock: %w", err)
}
