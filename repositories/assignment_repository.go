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
	ErrAssignmentNotFound   = errors.New("assignment not found")
	ErrSlotAlreadyOccupied  = errors.New("slot already holds an assignment")
	ErrMatchAlreadyAssigned = errors.New("match already holds an assignment")
	ErrAssignmentRefInvalid = errors.New("assignment references unknown match or slot")
)

type AssignmentRepository interface {
	Create(ctx context.Context, exec SQLExecutor, assignment *models.Assignment) error
	GetByMatch(ctx context.Context, exec SQLExecutor, versionID, matchID int) (*models.Assignment, error)
	GetBySlot(ctx context.Context, exec SQLExecutor, versionID, slotID int) (*models.Assignment, error)
	ListByVersion(ctx context.Context, exec SQLExecutor, versionID int) ([]models.Assignment, error)
	Update(ctx context.Context, exec SQLExecutor, assignment *models.Assignment) error
	DeleteByMatch(ctx context.Context, exec SQLExecutor, versionID, matchID int) error
}

type postgresAssignmentRepository struct {
	db *sql.DB
}

func NewPostgresAssignmentRepository(db *sql.DB) AssignmentRepository {
	return &postgresAssignmentRepository{db: db}
}

func (r *postgresAssignmentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresAssignmentRepository) Create(ctx context.Context, exec SQLExecutor, assignment *models.Assignment) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO assignments (version_id, match_id, slot_id, locked, assigned_by, assigned_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err := executor.QueryRowContext(ctx, query,
		assignment.VersionID,
		assignment.MatchID,
		assignment.SlotID,
		assignment.Locked,
		assignment.AssignedBy,
		assignment.AssignedAt,
	).Scan(&assignment.ID)
	if err != nil {
		return handleAssignmentError(err)
	}
	return nil
}

func (r *postgresAssignmentRepository) GetByMatch(ctx context.Context, exec SQLExecutor, versionID, matchID int) (*models.Assignment, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, version_id, match_id, slot_id, locked, assigned_by, assigned_at
		FROM assignments
		WHERE version_id = $1 AND match_id = $2`

	return r.scanOne(executor.QueryRowContext(ctx, query, versionID, matchID))
}

func (r *postgresAssignmentRepository) GetBySlot(ctx context.Context, exec SQLExecutor, versionID, slotID int) (*models.Assignment, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, version_id, match_id, slot_id, locked, assigned_by, assigned_at
		FROM assignments
		WHERE version_id = $1 AND slot_id = $2`

	return r.scanOne(executor.QueryRowContext(ctx, query, versionID, slotID))
}

func (r *postgresAssignmentRepository) scanOne(row *sql.Row) (*models.Assignment, error) {
	assignment := &models.Assignment{}
	err := row.Scan(
		&assignment.ID,
		&assignment.VersionID,
		&assignment.MatchID,
		&assignment.SlotID,
		&assignment.Locked,
		&assignment.AssignedBy,
		&assignment.AssignedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return assignment, nil
}

func (r *postgresAssignmentRepository) ListByVersion(ctx context.Context, exec SQLExecutor, versionID int) ([]models.Assignment, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, version_id, match_id, slot_id, locked, assigned_by, assigned_at
		FROM assignments
		WHERE version_id = $1
		ORDER BY match_id ASC, id ASC`

	rows, err := executor.QueryContext(ctx, query, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments for version %d: %w", versionID, err)
	}
	defer rows.Close()

	assignments := []models.Assignment{}
	for rows.Next() {
		var assignment models.Assignment
		err := rows.Scan(
			&assignment.ID,
			&assignment.VersionID,
			&assignment.MatchID,
			&assignment.SlotID,
			&assignment.Locked,
			&assignment.AssignedBy,
			&assignment.AssignedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment row: %w", err)
		}
		assignments = append(assignments, assignment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assignment rows: %w", err)
	}
	return assignments, nil
}

func (r *postgresAssignmentRepository) Update(ctx context.Context, exec SQLExecutor, assignment *models.Assignment) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE assignments
		SET slot_id = $1, locked = $2, assigned_by = $3, assigned_at = $4
		WHERE id = $5`

	result, err := executor.ExecContext(ctx, query,
		assignment.SlotID,
		assignment.Locked,
		assignment.AssignedBy,
		assignment.AssignedAt,
		assignment.ID,
	)
	if err != nil {
		return handleAssignmentError(err)
	}
	return checkAffectedRows(result, ErrAssignmentNotFound)
}

func (r *postgresAssignmentRepository) DeleteByMatch(ctx context.Context, exec SQLExecutor, versionID, matchID int) error {
	executor := r.getExecutor(exec)
	query := `DELETE FROM assignments WHERE version_id = $1 AND match_id = $2`

	result, err := executor.ExecContext(ctx, query, versionID, matchID)
	if err != nil {
		return fmt.Errorf("failed to delete assignment for match %d: %w", matchID, err)
	}
	return checkAffectedRows(result, ErrAssignmentNotFound)
}

func handleAssignmentError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			switch pqErr.Constraint {
			case "assignments_version_id_slot_id_key":
				return ErrSlotAlreadyOccupied
			case "assignments_version_id_match_id_key":
				return ErrMatchAlreadyAssigned
			}
		case "23503":
			return ErrAssignmentRefInvalid
		}
	}
	return fmt.Errorf("database error on assignment: %w", err)
}
