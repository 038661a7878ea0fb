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
	ErrSlotNotFound       = errors.New("slot not found")
	ErrSlotAlreadyExists  = errors.New("slot already exists for this day, court and start time")
	ErrSlotVersionInvalid = errors.New("slot references unknown schedule version")
)

type SlotRepository interface {
	Create(ctx context.Context, exec SQLExecutor, slot *models.Slot) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Slot, error)
	ListByVersion(ctx context.Context, exec SQLExecutor, versionID int) ([]models.Slot, error)
	Update(ctx context.Context, exec SQLExecutor, slot *models.Slot) error
	Delete(ctx context.Context, exec SQLExecutor, id int) error
}

type postgresSlotRepository struct {
	db *sql.DB
}

func NewPostgresSlotRepository(db *sql.DB) SlotRepository {
	return &postgresSlotRepository{db: db}
}

func (r *postgresSlotRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresSlotRepository) Create(ctx context.Context, exec SQLExecutor, slot *models.Slot) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO slots (version_id, day, court, court_label, start_time, end_time, duration_mins, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err := executor.QueryRowContext(ctx, query,
		slot.VersionID,
		slot.Day,
		slot.Court,
		slot.CourtLabel,
		slot.StartTime,
		slot.EndTime,
		slot.DurationMins,
		slot.Active,
	).Scan(&slot.ID)
	if err != nil {
		return handleSlotError(err)
	}
	return nil
}

func (r *postgresSlotRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Slot, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, version_id, day, court, court_label, start_time, end_time, duration_mins, active
		FROM slots
		WHERE id = $1`

	slot := &models.Slot{}
	err := executor.QueryRowContext(ctx, query, id).Scan(
		&slot.ID,
		&slot.VersionID,
		&slot.Day,
		&slot.Court,
		&slot.CourtLabel,
		&slot.StartTime,
		&slot.EndTime,
		&slot.DurationMins,
		&slot.Active,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, fmt.Errorf("failed to get slot %d: %w", id, err)
	}
	return slot, nil
}

func (r *postgresSlotRepository) ListByVersion(ctx context.Context, exec SQLExecutor, versionID int) ([]models.Slot, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, version_id, day, court, court_label, start_time, end_time, duration_mins, active
		FROM slots
		WHERE version_id = $1
		ORDER BY day ASC, start_time ASC, court ASC, id ASC`

	rows, err := executor.QueryContext(ctx, query, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots for version %d: %w", versionID, err)
	}
	defer rows.Close()

	slots := []models.Slot{}
	for rows.Next() {
		var slot models.Slot
		err := rows.Scan(
			&slot.ID,
			&slot.VersionID,
			&slot.Day,
			&slot.Court,
			&slot.CourtLabel,
			&slot.StartTime,
			&slot.EndTime,
			&slot.DurationMins,
			&slot.Active,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan slot row: %w", err)
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating slot rows: %w", err)
	}
	return slots, nil
}

func (r *postgresSlotRepository) Update(ctx context.Context, exec SQLExecutor, slot *models.Slot) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE slots
		SET court_label = $1, end_time = $2, duration_mins = $3, active = $4
		WHERE id = $5`

	result, err := executor.ExecContext(ctx, query,
		slot.CourtLabel,
		slot.EndTime,
		slot.DurationMins,
		slot.Active,
		slot.ID,
	)
	if err != nil {
		return handleSlotError(err)
	}
	return checkAffectedRows(result, ErrSlotNotFound)
}

func (r *postgresSlotRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	query := `DELETE FROM slots WHERE id = $1`

	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete slot %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrSlotNotFound)
}

func handleSlotError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			if pqErr.Constraint == "slots_version_id_day_court_start_time_key" {
				return ErrSlotAlreadyExists
			}
		case "23503":
			if pqErr.Constraint == "slots_version_id_fkey" {
				return ErrSlotVersionInvalid
			}
		}
	}
	return fmt.Errorf("database error on slot: %w", err)
}
