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
	ErrScheduleVersionNotFound = errors.New("schedule version not found")
	ErrVersionNumberConflict   = errors.New("version number already used for this tournament")
)

type ScheduleVersionRepository interface {
	Create(ctx context.Context, exec SQLExecutor, version *models.ScheduleVersion) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.ScheduleVersion, error)
	// GetByIDForUpdate takes a row lock on the version and must be called
	// inside a transaction.
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.ScheduleVersion, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.ScheduleVersion, error)
	NextVersionNumber(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.VersionStatus) error
}

type postgresScheduleVersionRepository struct {
	db *sql.DB
}

func NewPostgresScheduleVersionRepository(db *sql.DB) ScheduleVersionRepository {
	return &postgresScheduleVersionRepository{db: db}
}

func (r *postgresScheduleVersionRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresScheduleVersionRepository) Create(ctx context.Context, exec SQLExecutor, version *models.ScheduleVersion) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO schedule_versions (tournament_id, version_number, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		version.TournamentID,
		version.VersionNumber,
		version.Status,
	).Scan(&version.ID, &version.CreatedAt)
	if err != nil {
		return handleVersionError(err)
	}
	return nil
}

func (r *postgresScheduleVersionRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.ScheduleVersion, error) {
	return r.getByID(ctx, exec, id, false)
}

func (r *postgresScheduleVersionRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.ScheduleVersion, error) {
	return r.getByID(ctx, exec, id, true)
}

func (r *postgresScheduleVersionRepository) getByID(ctx context.Context, exec SQLExecutor, id int, forUpdate bool) (*models.ScheduleVersion, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, tournament_id, version_number, status, created_at
		FROM schedule_versions
		WHERE id = $1`
	if forUpdate {
		query += `
		FOR UPDATE`
	}

	version := &models.ScheduleVersion{}
	err := executor.QueryRowContext(ctx, query, id).Scan(
		&version.ID,
		&version.TournamentID,
		&version.VersionNumber,
		&version.Status,
		&version.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScheduleVersionNotFound
		}
		return nil, fmt.Errorf("failed to get schedule version %d: %w", id, err)
	}
	return version, nil
}

func (r *postgresScheduleVersionRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.ScheduleVersion, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, tournament_id, version_number, status, created_at
		FROM schedule_versions
		WHERE tournament_id = $1
		ORDER BY version_number ASC, id ASC`

	rows, err := executor.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule versions for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	versions := []models.ScheduleVersion{}
	for rows.Next() {
		var version models.ScheduleVersion
		err := rows.Scan(
			&version.ID,
			&version.TournamentID,
			&version.VersionNumber,
			&version.Status,
			&version.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule version row: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedule version rows: %w", err)
	}
	return versions, nil
}

func (r *postgresScheduleVersionRepository) NextVersionNumber(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT COALESCE(MAX(version_number), 0) + 1
		FROM schedule_versions
		WHERE tournament_id = $1`

	var next int
	err := executor.QueryRowContext(ctx, query, tournamentID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to get next version number for tournament %d: %w", tournamentID, err)
	}
	return next, nil
}

func (r *postgresScheduleVersionRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.VersionStatus) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE schedule_versions
		SET status = $1
		WHERE id = $2`

	result, err := executor.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update schedule version %d status: %w", id, err)
	}
	return checkAffectedRows(result, ErrScheduleVersionNotFound)
}

func handleVersionError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		if pqErr.Constraint == "schedule_versions_tournament_id_version_number_key" {
			return ErrVersionNumberConflict
		}
	}
	return fmt.Errorf("database error on schedule version: %w", err)
}
