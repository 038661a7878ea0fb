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
	ErrMatchNotFound       = errors.New("match not found")
	ErrMatchAlreadyExists  = errors.New("match already exists for this event, stage, round and sequence")
	ErrMatchVersionInvalid = errors.New("match references unknown schedule version")
)

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error)
	ListByVersion(ctx context.Context, exec SQLExecutor, versionID int) ([]models.Match, error)
	Update(ctx context.Context, exec SQLExecutor, match *models.Match) error
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.MatchStatus) error
	Delete(ctx context.Context, exec SQLExecutor, id int) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO matches (version_id, event_id, stage, round, sequence, duration_mins,
			team_a_id, placeholder_a, team_b_id, placeholder_b, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	err := executor.QueryRowContext(ctx, query,
		match.VersionID,
		match.EventID,
		match.Stage,
		match.Round,
		match.Sequence,
		match.DurationMins,
		match.TeamAID,
		match.PlaceholderA,
		match.TeamBID,
		match.PlaceholderB,
		match.Status,
	).Scan(&match.ID)
	if err != nil {
		return handleMatchError(err)
	}
	return nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, version_id, event_id, stage, round, sequence, duration_mins,
			team_a_id, placeholder_a, team_b_id, placeholder_b, status
		FROM matches
		WHERE id = $1`

	match := &models.Match{}
	err := executor.QueryRowContext(ctx, query, id).Scan(
		&match.ID,
		&match.VersionID,
		&match.EventID,
		&match.Stage,
		&match.Round,
		&match.Sequence,
		&match.DurationMins,
		&match.TeamAID,
		&match.PlaceholderA,
		&match.TeamBID,
		&match.PlaceholderB,
		&match.Status,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to get match %d: %w", id, err)
	}
	return match, nil
}

func (r *postgresMatchRepository) ListByVersion(ctx context.Context, exec SQLExecutor, versionID int) ([]models.Match, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, version_id, event_id, stage, round, sequence, duration_mins,
			team_a_id, placeholder_a, team_b_id, placeholder_b, status
		FROM matches
		WHERE version_id = $1
		ORDER BY event_id ASC, stage ASC, round ASC, sequence ASC, id ASC`

	rows, err := executor.QueryContext(ctx, query, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches for version %d: %w", versionID, err)
	}
	defer rows.Close()

	matches := []models.Match{}
	for rows.Next() {
		var match models.Match
		err := rows.Scan(
			&match.ID,
			&match.VersionID,
			&match.EventID,
			&match.Stage,
			&match.Round,
			&match.Sequence,
			&match.DurationMins,
			&match.TeamAID,
			&match.PlaceholderA,
			&match.TeamBID,
			&match.PlaceholderB,
			&match.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", err)
		}
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating match rows: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) Update(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE matches
		SET duration_mins = $1, team_a_id = $2, placeholder_a = $3,
			team_b_id = $4, placeholder_b = $5, status = $6
		WHERE id = $7`

	result, err := executor.ExecContext(ctx, query,
		match.DurationMins,
		match.TeamAID,
		match.PlaceholderA,
		match.TeamBID,
		match.PlaceholderB,
		match.Status,
		match.ID,
	)
	if err != nil {
		return handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.MatchStatus) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE matches
		SET status = $1
		WHERE id = $2`

	result, err := executor.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update match %d status: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	query := `DELETE FROM matches WHERE id = $1`

	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func handleMatchError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			if pqErr.Constraint == "matches_version_id_event_id_stage_round_sequence_key" {
				return ErrMatchAlreadyExists
			}
		case "23503":
			if pqErr.Constraint == "matches_version_id_fkey" {
				return ErrMatchVersionInvalid
			}
		}
	}
	return fmt.Errorf("database error on match: %w", err)
}
