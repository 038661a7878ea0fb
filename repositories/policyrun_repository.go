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
	ErrPolicyRunNotFound   = errors.New("policy run not found")
	ErrPolicyRunDuplicate  = errors.New("policy run with this id already recorded")
	ErrPolicyRunRefInvalid = errors.New("policy run references unknown schedule version")
)

type PolicyRunRepository interface {
	Create(ctx context.Context, exec SQLExecutor, run *models.PolicyRunSnapshot) error
	// GetByID loads the full snapshot including the archived input state.
	GetByID(ctx context.Context, exec SQLExecutor, id string) (*models.PolicyRunSnapshot, error)
	// ListByVersion returns run summaries without the input state blob.
	ListByVersion(ctx context.Context, exec SQLExecutor, versionID int) ([]models.PolicyRunSnapshot, error)
}

type postgresPolicyRunRepository struct {
	db *sql.DB
}

func NewPostgresPolicyRunRepository(db *sql.DB) PolicyRunRepository {
	return &postgresPolicyRunRepository{db: db}
}

func (r *postgresPolicyRunRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresPolicyRunRepository) Create(ctx context.Context, exec SQLExecutor, run *models.PolicyRunSnapshot) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO policy_run_snapshots (id, version_id, day, policy_version, config,
			input_state, input_hash, output_hash, signature,
			assigned_count, failed_count, invariant_ok,
			batch_results, violations, spare_slot_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at`

	err := executor.QueryRowContext(ctx, query,
		run.ID,
		run.VersionID,
		run.Day,
		run.PolicyVersion,
		run.Config,
		run.InputState,
		run.InputHash,
		run.OutputHash,
		run.Signature,
		run.AssignedCount,
		run.FailedCount,
		run.InvariantOK,
		run.BatchResults,
		run.Violations,
		run.SpareSlotIDs,
	).Scan(&run.CreatedAt)
	if err != nil {
		return handlePolicyRunError(err)
	}
	return nil
}

func (r *postgresPolicyRunRepository) GetByID(ctx context.Context, exec SQLExecutor, id string) (*models.PolicyRunSnapshot, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, version_id, day, policy_version, config,
			input_state, input_hash, output_hash, signature,
			assigned_count, failed_count, invariant_ok,
			batch_results, violations, spare_slot_ids, created_at
		FROM policy_run_snapshots
		WHERE id = $1`

	run := &models.PolicyRunSnapshot{}
	err := executor.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.VersionID,
		&run.Day,
		&run.PolicyVersion,
		&run.Config,
		&run.InputState,
		&run.InputHash,
		&run.OutputHash,
		&run.Signature,
		&run.AssignedCount,
		&run.FailedCount,
		&run.InvariantOK,
		&run.BatchResults,
		&run.Violations,
		&run.SpareSlotIDs,
		&run.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPolicyRunNotFound
		}
		return nil, fmt.Errorf("failed to get policy run %s: %w", id, err)
	}
	return run, nil
}

func (r *postgresPolicyRunRepository) ListByVersion(ctx context.Context, exec SQLExecutor, versionID int) ([]models.PolicyRunSnapshot, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, version_id, day, policy_version, config,
			input_hash, output_hash, signature,
			assigned_count, failed_count, invariant_ok,
			batch_results, violations, spare_slot_ids, created_at
		FROM policy_run_snapshots
		WHERE version_id = $1
		ORDER BY created_at DESC, id ASC`

	rows, err := executor.QueryContext(ctx, query, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list policy runs for version %d: %w", versionID, err)
	}
	defer rows.Close()

	runs := []models.PolicyRunSnapshot{}
	for rows.Next() {
		var run models.PolicyRunSnapshot
		err := rows.Scan(
			&run.ID,
			&run.VersionID,
			&run.Day,
			&run.PolicyVersion,
			&run.Config,
			&run.InputHash,
			&run.OutputHash,
			&run.Signature,
			&run.AssignedCount,
			&run.FailedCount,
			&run.InvariantOK,
			&run.BatchResults,
			&run.Violations,
			&run.SpareSlotIDs,
			&run.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating policy run rows: %w", err)
	}
	return runs, nil
}

func handlePolicyRunError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return ErrPolicyRunDuplicate
		case "23503":
			return ErrPolicyRunRefInvalid
		}
	}
	return fmt.Errorf("database error on policy run: %w", err)
}
