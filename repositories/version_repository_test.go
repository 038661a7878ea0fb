package repositories

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtside/schedule-engine/models"
)

func newVersionRepoMock(t *testing.T) (ScheduleVersionRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresScheduleVersionRepository(db), mock
}

func TestVersionRepositoryCreateScansReturnedColumns(t *testing.T) {
	repo, mock := newVersionRepoMock(t)
	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO schedule_versions")).
		WithArgs(42, 3, models.VersionStatusDraft).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(17, createdAt))

	version := &models.ScheduleVersion{
		TournamentID:  42,
		VersionNumber: 3,
		Status:        models.VersionStatusDraft,
	}
	err := repo.Create(context.Background(), nil, version)

	require.NoError(t, err)
	assert.Equal(t, 17, version.ID)
	assert.Equal(t, createdAt, version.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVersionRepositoryCreateMapsVersionNumberConflict(t *testing.T) {
	repo, mock := newVersionRepoMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO schedule_versions")).
		WillReturnError(&pq.Error{
			Code:       "23505",
			Constraint: "schedule_versions_tournament_id_version_number_key",
		})

	err := repo.Create(context.Background(), nil, &models.ScheduleVersion{
		TournamentID:  42,
		VersionNumber: 3,
		Status:        models.VersionStatusDraft,
	})

	assert.ErrorIs(t, err, ErrVersionNumberConflict)
}

func TestVersionRepositoryGetByIDNotFound(t *testing.T) {
	repo, mock := newVersionRepoMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, tournament_id, version_number, status, created_at")).
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tournament_id", "version_number", "status", "created_at"}))

	version, err := repo.GetByID(context.Background(), nil, 99)

	assert.ErrorIs(t, err, ErrScheduleVersionNotFound)
	assert.Nil(t, version)
}

func TestVersionRepositoryGetByIDForUpdateLocksRow(t *testing.T) {
	repo, mock := newVersionRepoMock(t)
	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT id, tournament_id, version_number, status, created_at[\\s\\S]*FOR UPDATE").
		WithArgs(7).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "tournament_id", "version_number", "status", "created_at"}).
				AddRow(7, 42, 1, "draft", createdAt),
		)

	version, err := repo.GetByIDForUpdate(context.Background(), nil, 7)

	require.NoError(t, err)
	assert.Equal(t, 7, version.ID)
	assert.Equal(t, models.VersionStatusDraft, version.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVersionRepositoryNextVersionNumberStartsAtOne(t *testing.T) {
	repo, mock := newVersionRepoMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version_number), 0) + 1")).
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(1))

	next, err := repo.NextVersionNumber(context.Background(), nil, 42)

	require.NoError(t, err)
	assert.Equal(t, 1, next)
}

func TestVersionRepositoryUpdateStatusNotFound(t *testing.T) {
	repo, mock := newVersionRepoMock(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedule_versions")).
		WithArgs(models.VersionStatusFinal, 99).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), nil, 99, models.VersionStatusFinal)

	assert.ErrorIs(t, err, ErrScheduleVersionNotFound)
}

func TestVersionRepositoryListByTournamentOrdersByNumber(t *testing.T) {
	repo, mock := newVersionRepoMock(t)
	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("ORDER BY version_number ASC, id ASC").
		WithArgs(42).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "tournament_id", "version_number", "status", "created_at"}).
				AddRow(1, 42, 1, "final", createdAt).
				AddRow(5, 42, 2, "draft", createdAt),
		)

	versions, err := repo.ListByTournament(context.Background(), nil, 42)

	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 1, versions[0].VersionNumber)
	assert.Equal(t, models.VersionStatusFinal, versions[0].Status)
	assert.Equal(t, 2, versions[1].VersionNumber)
}
