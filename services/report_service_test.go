package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtside/schedule-engine/models"
	"github.com/courtside/schedule-engine/scheduling"
)

func newReportService(e *serviceEnv) ReportService {
	return NewReportService(e.db, e.versions, e.slots, e.matches, e.assignments, e.locks, e.logger)
}

func TestReportServiceGridSnapshotGroupsByDayAndCourt(t *testing.T) {
	e := newServiceEnv(t)
	svc := newReportService(e)
	ctx := context.Background()

	version := e.seedVersion(t, 1, models.VersionStatusDraft)
	// Seeded out of board order on purpose.
	day2Slot := e.seedSlot(t, version.ID, 2, 1, dayStart(2, 9, 0), 60)
	court2Slot := e.seedSlot(t, version.ID, 1, 2, dayStart(1, 9, 0), 60)
	lateSlot := e.seedSlot(t, version.ID, 1, 1, dayStart(1, 10, 0), 60)
	earlySlot := e.seedSlot(t, version.ID, 1, 1, dayStart(1, 9, 0), 60)

	placed := e.seedMatch(t, version.ID, 1, models.StageRoundRobin, 1, 1, 60, intPtr(10), intPtr(20))
	waiting := e.seedMatch(t, version.ID, 1, models.StageRoundRobin, 1, 2, 60, intPtr(30), intPtr(40))

	require.NoError(t, e.assignments.Create(ctx, nil, &models.Assignment{
		VersionID: version.ID, MatchID: placed.ID, SlotID: earlySlot.ID, AssignedBy: models.AssignedByManual,
	}))
	require.NoError(t, e.locks.CreateSlotLock(ctx, nil, &models.SlotLock{
		VersionID: version.ID, SlotID: day2Slot.ID, Reason: strPtr("rain delay"),
	}))
	require.NoError(t, e.locks.CreateMatchLock(ctx, nil, &models.MatchLock{
		VersionID: version.ID, MatchID: waiting.ID, SlotID: court2Slot.ID,
	}))

	e.expectRead()
	snapshot, err := svc.GridSnapshot(ctx, version.ID)
	require.NoError(t, err)

	require.Len(t, snapshot.Days, 2)
	assert.Equal(t, 1, snapshot.Days[0].Day)
	assert.Equal(t, 2, snapshot.Days[1].Day)

	day1 := snapshot.Days[0]
	require.Len(t, day1.Courts, 2)
	assert.Equal(t, 1, day1.Courts[0].Court)
	assert.Equal(t, 2, day1.Courts[1].Court)

	court1 := day1.Courts[0]
	require.Len(t, court1.Cells, 2)
	assert.Equal(t, earlySlot.ID, court1.Cells[0].Slot.ID, "cells must run in start-time order")
	assert.Equal(t, lateSlot.ID, court1.Cells[1].Slot.ID)
	require.NotNil(t, court1.Cells[0].Assignment)
	require.NotNil(t, court1.Cells[0].Match)
	assert.Equal(t, placed.ID, court1.Cells[0].Match.ID)
	assert.Nil(t, court1.Cells[1].Assignment)

	assert.True(t, day1.Courts[1].Cells[0].Pinned)

	day2Cell := snapshot.Days[1].Courts[0].Cells[0]
	assert.True(t, day2Cell.Blocked)
	require.NotNil(t, day2Cell.BlockReason)
	assert.Equal(t, "rain delay", *day2Cell.BlockReason)

	require.Len(t, snapshot.Unassigned, 1)
	assert.Equal(t, waiting.ID, snapshot.Unassigned[0].ID)
	assert.NoError(t, e.mock.ExpectationsWereMet())
}

func TestReportServiceGridSnapshotUnknownVersion(t *testing.T) {
	e := newServiceEnv(t)
	svc := newReportService(e)

	e.expectRead()
	_, err := svc.GridSnapshot(context.Background(), 404)

	assert.ErrorIs(t, err, ErrVersionNotFound)
	assert.NoError(t, e.mock.ExpectationsWereMet())
}

func TestReportServiceQualityReportThresholds(t *testing.T) {
	e := newServiceEnv(t)
	svc := newReportService(e)
	ctx := context.Background()

	version := e.seedVersion(t, 1, models.VersionStatusDraft)
	filled := e.seedSlot(t, version.ID, 1, 1, dayStart(1, 9, 0), 60)
	e.seedSlot(t, version.ID, 1, 1, dayStart(1, 10, 0), 60)
	match := e.seedMatch(t, version.ID, 1, models.StageRoundRobin, 1, 1, 60, intPtr(10), intPtr(20))
	require.NoError(t, e.assignments.Create(ctx, nil, &models.Assignment{
		VersionID: version.ID, MatchID: match.ID, SlotID: filled.ID, AssignedBy: models.AssignedByManual,
	}))

	e.expectRead()
	report, err := svc.QualityReport(ctx, version.ID, nil)
	require.NoError(t, err)
	assert.True(t, report.Passed, "half-filled board clears the default 50 percent utilization gate")
	assert.Len(t, report.Checks, 5)

	e.expectRead()
	strict, err := svc.QualityReport(ctx, version.ID, &scheduling.QualityThresholds{
		MinUtilization:    80.0,
		MaxDailyImbalance: 3,
	})
	require.NoError(t, err)
	assert.False(t, strict.Passed, "the same board must fail a stricter utilization gate")
	assert.NoError(t, e.mock.ExpectationsWereMet())
}
