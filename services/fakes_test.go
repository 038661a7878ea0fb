package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/courtside/schedule-engine/models"
	"github.com/courtside/schedule-engine/repositories"
)

// In-memory repository fakes for service tests. They reproduce what the
// service layer relies on from the postgres repositories: sentinel errors,
// the natural-key unique constraints, and canonical list ordering. The
// SQLExecutor argument is ignored; transaction traffic is choreographed
// through sqlmock instead.

type fakeVersionRepo struct {
	nextID   int
	versions map[int]*models.ScheduleVersion
}

func newFakeVersionRepo() *fakeVersionRepo {
	return &fakeVersionRepo{versions: make(map[int]*models.ScheduleVersion)}
}

func (f *fakeVersionRepo) Create(_ context.Context, _ repositories.SQLExecutor, version *models.ScheduleVersion) error {
	for _, v := range f.versions {
		if v.TournamentID == version.TournamentID && v.VersionNumber == version.VersionNumber {
			return repositories.ErrVersionNumberConflict
		}
	}
	f.nextID++
	version.ID = f.nextID
	version.CreatedAt = time.Now().UTC()
	cp := *version
	f.versions[version.ID] = &cp
	return nil
}

func (f *fakeVersionRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.ScheduleVersion, error) {
	v, ok := f.versions[id]
	if !ok {
		return nil, repositories.ErrScheduleVersionNotFound
	}
	cp := *v
	return &cp, nil
}

func (f *fakeVersionRepo) GetByIDForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.ScheduleVersion, error) {
	return f.GetByID(ctx, exec, id)
}

func (f *fakeVersionRepo) ListByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID int) ([]models.ScheduleVersion, error) {
	var out []models.ScheduleVersion
	for _, v := range f.versions {
		if v.TournamentID == tournamentID {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber < out[j].VersionNumber })
	return out, nil
}

func (f *fakeVersionRepo) NextVersionNumber(_ context.Context, _ repositories.SQLExecutor, tournamentID int) (int, error) {
	next := 1
	for _, v := range f.versions {
		if v.TournamentID == tournamentID && v.VersionNumber >= next {
			next = v.VersionNumber + 1
		}
	}
	return next, nil
}

func (f *fakeVersionRepo) UpdateStatus(_ context.Context, _ repositories.SQLExecutor, id int, status models.VersionStatus) error {
	v, ok := f.versions[id]
	if !ok {
		return repositories.ErrScheduleVersionNotFound
	}
	v.Status = status
	return nil
}

type fakeSlotRepo struct {
	nextID int
	slots  map[int]*models.Slot
}

func newFakeSlotRepo() *fakeSlotRepo {
	return &fakeSlotRepo{slots: make(map[int]*models.Slot)}
}

func (f *fakeSlotRepo) Create(_ context.Context, _ repositories.SQLExecutor, slot *models.Slot) error {
	for _, s := range f.slots {
		if s.VersionID == slot.VersionID && s.Key() == slot.Key() {
			return repositories.ErrSlotAlreadyExists
		}
	}
	f.nextID++
	slot.ID = f.nextID
	cp := *slot
	f.slots[slot.ID] = &cp
	return nil
}

func (f *fakeSlotRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Slot, error) {
	s, ok := f.slots[id]
	if !ok {
		return nil, repositories.ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSlotRepo) ListByVersion(_ context.Context, _ repositories.SQLExecutor, versionID int) ([]models.Slot, error) {
	var out []models.Slot
	for _, s := range f.slots {
		if s.VersionID == versionID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.Before(b.StartTime)
		}
		if a.Court != b.Court {
			return a.Court < b.Court
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (f *fakeSlotRepo) Update(_ context.Context, _ repositories.SQLExecutor, slot *models.Slot) error {
	s, ok := f.slots[slot.ID]
	if !ok {
		return repositories.ErrSlotNotFound
	}
	s.CourtLabel = slot.CourtLabel
	s.EndTime = slot.EndTime
	s.DurationMins = slot.DurationMins
	s.Active = slot.Active
	return nil
}

func (f *fakeSlotRepo) Delete(_ context.Context, _ repositories.SQLExecutor, id int) error {
	if _, ok := f.slots[id]; !ok {
		return repositories.ErrSlotNotFound
	}
	delete(f.slots, id)
	return nil
}

type fakeMatchRepo struct {
	nextID  int
	matches map[int]*models.Match
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{matches: make(map[int]*models.Match)}
}

func (f *fakeMatchRepo) Create(_ context.Context, _ repositories.SQLExecutor, match *models.Match) error {
	for _, m := range f.matches {
		if m.VersionID == match.VersionID && m.Key() == match.Key() {
			return repositories.ErrMatchAlreadyExists
		}
	}
	f.nextID++
	match.ID = f.nextID
	cp := *match
	f.matches[match.ID] = &cp
	return nil
}

func (f *fakeMatchRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Match, error) {
	m, ok := f.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMatchRepo) ListByVersion(_ context.Context, _ repositories.SQLExecutor, versionID int) ([]models.Match, error) {
	var out []models.Match
	for _, m := range f.matches {
		if m.VersionID == versionID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.EventID != b.EventID {
			return a.EventID < b.EventID
		}
		if pa, pb := a.Stage.Precedence(), b.Stage.Precedence(); pa != pb {
			return pa < pb
		}
		if a.Round != b.Round {
			return a.Round < b.Round
		}
		if a.Sequence != b.Sequence {
			return a.Sequence < b.Sequence
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (f *fakeMatchRepo) Update(_ context.Context, _ repositories.SQLExecutor, match *models.Match) error {
	m, ok := f.matches[match.ID]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.DurationMins = match.DurationMins
	m.TeamAID = match.TeamAID
	m.PlaceholderA = match.PlaceholderA
	m.TeamBID = match.TeamBID
	m.PlaceholderB = match.PlaceholderB
	m.Status = match.Status
	return nil
}

func (f *fakeMatchRepo) UpdateStatus(_ context.Context, _ repositories.SQLExecutor, id int, status models.MatchStatus) error {
	m, ok := f.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.Status = status
	return nil
}

func (f *fakeMatchRepo) Delete(_ context.Context, _ repositories.SQLExecutor, id int) error {
	if _, ok := f.matches[id]; !ok {
		return repositories.ErrMatchNotFound
	}
	delete(f.matches, id)
	return nil
}

type fakeAssignmentRepo struct {
	nextID      int
	assignments map[int]*models.Assignment
}

func newFakeAssignmentRepo() *fakeAssignmentRepo {
	return &fakeAssignmentRepo{assignments: make(map[int]*models.Assignment)}
}

func (f *fakeAssignmentRepo) Create(_ context.Context, _ repositories.SQLExecutor, assignment *models.Assignment) error {
	for _, a := range f.assignments {
		if a.VersionID != assignment.VersionID {
			continue
		}
		if a.SlotID == assignment.SlotID {
			return repositories.ErrSlotAlreadyOccupied
		}
		if a.MatchID == assignment.MatchID {
			return repositories.ErrMatchAlreadyAssigned
		}
	}
	f.nextID++
	assignment.ID = f.nextID
	cp := *assignment
	f.assignments[assignment.ID] = &cp
	return nil
}

func (f *fakeAssignmentRepo) GetByMatch(_ context.Context, _ repositories.SQLExecutor, versionID, matchID int) (*models.Assignment, error) {
	for _, a := range f.assignments {
		if a.VersionID == versionID && a.MatchID == matchID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repositories.ErrAssignmentNotFound
}

func (f *fakeAssignmentRepo) GetBySlot(_ context.Context, _ repositories.SQLExecutor, versionID, slotID int) (*models.Assignment, error) {
	for _, a := range f.assignments {
		if a.VersionID == versionID && a.SlotID == slotID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repositories.ErrAssignmentNotFound
}

func (f *fakeAssignmentRepo) ListByVersion(_ context.Context, _ repositories.SQLExecutor, versionID int) ([]models.Assignment, error) {
	var out []models.Assignment
	for _, a := range f.assignments {
		if a.VersionID == versionID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MatchID != out[j].MatchID {
			return out[i].MatchID < out[j].MatchID
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f *fakeAssignmentRepo) Update(_ context.Context, _ repositories.SQLExecutor, assignment *models.Assignment) error {
	a, ok := f.assignments[assignment.ID]
	if !ok {
		return repositories.ErrAssignmentNotFound
	}
	for _, other := range f.assignments {
		if other.ID != a.ID && other.VersionID == a.VersionID && other.SlotID == assignment.SlotID {
			return repositories.ErrSlotAlreadyOccupied
		}
	}
	a.SlotID = assignment.SlotID
	a.Locked = assignment.Locked
	a.AssignedBy = assignment.AssignedBy
	a.AssignedAt = assignment.AssignedAt
	return nil
}

func (f *fakeAssignmentRepo) DeleteByMatch(_ context.Context, _ repositories.SQLExecutor, versionID, matchID int) error {
	for id, a := range f.assignments {
		if a.VersionID == versionID && a.MatchID == matchID {
			delete(f.assignments, id)
			return nil
		}
	}
	return repositories.ErrAssignmentNotFound
}

type fakeLockRepo struct {
	nextID     int
	matchLocks map[int]*models.MatchLock
	slotLocks  map[int]*models.SlotLock
}

func newFakeLockRepo() *fakeLockRepo {
	return &fakeLockRepo{
		matchLocks: make(map[int]*models.MatchLock),
		slotLocks:  make(map[int]*models.SlotLock),
	}
}

func (f *fakeLockRepo) CreateMatchLock(_ context.Context, _ repositories.SQLExecutor, lock *models.MatchLock) error {
	for _, l := range f.matchLocks {
		if l.VersionID == lock.VersionID && l.MatchID == lock.MatchID {
			return repositories.ErrMatchAlreadyPinned
		}
	}
	f.nextID++
	lock.ID = f.nextID
	lock.CreatedAt = time.Now().UTC()
	cp := *lock
	f.matchLocks[lock.ID] = &cp
	return nil
}

func (f *fakeLockRepo) DeleteMatchLock(_ context.Context, _ repositories.SQLExecutor, versionID, matchID int) error {
	for id, l := range f.matchLocks {
		if l.VersionID == versionID && l.MatchID == matchID {
			delete(f.matchLocks, id)
			return nil
		}
	}
	return repositories.ErrMatchLockNotFound
}

func (f *fakeLockRepo) ListMatchLocksByVersion(_ context.Context, _ repositories.SQLExecutor, versionID int) ([]models.MatchLock, error) {
	var out []models.MatchLock
	for _, l := range f.matchLocks {
		if l.VersionID == versionID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeLockRepo) CreateSlotLock(_ context.Context, _ repositories.SQLExecutor, lock *models.SlotLock) error {
	for _, l := range f.slotLocks {
		if l.VersionID == lock.VersionID && l.SlotID == lock.SlotID {
			return repositories.ErrSlotAlreadyBlocked
		}
	}
	f.nextID++
	lock.ID = f.nextID
	lock.CreatedAt = time.Now().UTC()
	cp := *lock
	f.slotLocks[lock.ID] = &cp
	return nil
}

func (f *fakeLockRepo) DeleteSlotLock(_ context.Context, _ repositories.SQLExecutor, versionID, slotID int) error {
	for id, l := range f.slotLocks {
		if l.VersionID == versionID && l.SlotID == slotID {
			delete(f.slotLocks, id)
			return nil
		}
	}
	return repositories.ErrSlotLockNotFound
}

func (f *fakeLockRepo) ListSlotLocksByVersion(_ context.Context, _ repositories.SQLExecutor, versionID int) ([]models.SlotLock, error) {
	var out []models.SlotLock
	for _, l := range f.slotLocks {
		if l.VersionID == versionID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakePolicyRunRepo struct {
	order int
	runs  map[string]*models.PolicyRunSnapshot
	seq   map[string]int
}

func newFakePolicyRunRepo() *fakePolicyRunRepo {
	return &fakePolicyRunRepo{
		runs: make(map[string]*models.PolicyRunSnapshot),
		seq:  make(map[string]int),
	}
}

func (f *fakePolicyRunRepo) Create(_ context.Context, _ repositories.SQLExecutor, run *models.PolicyRunSnapshot) error {
	if _, ok := f.runs[run.ID]; ok {
		return repositories.ErrPolicyRunDuplicate
	}
	run.CreatedAt = time.Now().UTC()
	f.order++
	cp := *run
	f.runs[run.ID] = &cp
	f.seq[run.ID] = f.order
	return nil
}

func (f *fakePolicyRunRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id string) (*models.PolicyRunSnapshot, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, repositories.ErrPolicyRunNotFound
	}
	cp := *run
	return &cp, nil
}

func (f *fakePolicyRunRepo) ListByVersion(_ context.Context, _ repositories.SQLExecutor, versionID int) ([]models.PolicyRunSnapshot, error) {
	var out []models.PolicyRunSnapshot
	for _, run := range f.runs {
		if run.VersionID == versionID {
			cp := *run
			cp.InputState = nil
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return f.seq[out[i].ID] > f.seq[out[j].ID] })
	return out, nil
}

type publishedEvent struct {
	versionID int
	eventType string
	payload   interface{}
}

type capturePublisher struct {
	events []publishedEvent
}

func (c *capturePublisher) Publish(versionID int, eventType string, payload interface{}) {
	c.events = append(c.events, publishedEvent{versionID: versionID, eventType: eventType, payload: payload})
}

// serviceEnv wires the fakes with a sqlmock handle. The mock carries only
// transaction choreography (Begin, Commit, Rollback); data flows through
// the fakes.
type serviceEnv struct {
	db          *sql.DB
	mock        sqlmock.Sqlmock
	versions    *fakeVersionRepo
	slots       *fakeSlotRepo
	matches     *fakeMatchRepo
	assignments *fakeAssignmentRepo
	locks       *fakeLockRepo
	runs        *fakePolicyRunRepo
	publisher   *capturePublisher
	versionLock *VersionLocks
	logger      *slog.Logger
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &serviceEnv{
		db:          db,
		mock:        mock,
		versions:    newFakeVersionRepo(),
		slots:       newFakeSlotRepo(),
		matches:     newFakeMatchRepo(),
		assignments: newFakeAssignmentRepo(),
		locks:       newFakeLockRepo(),
		runs:        newFakePolicyRunRepo(),
		publisher:   &capturePublisher{},
		versionLock: NewVersionLocks(),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// expectWrite arms the mock for one committed transaction.
func (e *serviceEnv) expectWrite() {
	e.mock.ExpectBegin()
	e.mock.ExpectCommit()
}

// expectAbort arms the mock for one rolled-back transaction.
func (e *serviceEnv) expectAbort() {
	e.mock.ExpectBegin()
	e.mock.ExpectRollback()
}

// expectRead arms the mock for one read-only transaction, which always
// ends in rollback.
func (e *serviceEnv) expectRead() {
	e.mock.ExpectBegin()
	e.mock.ExpectRollback()
}

func (e *serviceEnv) seedVersion(t *testing.T, tournamentID int, status models.VersionStatus) *models.ScheduleVersion {
	t.Helper()
	number, err := e.versions.NextVersionNumber(context.Background(), nil, tournamentID)
	require.NoError(t, err)
	version := &models.ScheduleVersion{TournamentID: tournamentID, VersionNumber: number, Status: status}
	require.NoError(t, e.versions.Create(context.Background(), nil, version))
	return version
}

func (e *serviceEnv) seedSlot(t *testing.T, versionID, day, court int, start time.Time, durationMins int) *models.Slot {
	t.Helper()
	slot := &models.Slot{
		VersionID:    versionID,
		Day:          day,
		Court:        court,
		CourtLabel:   "Court",
		StartTime:    start,
		EndTime:      start.Add(time.Duration(durationMins) * time.Minute),
		DurationMins: durationMins,
		Active:       true,
	}
	require.NoError(t, e.slots.Create(context.Background(), nil, slot))
	return slot
}

func (e *serviceEnv) seedMatch(t *testing.T, versionID, eventID int, stage models.MatchStage, round, sequence, durationMins int, teamA, teamB *int) *models.Match {
	t.Helper()
	match := &models.Match{
		VersionID:    versionID,
		EventID:      eventID,
		Stage:        stage,
		Round:        round,
		Sequence:     sequence,
		DurationMins: durationMins,
		TeamAID:      teamA,
		TeamBID:      teamB,
		Status:       models.MatchStatusPending,
	}
	require.NoError(t, e.matches.Create(context.Background(), nil, match))
	return match
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

// dayStart anchors test slots on a fixed calendar day so natural keys are
// stable across runs.
func dayStart(day, hour, minute int) time.Time {
	return time.Date(2026, time.June, day, hour, minute, 0, 0, time.UTC)
}
