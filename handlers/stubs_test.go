package handlers_test

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/courtside/schedule-engine/events"
	"github.com/courtside/schedule-engine/handlers"
	"github.com/courtside/schedule-engine/models"
	"github.com/courtside/schedule-engine/routes"
	"github.com/courtside/schedule-engine/scheduling"
	"github.com/courtside/schedule-engine/services"
)

// Func-field stubs: a nil field means the endpoint is not under test and a
// call to it is a bug in the test.

type stubVersionService struct {
	create        func(context.Context, int) (*models.ScheduleVersion, error)
	getByID       func(context.Context, int) (*models.ScheduleVersion, error)
	list          func(context.Context, int) ([]models.ScheduleVersion, error)
	clone         func(context.Context, int) (*models.ScheduleVersion, error)
	finalize      func(context.Context, int) (*models.ScheduleVersion, error)
	rebuildSlots  func(context.Context, int, []services.SlotInput) (*services.SlotRebuildResult, error)
	importMatches func(context.Context, int, []services.MatchInput) (*services.MatchImportResult, error)
}

func (s *stubVersionService) Create(ctx context.Context, tournamentID int) (*models.ScheduleVersion, error) {
	return s.create(ctx, tournamentID)
}

func (s *stubVersionService) GetByID(ctx context.Context, id int) (*models.ScheduleVersion, error) {
	return s.getByID(ctx, id)
}

func (s *stubVersionService) ListByTournament(ctx context.Context, tournamentID int) ([]models.ScheduleVersion, error) {
	return s.list(ctx, tournamentID)
}

func (s *stubVersionService) Clone(ctx context.Context, sourceVersionID int) (*models.ScheduleVersion, error) {
	return s.clone(ctx, sourceVersionID)
}

func (s *stubVersionService) Finalize(ctx context.Context, id int) (*models.ScheduleVersion, error) {
	return s.finalize(ctx, id)
}

func (s *stubVersionService) RebuildSlots(ctx context.Context, versionID int, inputs []services.SlotInput) (*services.SlotRebuildResult, error) {
	return s.rebuildSlots(ctx, versionID, inputs)
}

func (s *stubVersionService) ImportMatches(ctx context.Context, versionID int, inputs []services.MatchInput) (*services.MatchImportResult, error) {
	return s.importMatches(ctx, versionID, inputs)
}

type stubAssignmentService struct {
	assign   func(context.Context, int, int, int) (*services.AssignResult, error)
	unassign func(context.Context, int, int) (*services.UnassignResult, error)
}

func (s *stubAssignmentService) Assign(ctx context.Context, versionID, matchID, slotID int) (*services.AssignResult, error) {
	return s.assign(ctx, versionID, matchID, slotID)
}

func (s *stubAssignmentService) Unassign(ctx context.Context, versionID, matchID int) (*services.UnassignResult, error) {
	return s.unassign(ctx, versionID, matchID)
}

type stubLockService struct {
	pinMatch    func(context.Context, int, int, int) (*models.MatchLock, error)
	unpinMatch  func(context.Context, int, int) error
	blockSlot   func(context.Context, int, int, *string) (*models.SlotLock, error)
	unblockSlot func(context.Context, int, int) error
	listLocks   func(context.Context, int) (*services.LockSet, error)
}

func (s *stubLockService) PinMatch(ctx context.Context, versionID, matchID, slotID int) (*models.MatchLock, error) {
	return s.pinMatch(ctx, versionID, matchID, slotID)
}

func (s *stubLockService) UnpinMatch(ctx context.Context, versionID, matchID int) error {
	return s.unpinMatch(ctx, versionID, matchID)
}

func (s *stubLockService) BlockSlot(ctx context.Context, versionID, slotID int, reason *string) (*models.SlotLock, error) {
	return s.blockSlot(ctx, versionID, slotID, reason)
}

func (s *stubLockService) UnblockSlot(ctx context.Context, versionID, slotID int) error {
	return s.unblockSlot(ctx, versionID, slotID)
}

func (s *stubLockService) ListLocks(ctx context.Context, versionID int) (*services.LockSet, error) {
	return s.listLocks(ctx, versionID)
}

type stubAutoAssignService struct {
	preview func(context.Context, int, *scheduling.PlacementRules) (*scheduling.AutoAssignPlan, error)
	run     func(context.Context, int, *scheduling.PlacementRules) (*services.AutoAssignResult, error)
}

func (s *stubAutoAssignService) Preview(ctx context.Context, versionID int, rules *scheduling.PlacementRules) (*scheduling.AutoAssignPlan, error) {
	return s.preview(ctx, versionID, rules)
}

func (s *stubAutoAssignService) Run(ctx context.Context, versionID int, rules *scheduling.PlacementRules) (*services.AutoAssignResult, error) {
	return s.run(ctx, versionID, rules)
}

type stubPolicyService struct {
	previewDay     func(context.Context, int, int, *scheduling.PolicyConfig) (*scheduling.DayPlan, error)
	previewAllDays func(context.Context, int, *scheduling.PolicyConfig) ([]*scheduling.DayPlan, error)
	runDay         func(context.Context, int, int, *scheduling.PolicyConfig) (*services.PolicyRunResult, error)
	runAllDays     func(context.Context, int, *scheduling.PolicyConfig) ([]*services.PolicyRunResult, error)
	getRun         func(context.Context, string) (*models.PolicyRunSnapshot, error)
	listRuns       func(context.Context, int) ([]models.PolicyRunSnapshot, error)
	replay         func(context.Context, string) (*services.ReplayResult, error)
	diff           func(context.Context, string, string) (*services.RunDiff, error)
}

func (s *stubPolicyService) PreviewDay(ctx context.Context, versionID, day int, cfg *scheduling.PolicyConfig) (*scheduling.DayPlan, error) {
	return s.previewDay(ctx, versionID, day, cfg)
}

func (s *stubPolicyService) PreviewAllDays(ctx context.Context, versionID int, cfg *scheduling.PolicyConfig) ([]*scheduling.DayPlan, error) {
	return s.previewAllDays(ctx, versionID, cfg)
}

func (s *stubPolicyService) RunDay(ctx context.Context, versionID, day int, cfg *scheduling.PolicyConfig) (*services.PolicyRunResult, error) {
	return s.runDay(ctx, versionID, day, cfg)
}

func (s *stubPolicyService) RunAllDays(ctx context.Context, versionID int, cfg *scheduling.PolicyConfig) ([]*services.PolicyRunResult, error) {
	return s.runAllDays(ctx, versionID, cfg)
}

func (s *stubPolicyService) GetRun(ctx context.Context, runID string) (*models.PolicyRunSnapshot, error) {
	return s.getRun(ctx, runID)
}

func (s *stubPolicyService) ListRuns(ctx context.Context, versionID int) ([]models.PolicyRunSnapshot, error) {
	return s.listRuns(ctx, versionID)
}

func (s *stubPolicyService) Replay(ctx context.Context, runID string) (*services.ReplayResult, error) {
	return s.replay(ctx, runID)
}

func (s *stubPolicyService) Diff(ctx context.Context, runIDA, runIDB string) (*services.RunDiff, error) {
	return s.diff(ctx, runIDA, runIDB)
}

type stubReportService struct {
	conflictReport func(context.Context, int, scheduling.ReportOptions) (*scheduling.ConflictReport, error)
	qualityReport  func(context.Context, int, *scheduling.QualityThresholds) (*scheduling.QualityReport, error)
	gridSnapshot   func(context.Context, int) (*services.GridSnapshot, error)
}

func (s *stubReportService) ConflictReport(ctx context.Context, versionID int, opts scheduling.ReportOptions) (*scheduling.ConflictReport, error) {
	return s.conflictReport(ctx, versionID, opts)
}

func (s *stubReportService) QualityReport(ctx context.Context, versionID int, thresholds *scheduling.QualityThresholds) (*scheduling.QualityReport, error) {
	return s.qualityReport(ctx, versionID, thresholds)
}

func (s *stubReportService) GridSnapshot(ctx context.Context, versionID int) (*services.GridSnapshot, error) {
	return s.gridSnapshot(ctx, versionID)
}

// handlerEnv wires the stubs through the production router so tests hit
// real routing, middleware and JSON plumbing.
type handlerEnv struct {
	router      *chi.Mux
	hub         *events.Hub
	versions    *stubVersionService
	assignments *stubAssignmentService
	locks       *stubLockService
	autoAssign  *stubAutoAssignService
	policy      *stubPolicyService
	reports     *stubReportService
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()

	env := &handlerEnv{
		hub:         events.NewHub(slog.New(slog.NewTextHandler(io.Discard, nil))),
		versions:    &stubVersionService{},
		assignments: &stubAssignmentService{},
		locks:       &stubLockService{},
		autoAssign:  &stubAutoAssignService{},
		policy:      &stubPolicyService{},
		reports:     &stubReportService{},
	}
	go env.hub.Run()

	env.router = chi.NewRouter()
	routes.SetupRoutes(
		env.router,
		handlers.NewVersionHandler(env.versions),
		handlers.NewAssignmentHandler(env.assignments),
		handlers.NewLockHandler(env.locks),
		handlers.NewAutoAssignHandler(env.autoAssign, nil),
		handlers.NewPolicyHandler(env.policy, nil),
		handlers.NewReportHandler(env.reports, nil),
		handlers.NewWebSocketHandler(env.hub, env.versions),
	)
	return env
}

func (e *handlerEnv) serve(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(e.router)
	t.Cleanup(srv.Close)
	return srv
}
