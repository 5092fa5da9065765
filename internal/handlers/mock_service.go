package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"fermentation_monitor/internal/models"
	"fermentation_monitor/internal/service"
)

// ---- Service Mocks ----

type mockIngest struct {
	reading    models.Reading
	readingErr error
	state      models.CanonicalState
	stateErr   error
	postErr    error

	lastReading    service.ReadingInput
	lastController service.ControllerStateInput
	lastHeartbeat  service.HeartbeatInput
	lastHydrometer service.HydrometerInput
	lastRawRunID   string
	lastRaw        map[string]interface{}
	readingCalls   int
}

func (m *mockIngest) PostReading(ctx context.Context, in service.ReadingInput) (models.Reading, error) {
	m.readingCalls++
	m.lastReading = in
	return m.reading, m.readingErr
}

func (m *mockIngest) PostControllerState(ctx context.Context, in service.ControllerStateInput) error {
	m.lastController = in
	return m.postErr
}

func (m *mockIngest) PostHeartbeat(ctx context.Context, in service.HeartbeatInput) error {
	m.lastHeartbeat = in
	return m.postErr
}

func (m *mockIngest) PostFermentationState(ctx context.Context, runID string, raw map[string]interface{}) (models.CanonicalState, error) {
	m.lastRawRunID = runID
	m.lastRaw = raw
	return m.state, m.stateErr
}

func (m *mockIngest) PostHydrometer(ctx context.Context, in service.HydrometerInput) error {
	m.lastHydrometer = in
	return m.postErr
}

type mockRuns struct {
	created     models.FermentationRun
	createErr   error
	run         models.FermentationRun
	getErr      error
	activateErr error
	advanceErr  error

	lastCreate    models.FermentationRun
	activateCalls int
	advanceCalls  int
}

func (m *mockRuns) Create(ctx context.Context, run models.FermentationRun) (models.FermentationRun, error) {
	m.lastCreate = run
	return m.created, m.createErr
}

func (m *mockRuns) Get(ctx context.Context, id string) (models.FermentationRun, error) {
	return m.run, m.getErr
}

func (m *mockRuns) Activate(ctx context.Context, id string) error {
	m.activateCalls++
	return m.activateErr
}

func (m *mockRuns) Advance(ctx context.Context, id string) error {
	m.advanceCalls++
	return m.advanceErr
}

type mockAlerts struct {
	unread      []models.Alert
	unreadErr   error
	markReadErr error

	lastMarkRead  string
	lastUnreadRun string
}

func (m *mockAlerts) CheckAll(ctx context.Context, runID string) error { return nil }

func (m *mockAlerts) Raise(ctx context.Context, runID, typ, level, message string, skipCooldown bool) (bool, error) {
	return true, nil
}

func (m *mockAlerts) Unread(ctx context.Context, runID string) ([]models.Alert, error) {
	m.lastUnreadRun = runID
	return m.unread, m.unreadErr
}

func (m *mockAlerts) MarkRead(ctx context.Context, id string) error {
	m.lastMarkRead = id
	return m.markReadErr
}

type mockRetention struct {
	cleanupErr   error
	cleanupCalls int
}

func (m *mockRetention) Enforce(ctx context.Context, stream, runID string) {}

func (m *mockRetention) MaybeSweepOrphans(ctx context.Context) {}
func (m *mockRetention) EmergencyCleanup(ctx context.Context) error {
	m.cleanupCalls++
	return m.cleanupErr
}

type mockDashboard struct {
	view      service.DashboardView
	viewErr   error
	active    service.ActiveState
	activeErr error

	lastViewRun string
	lastWindow  time.Duration
}

func (m *mockDashboard) View(ctx context.Context, runID string, window time.Duration) (service.DashboardView, error) {
	m.lastViewRun = runID
	m.lastWindow = window
	return m.view, m.viewErr
}

func (m *mockDashboard) ActiveState(ctx context.Context) (service.ActiveState, error) {
	return m.active, m.activeErr
}

// newTestRouter builds a gin router in test mode around the given services.
func newTestRouter(s *service.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(s, nil)
	return h.InitRoutes()
}
