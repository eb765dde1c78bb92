package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agencydesk/internal/types"
)

type mockScheduleStore struct {
	mu        sync.Mutex
	schedules map[string]*types.ReportSchedule

	markRunCalls    []markRunCall
	markManualCalls []markManualCall
	markRunErr      error
	activeErr       error
}

type markRunCall struct {
	id        string
	lastRunAt time.Time
	nextRunAt time.Time
}

type markManualCall struct {
	id        string
	lastRunAt time.Time
}

func newMockScheduleStore(schedules ...*types.ReportSchedule) *mockScheduleStore {
	m := &mockScheduleStore{schedules: map[string]*types.ReportSchedule{}}
	for _, s := range schedules {
		m.schedules[s.ID] = s
	}
	return m
}

func (m *mockScheduleStore) ListDue(_ context.Context, now time.Time, limit int) ([]types.ReportSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []types.ReportSchedule
	for _, s := range m.schedules {
		if s.IsActive && !s.NextRunAt.After(now) {
			due = append(due, *s)
		}
		if len(due) >= limit {
			break
		}
	}
	return due, nil
}

func (m *mockScheduleStore) GetByID(_ context.Context, id string) (*types.ReportSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundSchedule, "report schedule not found", nil)
	}
	cp := *s
	return &cp, nil
}

func (m *mockScheduleStore) MarkRun(_ context.Context, id string, lastRunAt, nextRunAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markRunErr != nil {
		return m.markRunErr
	}
	m.markRunCalls = append(m.markRunCalls, markRunCall{id: id, lastRunAt: lastRunAt, nextRunAt: nextRunAt})
	if s, ok := m.schedules[id]; ok {
		s.LastRunAt = &lastRunAt
		s.NextRunAt = nextRunAt
	}
	return nil
}

func (m *mockScheduleStore) MarkManualRun(_ context.Context, id string, lastRunAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markManualCalls = append(m.markManualCalls, markManualCall{id: id, lastRunAt: lastRunAt})
	if s, ok := m.schedules[id]; ok {
		s.LastRunAt = &lastRunAt
	}
	return nil
}

func (m *mockScheduleStore) HasActiveForClient(_ context.Context, clientID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeErr != nil {
		return false, m.activeErr
	}
	for _, s := range m.schedules {
		if s.ClientID == clientID && s.IsActive {
			return true, nil
		}
	}
	return false, nil
}

type mockReportDelivery struct {
	mu    sync.Mutex
	sends []string
	fail  map[string]error
}

func (m *mockReportDelivery) GenerateAndSend(_ context.Context, schedule types.ReportSchedule) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		if err := m.fail[schedule.ID]; err != nil {
			return "", err
		}
	}
	m.sends = append(m.sends, schedule.ID)
	return "report_" + schedule.ID, nil
}

type mockClientLookup struct {
	mu      sync.Mutex
	clients map[string]*types.Client
	members map[string][]string
}

func newMockClientLookup() *mockClientLookup {
	return &mockClientLookup{
		clients: map[string]*types.Client{},
		members: map[string][]string{},
	}
}

func (m *mockClientLookup) GetByID(_ context.Context, id string) (*types.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundClient, "client not found", nil)
	}
	cp := *c
	return &cp, nil
}

func (m *mockClientLookup) ListActiveMemberIDs(_ context.Context, clientID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.members[clientID], nil
}

func weeklySchedule(id string, nextRunAt time.Time) *types.ReportSchedule {
	return &types.ReportSchedule{
		ID:         id,
		ClientID:   "client-1",
		Frequency:  types.FrequencyWeekly,
		TimeOfDay:  "09:00",
		Recipients: []string{"owner@example.com"},
		IsActive:   true,
		NextRunAt:  nextRunAt,
	}
}

func newTestRunner(store *mockScheduleStore, delivery *mockReportDelivery, clients *mockClientLookup, notifier *mockSweepNotifier) *ReportScheduleRunner {
	return NewReportScheduleRunner(ReportScheduleRunnerConfig{
		Schedules: store,
		Delivery:  delivery,
		Clients:   clients,
		Notifier:  notifier,
	})
}

func seedClient(clients *mockClientLookup) {
	clients.clients["client-1"] = &types.Client{
		ID:               "client-1",
		AgencyID:         "agency-1",
		Name:             "Acme Co",
		PrimaryContactID: "contact-1",
	}
	clients.members["client-1"] = []string{"member-1"}
}

func TestProcessDueSchedulesSendsAndAdvances(t *testing.T) {
	due := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) // Monday 09:00
	store := newMockScheduleStore(weeklySchedule("sched-1", due))
	delivery := &mockReportDelivery{}
	clients := newMockClientLookup()
	seedClient(clients)
	notifier := &mockSweepNotifier{}

	runner := newTestRunner(store, delivery, clients, notifier)

	now := due.Add(5 * time.Minute)
	sent, err := runner.ProcessDueSchedules(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []string{"sched-1"}, delivery.sends)

	require.Len(t, store.markRunCalls, 1)
	call := store.markRunCalls[0]
	assert.Equal(t, now, call.lastRunAt)
	// One week later, pinned to the configured time of day.
	assert.Equal(t, time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC), call.nextRunAt)

	events := notifier.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, types.EventReportSent, events[0].Type)
	assert.ElementsMatch(t, []string{"member-1", "contact-1"}, events[0].RecipientUserIDs)
}

func TestProcessDueSchedulesDeliveryFailureLeavesPointer(t *testing.T) {
	due := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	broken := weeklySchedule("sched-broken", due)
	healthy := weeklySchedule("sched-healthy", due)

	store := newMockScheduleStore(broken, healthy)
	delivery := &mockReportDelivery{fail: map[string]error{"sched-broken": errors.New("report service down")}}
	clients := newMockClientLookup()
	seedClient(clients)

	runner := newTestRunner(store, delivery, clients, &mockSweepNotifier{})

	sent, err := runner.ProcessDueSchedules(context.Background(), due)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	// The failed schedule keeps its pointer and is due again next tick.
	assert.Equal(t, due, store.schedules["sched-broken"].NextRunAt)
	assert.Nil(t, store.schedules["sched-broken"].LastRunAt)
}

func TestTriggerNowMarksManualRunOnly(t *testing.T) {
	next := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	store := newMockScheduleStore(weeklySchedule("sched-1", next))
	delivery := &mockReportDelivery{}
	clients := newMockClientLookup()
	seedClient(clients)
	notifier := &mockSweepNotifier{}

	runner := newTestRunner(store, delivery, clients, notifier)

	now := time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)
	require.NoError(t, runner.TriggerNow(context.Background(), "sched-1", now))

	assert.Equal(t, []string{"sched-1"}, delivery.sends)
	require.Len(t, store.markManualCalls, 1)
	assert.Equal(t, now, store.markManualCalls[0].lastRunAt)

	// The cadence pointer is untouched: the scheduled run still happens.
	assert.Empty(t, store.markRunCalls)
	assert.Equal(t, next, store.schedules["sched-1"].NextRunAt)

	require.Len(t, notifier.recorded(), 1)
}

func TestTriggerNowRejectsInactiveSchedule(t *testing.T) {
	schedule := weeklySchedule("sched-1", time.Now())
	schedule.IsActive = false
	store := newMockScheduleStore(schedule)
	delivery := &mockReportDelivery{}

	runner := newTestRunner(store, delivery, newMockClientLookup(), &mockSweepNotifier{})

	err := runner.TriggerNow(context.Background(), "sched-1", time.Now())

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeConflictScheduleInactive, appErr.Code)
	assert.Empty(t, delivery.sends)
}

func TestTriggerNowSurfacesDeliveryError(t *testing.T) {
	store := newMockScheduleStore(weeklySchedule("sched-1", time.Now()))
	delivery := &mockReportDelivery{fail: map[string]error{"sched-1": errors.New("report service down")}}

	runner := newTestRunner(store, delivery, newMockClientLookup(), &mockSweepNotifier{})

	err := runner.TriggerNow(context.Background(), "sched-1", time.Now())
	require.Error(t, err)
	assert.Empty(t, store.markManualCalls, "a failed send is not recorded as a run")
}

func TestNextScheduleRunMalformedTimeOfDay(t *testing.T) {
	schedule := *weeklySchedule("sched-1", time.Time{})
	schedule.TimeOfDay = "9am"

	from := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	next := nextScheduleRun(schedule, from)

	// Falls back to the occurrence's own clock time.
	assert.Equal(t, from.AddDate(0, 0, 7), next)
}

func TestDeriveReportStatus(t *testing.T) {
	assert.Equal(t, types.ReportStatusScheduled, DeriveReportStatus(types.ReportStatusDraft, true))
	assert.Equal(t, types.ReportStatusDraft, DeriveReportStatus(types.ReportStatusDraft, false))
	// Sent is terminal regardless of schedules.
	assert.Equal(t, types.ReportStatusSent, DeriveReportStatus(types.ReportStatusSent, true))
}

func TestClientReportStatusReflectsActiveSchedules(t *testing.T) {
	store := newMockScheduleStore(weeklySchedule("sched-1", time.Now()))
	runner := newTestRunner(store, &mockReportDelivery{}, newMockClientLookup(), &mockSweepNotifier{})

	status, err := runner.ClientReportStatus(context.Background(), "client-1", types.ReportStatusDraft)
	require.NoError(t, err)
	assert.Equal(t, types.ReportStatusScheduled, status)

	// Deactivating the only schedule drops the derived state back to draft.
	store.schedules["sched-1"].IsActive = false
	status, err = runner.ClientReportStatus(context.Background(), "client-1", types.ReportStatusDraft)
	require.NoError(t, err)
	assert.Equal(t, types.ReportStatusDraft, status)

	// Other clients' schedules do not leak into the projection.
	store.schedules["sched-1"].IsActive = true
	status, err = runner.ClientReportStatus(context.Background(), "client-2", types.ReportStatusDraft)
	require.NoError(t, err)
	assert.Equal(t, types.ReportStatusDraft, status)
}

func TestClientReportStatusLookupError(t *testing.T) {
	store := newMockScheduleStore()
	store.activeErr = errors.New("db down")
	runner := newTestRunner(store, &mockReportDelivery{}, newMockClientLookup(), &mockSweepNotifier{})

	status, err := runner.ClientReportStatus(context.Background(), "client-1", types.ReportStatusDraft)
	require.Error(t, err)
	assert.Equal(t, types.ReportStatusDraft, status)
}
