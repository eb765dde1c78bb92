package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agencydesk/internal/notify"
	"agencydesk/internal/types"
)

type mockRuleStore struct {
	mu    sync.Mutex
	rules map[string]*types.RecurringTaskRule

	spawnCalls []spawnCall
	failSpawn  map[string]error
	listErr    error
}

type spawnCall struct {
	task      types.Task
	ruleID    string
	nextRunAt time.Time
}

func newMockRuleStore(rules ...*types.RecurringTaskRule) *mockRuleStore {
	m := &mockRuleStore{
		rules:     map[string]*types.RecurringTaskRule{},
		failSpawn: map[string]error{},
	}
	for _, r := range rules {
		m.rules[r.ID] = r
	}
	return m
}

func (m *mockRuleStore) ListDue(_ context.Context, now time.Time, limit int) ([]types.RecurringTaskRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var due []types.RecurringTaskRule
	for _, r := range m.rules {
		if r.IsActive && !r.NextRunAt.After(now) {
			due = append(due, *r)
		}
		if len(due) >= limit {
			break
		}
	}
	return due, nil
}

func (m *mockRuleStore) GetByID(_ context.Context, id string) (*types.RecurringTaskRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundRule, "recurring task rule not found", nil)
	}
	cp := *r
	return &cp, nil
}

func (m *mockRuleStore) CreateTaskAndAdvance(_ context.Context, task *types.Task, ruleID string, nextRunAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failSpawn[ruleID]; err != nil {
		return err
	}
	if task.ID == "" {
		task.ID = "task_" + ruleID
	}
	m.spawnCalls = append(m.spawnCalls, spawnCall{task: *task, ruleID: ruleID, nextRunAt: nextRunAt})
	if r, ok := m.rules[ruleID]; ok {
		r.NextRunAt = nextRunAt
	}
	return nil
}

func (m *mockRuleStore) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundRule, "recurring task rule not found", nil)
	}
	r.IsActive = active
	return nil
}

func (m *mockRuleStore) UpdateNextRunAt(_ context.Context, id string, nextRunAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundRule, "recurring task rule not found", nil)
	}
	r.NextRunAt = nextRunAt
	return nil
}

func (m *mockRuleStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[id]; !ok {
		return types.NewAppError(types.ErrCodeNotFoundRule, "recurring task rule not found", nil)
	}
	delete(m.rules, id)
	return nil
}

type mockSweepNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (m *mockSweepNotifier) DispatchAsync(_ context.Context, event notify.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *mockSweepNotifier) recorded() []notify.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notify.Event(nil), m.events...)
}

func weeklyRule(id string, nextRunAt time.Time) *types.RecurringTaskRule {
	return &types.RecurringTaskRule{
		ID:            id,
		AgencyID:      "agency-1",
		Title:         "Weekly check-in",
		Frequency:     types.FrequencyWeekly,
		NextRunAt:     nextRunAt,
		IsActive:      true,
		DefaultStatus: types.TaskStatusTodo,
		AssigneeID:    "user-1",
	}
}

func TestProcessDueRulesSpawnsAndAdvances(t *testing.T) {
	due := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) // Monday
	rule := weeklyRule("rule-1", due)
	rule.ProofTemplate = "Attach the signed check-in summary"
	store := newMockRuleStore(rule)
	s := NewRecurringTaskScheduler(RecurringTaskSchedulerConfig{Rules: store})

	now := due.Add(30 * time.Minute)
	spawned, err := s.ProcessDueRules(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, spawned)

	require.Len(t, store.spawnCalls, 1)
	call := store.spawnCalls[0]
	assert.Equal(t, "rule-1", call.ruleID)
	assert.Equal(t, "Weekly check-in", call.task.Title)
	assert.Equal(t, types.TaskStatusTodo, call.task.Status)
	require.NotNil(t, call.task.RuleID)
	assert.Equal(t, "rule-1", *call.task.RuleID)

	// Template fields are copied verbatim onto the spawned task.
	assert.Equal(t, "Attach the signed check-in summary", call.task.ProofTemplate)

	// Due date is the occurrence, not the sweep time.
	assert.Equal(t, due, call.task.DueDate)
	// Pointer advances exactly one week from the consumed occurrence.
	assert.Equal(t, due.AddDate(0, 0, 7), call.nextRunAt)
}

func TestProcessDueRulesSecondSweepSpawnsNothing(t *testing.T) {
	due := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store := newMockRuleStore(weeklyRule("rule-1", due))
	s := NewRecurringTaskScheduler(RecurringTaskSchedulerConfig{Rules: store})

	now := due.Add(time.Minute)
	spawned, err := s.ProcessDueRules(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, spawned)

	// The pointer advanced past now, so an immediate re-run is a no-op.
	spawned, err = s.ProcessDueRules(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, spawned)
	assert.Len(t, store.spawnCalls, 1)
}

func TestProcessDueRulesSkipsFutureAndInactive(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	future := weeklyRule("rule-future", now.Add(time.Hour))
	stopped := weeklyRule("rule-stopped", now.Add(-time.Hour))
	stopped.IsActive = false

	store := newMockRuleStore(future, stopped)
	s := NewRecurringTaskScheduler(RecurringTaskSchedulerConfig{Rules: store})

	spawned, err := s.ProcessDueRules(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, spawned)
	assert.Empty(t, store.spawnCalls)
}

func TestProcessDueRulesIsolatesFailures(t *testing.T) {
	due := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	broken := weeklyRule("rule-broken", due)
	healthy := weeklyRule("rule-healthy", due)

	store := newMockRuleStore(broken, healthy)
	store.failSpawn["rule-broken"] = errors.New("insert failed")

	s := NewRecurringTaskScheduler(RecurringTaskSchedulerConfig{Rules: store})

	now := due.Add(time.Minute)
	spawned, err := s.ProcessDueRules(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, spawned)

	require.Len(t, store.spawnCalls, 1)
	assert.Equal(t, "rule-healthy", store.spawnCalls[0].ruleID)

	// The broken rule's pointer did not move; the next tick retries it.
	assert.Equal(t, due, store.rules["rule-broken"].NextRunAt)
}

func TestProcessDueRulesInvalidDefaultStatusFallsBackToTodo(t *testing.T) {
	due := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rule := weeklyRule("rule-1", due)
	rule.DefaultStatus = "nonsense"

	store := newMockRuleStore(rule)
	s := NewRecurringTaskScheduler(RecurringTaskSchedulerConfig{Rules: store})

	_, err := s.ProcessDueRules(context.Background(), due)
	require.NoError(t, err)
	require.Len(t, store.spawnCalls, 1)
	assert.Equal(t, types.TaskStatusTodo, store.spawnCalls[0].task.Status)
}

func TestStopRuleDeactivates(t *testing.T) {
	rule := weeklyRule("rule-1", time.Now())
	store := newMockRuleStore(rule)
	s := NewRecurringTaskScheduler(RecurringTaskSchedulerConfig{Rules: store})

	require.NoError(t, s.StopRule(context.Background(), "rule-1"))
	assert.False(t, store.rules["rule-1"].IsActive)
}

func TestResumeRuleRejectsActiveRule(t *testing.T) {
	rule := weeklyRule("rule-1", time.Now().Add(time.Hour))
	store := newMockRuleStore(rule)
	s := NewRecurringTaskScheduler(RecurringTaskSchedulerConfig{Rules: store})

	err := s.ResumeRule(context.Background(), "rule-1", time.Now())

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeConflictRuleActive, appErr.Code)
}

func TestResumeRuleAdvancesStalePointer(t *testing.T) {
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC) // Monday
	stale := now.AddDate(0, 0, -21)                      // three weeks dormant

	rule := weeklyRule("rule-1", stale)
	rule.IsActive = false
	store := newMockRuleStore(rule)
	s := NewRecurringTaskScheduler(RecurringTaskSchedulerConfig{Rules: store})

	require.NoError(t, s.ResumeRule(context.Background(), "rule-1", now))

	resumed := store.rules["rule-1"]
	assert.True(t, resumed.IsActive)
	assert.False(t, resumed.NextRunAt.Before(now), "pointer must land at or after now")
	assert.True(t, resumed.NextRunAt.Before(now.AddDate(0, 0, 7)),
		"pointer must be the earliest occurrence, not beyond one period")
}

func TestResumeRuleKeepsFuturePointer(t *testing.T) {
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	future := now.AddDate(0, 0, 3)

	rule := weeklyRule("rule-1", future)
	rule.IsActive = false
	store := newMockRuleStore(rule)
	s := NewRecurringTaskScheduler(RecurringTaskSchedulerConfig{Rules: store})

	require.NoError(t, s.ResumeRule(context.Background(), "rule-1", now))
	assert.Equal(t, future, store.rules["rule-1"].NextRunAt)
}

func TestDeleteRule(t *testing.T) {
	store := newMockRuleStore(weeklyRule("rule-1", time.Now()))
	s := NewRecurringTaskScheduler(RecurringTaskSchedulerConfig{Rules: store})

	require.NoError(t, s.DeleteRule(context.Background(), "rule-1"))
	_, err := store.GetByID(context.Background(), "rule-1")
	require.Error(t, err)
}
