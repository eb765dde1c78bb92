// Package scheduler contains the time-triggered sweeps: spawning tasks from
// recurring rules, running due report schedules, and archiving clients whose
// lifecycle dates have passed. Every sweep takes its reference time as an
// argument so ticks are deterministic and testable.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"agencydesk/internal/notify"
	"agencydesk/internal/recurrence"
	"agencydesk/internal/types"
)

// DefaultBatchSize bounds how many due entities one tick processes. A backlog
// larger than this drains across consecutive ticks instead of one giant sweep.
const DefaultBatchSize = 200

// resumeAdvanceCap bounds the pointer catch-up loop on resume. At weekly
// cadence this covers roughly four years of dormancy.
const resumeAdvanceCap = 250

// RuleStore abstracts the rule reads and the spawn-and-advance unit of work
// the task scheduler needs.
type RuleStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]types.RecurringTaskRule, error)
	GetByID(ctx context.Context, id string) (*types.RecurringTaskRule, error)
	// CreateTaskAndAdvance inserts the spawned task and moves the rule's
	// next_run_at in one transaction.
	CreateTaskAndAdvance(ctx context.Context, task *types.Task, ruleID string, nextRunAt time.Time) error
	SetActive(ctx context.Context, id string, active bool) error
	UpdateNextRunAt(ctx context.Context, id string, nextRunAt time.Time) error
	Delete(ctx context.Context, id string) error
}

// Notifier is the fire-and-forget fan-out entry point shared by the sweeps.
type Notifier interface {
	DispatchAsync(ctx context.Context, event notify.Event)
}

// RecurringTaskScheduler materializes due recurrence rules into tasks.
type RecurringTaskScheduler struct {
	rules     RuleStore
	batchSize int
	logger    *slog.Logger
}

// RecurringTaskSchedulerConfig holds the configuration for creating a
// RecurringTaskScheduler.
type RecurringTaskSchedulerConfig struct {
	Rules     RuleStore
	BatchSize int
	Logger    *slog.Logger
}

// NewRecurringTaskScheduler creates a RecurringTaskScheduler.
func NewRecurringTaskScheduler(cfg RecurringTaskSchedulerConfig) *RecurringTaskScheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &RecurringTaskScheduler{
		rules:     cfg.Rules,
		batchSize: batchSize,
		logger:    logger,
	}
}

// ProcessDueRules spawns a task for every active rule whose next_run_at has
// passed and advances each rule's pointer past now.
//
// Failures are isolated per rule: a rule whose spawn fails is logged and
// skipped, its pointer stays put, and the next tick retries it. One broken
// rule never blocks the rest of the batch. Returns the number of tasks
// spawned this tick.
func (s *RecurringTaskScheduler) ProcessDueRules(ctx context.Context, now time.Time) (int, error) {
	rules, err := s.rules.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return 0, err
	}
	if len(rules) == 0 {
		return 0, nil
	}

	spawned := 0
	for _, rule := range rules {
		if err := s.spawnOne(ctx, rule, now); err != nil {
			s.logger.ErrorContext(ctx, "failed to spawn task from rule",
				"rule_id", rule.ID,
				"agency_id", rule.AgencyID,
				"error", err,
			)
			continue
		}
		spawned++
	}

	s.logger.InfoContext(ctx, "recurring task sweep complete",
		"due", len(rules),
		"spawned", spawned,
	)
	return spawned, nil
}

// spawnOne builds the task from the rule template and commits it together
// with the pointer advance.
func (s *RecurringTaskScheduler) spawnOne(ctx context.Context, rule types.RecurringTaskRule, now time.Time) error {
	status := rule.DefaultStatus
	if !status.Valid() {
		status = types.TaskStatusTodo
	}

	// The due date is the occurrence the pointer represented, not the sweep
	// time: a rule processed late still yields the task it would have
	// yielded on time.
	task := &types.Task{
		AgencyID:       rule.AgencyID,
		ClientID:       rule.ClientID,
		Title:          rule.Title,
		Description:    rule.Description,
		Category:       rule.Category,
		Status:         status,
		DueDate:        rule.NextRunAt,
		AssigneeID:     rule.AssigneeID,
		Priority:       rule.Priority,
		EstimatedHours: rule.EstimatedHours,
		ProofTemplate:  rule.ProofTemplate,
		RuleID:         &rule.ID,
	}

	// Advance from the occurrence just consumed so a backlog drains one
	// occurrence per tick without skipping or duplicating any.
	next := recurrence.NextOccurrence(rule.NextRunAt, rule.Frequency, rule.DayOfWeek, rule.DayOfMonth)

	if err := s.rules.CreateTaskAndAdvance(ctx, task, rule.ID, next); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "task spawned from rule",
		"rule_id", rule.ID,
		"task_id", task.ID,
		"due_date", task.DueDate,
		"next_run_at", next,
	)
	return nil
}

// StopRule deactivates a rule. The rule keeps its configuration and pointer;
// stopping an already-stopped rule is a no-op.
func (s *RecurringTaskScheduler) StopRule(ctx context.Context, ruleID string) error {
	return s.rules.SetActive(ctx, ruleID, false)
}

// ResumeRule reactivates a stopped rule. A pointer left in the past would
// make the next sweep spawn a burst of stale tasks, so a stale next_run_at is
// first advanced to the earliest occurrence at or after now.
func (s *RecurringTaskScheduler) ResumeRule(ctx context.Context, ruleID string, now time.Time) error {
	rule, err := s.rules.GetByID(ctx, ruleID)
	if err != nil {
		return err
	}
	if rule.IsActive {
		return types.NewAppError(types.ErrCodeConflictRuleActive, "rule is already active", nil)
	}

	if rule.NextRunAt.Before(now) {
		next := rule.NextRunAt
		for i := 0; next.Before(now) && i < resumeAdvanceCap; i++ {
			next = recurrence.NextOccurrence(next, rule.Frequency, rule.DayOfWeek, rule.DayOfMonth)
		}
		if err := s.rules.UpdateNextRunAt(ctx, ruleID, next); err != nil {
			return err
		}
		s.logger.InfoContext(ctx, "rule pointer advanced on resume",
			"rule_id", ruleID,
			"from", rule.NextRunAt,
			"to", next,
		)
	}

	return s.rules.SetActive(ctx, ruleID, true)
}

// DeleteRule permanently removes a rule. Tasks already spawned from it are
// untouched.
func (s *RecurringTaskScheduler) DeleteRule(ctx context.Context, ruleID string) error {
	return s.rules.Delete(ctx, ruleID)
}
