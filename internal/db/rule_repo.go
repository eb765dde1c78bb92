package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"agencydesk/internal/types"
)

// ruleColumns is the canonical column list for recurring_task_rules scans.
const ruleColumns = `id, agency_id, title, description, category, priority,
	estimated_hours, proof_template, assignee_id, client_id, default_status,
	frequency, day_of_week, day_of_month, next_run_at, is_active,
	created_at, updated_at`

// RecurringTaskRuleRepository provides data access for the
// recurring_task_rules table and the spawn-and-advance unit of work that
// materializes a rule into a task.
type RecurringTaskRuleRepository struct {
	db TxBeginner
}

// NewRecurringTaskRuleRepository creates a repository backed by the given pool.
func NewRecurringTaskRuleRepository(db TxBeginner) *RecurringTaskRuleRepository {
	return &RecurringTaskRuleRepository{db: db}
}

// ListDue returns active rules whose next_run_at has passed, ordered by
// next_run_at ascending so the oldest-due rule is processed first.
func (r *RecurringTaskRuleRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]types.RecurringTaskRule, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+ruleColumns+`
		 FROM recurring_task_rules
		 WHERE is_active = TRUE AND next_run_at <= $1
		 ORDER BY next_run_at ASC
		 LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query due rules", err)
	}
	defer rows.Close()

	var rules []types.RecurringTaskRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan rule", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating due rules", err)
	}

	return rules, nil
}

// GetByID returns a single rule, or a not_found error.
func (r *RecurringTaskRuleRepository) GetByID(ctx context.Context, id string) (*types.RecurringTaskRule, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM recurring_task_rules WHERE id = $1`, id)

	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundRule, "recurring task rule not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get rule", err)
	}
	return &rule, nil
}

// CreateTaskAndAdvance inserts the spawned task and advances the rule's
// next_run_at in a single transaction. The pointer advances only if the task
// insert succeeds, so a failure leaves the rule due and retried next tick
// without a half-applied state.
func (r *RecurringTaskRuleRepository) CreateTaskAndAdvance(ctx context.Context, task *types.Task, ruleID string, nextRunAt time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin spawn transaction", err)
	}
	defer tx.Rollback(ctx)

	if task.ID == "" {
		task.ID = "task_" + uuid.NewString()
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO tasks
		 (id, agency_id, client_id, title, description, notes, category, status,
		  due_date, assignee_id, creator_id, priority, estimated_hours,
		  proof_template, approval_notify_user_ids, rule_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW(), NOW())`,
		task.ID,
		task.AgencyID,
		task.ClientID,
		task.Title,
		task.Description,
		task.Notes,
		task.Category,
		string(task.Status),
		task.DueDate,
		task.AssigneeID,
		task.CreatorID,
		task.Priority,
		task.EstimatedHours,
		task.ProofTemplate,
		task.ApprovalNotifyUserIDs,
		task.RuleID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert spawned task", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE recurring_task_rules
		 SET next_run_at = $2, updated_at = NOW()
		 WHERE id = $1`,
		ruleID, nextRunAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to advance rule pointer", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundRule,
			fmt.Sprintf("rule %s vanished during spawn", ruleID), nil)
	}

	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit spawn transaction", err)
	}
	return nil
}

// SetActive flips a rule's is_active flag. Stop is a soft deactivation;
// the rule keeps its configuration and pointer.
func (r *RecurringTaskRuleRepository) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE recurring_task_rules SET is_active = $2, updated_at = NOW() WHERE id = $1`,
		id, active,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update rule active flag", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundRule, "recurring task rule not found", nil)
	}
	return nil
}

// UpdateNextRunAt sets the rule's pointer. Used on resume when the stored
// pointer is stale.
func (r *RecurringTaskRuleRepository) UpdateNextRunAt(ctx context.Context, id string, nextRunAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE recurring_task_rules SET next_run_at = $2, updated_at = NOW() WHERE id = $1`,
		id, nextRunAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update rule next_run_at", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundRule, "recurring task rule not found", nil)
	}
	return nil
}

// Delete permanently removes a rule. Spawned tasks keep their rule_id via
// ON DELETE SET NULL.
func (r *RecurringTaskRuleRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM recurring_task_rules WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete rule", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundRule, "recurring task rule not found", nil)
	}
	return nil
}

// scanRule reads a recurring_task_rules row in ruleColumns order.
func scanRule(row pgx.Row) (types.RecurringTaskRule, error) {
	var (
		rule          types.RecurringTaskRule
		defaultStatus string
		frequency     string
	)
	err := row.Scan(
		&rule.ID,
		&rule.AgencyID,
		&rule.Title,
		&rule.Description,
		&rule.Category,
		&rule.Priority,
		&rule.EstimatedHours,
		&rule.ProofTemplate,
		&rule.AssigneeID,
		&rule.ClientID,
		&defaultStatus,
		&frequency,
		&rule.DayOfWeek,
		&rule.DayOfMonth,
		&rule.NextRunAt,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return types.RecurringTaskRule{}, err
	}
	rule.DefaultStatus = types.TaskStatus(defaultStatus)
	rule.Frequency = types.Frequency(frequency)
	return rule, nil
}
