package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"agencydesk/internal/types"
)

// taskColumns is the canonical column list for tasks scans.
const taskColumns = `id, agency_id, client_id, title, description, notes,
	category, status, due_date, assignee_id, creator_id, priority,
	estimated_hours, proof_template, proof, approval_notify_user_ids, rule_id,
	created_at, updated_at`

// TaskRepository provides data access for the tasks table. The status
// workflow is the sole mutator of status and approval_notify_user_ids;
// updates are last-writer-wins at this layer.
type TaskRepository struct {
	db DBTX
}

// NewTaskRepository creates a TaskRepository backed by the given connection
// (pool or transaction).
func NewTaskRepository(db DBTX) *TaskRepository {
	return &TaskRepository{db: db}
}

// GetByID returns a single task, or a not_found error.
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*types.Task, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTask, "task not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get task", err)
	}
	return &task, nil
}

// UpdateStatus durably applies a status value together with the new
// approval_notify_user_ids set in one statement, so the invariant that the
// set is non-empty only while status is needs_approval can never be observed
// half-applied.
func (r *TaskRepository) UpdateStatus(ctx context.Context, id string, status types.TaskStatus, approvalNotifyUserIDs []string) error {
	// pgx maps a nil []string to NULL; normalize to an empty array so the
	// column stays NOT NULL.
	if approvalNotifyUserIDs == nil {
		approvalNotifyUserIDs = []string{}
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE tasks
		 SET status = $2, approval_notify_user_ids = $3, updated_at = NOW()
		 WHERE id = $1`,
		id, string(status), approvalNotifyUserIDs,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update task status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTask, "task not found", nil)
	}
	return nil
}

// Delete permanently removes a task.
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete task", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTask, "task not found", nil)
	}
	return nil
}

// scanTask reads a tasks row in taskColumns order.
func scanTask(row pgx.Row) (types.Task, error) {
	var (
		task      types.Task
		status    string
		proofJSON []byte
	)
	err := row.Scan(
		&task.ID,
		&task.AgencyID,
		&task.ClientID,
		&task.Title,
		&task.Description,
		&task.Notes,
		&task.Category,
		&status,
		&task.DueDate,
		&task.AssigneeID,
		&task.CreatorID,
		&task.Priority,
		&task.EstimatedHours,
		&task.ProofTemplate,
		&proofJSON,
		&task.ApprovalNotifyUserIDs,
		&task.RuleID,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return types.Task{}, err
	}

	task.Status = types.TaskStatus(status)
	if len(proofJSON) > 0 {
		if err := json.Unmarshal(proofJSON, &task.Proof); err != nil {
			return types.Task{}, err
		}
	}
	return task, nil
}
