// Package workflow implements the approval-gated task status state machine.
// An actor may set any of the five legal status values directly; linear
// advancement is a UI convenience. The engine enforces the approval
// sub-flow invariants and decides which notification events to emit.
package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"agencydesk/internal/notify"
	"agencydesk/internal/types"
)

// TaskStore abstracts the task reads and the atomic status write the
// workflow needs.
type TaskStore interface {
	GetByID(ctx context.Context, id string) (*types.Task, error)
	// UpdateStatus applies status and approval_notify_user_ids in one
	// statement.
	UpdateStatus(ctx context.Context, id string, status types.TaskStatus, approvalNotifyUserIDs []string) error
	Delete(ctx context.Context, id string) error
}

// ClientDirectory resolves the relationship facts behind the capability
// predicate and the completion fan-out.
type ClientDirectory interface {
	GetByID(ctx context.Context, id string) (*types.Client, error)
	ListActiveMemberIDs(ctx context.Context, clientID string) ([]string, error)
}

// Notifier is the fire-and-forget fan-out entry point.
type Notifier interface {
	DispatchAsync(ctx context.Context, event notify.Event)
}

// Service applies task status transitions. It is the sole mutator of a
// task's status and approval_notify_user_ids.
type Service struct {
	tasks    TaskStore
	clients  ClientDirectory
	notifier Notifier
	logger   *slog.Logger
}

// ServiceConfig holds the configuration for creating a workflow Service.
type ServiceConfig struct {
	Tasks    TaskStore
	Clients  ClientDirectory
	Notifier Notifier
	Logger   *slog.Logger
}

// NewService creates a workflow Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tasks:    cfg.Tasks,
		clients:  cfg.Clients,
		notifier: cfg.Notifier,
		logger:   logger,
	}
}

// PatchStatus applies a status value to a task on behalf of an actor.
//
// Rules, independent of how the UI arrived at the request:
//   - needs_approval with a non-empty recipient set persists the set and
//     fans out an approval-requested notification to exactly those users.
//   - Any other value clears the persisted set.
//   - A transition into done fans out a completion notification to the
//     client's active members, the task creator (when different from the
//     actor), and the prior approval set, always excluding the actor.
//
// The status change is durable and returned before any delivery completes;
// notification failures are logged by the dispatcher, never surfaced here.
func (s *Service) PatchStatus(ctx context.Context, actor types.Actor, taskID string, status types.TaskStatus, approvalNotifyUserIDs []string) (*types.Task, error) {
	if !status.Valid() {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidStatus,
			fmt.Sprintf("%q is not a valid task status", status), nil,
			map[string]any{"status": string(status)})
	}

	task, access, err := s.loadAuthorized(ctx, actor, taskID, types.OpStatusPatch)
	if err != nil {
		return nil, err
	}

	priorStatus := task.Status
	priorApprovers := task.ApprovalNotifyUserIDs

	var nextApprovers []string
	if status == types.TaskStatusNeedsApproval {
		nextApprovers = approvalNotifyUserIDs
	}

	if err := s.tasks.UpdateStatus(ctx, task.ID, status, nextApprovers); err != nil {
		return nil, err
	}

	task.Status = status
	task.ApprovalNotifyUserIDs = nextApprovers

	switch {
	case status == types.TaskStatusNeedsApproval && len(nextApprovers) > 0:
		s.notifier.DispatchAsync(ctx, notify.Event{
			Type:             types.EventApprovalRequested,
			AgencyID:         task.AgencyID,
			RecipientUserIDs: nextApprovers,
			Subject:          fmt.Sprintf("Approval requested: %s", task.Title),
			Body:             fmt.Sprintf("%s is waiting for your approval.", task.Title),
			TaskID:           &task.ID,
			ClientID:         task.ClientID,
		})

	case status == types.TaskStatusDone && priorStatus != types.TaskStatusDone:
		recipients := s.completionRecipients(actor, task, access, priorApprovers)
		if len(recipients) > 0 {
			s.notifier.DispatchAsync(ctx, notify.Event{
				Type:             types.EventTaskCompleted,
				AgencyID:         task.AgencyID,
				RecipientUserIDs: recipients,
				Subject:          fmt.Sprintf("Task completed: %s", task.Title),
				Body:             fmt.Sprintf("%s has been marked as done.", task.Title),
				TaskID:           &task.ID,
				ClientID:         task.ClientID,
			})
		}
	}

	s.logger.InfoContext(ctx, "task status patched",
		"task_id", task.ID,
		"actor_id", actor.ID,
		"from", priorStatus,
		"to", status,
	)

	return task, nil
}

// DeleteTask removes a task after the capability check. Specialists are
// denied even on their own assigned tasks.
func (s *Service) DeleteTask(ctx context.Context, actor types.Actor, taskID string) error {
	task, _, err := s.loadAuthorized(ctx, actor, taskID, types.OpDeleteTask)
	if err != nil {
		return err
	}

	if err := s.tasks.Delete(ctx, task.ID); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "task deleted",
		"task_id", task.ID,
		"actor_id", actor.ID,
	)
	return nil
}

// Authorize loads a task and evaluates the capability predicate for the
// given operation. Returns a permission error when the actor may not act.
// The outer CRUD layer uses this for detail-editing access decisions.
func (s *Service) Authorize(ctx context.Context, actor types.Actor, taskID string, op types.TaskOperation) (*types.Task, error) {
	task, _, err := s.loadAuthorized(ctx, actor, taskID, op)
	return task, err
}

// loadAuthorized fetches the task, resolves client relationships when the
// role-based checks alone cannot decide, and applies the predicate.
func (s *Service) loadAuthorized(ctx context.Context, actor types.Actor, taskID string, op types.TaskOperation) (*types.Task, TaskAccess, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, TaskAccess{}, err
	}

	access := TaskAccess{}
	if task.ClientID != nil && needsClientFacts(actor) {
		members, err := s.clients.ListActiveMemberIDs(ctx, *task.ClientID)
		if err != nil {
			return nil, TaskAccess{}, err
		}
		access.ClientMemberIDs = members

		client, err := s.clients.GetByID(ctx, *task.ClientID)
		if err != nil {
			return nil, TaskAccess{}, err
		}
		access.PrimaryContactID = client.PrimaryContactID
	}

	if !CanPerform(actor, task, op, access) {
		return nil, TaskAccess{}, types.NewAppErrorWithDetails(types.ErrCodePermissionTaskAccess,
			"actor may not perform this operation on the task", nil,
			map[string]any{
				"task_id":   task.ID,
				"actor_id":  actor.ID,
				"operation": string(op),
			})
	}

	return task, access, nil
}

// needsClientFacts reports whether the predicate can only be decided with
// client membership data. Admin, agency members, and specialists are decided
// on the actor and task alone.
func needsClientFacts(actor types.Actor) bool {
	switch actor.Role {
	case types.RoleAdmin, types.RoleSpecialist:
		return false
	}
	return true
}

// completionRecipients builds the fan-out set for a transition into done:
// active client members, the creator when different from the actor, and the
// approval set that was just cleared. The completing actor is excluded.
func (s *Service) completionRecipients(actor types.Actor, task *types.Task, access TaskAccess, priorApprovers []string) []string {
	var recipients []string

	if task.ClientID != nil {
		members := access.ClientMemberIDs
		if members == nil {
			// The access check may have short-circuited on role; the
			// completion fan-out still needs the member list.
			loaded, err := s.clients.ListActiveMemberIDs(context.WithoutCancel(context.Background()), *task.ClientID)
			if err != nil {
				s.logger.Error("failed to load client members for completion fan-out",
					"task_id", task.ID,
					"client_id", *task.ClientID,
					"error", err,
				)
			} else {
				members = loaded
			}
		}
		recipients = append(recipients, members...)
	}

	if task.CreatorID != "" && task.CreatorID != actor.ID {
		recipients = append(recipients, task.CreatorID)
	}

	recipients = append(recipients, priorApprovers...)

	// The completing actor never notifies themselves, even when they are
	// also the creator or a client member.
	filtered := recipients[:0]
	for _, id := range recipients {
		if id != actor.ID {
			filtered = append(filtered, id)
		}
	}
	return filtered
}
