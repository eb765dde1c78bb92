package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"agencydesk/internal/types"
)

// TaskWorkflow is the task status workflow the handlers delegate to. It
// performs its own capability checks against the acting identity.
type TaskWorkflow interface {
	PatchStatus(ctx context.Context, actor types.Actor, taskID string, status types.TaskStatus, approvalNotifyUserIDs []string) (*types.Task, error)
	DeleteTask(ctx context.Context, actor types.Actor, taskID string) error
}

// RuleLifecycle exposes the recurrence rule lifecycle operations.
type RuleLifecycle interface {
	StopRule(ctx context.Context, ruleID string) error
	ResumeRule(ctx context.Context, ruleID string, now time.Time) error
	DeleteRule(ctx context.Context, ruleID string) error
}

// ReportTrigger runs a report schedule outside its cadence.
type ReportTrigger interface {
	TriggerNow(ctx context.Context, scheduleID string, now time.Time) error
}

// Handler wires the engine's admin operations onto HTTP routes.
type Handler struct {
	workflow TaskWorkflow
	rules    RuleLifecycle
	reports  ReportTrigger
	logger   *slog.Logger
	now      func() time.Time
}

// HandlerConfig holds the configuration for creating a Handler.
type HandlerConfig struct {
	Workflow TaskWorkflow
	Rules    RuleLifecycle
	Reports  ReportTrigger
	Logger   *slog.Logger
	// Now is injectable for tests; defaults to time.Now in UTC.
	Now func() time.Time
}

// NewHandler creates a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Handler{
		workflow: cfg.Workflow,
		rules:    cfg.Rules,
		reports:  cfg.Reports,
		logger:   logger,
		now:      now,
	}
}

// RegisterRoutes mounts the engine routes on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/tasks/{id}", func(r chi.Router) {
		r.Patch("/status", h.PatchTaskStatus)
		r.Delete("/", h.DeleteTask)
	})

	r.Route("/rules/{id}", func(r chi.Router) {
		r.Post("/stop", h.StopRule)
		r.Post("/resume", h.ResumeRule)
		r.Delete("/", h.DeleteRule)
	})

	r.Post("/schedules/{id}/trigger", h.TriggerReport)
}

// PatchStatusRequest is the body for PATCH /v1/tasks/{id}/status.
type PatchStatusRequest struct {
	Status types.TaskStatus `json:"status"`
	// ApprovalNotifyUserIDs is consulted only when status is needs_approval.
	ApprovalNotifyUserIDs []string `json:"approval_notify_user_ids,omitempty"`
}

// PatchTaskStatus handles PATCH /v1/tasks/{id}/status.
func (h *Handler) PatchTaskStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		Error(w, r, types.NewAppError(types.ErrCodePermissionRole, "identity required", nil))
		return
	}

	var req PatchStatusRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}

	task, err := h.workflow.PatchStatus(r.Context(), actor, chi.URLParam(r, "id"),
		req.Status, req.ApprovalNotifyUserIDs)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: task})
}

// DeleteTask handles DELETE /v1/tasks/{id}.
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		Error(w, r, types.NewAppError(types.ErrCodePermissionRole, "identity required", nil))
		return
	}

	if err := h.workflow.DeleteTask(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// requireAgencyRole gates the rule and schedule lifecycle operations: only
// platform admins and agency members manage recurrence configuration.
func requireAgencyRole(r *http.Request) (types.Actor, error) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		return types.Actor{}, types.NewAppError(types.ErrCodePermissionRole, "identity required", nil)
	}
	if actor.Role != types.RoleAdmin && actor.Role != types.RoleAgencyMember {
		return types.Actor{}, types.NewAppError(types.ErrCodePermissionRole,
			"only agency members may manage schedules", nil)
	}
	return actor, nil
}

// StopRule handles POST /v1/rules/{id}/stop.
func (h *Handler) StopRule(w http.ResponseWriter, r *http.Request) {
	if _, err := requireAgencyRole(r); err != nil {
		Error(w, r, err)
		return
	}

	if err := h.rules.StopRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResumeRule handles POST /v1/rules/{id}/resume.
func (h *Handler) ResumeRule(w http.ResponseWriter, r *http.Request) {
	if _, err := requireAgencyRole(r); err != nil {
		Error(w, r, err)
		return
	}

	if err := h.rules.ResumeRule(r.Context(), chi.URLParam(r, "id"), h.now()); err != nil {
		Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteRule handles DELETE /v1/rules/{id}.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if _, err := requireAgencyRole(r); err != nil {
		Error(w, r, err)
		return
	}

	if err := h.rules.DeleteRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TriggerReport handles POST /v1/schedules/{id}/trigger.
func (h *Handler) TriggerReport(w http.ResponseWriter, r *http.Request) {
	if _, err := requireAgencyRole(r); err != nil {
		Error(w, r, err)
		return
	}

	if err := h.reports.TriggerNow(r.Context(), chi.URLParam(r, "id"), h.now()); err != nil {
		Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
