package db

import (
	"context"

	"github.com/google/uuid"

	"agencydesk/internal/types"
)

// NotificationRepository provides data access for the in-app notifications
// table. Rows are written best-effort by the dispatcher; reads are served by
// the dashboard outside the engine.
type NotificationRepository struct {
	db DBTX
}

// NewNotificationRepository creates a NotificationRepository backed by the
// given connection (pool or transaction).
func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a new in-app notification row. An ID is generated when the
// caller leaves it empty.
func (r *NotificationRepository) Create(ctx context.Context, n *types.Notification) error {
	if n.ID == "" {
		n.ID = "notif_" + uuid.NewString()
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO notifications
		 (id, user_id, agency_id, event_type, subject, body, task_id, client_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()))`,
		n.ID,
		n.UserID,
		n.AgencyID,
		string(n.EventType),
		n.Subject,
		n.Body,
		n.TaskID,
		n.ClientID,
		nilIfZeroTime(n.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create notification", err)
	}
	return nil
}
