package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"agencydesk/internal/types"
)

// ClientRepository provides data access for the clients and client_members
// tables, including the transactional archive unit of work.
type ClientRepository struct {
	db TxBeginner
}

// NewClientRepository creates a repository backed by the given pool.
func NewClientRepository(db TxBeginner) *ClientRepository {
	return &ClientRepository{db: db}
}

// GetByID returns the lifecycle projection of a client.
func (r *ClientRepository) GetByID(ctx context.Context, id string) (*types.Client, error) {
	var (
		c      types.Client
		status string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, agency_id, name, status, canceled_end_date,
		        scheduled_archive_at, primary_contact_id, created_at, updated_at
		 FROM clients WHERE id = $1`,
		id,
	).Scan(
		&c.ID,
		&c.AgencyID,
		&c.Name,
		&status,
		&c.CanceledEndDate,
		&c.ScheduledArchiveAt,
		&c.PrimaryContactID,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundClient, "client not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get client", err)
	}
	c.Status = types.ClientStatus(status)
	return &c, nil
}

// ArchiveCanceled bulk-transitions canceled clients whose service end date
// has passed to archived. The comparison is date-only: a client canceled
// effective today is archived by today's sweep regardless of time of day.
// Returns the number of clients archived.
func (r *ClientRepository) ArchiveCanceled(ctx context.Context, today time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE clients
		 SET status = 'archived', canceled_end_date = NULL,
		     scheduled_archive_at = NULL, updated_at = NOW()
		 WHERE status = 'canceled'
		   AND canceled_end_date IS NOT NULL
		   AND canceled_end_date::date <= $1::date`,
		today,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to archive canceled clients", err)
	}
	return tag.RowsAffected(), nil
}

// ArchiveScheduled transitions clients whose scheduled_archive_at has passed
// to archived, clears the archive date, and deactivates every report
// schedule belonging to them, all in one transaction, so a client is never
// observable as archived while its schedules are still active.
// Returns the archived client projections for downstream notification.
func (r *ClientRepository) ArchiveScheduled(ctx context.Context, today time.Time) ([]types.Client, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to begin archive transaction", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`UPDATE clients
		 SET status = 'archived', scheduled_archive_at = NULL,
		     canceled_end_date = NULL, updated_at = NOW()
		 WHERE scheduled_archive_at IS NOT NULL
		   AND scheduled_archive_at::date <= $1::date
		   AND status <> 'archived'
		 RETURNING id, agency_id, name, primary_contact_id`,
		today,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to archive scheduled clients", err)
	}

	var archived []types.Client
	for rows.Next() {
		var c types.Client
		if err := rows.Scan(&c.ID, &c.AgencyID, &c.Name, &c.PrimaryContactID); err != nil {
			rows.Close()
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan archived client", err)
		}
		c.Status = types.ClientStatusArchived
		archived = append(archived, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating archived clients", err)
	}

	if len(archived) == 0 {
		// Nothing to do; committing the empty transaction is harmless.
		if err := tx.Commit(ctx); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to commit archive transaction", err)
		}
		return nil, nil
	}

	ids := make([]string, len(archived))
	for i, c := range archived {
		ids[i] = c.ID
	}

	if _, err := tx.Exec(ctx,
		`UPDATE report_schedules
		 SET is_active = FALSE, updated_at = NOW()
		 WHERE client_id = ANY($1)`,
		ids,
	); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to deactivate schedules for archived clients", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to commit archive transaction", err)
	}

	return archived, nil
}

// ListActiveMemberIDs returns the user IDs of active members linked to the
// client. Feeds completion fan-out and the capability predicate.
func (r *ClientRepository) ListActiveMemberIDs(ctx context.Context, clientID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id FROM client_members
		 WHERE client_id = $1 AND status = 'active'`,
		clientID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query client members", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan client member", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating client members", err)
	}

	return ids, nil
}
