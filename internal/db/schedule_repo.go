package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"agencydesk/internal/types"
)

// scheduleColumns is the canonical column list for report_schedules scans.
const scheduleColumns = `id, client_id, frequency, day_of_week, day_of_month,
	time_of_day, recipients, email_subject, is_active, next_run_at,
	last_run_at, created_at, updated_at`

// ReportScheduleRepository provides data access for the report_schedules
// table.
type ReportScheduleRepository struct {
	db DBTX
}

// NewReportScheduleRepository creates a repository backed by the given
// connection (pool or transaction).
func NewReportScheduleRepository(db DBTX) *ReportScheduleRepository {
	return &ReportScheduleRepository{db: db}
}

// ListDue returns active schedules whose next_run_at has passed, ordered by
// next_run_at ascending.
func (r *ReportScheduleRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]types.ReportSchedule, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+scheduleColumns+`
		 FROM report_schedules
		 WHERE is_active = TRUE AND next_run_at <= $1
		 ORDER BY next_run_at ASC
		 LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query due schedules", err)
	}
	defer rows.Close()

	var schedules []types.ReportSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan schedule", err)
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating due schedules", err)
	}

	return schedules, nil
}

// GetByID returns a single schedule, or a not_found error.
func (r *ReportScheduleRepository) GetByID(ctx context.Context, id string) (*types.ReportSchedule, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM report_schedules WHERE id = $1`, id)

	s, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSchedule, "report schedule not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get schedule", err)
	}
	return &s, nil
}

// MarkRun records a successful scheduled run: last_run_at is set and the
// cadence pointer advances.
func (r *ReportScheduleRepository) MarkRun(ctx context.Context, id string, lastRunAt, nextRunAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE report_schedules
		 SET last_run_at = $2, next_run_at = $3, updated_at = NOW()
		 WHERE id = $1`,
		id, lastRunAt, nextRunAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark schedule run", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSchedule, "report schedule not found", nil)
	}
	return nil
}

// MarkManualRun records a manual trigger: last_run_at is set but next_run_at
// is left untouched so the regular cadence is undisturbed.
func (r *ReportScheduleRepository) MarkManualRun(ctx context.Context, id string, lastRunAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE report_schedules
		 SET last_run_at = $2, updated_at = NOW()
		 WHERE id = $1`,
		id, lastRunAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark manual run", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSchedule, "report schedule not found", nil)
	}
	return nil
}

// HasActiveForClient reports whether the client has at least one active
// schedule. Feeds the derived "scheduled" report status projection.
func (r *ReportScheduleRepository) HasActiveForClient(ctx context.Context, clientID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM report_schedules WHERE client_id = $1 AND is_active = TRUE
		 )`,
		clientID,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check active schedules", err)
	}
	return exists, nil
}

// scanSchedule reads a report_schedules row in scheduleColumns order.
func scanSchedule(row pgx.Row) (types.ReportSchedule, error) {
	var (
		s         types.ReportSchedule
		frequency string
	)
	err := row.Scan(
		&s.ID,
		&s.ClientID,
		&frequency,
		&s.DayOfWeek,
		&s.DayOfMonth,
		&s.TimeOfDay,
		&s.Recipients,
		&s.EmailSubject,
		&s.IsActive,
		&s.NextRunAt,
		&s.LastRunAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return types.ReportSchedule{}, err
	}
	s.Frequency = types.Frequency(frequency)
	return s, nil
}
