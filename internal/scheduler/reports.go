package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"agencydesk/internal/notify"
	"agencydesk/internal/recurrence"
	"agencydesk/internal/types"
)

// ScheduleStore abstracts the schedule reads and run bookkeeping the report
// runner needs.
type ScheduleStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]types.ReportSchedule, error)
	GetByID(ctx context.Context, id string) (*types.ReportSchedule, error)
	// MarkRun records a scheduled run and advances the cadence pointer.
	MarkRun(ctx context.Context, id string, lastRunAt, nextRunAt time.Time) error
	// MarkManualRun records a manual trigger without touching the pointer.
	MarkManualRun(ctx context.Context, id string, lastRunAt time.Time) error
	// HasActiveForClient reports whether the client has any active schedule.
	HasActiveForClient(ctx context.Context, clientID string) (bool, error)
}

// ReportDelivery generates the report for a schedule and emails it to the
// schedule's recipients. Returns the generated report's ID.
type ReportDelivery interface {
	GenerateAndSend(ctx context.Context, schedule types.ReportSchedule) (string, error)
}

// ClientLookup resolves the client facts behind the report-sent fan-out.
type ClientLookup interface {
	GetByID(ctx context.Context, id string) (*types.Client, error)
	ListActiveMemberIDs(ctx context.Context, clientID string) ([]string, error)
}

// ReportScheduleRunner executes due report schedules and manual triggers.
type ReportScheduleRunner struct {
	schedules ScheduleStore
	delivery  ReportDelivery
	clients   ClientLookup
	notifier  Notifier
	batchSize int
	logger    *slog.Logger
}

// ReportScheduleRunnerConfig holds the configuration for creating a
// ReportScheduleRunner.
type ReportScheduleRunnerConfig struct {
	Schedules ScheduleStore
	Delivery  ReportDelivery
	Clients   ClientLookup
	Notifier  Notifier
	BatchSize int
	Logger    *slog.Logger
}

// NewReportScheduleRunner creates a ReportScheduleRunner.
func NewReportScheduleRunner(cfg ReportScheduleRunnerConfig) *ReportScheduleRunner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ReportScheduleRunner{
		schedules: cfg.Schedules,
		delivery:  cfg.Delivery,
		clients:   cfg.Clients,
		notifier:  cfg.Notifier,
		batchSize: batchSize,
		logger:    logger,
	}
}

// ProcessDueSchedules runs every active schedule whose next_run_at has
// passed: the report is generated and emailed, last_run_at is recorded, and
// the pointer advances to the next occurrence at the schedule's time of day.
//
// Failures are isolated per schedule. A delivery failure leaves the pointer
// unadvanced so the next tick retries; a bookkeeping failure after a
// successful delivery is logged and the schedule is skipped (the next tick
// may re-send rather than silently drop a run). Returns the number of
// reports sent this tick.
func (r *ReportScheduleRunner) ProcessDueSchedules(ctx context.Context, now time.Time) (int, error) {
	schedules, err := r.schedules.ListDue(ctx, now, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(schedules) == 0 {
		return 0, nil
	}

	sent := 0
	for _, schedule := range schedules {
		reportID, err := r.delivery.GenerateAndSend(ctx, schedule)
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to deliver scheduled report",
				"schedule_id", schedule.ID,
				"client_id", schedule.ClientID,
				"error", err,
			)
			continue
		}

		next := nextScheduleRun(schedule, schedule.NextRunAt)
		if err := r.schedules.MarkRun(ctx, schedule.ID, now, next); err != nil {
			r.logger.ErrorContext(ctx, "failed to record scheduled report run",
				"schedule_id", schedule.ID,
				"report_id", reportID,
				"error", err,
			)
			continue
		}
		sent++

		r.logger.InfoContext(ctx, "scheduled report sent",
			"schedule_id", schedule.ID,
			"report_id", reportID,
			"recipients", len(schedule.Recipients),
			"next_run_at", next,
		)

		r.notifyReportSent(ctx, schedule, reportID)
	}

	return sent, nil
}

// TriggerNow runs a schedule immediately, outside its cadence. The run is
// recorded in last_run_at but next_run_at is untouched: a manual send never
// shifts or suppresses the regular cadence.
func (r *ReportScheduleRunner) TriggerNow(ctx context.Context, scheduleID string, now time.Time) error {
	schedule, err := r.schedules.GetByID(ctx, scheduleID)
	if err != nil {
		return err
	}
	if !schedule.IsActive {
		return types.NewAppError(types.ErrCodeConflictScheduleInactive,
			"cannot trigger an inactive report schedule", nil)
	}

	reportID, err := r.delivery.GenerateAndSend(ctx, *schedule)
	if err != nil {
		return err
	}

	if err := r.schedules.MarkManualRun(ctx, schedule.ID, now); err != nil {
		// The report went out; bookkeeping failure must not be reported as a
		// failed send.
		r.logger.ErrorContext(ctx, "failed to record manual report run",
			"schedule_id", schedule.ID,
			"report_id", reportID,
			"error", err,
		)
	}

	r.logger.InfoContext(ctx, "report triggered manually",
		"schedule_id", schedule.ID,
		"report_id", reportID,
	)

	r.notifyReportSent(ctx, *schedule, reportID)
	return nil
}

// notifyReportSent fans the in-app report-sent event out to the client's
// active members and primary contact. Best-effort: lookup failures are
// logged and the fan-out shrinks accordingly.
func (r *ReportScheduleRunner) notifyReportSent(ctx context.Context, schedule types.ReportSchedule, reportID string) {
	client, err := r.clients.GetByID(ctx, schedule.ClientID)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to load client for report notification",
			"schedule_id", schedule.ID,
			"client_id", schedule.ClientID,
			"error", err,
		)
		return
	}

	recipients, err := r.clients.ListActiveMemberIDs(ctx, schedule.ClientID)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to load client members for report notification",
			"schedule_id", schedule.ID,
			"client_id", schedule.ClientID,
			"error", err,
		)
	}
	if client.PrimaryContactID != "" {
		recipients = append(recipients, client.PrimaryContactID)
	}
	if len(recipients) == 0 {
		return
	}

	subject := schedule.EmailSubject
	if subject == "" {
		subject = fmt.Sprintf("Your report for %s is ready", client.Name)
	}

	r.notifier.DispatchAsync(ctx, notify.Event{
		Type:             types.EventReportSent,
		AgencyID:         client.AgencyID,
		RecipientUserIDs: recipients,
		Subject:          subject,
		Body:             fmt.Sprintf("A new report has been sent for %s.", client.Name),
		ClientID:         &client.ID,
	})
}

// nextScheduleRun computes the occurrence after from for the schedule's
// cadence, pinned to its configured time of day. A malformed time_of_day
// falls back to the occurrence's own clock time.
func nextScheduleRun(schedule types.ReportSchedule, from time.Time) time.Time {
	next := recurrence.NextOccurrence(from, schedule.Frequency, schedule.DayOfWeek, schedule.DayOfMonth)

	if t, err := time.Parse("15:04", schedule.TimeOfDay); err == nil {
		next = time.Date(next.Year(), next.Month(), next.Day(),
			t.Hour(), t.Minute(), 0, 0, next.Location())
	}
	return next
}

// DeriveReportStatus resolves the presentation status of a report. The
// "scheduled" state is derived, never stored: a draft belonging to a client
// with at least one active schedule presents as scheduled.
func DeriveReportStatus(stored types.ReportStatus, hasActiveSchedule bool) types.ReportStatus {
	if stored == types.ReportStatusDraft && hasActiveSchedule {
		return types.ReportStatusScheduled
	}
	return stored
}

// ClientReportStatus resolves the presentation status of a client's report
// against the client's live schedule state.
func (r *ReportScheduleRunner) ClientReportStatus(ctx context.Context, clientID string, stored types.ReportStatus) (types.ReportStatus, error) {
	active, err := r.schedules.HasActiveForClient(ctx, clientID)
	if err != nil {
		return stored, err
	}
	return DeriveReportStatus(stored, active), nil
}
